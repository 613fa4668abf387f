package eos

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homeprov/internal/identity"
	"homeprov/internal/runner"
	"homeprov/internal/runner/runnertest"
)

const mgm = "root://eosuser.example.org"

var alice = identity.Identity{UID: 1001, GID: 2763}

func newTestClient(fake *runnertest.Fake, dryRun bool) *Client {
	logger, _ := test.NewNullLogger()
	return NewClient(fake, Options{
		MgmURL: mgm,
		Layout: Layout{Prefix: "/eos/user"},
		DryRun: dryRun,
	}, logger)
}

func statKey(path string) string {
	return runnertest.Key("eos", "-b", "-r", "1001", "2763", mgm, "stat", path)
}

func mkdirKey(path string) string {
	return runnertest.Key("eos", "-b", "-r", "1001", "2763", mgm, "mkdir", "-p", path)
}

func TestLayout_ObjectPath(t *testing.T) {
	l := Layout{Prefix: "/eos/user/"}

	tests := []struct {
		logical string
		want    string
		wantErr bool
	}{
		{"files", "/eos/user/a/alice", false},
		{"files/", "/eos/user/a/alice", false},
		{"files/Documents", "/eos/user/a/alice/Documents", false},
		{"files/Photos/2024", "/eos/user/a/alice/Photos/2024", false},
		{"files/../bob", "", true},
		{"filesystem", "", true},
		{"other/Documents", "", true},
	}

	for _, tt := range tests {
		got, err := l.ObjectPath("alice", tt.logical)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidPath, tt.logical)
			continue
		}
		require.NoError(t, err, tt.logical)
		assert.Equal(t, tt.want, got, tt.logical)
	}

	_, err := l.ObjectPath("", "files")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestLayout_HomePathShardsOnFirstRune(t *testing.T) {
	l := Layout{Prefix: "/eos/user"}

	assert.Equal(t, "/eos/user/j/jdoe", l.HomePath("jdoe"))
	assert.Equal(t, "/eos/user/é/élodie", l.HomePath("élodie"))
	assert.Equal(t, "/eos/user/ß/ßmith", l.HomePath("ßmith"))
}

func TestLogicalPath(t *testing.T) {
	got, err := LogicalPath("/Documents/")
	require.NoError(t, err)
	assert.Equal(t, "files/Documents", got)

	got, err = LogicalPath("Music/Live")
	require.NoError(t, err)
	assert.Equal(t, "files/Music/Live", got)

	got, err = LogicalPath("//")
	require.NoError(t, err)
	assert.Equal(t, "files", got)

	_, err = LogicalPath("../../etc")
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = LogicalPath("a/./b")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, Exists, Classify(runner.Result{ExitCode: 0}))
	assert.Equal(t, NotExists, Classify(runner.Result{ExitCode: 2}))
	assert.Equal(t, Unknown, Classify(runner.Result{ExitCode: 22}))
	assert.Equal(t, Unknown, Classify(runner.Result{ExitCode: 255}))

	// retc overrides the process exit code
	assert.Equal(t, NotExists, Classify(runner.Result{ExitCode: 0, Output: "mgm.proc.stdout= mgm.proc.stderr=error: no such file retc=2"}))
	assert.Equal(t, Exists, Classify(runner.Result{ExitCode: 1, Output: "retc=0"}))
	assert.Equal(t, Unknown, Classify(runner.Result{ExitCode: 0, Output: "retc=5"}))
}

func TestPathStatus_String(t *testing.T) {
	assert.Equal(t, "exists", Exists.String())
	assert.Equal(t, "not_exists", NotExists.String())
	assert.Equal(t, "unknown", Unknown.String())
}

func TestClient_Probe(t *testing.T) {
	fake := runnertest.New().
		On(statKey("/eos/user/a/alice"), runner.Result{ExitCode: 0}).
		On(statKey("/eos/user/a/alice/Music"), runner.Result{ExitCode: 2}).
		OnErr(statKey("/eos/user/a/alice/Videos"), runner.Result{ExitCode: -1}, context.DeadlineExceeded)
	fake.Default = runner.Result{ExitCode: 5}

	c := newTestClient(fake, false)
	ctx := context.Background()

	assert.Equal(t, Exists, c.Probe(ctx, alice, "alice", "files"))
	assert.Equal(t, NotExists, c.Probe(ctx, alice, "alice", "files/Music"))
	assert.Equal(t, Unknown, c.Probe(ctx, alice, "alice", "files/Videos"))
	assert.Equal(t, Unknown, c.Probe(ctx, alice, "alice", "files/Desktop"))

	// invalid paths never reach eos
	assert.Equal(t, Unknown, c.Probe(ctx, alice, "alice", "files/../bob"))
	assert.Len(t, fake.Calls(), 4)
}

func TestClient_ProbeWithoutMgmURL(t *testing.T) {
	logger, _ := test.NewNullLogger()
	fake := runnertest.New().On(runnertest.Key("eos", "-b", "-r", "1001", "2763", "stat", "/eos/user/a/alice"), runner.Result{})

	c := NewClient(fake, Options{Layout: Layout{Prefix: "/eos/user"}}, logger)
	assert.Equal(t, Exists, c.Probe(context.Background(), alice, "alice", "files"))
}

func TestClient_CreateDir(t *testing.T) {
	fake := runnertest.New().
		On(mkdirKey("/eos/user/a/alice/Documents"), runner.Result{ExitCode: 0}).
		On(mkdirKey("/eos/user/a/alice/Music"), runner.Result{ExitCode: 17}).
		On(mkdirKey("/eos/user/a/alice/Videos"), runner.Result{ExitCode: 13, Output: "permission denied"}).
		OnErr(mkdirKey("/eos/user/a/alice/Desktop"), runner.Result{ExitCode: -1}, errors.New("killed"))

	c := newTestClient(fake, false)
	ctx := context.Background()

	assert.NoError(t, c.CreateDir(ctx, alice, "alice", "files/Documents"))
	assert.NoError(t, c.CreateDir(ctx, alice, "alice", "files/Music"))

	err := c.CreateDir(ctx, alice, "alice", "files/Videos")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")

	assert.Error(t, c.CreateDir(ctx, alice, "alice", "files/Desktop"))
	assert.ErrorIs(t, c.CreateDir(ctx, alice, "alice", "files/../../etc"), ErrInvalidPath)
}

func TestClient_CreateDirDryRun(t *testing.T) {
	fake := runnertest.New()
	c := newTestClient(fake, true)

	assert.NoError(t, c.CreateDir(context.Background(), alice, "alice", "files/Documents"))
	assert.Empty(t, fake.Calls())
}
