package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homeprov/internal/runner"
	"homeprov/internal/runner/runnertest"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		output string
		want   Identity
		ok     bool
	}{
		{"uid=1000(alice) gid=1000(alice) groups=1000(alice),27(sudo)", Identity{UID: 1000, GID: 1000}, true},
		{"uid=71234(jdoe) gid=2763(zp) groups=2763(zp)", Identity{UID: 71234, GID: 2763}, true},
		{"uid=42 gid=7", Identity{UID: 42, GID: 7}, true},
		{"id: 'ghost': no such user", Identity{}, false},
		{"", Identity{}, false},
	}

	for _, tt := range tests {
		got, ok := ParseID(tt.output)
		assert.Equal(t, tt.ok, ok, tt.output)
		assert.Equal(t, tt.want, got, tt.output)
	}
}

func TestCommandResolver_Resolve(t *testing.T) {
	logger, _ := test.NewNullLogger()
	fake := runnertest.New().
		On("id -- alice", runner.Result{Output: "uid=1001(alice) gid=2763(zp) groups=2763(zp)"}).
		On("id -- ghost", runner.Result{Output: "id: 'ghost': no such user", ExitCode: 1}).
		On("id -- weird", runner.Result{Output: "something unexpected"})

	r := NewCommandResolver(fake, "", logger)

	id, err := r.Resolve(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, Identity{UID: 1001, GID: 2763}, id)

	_, err = r.Resolve(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Resolve(context.Background(), "weird")
	assert.ErrorIs(t, err, ErrNotFound)

	// never retried
	assert.Equal(t, 1, fake.CallCount("id -- ghost"))
}

func TestCommandResolver_RunnerFailureIsNotNotFound(t *testing.T) {
	logger, _ := test.NewNullLogger()
	fake := runnertest.New().OnErr("id -- alice", runner.Result{ExitCode: -1}, errors.New("exec: not found"))

	_, err := NewCommandResolver(fake, "id", logger).Resolve(context.Background(), "alice")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestCommandResolver_OptionLikeUsernames(t *testing.T) {
	logger, _ := test.NewNullLogger()
	// id prints the caller's own identity for these
	fake := runnertest.New().
		On("id -- --", runner.Result{Output: "uid=0(root) gid=0(root) groups=0(root)"}).
		On("id -- -a", runner.Result{Output: "uid=0(root) gid=0(root) groups=0(root)"})

	r := NewCommandResolver(fake, "id", logger)

	for _, username := range []string{"--", "-a", "-", "--help"} {
		_, err := r.Resolve(context.Background(), username)
		assert.ErrorIs(t, err, ErrNotFound, username)
	}
	assert.Empty(t, fake.Calls())
}

func TestCommandResolver_EndsOptionParsing(t *testing.T) {
	logger, _ := test.NewNullLogger()
	fake := runnertest.New().On("id -- a-b", runner.Result{Output: "uid=1002(a-b) gid=1002(a-b)"})

	id, err := NewCommandResolver(fake, "id", logger).Resolve(context.Background(), "a-b")
	require.NoError(t, err)
	assert.Equal(t, Identity{UID: 1002, GID: 1002}, id)
	assert.Equal(t, []string{"id -- a-b"}, fake.Calls())
}
