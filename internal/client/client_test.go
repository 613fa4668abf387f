package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/sourcegraph/jsonrpc2"
	jsonrpc2websocket "github.com/sourcegraph/jsonrpc2/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homeprov/internal/jwt"
	"homeprov/internal/provision"
	"homeprov/types"
)

type fakeBackend struct {
	registered chan string
}

func (b *fakeBackend) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var body types.SetClientIDRequest
	_ = json.Unmarshal(*req.Params, &body)
	_ = conn.Reply(ctx, req.ID, map[string]bool{"ok": true})
	select {
	case b.registered <- body.ClientID:
	default:
	}
}

func newConfig(t *testing.T, tunnelHost string) *types.Config {
	t.Helper()
	keyDir := t.TempDir()
	logger, _ := test.NewNullLogger()
	require.NoError(t, jwt.NewManager(logger).GenerateKeyPair(keyDir, false))

	return &types.Config{
		OrgID:               "cern",
		HostID:              "eoshome01",
		KeyPath:             keyDir,
		TunnelHost:          tunnelHost,
		TunnelTimeoutMs:     5000,
		HeartbeatIntervalMs: 60000,
	}
}

func TestClient_ServesForwardedCalls(t *testing.T) {
	backend := &fakeBackend{registered: make(chan string, 1)}
	conns := make(chan *jsonrpc2.Conn, 1)
	var verifier *jwt.Manager

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if _, err := verifier.Verify(token); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		ws, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := jsonrpc2.NewConn(context.Background(), jsonrpc2websocket.NewObjectStream(ws), backend)
		conns <- conn
		<-conn.DisconnectNotify()
	}))
	defer srv.Close()

	cfg := newConfig(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	logger, _ := test.NewNullLogger()
	verifier = jwt.NewManager(logger)
	require.NoError(t, verifier.LoadKey(cfg.KeyPath))

	p := &mockProvisioner{}
	p.On("CheckHomeDir", "s3cret", "alice").Return(provision.Response{
		Status: http.StatusOK,
		Body:   provision.CheckBody{Dirs: map[string]bool{"Desktop": true}},
	})

	c, err := New(cfg, p, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	assert.Equal(t, "cern:eoshome01:homeprov", <-backend.registered)
	require.Eventually(t, c.IsConnectionHealthy, time.Second, 10*time.Millisecond)

	conn := <-conns
	var resp types.ForwardedResponse
	require.NoError(t, conn.Call(ctx, "call", types.ForwardedRequest{
		Method: "POST",
		Path:   "/",
		Data:   map[string]interface{}{"command": "checkHomeDir", "username": "alice", "secret": "s3cret"},
	}, &resp))

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, map[string]interface{}{"dirs": map[string]interface{}{"Desktop": true}}, resp.Data)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestClient_RejectedTokenIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := newConfig(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	logger, _ := test.NewNullLogger()

	c, err := New(cfg, &mockProvisioner{}, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = c.Run(ctx)
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
}

func TestNew_MissingKeys(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := New(&types.Config{KeyPath: t.TempDir()}, &mockProvisioner{}, logger)
	assert.ErrorContains(t, err, "failed to load JWT key")
}
