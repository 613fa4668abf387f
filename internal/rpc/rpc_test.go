package rpc

import (
	"context"
	"encoding/json"
	"errors"
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
)

type backendHandler struct {
	clientIDs chan string
}

func (h *backendHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if req.Method != "setClientId" {
		_ = conn.ReplyWithError(ctx, req.ID, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: req.Method})
		return
	}
	var body struct {
		ClientID string `json:"clientId"`
	}
	_ = json.Unmarshal(*req.Params, &body)
	h.clientIDs <- body.ClientID
	_ = conn.Reply(ctx, req.ID, map[string]string{"ok": "true"})
}

// startBackend serves a websocket endpoint and hands the backend side of the
// JSON-RPC session to the test.
func startBackend(t *testing.T, handler jsonrpc2.Handler) (string, <-chan *jsonrpc2.Conn) {
	t.Helper()
	conns := make(chan *jsonrpc2.Conn, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := jsonrpc2.NewConn(context.Background(), jsonrpc2websocket.NewObjectStream(ws), handler)
		conns <- conn
		<-conn.DisconnectNotify()
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), conns
}

func dial(t *testing.T, ctx context.Context, url string, c *Client) {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.NoError(t, c.ConnectWebSocket(ctx, ws))
}

func TestClient_DispatchesCalls(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url, conns := startBackend(t, jsonrpc2.HandlerWithError(func(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request) (interface{}, error) {
		return nil, nil
	}))

	logger, _ := test.NewNullLogger()
	c := NewClient(logger)
	c.AddMethod("call", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		var p map[string]string
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return map[string]string{"echo": p["username"]}, nil
	})
	c.AddMethod("boom", func(context.Context, json.RawMessage) (interface{}, error) {
		return nil, errors.New("kaboom")
	})
	dial(t, ctx, url, c)
	defer c.Close()

	backend := <-conns

	var result map[string]string
	require.NoError(t, backend.Call(ctx, "call", map[string]string{"username": "alice"}, &result))
	assert.Equal(t, "alice", result["echo"])

	err := backend.Call(ctx, "boom", nil, &result)
	var rpcErr *jsonrpc2.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, int64(jsonrpc2.CodeInternalError), rpcErr.Code)
	assert.Equal(t, "kaboom", rpcErr.Message)

	err = backend.Call(ctx, "missing", nil, &result)
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, int64(jsonrpc2.CodeMethodNotFound), rpcErr.Code)
}

func TestClient_CallsBackend(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	backend := &backendHandler{clientIDs: make(chan string, 1)}
	url, _ := startBackend(t, backend)

	logger, _ := test.NewNullLogger()
	c := NewClient(logger)
	dial(t, ctx, url, c)
	defer c.Close()

	require.NoError(t, c.WaitUntilConnected(ctx))
	_, err := c.Call(ctx, "setClientId", map[string]string{"clientId": "org:host:homeprov"})
	require.NoError(t, err)
	assert.Equal(t, "org:host:homeprov", <-backend.clientIDs)
}

func TestClient_CallBeforeConnect(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := NewClient(logger).Call(context.Background(), "setClientId", nil)
	assert.ErrorIs(t, err, ErrNotConnected)
}
