package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/jsonrpc2"
	jsonrpc2websocket "github.com/sourcegraph/jsonrpc2/websocket"
)

var ErrNotConnected = errors.New("not connected")

type MethodHandler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Client is one end of a JSON-RPC 2.0 session over a websocket. Both sides
// may call: the tunnel backend forwards requests with "call" and the client
// announces itself with "setClientId".
type Client struct {
	logger logrus.FieldLogger

	mu          sync.RWMutex
	methods     map[string]MethodHandler
	conn        *jsonrpc2.Conn
	onConnected func()
	connected   chan struct{}
}

func NewClient(logger logrus.FieldLogger) *Client {
	return &Client{
		logger:    logger,
		methods:   make(map[string]MethodHandler),
		connected: make(chan struct{}, 1),
	}
}

func (c *Client) SetOnConnected(callback func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnected = callback
}

func (c *Client) AddMethod(method string, handler MethodHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.methods[method] = handler
}

// ConnectWebSocket starts serving the session on wsConn. Requests are
// dispatched on their own goroutines so a slow home creation does not block
// heartbeats. The session ends when ctx is done or the peer disconnects.
func (c *Client) ConnectWebSocket(ctx context.Context, wsConn *websocket.Conn) error {
	if wsConn == nil {
		return fmt.Errorf("websocket connection is nil")
	}

	stream := jsonrpc2websocket.NewObjectStream(wsConn)
	conn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.AsyncHandler(c))

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	onConnected := c.onConnected
	c.mu.Unlock()

	select {
	case c.connected <- struct{}{}:
	default:
	}

	if onConnected != nil {
		go onConnected()
	}

	return nil
}

func (c *Client) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if req.Notif {
		c.logger.WithField("method", req.Method).Debug("Ignoring notification")
		return
	}

	c.mu.RLock()
	handler, exists := c.methods[req.Method]
	c.mu.RUnlock()

	if !exists {
		c.reply(ctx, conn, req, nil, &jsonrpc2.Error{
			Code:    jsonrpc2.CodeMethodNotFound,
			Message: fmt.Sprintf("method %q not found", req.Method),
		})
		return
	}

	var params json.RawMessage
	if req.Params != nil {
		params = *req.Params
	}

	result, err := handler(ctx, params)
	if err != nil {
		var rpcErr *jsonrpc2.Error
		if !errors.As(err, &rpcErr) {
			rpcErr = &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: err.Error()}
		}
		c.reply(ctx, conn, req, nil, rpcErr)
		return
	}

	c.reply(ctx, conn, req, result, nil)
}

func (c *Client) reply(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, result interface{}, rpcErr *jsonrpc2.Error) {
	var err error
	if rpcErr != nil {
		err = conn.ReplyWithError(ctx, req.ID, rpcErr)
	} else {
		err = conn.Reply(ctx, req.ID, result)
	}
	if err != nil {
		c.logger.WithError(err).WithField("method", req.Method).Warn("Failed to send RPC reply")
	}
}

func (c *Client) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return nil, ErrNotConnected
	}

	var result json.RawMessage
	if err := conn.Call(ctx, method, params, &result); err != nil {
		return nil, fmt.Errorf("RPC call %s failed: %w", method, err)
	}

	return result, nil
}

// DisconnectNotify is closed when the current session ends. It returns nil
// before the first connection.
func (c *Client) DisconnectNotify() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.DisconnectNotify()
}

func (c *Client) WaitUntilConnected(ctx context.Context) error {
	select {
	case <-c.connected:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if errors.Is(err, jsonrpc2.ErrClosed) {
		return nil
	}
	return err
}
