package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"homeprov/internal/backoff"
	"homeprov/internal/jwt"
	"homeprov/internal/rpc"
	"homeprov/types"
)

// AuthenticationError is returned when the tunnel backend rejects our token.
// It is not retried.
type AuthenticationError struct {
	StatusCode int
	Message    string
}

func (e *AuthenticationError) Error() string {
	return e.Message
}

const (
	DefaultBackoffStart = 1 * time.Second
	DefaultBackoffMax   = 30 * time.Second
)

// Client keeps a websocket session open to the tunnel backend and serves
// forwarded provisioning requests over it.
type Client struct {
	config      *types.Config
	logger      logrus.FieldLogger
	jwtManager  *jwt.Manager
	rpcClient   *rpc.Client
	provisioner Provisioner
	dialer      *websocket.Dialer

	heartbeat *heartbeat
}

func New(config *types.Config, provisioner Provisioner, logger logrus.FieldLogger) (*Client, error) {
	jwtManager := jwt.NewManager(logger)
	if err := jwtManager.LoadKey(config.KeyPath); err != nil {
		return nil, fmt.Errorf("failed to load JWT key: %w", err)
	}

	c := &Client{
		config:      config,
		logger:      logger,
		jwtManager:  jwtManager,
		rpcClient:   rpc.NewClient(logger),
		provisioner: provisioner,
		dialer:      websocket.DefaultDialer,
		heartbeat:   &heartbeat{},
	}
	c.rpcClient.AddMethod("call", c.handleCallMethod)

	return c, nil
}

// Run connects and keeps reconnecting until ctx is done or the backend
// rejects our credentials.
func (c *Client) Run(ctx context.Context) error {
	retry, err := backoff.New(DefaultBackoffStart, DefaultBackoffMax)
	if err != nil {
		return fmt.Errorf("failed to create backoff: %w", err)
	}

	for {
		err := c.session(ctx, retry)

		var authErr *AuthenticationError
		if errors.As(err, &authErr) {
			c.logger.WithFields(logrus.Fields{
				"status_code": authErr.StatusCode,
				"error":       authErr.Message,
			}).Error("💀 Authentication failed - exiting")
			return authErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.WithError(err).Warn("Tunnel session ended, reconnecting...")
		if err := retry.Wait(ctx); err != nil {
			return err
		}
	}
}

// session runs one websocket connection until it drops.
func (c *Client) session(ctx context.Context, retry *backoff.Backoff) error {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := c.connectOnce(sessionCtx); err != nil {
		return err
	}
	defer c.rpcClient.Close()

	if err := c.register(sessionCtx); err != nil {
		return err
	}
	retry.Reset()

	heartbeatErr := make(chan error, 1)
	go func() {
		heartbeatErr <- c.runHeartbeat(sessionCtx)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.rpcClient.DisconnectNotify():
		return fmt.Errorf("connection closed by peer")
	case err := <-heartbeatErr:
		return err
	}
}

func (c *Client) connectOnce(ctx context.Context) error {
	token, err := c.jwtManager.CreateJWT(c.config.GetClientID(), c.config.Labels)
	if err != nil {
		return fmt.Errorf("failed to create JWT: %w", err)
	}

	tunnelURL := c.config.TunnelHost
	if tunnelURL == "" {
		return fmt.Errorf("tunnel host URL not configured")
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)

	c.logger.WithField("url", tunnelURL).Debug("Attempting WebSocket connection")

	conn, resp, err := c.dialer.DialContext(ctx, tunnelURL, headers)
	if err != nil {
		if resp != nil {
			c.logger.WithFields(logrus.Fields{
				"status_code": resp.StatusCode,
				"status":      resp.Status,
			}).Error("WebSocket handshake failed with HTTP response")

			switch resp.StatusCode {
			case http.StatusUnauthorized:
				c.logger.Error("🔐 Token rejected - check that the public key is registered")
				return &AuthenticationError{StatusCode: resp.StatusCode, Message: "authentication failed - JWT token rejected by server"}
			case http.StatusForbidden:
				c.logger.Error("🚫 Forbidden - client ID may not be authorized")
				return &AuthenticationError{StatusCode: resp.StatusCode, Message: "forbidden - client ID may not be authorized"}
			case http.StatusNotFound:
				c.logger.Error("🔍 Not Found - check WebSocket endpoint path")
			}

			return fmt.Errorf("WebSocket handshake failed: HTTP %d", resp.StatusCode)
		}
		return fmt.Errorf("failed to dial WebSocket: %w", err)
	}

	c.logger.Info("WebSocket connection established, connecting JSON-RPC client")

	if err := c.rpcClient.ConnectWebSocket(ctx, conn); err != nil {
		conn.Close()
		return fmt.Errorf("failed to connect JSON-RPC client: %w", err)
	}
	return nil
}

func (c *Client) register(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, c.config.GetHeartbeatInterval())
	defer cancel()

	if _, err := c.rpcClient.Call(callCtx, "setClientId", types.SetClientIDRequest{
		ClientID: c.config.GetClientID(),
	}); err != nil {
		return fmt.Errorf("failed to set client ID: %w", err)
	}

	c.heartbeat.beat()
	c.logger.WithField("client_id", c.config.GetClientID()).Info("Client ID set successfully")
	return nil
}

func (c *Client) handleCallMethod(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var request types.ForwardedRequest
	if err := json.Unmarshal(params, &request); err != nil {
		c.logger.WithError(err).Error("Failed to unmarshal params to ForwardedRequest")
		return nil, fmt.Errorf("failed to unmarshal ForwardedRequest: %w", err)
	}

	if timeout := c.callTimeout(request); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return Dispatch(ctx, c.provisioner, request, c.logger.WithField("request_id", uuid.New().String())), nil
}

func (c *Client) callTimeout(request types.ForwardedRequest) time.Duration {
	if request.Options != nil && request.Options.TimeoutMillis != nil && *request.Options.TimeoutMillis > 0 {
		return time.Duration(*request.Options.TimeoutMillis) * time.Millisecond
	}
	return time.Duration(c.config.TunnelTimeoutMs) * time.Millisecond
}
