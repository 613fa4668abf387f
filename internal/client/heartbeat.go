package client

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"homeprov/types"
)

type heartbeat struct {
	mu sync.RWMutex
	at time.Time
}

func (h *heartbeat) beat() {
	h.mu.Lock()
	h.at = time.Now()
	h.mu.Unlock()
}

func (h *heartbeat) last() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.at
}

// runHeartbeat re-sends setClientId every interval. The first failure ends
// the session so Run can reconnect.
func (c *Client) runHeartbeat(ctx context.Context) error {
	interval := c.config.GetHeartbeatInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.WithField("interval", interval).Info("🫀 Starting heartbeat monitor")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			callCtx, cancel := context.WithTimeout(ctx, interval)
			_, err := c.rpcClient.Call(callCtx, "setClientId", types.SetClientIDRequest{
				ClientID: c.config.GetClientID(),
			})
			cancel()
			if err != nil {
				c.logger.WithError(err).WithField("duration", time.Since(start)).Error("💔 Heartbeat failed - connection may be lost")
				return err
			}
			c.heartbeat.beat()
			c.logger.WithField("duration", time.Since(start)).Debug("💚 Heartbeat successful")
		}
	}
}

// IsConnectionHealthy reports whether a heartbeat succeeded within the last
// two intervals.
func (c *Client) IsConnectionHealthy() bool {
	last := c.heartbeat.last()
	if last.IsZero() {
		return false
	}

	maxGap := c.config.GetHeartbeatInterval() * 2
	healthy := time.Since(last) < maxGap
	if !healthy {
		c.logger.WithFields(logrus.Fields{
			"last_heartbeat":  last.Format(time.RFC3339),
			"max_allowed_gap": maxGap,
		}).Warn("⚠️ Connection health check failed")
	}
	return healthy
}
