package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Izanyoi/dictadoc-web/internal/config"
)

type Channel struct {
	dialer         Dialer
	reconnectDelay time.Duration
	maxAttempts    int
	dialTimeout    time.Duration

	mu         sync.Mutex
	status     Status
	endpoint   string
	conn       Conn
	generation uint64
	attempts   int
	retryTimer *time.Timer
	handler    MessageHandler
	watchers   map[int]chan Status
	nextWatch  int

	writeMu sync.Mutex
}

func NewChannel(cfg *config.Config, dialer Dialer) *Channel {
	return &Channel{
		dialer:         dialer,
		reconnectDelay: cfg.ReconnectDelay,
		maxAttempts:    cfg.MaxReconnectAttempts,
		dialTimeout:    cfg.DialTimeout,
		status:         StatusDisconnected,
		watchers:       make(map[int]chan Status),
	}
}

func (c *Channel) SetMessageHandler(h MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Channel) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

// Attempts returns the number of automatic reconnection attempts made since
// the last successful connect or manual disconnect.
func (c *Channel) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// WatchStatus returns a channel that always holds the most recent status.
// Slow readers miss intermediate values, never the latest one.
func (c *Channel) WatchStatus() (<-chan Status, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextWatch
	c.nextWatch++
	ch := make(chan Status, 1)
	ch <- c.status
	c.watchers[id] = ch
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.watchers, id)
	}
}

// Connect dials endpoint unless the channel is already connected, or
// connecting, to it. A failed dial is returned and also starts the
// automatic reconnection policy.
func (c *Channel) Connect(ctx context.Context, endpoint string) error {
	if endpoint == "" {
		return ErrNoEndpoint
	}
	return c.connect(ctx, endpoint, true)
}

// Reconnect manually connects to the last endpoint, restarting the
// reconnection budget.
func (c *Channel) Reconnect(ctx context.Context) error {
	endpoint := c.Endpoint()
	if endpoint == "" {
		return ErrNoEndpoint
	}
	c.mu.Lock()
	if c.status == StatusConnected {
		c.generation++
		c.dropConnLocked()
		c.setStatusLocked(StatusDisconnected)
	}
	c.mu.Unlock()
	return c.connect(ctx, endpoint, true)
}

func (c *Channel) connect(ctx context.Context, endpoint string, manual bool) error {
	c.mu.Lock()
	if c.endpoint == endpoint && (c.status == StatusConnected || c.status == StatusConnecting) {
		slog.Debug("transport already connected or connecting", "endpoint", endpoint, "status", c.status.String())
		c.mu.Unlock()
		return nil
	}
	if manual {
		c.stopRetryLocked()
		c.attempts = 0
	}
	c.dropConnLocked()
	c.generation++
	gen := c.generation
	c.endpoint = endpoint
	c.setStatusLocked(StatusConnecting)
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	conn, err := c.dialer.Dial(dialCtx, endpoint)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		if conn != nil {
			_ = conn.Close()
		}
		return fmt.Errorf("connect to %s superseded", endpoint)
	}
	if err != nil {
		slog.Warn("transport connect failed", "endpoint", endpoint, "attempt", c.attempts, "error", err)
		c.setStatusLocked(StatusError)
		c.scheduleRetryLocked()
		return fmt.Errorf("connect to %s: %w", endpoint, err)
	}
	c.conn = conn
	c.attempts = 0
	c.setStatusLocked(StatusConnected)
	go c.readLoop(gen, conn)
	return nil
}

// Disconnect closes the connection cleanly and cancels any pending
// reconnection. It is safe to call in any state.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopRetryLocked()
	c.attempts = 0
	c.generation++
	c.dropConnLocked()
	c.setStatusLocked(StatusDisconnected)
}

// Send writes one message. It never queues: when the channel is not
// connected it returns ErrNotConnected and the caller keeps the data.
func (c *Channel) Send(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.status == StatusConnected && conn != nil
	c.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(data); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (c *Channel) readLoop(gen uint64, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.handleConnLost(gen, err)
			return
		}
		c.mu.Lock()
		current := gen == c.generation
		handler := c.handler
		c.mu.Unlock()
		if !current {
			return
		}
		if handler != nil {
			handler(data)
		}
	}
}

func (c *Channel) handleConnLost(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	if errors.Is(err, ErrClosedNormally) {
		slog.Info("transport closed by peer", "endpoint", c.endpoint)
		c.setStatusLocked(StatusDisconnected)
		return
	}
	slog.Warn("transport connection lost", "endpoint", c.endpoint, "error", err)
	c.setStatusLocked(StatusDisconnected)
	c.scheduleRetryLocked()
}

func (c *Channel) scheduleRetryLocked() {
	if c.retryTimer != nil {
		return
	}
	if c.attempts >= c.maxAttempts {
		slog.Warn("transport reconnect attempts exhausted", "endpoint", c.endpoint, "max_attempts", c.maxAttempts)
		return
	}
	c.attempts++
	gen := c.generation
	slog.Info("transport reconnect scheduled", "endpoint", c.endpoint, "attempt", c.attempts, "delay_ms", c.reconnectDelay.Milliseconds())
	c.retryTimer = time.AfterFunc(c.reconnectDelay, func() {
		c.retry(gen)
	})
}

func (c *Channel) retry(gen uint64) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.retryTimer = nil
	endpoint := c.endpoint
	c.mu.Unlock()
	if err := c.connect(context.Background(), endpoint, false); err != nil {
		slog.Debug("transport reconnect attempt failed", "endpoint", endpoint, "error", err)
	}
}

func (c *Channel) stopRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

func (c *Channel) dropConnLocked() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		slog.Debug("transport close failed", "error", err)
	}
	c.conn = nil
}

func (c *Channel) setStatusLocked(s Status) {
	if c.status == s {
		return
	}
	c.status = s
	slog.Info("transport status changed", "status", s.String(), "endpoint", c.endpoint)
	for _, ch := range c.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}
