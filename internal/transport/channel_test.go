package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Izanyoi/dictadoc-web/internal/config"
)

type fakeConn struct {
	mu       sync.Mutex
	writes   [][]byte
	closed   bool
	incoming chan []byte
	readErr  chan error
	done     chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan []byte, 16),
		readErr:  make(chan error, 1),
		done:     make(chan struct{}),
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.ErrClosedPipe
	}
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.incoming:
		return data, nil
	case err := <-c.readErr:
		return nil, err
	case <-c.done:
		return nil, io.EOF
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

type fakeDialer struct {
	mu        sync.Mutex
	fail      bool
	dials     int
	endpoints []string
	conns     []*fakeConn
}

func (d *fakeDialer) Dial(_ context.Context, endpoint string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.endpoints = append(d.endpoints, endpoint)
	if d.fail {
		return nil, errors.New("connection refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) setFail(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = fail
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func testConfig(delay time.Duration, maxAttempts int) *config.Config {
	return &config.Config{
		ReconnectDelay:       delay,
		MaxReconnectAttempts: maxAttempts,
		DialTimeout:          time.Second,
	}
}

func TestChannel_ConnectIsIdempotent(t *testing.T) {
	dialer := &fakeDialer{}
	ch := NewChannel(testConfig(10*time.Millisecond, 3), dialer)
	defer ch.Disconnect()

	if err := ch.Connect(context.Background(), "ws://a"); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if err := ch.Connect(context.Background(), "ws://a"); err != nil {
		t.Fatalf("second connect failed: %v", err)
	}
	if ch.Status() != StatusConnected {
		t.Fatalf("unexpected status: %s", ch.Status())
	}
	if dialer.dialCount() != 1 {
		t.Fatalf("expected one dial, got %d", dialer.dialCount())
	}
}

func TestChannel_ConnectRequiresEndpoint(t *testing.T) {
	ch := NewChannel(testConfig(10*time.Millisecond, 3), &fakeDialer{})
	if err := ch.Connect(context.Background(), ""); !errors.Is(err, ErrNoEndpoint) {
		t.Fatalf("expected ErrNoEndpoint, got %v", err)
	}
	if err := ch.Reconnect(context.Background()); !errors.Is(err, ErrNoEndpoint) {
		t.Fatalf("expected ErrNoEndpoint, got %v", err)
	}
}

func TestChannel_SendWhileDisconnected(t *testing.T) {
	ch := NewChannel(testConfig(10*time.Millisecond, 3), &fakeDialer{})
	if err := ch.Send([]byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestChannel_SendWritesToConnection(t *testing.T) {
	dialer := &fakeDialer{}
	ch := NewChannel(testConfig(10*time.Millisecond, 3), dialer)
	defer ch.Disconnect()
	if err := ch.Connect(context.Background(), "ws://a"); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if err := ch.Send([]byte("hello")); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if dialer.conn(0).writeCount() != 1 {
		t.Fatalf("expected one write, got %d", dialer.conn(0).writeCount())
	}
}

func TestChannel_DeliversInboundMessages(t *testing.T) {
	dialer := &fakeDialer{}
	ch := NewChannel(testConfig(10*time.Millisecond, 3), dialer)
	defer ch.Disconnect()

	var (
		mu  sync.Mutex
		got []string
	)
	ch.SetMessageHandler(func(data []byte) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(data))
	})
	if err := ch.Connect(context.Background(), "ws://a"); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	dialer.conn(0).incoming <- []byte("one")
	dialer.conn(0).incoming <- []byte("two")

	waitUntil(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, "expected two inbound messages")
	mu.Lock()
	defer mu.Unlock()
	if got[0] != "one" || got[1] != "two" {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestChannel_ReconnectBound(t *testing.T) {
	dialer := &fakeDialer{fail: true}
	ch := NewChannel(testConfig(10*time.Millisecond, 3), dialer)
	defer ch.Disconnect()

	if err := ch.Connect(context.Background(), "ws://a"); err == nil {
		t.Fatal("expected connect error")
	}
	waitUntil(t, time.Second, func() bool { return dialer.dialCount() == 4 }, "expected initial dial plus three retries")

	time.Sleep(100 * time.Millisecond)
	if dialer.dialCount() != 4 {
		t.Fatalf("expected no further attempts, got %d dials", dialer.dialCount())
	}
	if s := ch.Status(); s != StatusError && s != StatusDisconnected {
		t.Fatalf("unexpected status: %s", s)
	}
}

func TestChannel_ZeroAttemptsNeverRetries(t *testing.T) {
	dialer := &fakeDialer{fail: true}
	ch := NewChannel(testConfig(10*time.Millisecond, 0), dialer)

	_ = ch.Connect(context.Background(), "ws://a")
	time.Sleep(60 * time.Millisecond)
	if dialer.dialCount() != 1 {
		t.Fatalf("expected a single dial, got %d", dialer.dialCount())
	}
}

func TestChannel_ReconnectsAfterUnexpectedLoss(t *testing.T) {
	dialer := &fakeDialer{}
	ch := NewChannel(testConfig(10*time.Millisecond, 3), dialer)
	defer ch.Disconnect()

	if err := ch.Connect(context.Background(), "ws://a"); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	dialer.conn(0).readErr <- io.ErrUnexpectedEOF

	waitUntil(t, time.Second, func() bool { return dialer.dialCount() == 2 && ch.Status() == StatusConnected }, "expected automatic reconnection")
	if ch.Attempts() != 0 {
		t.Fatalf("expected attempts reset after success, got %d", ch.Attempts())
	}
	if !dialer.conn(0).isClosed() {
		t.Fatal("expected lost connection to be closed")
	}
}

func TestChannel_CleanCloseByPeerDoesNotRetry(t *testing.T) {
	dialer := &fakeDialer{}
	ch := NewChannel(testConfig(10*time.Millisecond, 3), dialer)

	if err := ch.Connect(context.Background(), "ws://a"); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	dialer.conn(0).readErr <- ErrClosedNormally

	waitUntil(t, time.Second, func() bool { return ch.Status() == StatusDisconnected }, "expected disconnected status")
	time.Sleep(60 * time.Millisecond)
	if dialer.dialCount() != 1 {
		t.Fatalf("expected no retry after clean close, got %d dials", dialer.dialCount())
	}
}

func TestChannel_DisconnectCancelsPendingRetry(t *testing.T) {
	dialer := &fakeDialer{fail: true}
	ch := NewChannel(testConfig(40*time.Millisecond, 5), dialer)

	_ = ch.Connect(context.Background(), "ws://a")
	ch.Disconnect()

	time.Sleep(120 * time.Millisecond)
	if dialer.dialCount() != 1 {
		t.Fatalf("expected retry to be cancelled, got %d dials", dialer.dialCount())
	}
	if ch.Status() != StatusDisconnected {
		t.Fatalf("unexpected status: %s", ch.Status())
	}
	if ch.Attempts() != 0 {
		t.Fatalf("expected attempts reset, got %d", ch.Attempts())
	}
}

func TestChannel_ManualConnectAfterExhaustion(t *testing.T) {
	dialer := &fakeDialer{fail: true}
	ch := NewChannel(testConfig(10*time.Millisecond, 1), dialer)
	defer ch.Disconnect()

	_ = ch.Connect(context.Background(), "ws://a")
	waitUntil(t, time.Second, func() bool { return dialer.dialCount() == 2 }, "expected one retry")
	time.Sleep(40 * time.Millisecond)

	dialer.setFail(false)
	if err := ch.Reconnect(context.Background()); err != nil {
		t.Fatalf("manual reconnect failed: %v", err)
	}
	if ch.Status() != StatusConnected {
		t.Fatalf("unexpected status: %s", ch.Status())
	}
}

func TestChannel_StaleConnectionEventsAreIgnored(t *testing.T) {
	dialer := &fakeDialer{}
	ch := NewChannel(testConfig(10*time.Millisecond, 3), dialer)
	defer ch.Disconnect()

	if err := ch.Connect(context.Background(), "ws://a"); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if err := ch.Connect(context.Background(), "ws://b"); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	old := dialer.conn(0)
	if !old.isClosed() {
		t.Fatal("expected superseded connection to be closed")
	}

	time.Sleep(60 * time.Millisecond)
	if ch.Status() != StatusConnected || ch.Endpoint() != "ws://b" {
		t.Fatalf("unexpected state: %s %s", ch.Status(), ch.Endpoint())
	}
	if dialer.dialCount() != 2 {
		t.Fatalf("stale close triggered a retry: %d dials", dialer.dialCount())
	}
}

func TestChannel_WatchStatusKeepsLatest(t *testing.T) {
	dialer := &fakeDialer{}
	ch := NewChannel(testConfig(10*time.Millisecond, 3), dialer)
	updates, cancel := ch.WatchStatus()
	defer cancel()

	if got := <-updates; got != StatusDisconnected {
		t.Fatalf("unexpected initial status: %s", got)
	}
	if err := ch.Connect(context.Background(), "ws://a"); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if got := <-updates; got != StatusConnected {
		t.Fatalf("expected latest status connected, got %s", got)
	}
	ch.Disconnect()
	if got := <-updates; got != StatusDisconnected {
		t.Fatalf("expected disconnected, got %s", got)
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(message)
}
