package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errFakeClosed = errors.New("fake: connection closed")

type fakeConn struct {
	inbound chan Frame
	remote  chan error
	done    chan struct{}

	// closeGate, when set, blocks Close until it is closed
	closeGate chan struct{}

	// writeDelay stalls every write before it lands
	writeDelay time.Duration
	closing    atomic.Bool
	lateWrites atomic.Int32

	mu        sync.Mutex
	writes    []Frame
	closed    bool
	closeCode int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan Frame, 16),
		remote:  make(chan error, 1),
		done:    make(chan struct{}),
	}
}

func (c *fakeConn) ReadFrame() (Frame, error) {
	select {
	case f := <-c.inbound:
		return f, nil
	case err := <-c.remote:
		return Frame{}, err
	case <-c.done:
		c.mu.Lock()
		code := c.closeCode
		c.mu.Unlock()
		return Frame{}, &CloseError{Code: code}
	}
}

func (c *fakeConn) WriteFrame(f Frame) error {
	if c.writeDelay > 0 {
		time.Sleep(c.writeDelay)
	}
	if c.closing.Load() {
		c.lateWrites.Add(1)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errFakeClosed
	}
	c.writes = append(c.writes, f)
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.closing.Store(true)
	if c.closeGate != nil {
		<-c.closeGate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.closeCode = code
		close(c.done)
	}
	return nil
}

// deliver pushes an inbound frame
func (c *fakeConn) deliver(kind MessageKind, payload string) {
	c.inbound <- Frame{Kind: kind, Payload: []byte(payload)}
}

// dropRemote simulates the peer closing with code
func (c *fakeConn) dropRemote(code int, reason string) {
	c.remote <- &CloseError{Code: code, Reason: reason}
}

func (c *fakeConn) count(kind MessageKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.writes {
		if f.Kind == kind {
			n++
		}
	}
	return n
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeDialer hands out scripted results in order; once the script runs out
// every dial returns a fresh fakeConn.
type fakeDialer struct {
	mu     sync.Mutex
	script []func(ctx context.Context) (Conn, error)
	conns  []*fakeConn
	dials  atomic.Int32
	header http.Header
}

func (d *fakeDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	d.dials.Add(1)

	d.mu.Lock()
	d.header = header
	var step func(ctx context.Context) (Conn, error)
	if len(d.script) > 0 {
		step = d.script[0]
		d.script = d.script[1:]
	}
	d.mu.Unlock()

	if step != nil {
		conn, err := step(ctx)
		if fc, ok := conn.(*fakeConn); ok {
			d.track(fc)
		}
		return conn, err
	}

	fc := newFakeConn()
	d.track(fc)
	return fc, nil
}

func (d *fakeDialer) track(fc *fakeConn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns = append(d.conns, fc)
}

func (d *fakeDialer) conn(t *testing.T, i int) *fakeConn {
	t.Helper()
	var fc *fakeConn
	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		if len(d.conns) > i {
			fc = d.conns[i]
			return true
		}
		return false
	}, time.Second, time.Millisecond)
	return fc
}

func failDial(err error) func(context.Context) (Conn, error) {
	return func(context.Context) (Conn, error) { return nil, err }
}

func blockDial() func(context.Context) (Conn, error) {
	return func(ctx context.Context) (Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

func testConfig() Config {
	cfg := DefaultConfig("ws://example.test/socket")
	cfg.PingInterval = 0
	cfg.ReconnectInterval = 5 * time.Millisecond
	cfg.ConnectTimeout = time.Second
	return cfg
}

func newTestSession(t *testing.T, cfg Config, d *fakeDialer) *Session {
	t.Helper()
	s, err := NewSession(cfg, WithDialer(d))
	require.NoError(t, err)
	t.Cleanup(s.Destroy)
	return s
}

// nextEvent reads events until one of type typ arrives
func nextEvent(t *testing.T, s *Session, typ EventType) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-s.Events():
			require.True(t, ok, "event stream closed while waiting for %s", typ)
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", typ)
		}
	}
}

// collectEvents drains events for d
func collectEvents(s *Session, d time.Duration) []Event {
	var out []Event
	timeout := time.After(d)
	for {
		select {
		case e, ok := <-s.Events():
			if !ok {
				return out
			}
			out = append(out, e)
		case <-timeout:
			return out
		}
	}
}

func countEvents(events []Event, typ EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == typ {
			n++
		}
	}
	return n
}
