package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Close codes used by the session
const (
	CloseNormal     = websocket.CloseNormalClosure
	CloseGoingAway  = websocket.CloseGoingAway
	CloseNoStatus   = websocket.CloseNoStatusReceived
	CloseAbnormal   = websocket.CloseAbnormalClosure
	DefaultWriteTTL = 10 * time.Second
)

// Frame is a single transport frame
type Frame struct {
	Kind    MessageKind
	Payload []byte
}

// Conn is an established duplex connection. ReadFrame is only called from a
// single goroutine; WriteFrame and Close may be called concurrently with it.
type Conn interface {
	// ReadFrame blocks until the next frame arrives. A closed connection
	// yields a *CloseError.
	ReadFrame() (Frame, error)
	WriteFrame(f Frame) error
	// Close sends a close frame with code and reason and releases the
	// connection. Writes after Close fail.
	Close(code int, reason string) error
}

// Dialer opens connections. Implementations must honour ctx cancellation.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// DialerFunc adapts a function to Dialer
type DialerFunc func(ctx context.Context, url string, header http.Header) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	return f(ctx, url, header)
}

// CloseError reports how a connection ended. Err is set when the transport
// failed without a close frame from the peer.
type CloseError struct {
	Code   int
	Reason string
	Err    error
}

func (e *CloseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connection closed (%d): %v", e.Code, e.Err)
	}
	if e.Reason != "" {
		return fmt.Sprintf("connection closed (%d): %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("connection closed (%d)", e.Code)
}

func (e *CloseError) Unwrap() error {
	return e.Err
}

// closeInfo extracts the close code from a read error
func closeInfo(err error) *CloseError {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce
	}
	return &CloseError{Code: CloseAbnormal, Err: err}
}

// GorillaDialer dials with github.com/gorilla/websocket
type GorillaDialer struct {
	Dialer       *websocket.Dialer
	WriteTimeout time.Duration
}

// NewGorillaDialer returns a dialer using websocket.DefaultDialer settings
func NewGorillaDialer() *GorillaDialer {
	return &GorillaDialer{WriteTimeout: DefaultWriteTTL}
}

// Dial implements Dialer
func (d *GorillaDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	ws, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}

	writeTimeout := d.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTTL
	}
	return newGorillaConn(ws, writeTimeout), nil
}

type gorillaConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex

	// read side, touched only by the reading goroutine
	pending []Frame
	readErr error
}

func newGorillaConn(ws *websocket.Conn, writeTimeout time.Duration) *gorillaConn {
	c := &gorillaConn{ws: ws, writeTimeout: writeTimeout}

	// Control handlers run inside ReadMessage on the reading goroutine, so
	// control frames are queued ahead of the data frame that follows them.
	ws.SetPingHandler(func(data string) error {
		c.pending = append(c.pending, Frame{Kind: KindPing, Payload: []byte(data)})
		err := ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.writeTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	ws.SetPongHandler(func(data string) error {
		c.pending = append(c.pending, Frame{Kind: KindPong, Payload: []byte(data)})
		return nil
	})
	return c
}

func (c *gorillaConn) ReadFrame() (Frame, error) {
	if f, ok := c.popPending(); ok {
		return f, nil
	}
	if c.readErr != nil {
		return Frame{}, c.readErr
	}

	mt, data, err := c.ws.ReadMessage()
	if err != nil {
		c.readErr = toCloseError(err)
		if f, ok := c.popPending(); ok {
			return f, nil
		}
		return Frame{}, c.readErr
	}

	kind := KindText
	if mt == websocket.BinaryMessage {
		kind = KindBinary
	}
	c.pending = append(c.pending, Frame{Kind: kind, Payload: data})
	f, _ := c.popPending()
	return f, nil
}

func (c *gorillaConn) popPending() (Frame, bool) {
	if len(c.pending) == 0 {
		return Frame{}, false
	}
	f := c.pending[0]
	c.pending = c.pending[1:]
	return f, true
}

func (c *gorillaConn) WriteFrame(f Frame) error {
	deadline := time.Now().Add(c.writeTimeout)

	switch f.Kind {
	case KindPing:
		return c.ws.WriteControl(websocket.PingMessage, f.Payload, deadline)
	case KindPong:
		return c.ws.WriteControl(websocket.PongMessage, f.Payload, deadline)
	}

	mt := websocket.TextMessage
	if f.Kind == KindBinary {
		mt = websocket.BinaryMessage
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(mt, f.Payload)
}

func (c *gorillaConn) Close(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
	if errors.Is(err, websocket.ErrCloseSent) {
		err = nil
	}
	if cerr := c.ws.Close(); err == nil {
		err = cerr
	}
	return err
}

func toCloseError(err error) *CloseError {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return &CloseError{Code: ce.Code, Reason: ce.Text}
	}
	return &CloseError{Code: CloseAbnormal, Err: err}
}
