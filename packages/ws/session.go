package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/hitwire/packages/retry"
)

const (
	DefaultConnectTimeout       = 10 * time.Second
	DefaultPingInterval         = 30 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectInterval    = 1 * time.Second
	DefaultEventBuffer          = 1024
)

// Config configures a Session
type Config struct {
	URL     string
	Headers map[string]string

	// ConnectTimeout bounds each dial including the handshake
	ConnectTimeout time.Duration

	// PingInterval is the keepalive period while open. Zero disables
	// keepalive.
	PingInterval time.Duration

	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectInterval    time.Duration

	// ReconnectStrategy overrides the fixed ReconnectInterval delay
	ReconnectStrategy retry.Strategy

	// EventBuffer caps undelivered events; the oldest are dropped beyond it.
	// Zero means unbounded.
	EventBuffer int
}

// DefaultConfig returns the default configuration for url
func DefaultConfig(url string) Config {
	return Config{
		URL:                  url,
		Headers:              make(map[string]string),
		ConnectTimeout:       DefaultConnectTimeout,
		PingInterval:         DefaultPingInterval,
		AutoReconnect:        true,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		ReconnectInterval:    DefaultReconnectInterval,
		EventBuffer:          DefaultEventBuffer,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("ws: url is required")
	}
	if c.ConnectTimeout < 0 {
		return fmt.Errorf("ws: connect timeout must not be negative, got %v", c.ConnectTimeout)
	}
	if c.PingInterval < 0 {
		return fmt.Errorf("ws: ping interval must not be negative, got %v", c.PingInterval)
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("ws: max reconnect attempts must not be negative, got %d", c.MaxReconnectAttempts)
	}
	if c.ReconnectInterval < 0 {
		return fmt.Errorf("ws: reconnect interval must not be negative, got %v", c.ReconnectInterval)
	}
	return nil
}

// Logger is the logging interface used by Session. *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Option configures a Session
type Option func(*Session)

// WithDialer sets the transport. Defaults to a GorillaDialer.
func WithDialer(d Dialer) Option {
	return func(s *Session) {
		s.dialer = d
	}
}

// WithLogger sets the logger for lifecycle transitions
func WithLogger(l Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

type waiter struct {
	match Matcher
	ch    chan Message
}

// Session manages one connection's lifecycle and message bookkeeping
type Session struct {
	cfg      Config
	dialer   Dialer
	logger   Logger
	strategy retry.Strategy
	events   *eventQueue

	// pingMu orders keepalive writes against Disconnect; taken before mu
	pingMu sync.Mutex

	mu             sync.Mutex
	state          State
	conn           Conn
	connectSeq     uint64
	cancelDial     context.CancelFunc
	connectedAt    time.Time
	lastActivityAt time.Time
	sent           Counter
	received       Counter
	pingsSent      int64
	history        []Message

	reconnectAttempts int
	reconnectTimer    *time.Timer
	reconnectToken    uint64
	reconnectFailed   bool
	userInitiated     bool
	destroyed         bool
	lastCloseCode     int
	lastCloseReason   string

	keepaliveStop chan struct{}
	waiters       map[uint64]*waiter
	nextWaiter    uint64
}

// NewSession creates a closed session for cfg
func NewSession(cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		cfg:     cfg,
		logger:  nopLogger{},
		state:   StateClosed,
		waiters: make(map[uint64]*waiter),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dialer == nil {
		s.dialer = NewGorillaDialer()
	}

	s.strategy = cfg.ReconnectStrategy
	if s.strategy == nil {
		s.strategy = retry.Fixed{Interval: cfg.ReconnectInterval}
	}
	s.events = newEventQueue(cfg.EventBuffer)
	return s, nil
}

// Events returns the ordered lifecycle notification stream. The channel is
// closed by Destroy. Events emitted before the first call are buffered up to
// EventBuffer.
func (s *Session) Events() <-chan Event {
	return s.events.subscribe()
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect dials the configured URL. It is legal only from Closed or Errored.
func (s *Session) Connect(ctx context.Context) error {
	return s.connect(ctx, 0)
}

// connect performs a dial. A non-zero token marks a scheduled reconnect,
// which is abandoned if it was superseded or the user disconnected.
func (s *Session) connect(ctx context.Context, token uint64) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrSessionDestroyed
	}
	if token != 0 {
		if token != s.reconnectToken || s.userInitiated {
			s.mu.Unlock()
			return ErrConnectAborted
		}
		s.reconnectTimer = nil
	} else {
		if !s.state.canConnect() {
			st := s.state
			s.mu.Unlock()
			return fmt.Errorf("%w: cannot connect while %s", ErrInvalidState, st)
		}
		s.userInitiated = false
		s.stopReconnectLocked()
	}
	if !s.state.canConnect() {
		s.mu.Unlock()
		return ErrConnectAborted
	}

	s.connectSeq++
	seq := s.connectSeq
	s.setStateLocked(StateConnecting)

	var dialCtx context.Context
	var cancel context.CancelFunc
	if s.cfg.ConnectTimeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	} else {
		dialCtx, cancel = context.WithCancel(ctx)
	}
	s.cancelDial = cancel
	header := s.header()
	s.mu.Unlock()

	conn, err := s.dialer.Dial(dialCtx, s.cfg.URL, header)
	timedOut := errors.Is(dialCtx.Err(), context.DeadlineExceeded)
	cancel()

	s.mu.Lock()
	if seq != s.connectSeq || s.state != StateConnecting {
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close(CloseNormal, "connect aborted")
		}
		return ErrConnectAborted
	}
	s.cancelDial = nil

	if err != nil {
		cerr := &ConnectError{URL: s.cfg.URL, Timeout: timedOut, Err: err}
		s.setStateLocked(StateErrored)
		s.emitLocked(Event{Type: EventError, Err: cerr})
		s.mu.Unlock()
		return cerr
	}

	now := time.Now()
	s.conn = conn
	s.connectedAt = now
	s.lastActivityAt = now
	s.setStateLocked(StateOpen)
	s.startKeepaliveLocked(conn)
	s.emitLocked(Event{Type: EventConnected})
	s.mu.Unlock()

	go s.readLoop(conn)
	return nil
}

func (s *Session) header() http.Header {
	if len(s.cfg.Headers) == 0 {
		return nil
	}
	h := make(http.Header, len(s.cfg.Headers))
	for k, v := range s.cfg.Headers {
		h.Set(k, v)
	}
	return h
}

// Send writes a frame. The session must be open.
func (s *Session) Send(ctx context.Context, kind MessageKind, payload []byte) (Message, error) {
	s.mu.Lock()
	if s.state != StateOpen || s.conn == nil {
		st := s.state
		s.mu.Unlock()
		return Message{}, fmt.Errorf("%w (state %s)", ErrNotConnected, st)
	}
	conn := s.conn
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	data := append([]byte(nil), payload...)
	if err := conn.WriteFrame(Frame{Kind: kind, Payload: data}); err != nil {
		return Message{}, fmt.Errorf("send %s message: %w", kind, err)
	}

	msg := Message{
		ID:        uuid.NewString(),
		Kind:      kind,
		Direction: Sent,
		Payload:   data,
		Timestamp: time.Now(),
		SizeBytes: len(data),
	}

	s.mu.Lock()
	s.sent.add(msg.SizeBytes)
	s.history = append(s.history, msg)
	s.mu.Unlock()

	return msg.clone(), nil
}

// SendText sends a text frame
func (s *Session) SendText(ctx context.Context, text string) (Message, error) {
	return s.Send(ctx, KindText, []byte(text))
}

// SendJSON marshals v and sends it as a text frame
func (s *Session) SendJSON(ctx context.Context, v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("marshal message: %w", err)
	}
	return s.Send(ctx, KindText, data)
}

// Disconnect closes the connection on the user's behalf. Automatic
// reconnection is disabled until the next Connect.
func (s *Session) Disconnect(code int, reason string) error {
	s.pingMu.Lock()
	defer s.pingMu.Unlock()

	s.mu.Lock()
	s.userInitiated = true
	s.stopReconnectLocked()
	s.stopKeepaliveLocked()

	switch s.state {
	case StateConnecting:
		s.connectSeq++
		if s.cancelDial != nil {
			s.cancelDial()
			s.cancelDial = nil
		}
		s.closedLocked(code, reason)
		s.mu.Unlock()
		return nil

	case StateOpen:
		conn := s.conn
		s.conn = nil
		s.setStateLocked(StateClosing)
		s.mu.Unlock()

		err := conn.Close(code, reason)

		s.mu.Lock()
		if s.state == StateClosing {
			s.closedLocked(code, reason)
		}
		s.mu.Unlock()
		if err != nil {
			return fmt.Errorf("close connection: %w", err)
		}
		return nil

	case StateErrored:
		s.setStateLocked(StateClosed)
	}
	s.mu.Unlock()
	return nil
}

// Close disconnects with a normal closure
func (s *Session) Close() error {
	return s.Disconnect(CloseNormal, "")
}

func (s *Session) readLoop(conn Conn) {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			s.handleClose(conn, closeInfo(err))
			return
		}
		s.handleFrame(frame)
	}
}

func (s *Session) handleFrame(f Frame) {
	msg := Message{
		ID:        uuid.NewString(),
		Kind:      f.Kind,
		Direction: Received,
		Payload:   f.Payload,
		Timestamp: time.Now(),
		SizeBytes: len(f.Payload),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.received.add(msg.SizeBytes)
	s.lastActivityAt = msg.Timestamp
	s.history = append(s.history, msg)

	for id, w := range s.waiters {
		if w.match(msg) {
			w.ch <- msg.clone()
			delete(s.waiters, id)
		}
	}

	evMsg := msg.clone()
	s.emitLocked(Event{Type: EventMessageReceived, Message: &evMsg})
}

func (s *Session) handleClose(conn Conn, ce *CloseError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Disconnect or a newer connection already took over
	if s.conn != conn {
		return
	}
	s.conn = nil
	s.stopKeepaliveLocked()

	if ce.Err != nil {
		s.setStateLocked(StateErrored)
		s.emitLocked(Event{Type: EventError, Err: ce})
		s.lastCloseCode = ce.Code
		s.lastCloseReason = ce.Err.Error()
		s.emitLocked(Event{Type: EventClosed, Code: ce.Code, Reason: s.lastCloseReason})
		s.reconnectLocked(ce.Code, s.lastCloseReason)
		return
	}

	s.closedLocked(ce.Code, ce.Reason)
	s.reconnectLocked(ce.Code, ce.Reason)
}

func (s *Session) closedLocked(code int, reason string) {
	s.lastCloseCode = code
	s.lastCloseReason = reason
	s.setStateLocked(StateClosed)
	s.emitLocked(Event{Type: EventClosed, Code: code, Reason: reason})
}

// reconnectLocked schedules a reconnect after an abnormal closure, or emits
// the terminal failure once the budget is spent.
func (s *Session) reconnectLocked(code int, reason string) {
	if s.userInitiated || s.destroyed || !s.cfg.AutoReconnect || code == CloseNormal {
		return
	}

	if s.reconnectAttempts >= s.cfg.MaxReconnectAttempts {
		if s.reconnectFailed {
			return
		}
		s.reconnectFailed = true
		s.setStateLocked(StateClosed)
		err := &ReconnectExhaustedError{
			Attempts:   s.reconnectAttempts,
			LastCode:   code,
			LastReason: reason,
		}
		s.logger.Printf("ws: %s: %v", s.cfg.URL, err)
		s.emitLocked(Event{Type: EventReconnectFailed, Err: err, Code: code, Reason: reason, Attempt: s.reconnectAttempts})
		return
	}

	s.reconnectAttempts++
	attempt := s.reconnectAttempts
	delay := s.strategy.Delay(attempt)

	s.reconnectToken++
	token := s.reconnectToken
	s.reconnectTimer = time.AfterFunc(delay, func() {
		s.fireReconnect(token)
	})

	s.logger.Printf("ws: %s: reconnect attempt %d/%d in %v", s.cfg.URL, attempt, s.cfg.MaxReconnectAttempts, delay)
	s.emitLocked(Event{Type: EventReconnecting, Attempt: attempt, Code: code, Reason: reason})
}

func (s *Session) fireReconnect(token uint64) {
	err := s.connect(context.Background(), token)
	if err == nil || errors.Is(err, ErrConnectAborted) || errors.Is(err, ErrSessionDestroyed) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateErrored {
		s.reconnectLocked(CloseAbnormal, err.Error())
	}
}

func (s *Session) stopReconnectLocked() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	// invalidates a timer that already fired but has not taken the lock
	s.reconnectToken++
}

func (s *Session) startKeepaliveLocked(conn Conn) {
	if s.cfg.PingInterval <= 0 {
		return
	}
	stop := make(chan struct{})
	s.keepaliveStop = stop
	go s.keepalive(conn, stop, s.cfg.PingInterval)
}

func (s *Session) stopKeepaliveLocked() {
	if s.keepaliveStop != nil {
		close(s.keepaliveStop)
		s.keepaliveStop = nil
	}
}

func (s *Session) keepalive(conn Conn, stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		if !s.ping(conn, stop) {
			return
		}
	}
}

// ping writes one keepalive frame unless the session stopped the loop or
// moved past conn. It reports whether the loop should continue.
func (s *Session) ping(conn Conn, stop <-chan struct{}) bool {
	s.pingMu.Lock()
	defer s.pingMu.Unlock()

	s.mu.Lock()
	select {
	case <-stop:
		s.mu.Unlock()
		return false
	default:
	}
	if s.state != StateOpen || s.conn != conn {
		s.mu.Unlock()
		return false
	}
	s.pingsSent++
	s.mu.Unlock()

	if err := conn.WriteFrame(Frame{Kind: KindPing}); err != nil {
		s.logger.Printf("ws: %s: keepalive ping failed: %v", s.cfg.URL, err)
	}
	return true
}

// WaitForMessage returns the first message received after the call that
// satisfies match. Matching does not remove the message from history. A
// non-positive timeout waits until ctx is done.
func (s *Session) WaitForMessage(ctx context.Context, match Matcher, timeout time.Duration) (Message, error) {
	if match == nil {
		match = MatchAny()
	}
	ch := make(chan Message, 1)

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return Message{}, ErrSessionDestroyed
	}
	s.nextWaiter++
	id := s.nextWaiter
	s.waiters[id] = &waiter{match: match, ch: ch}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.waiters, id)
		s.mu.Unlock()
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			return Message{}, ErrSessionDestroyed
		}
		return msg, nil
	case <-expired:
		return Message{}, fmt.Errorf("%w after %v", ErrWaitTimeout, timeout)
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// MessageHistory returns copies of every recorded message, oldest first
func (s *Session) MessageHistory() []Message {
	return s.FindMessages(nil)
}

// FindMessages returns copies of recorded messages satisfying match
func (s *Session) FindMessages(match Matcher) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, 0, len(s.history))
	for _, m := range s.history {
		if match == nil || match(m) {
			out = append(out, m.clone())
		}
	}
	return out
}

// ClearHistory drops recorded messages. Counters are kept.
func (s *Session) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// Info returns a snapshot of the session's bookkeeping
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		URL:               s.cfg.URL,
		State:             s.state,
		ConnectedAt:       s.connectedAt,
		LastActivityAt:    s.lastActivityAt,
		Sent:              s.sent,
		Received:          s.received,
		PingsSent:         s.pingsSent,
		ReconnectAttempts: s.reconnectAttempts,
		LastCloseCode:     s.lastCloseCode,
		LastCloseReason:   s.lastCloseReason,
	}
}

// Destroy disconnects and releases every timer, waiter and the event
// stream. The session cannot be reused.
func (s *Session) Destroy() {
	_ = s.Disconnect(CloseNormal, "session destroyed")

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.stopReconnectLocked()
	s.stopKeepaliveLocked()
	for id, w := range s.waiters {
		close(w.ch)
		delete(s.waiters, id)
	}
	s.mu.Unlock()

	if n := s.events.droppedCount(); n > 0 {
		s.logger.Printf("ws: %s: %d events dropped", s.cfg.URL, n)
	}
	s.events.close()
}

func (s *Session) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.logger.Printf("ws: %s: %s -> %s", s.cfg.URL, s.state, st)
	s.state = st
}

func (s *Session) emitLocked(e Event) {
	e.State = s.state
	e.Time = time.Now()
	s.events.push(e)
}
