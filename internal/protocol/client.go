package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/madariss5/BLACKSKYMD-sub006/internal/version"
)

// Session is a live connection to the chat gateway.
type Session interface {
	// QR delivers registration challenge refs for unregistered devices.
	QR() <-chan string

	// Opened fires once when the gateway accepts the login, carrying the
	// refreshed credentials to persist.
	Opened() <-chan Credentials

	// Closed delivers the terminal close event, at most once.
	Closed() <-chan CloseEvent

	// Messages streams inbound chat messages. The channel is never closed;
	// consumers watch Done to stop.
	Messages() <-chan Message

	// Done is closed when the session ends, regardless of cause.
	Done() <-chan struct{}

	// Send delivers a message and waits for the gateway ack.
	Send(ctx context.Context, msg Message) error

	// Logout performs a best-effort graceful logout and closes the session.
	Logout(ctx context.Context) error

	// Close tears the session down without logging out.
	Close() error

	// IsOpen reports whether the login completed and the socket is up.
	IsOpen() bool
}

// Dialer opens gateway sessions. The supervisor depends on this interface so
// tests can substitute a fake gateway.
type Dialer interface {
	Open(ctx context.Context, fingerprint string, creds *Credentials) (Session, error)
}

// Client implements Dialer over a websocket transport.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger
}

// NewClient creates a gateway client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg.withDefaults(), logger: logger}
}

// Open dials the gateway and starts a session under the given fingerprint.
// Registered credentials restore the device; empty ones begin the QR flow.
func (c *Client) Open(ctx context.Context, fingerprint string, creds *Credentials) (Session, error) {
	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())
	if c.cfg.Origin != "" {
		header.Set("Origin", c.cfg.Origin)
	}
	if fingerprint != "" {
		header.Set("X-Client-Fingerprint", fingerprint)
	}
	if creds.Registered() {
		header.Set("Authorization", "Bearer "+creds.ClientToken)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.ConnectTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}

	s := newSession(c.cfg, conn, c.logger)

	init := clientFrame{
		Type:        "init",
		Fingerprint: fingerprint,
	}
	if creds != nil {
		init.ClientID = creds.ClientID
		init.ClientToken = creds.ClientToken
		init.ServerToken = creds.ServerToken
	}
	if err := s.writeFrame(init); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send init: %w", err)
	}

	go s.readLoop()
	go s.keepAliveLoop()

	c.logger.Debug("gateway session dialed",
		"url", c.cfg.URL,
		"registered", creds.Registered(),
	)

	return s, nil
}

// session implements Session.
type session struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	// Event channels
	qr       chan string
	opened   chan Credentials
	closed   chan CloseEvent
	messages chan Message
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// Ack correlation
	pendingMu sync.Mutex
	pending   map[string]chan struct{}

	// State
	mu        sync.RWMutex
	loggedIn  bool
	lastPong  time.Time
	closeOnce sync.Once
	closeEv   CloseEvent // failure frame payload, if one arrived
	haveEv    bool
}

func newSession(cfg ClientConfig, conn *websocket.Conn, logger *slog.Logger) *session {
	s := &session{
		cfg:      cfg,
		logger:   logger,
		conn:     conn,
		qr:       make(chan string, 4),
		opened:   make(chan Credentials, 1),
		closed:   make(chan CloseEvent, 1),
		messages: make(chan Message, cfg.BufferSize),
		done:     make(chan struct{}),
		pending:  make(map[string]chan struct{}),
		lastPong: time.Now(),
	}

	conn.SetPingHandler(func(data string) error {
		s.mu.Lock()
		s.lastPong = time.Now()
		s.mu.Unlock()

		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	conn.SetPongHandler(func(string) error {
		s.mu.Lock()
		s.lastPong = time.Now()
		s.mu.Unlock()
		return nil
	})

	return s
}

func (s *session) QR() <-chan string          { return s.qr }
func (s *session) Opened() <-chan Credentials { return s.opened }
func (s *session) Closed() <-chan CloseEvent  { return s.closed }
func (s *session) Messages() <-chan Message   { return s.messages }
func (s *session) Done() <-chan struct{}      { return s.done }

// IsOpen reports whether the login completed and the session is still up.
func (s *session) IsOpen() bool {
	select {
	case <-s.done:
		return false
	default:
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggedIn
}

// Send delivers a message and waits for the gateway ack. A failed write is
// retried once after the configured retry delay.
func (s *session) Send(ctx context.Context, msg Message) error {
	if !s.IsOpen() {
		return ErrNotConnected
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	msg.FromMe = true

	ackCh := make(chan struct{}, 1)
	s.pendingMu.Lock()
	s.pending[msg.ID] = ackCh
	s.pendingMu.Unlock()

	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, msg.ID)
		s.pendingMu.Unlock()
	}()

	frame := clientFrame{Type: "message", ID: msg.ID, Msg: &msg}
	if err := s.writeFrame(frame); err != nil {
		select {
		case <-time.After(s.cfg.RetryRequestDelay):
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return ErrSessionClosed
		}
		if err := s.writeFrame(frame); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}

	select {
	case <-ackCh:
		return nil
	case <-time.After(s.cfg.QueryTimeout):
		return ErrAckTimeout
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Logout sends a logout frame and a close frame, then waits briefly for the
// server to drop the connection before tearing down locally.
func (s *session) Logout(ctx context.Context) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	err := s.writeFrame(clientFrame{Type: "logout"})
	if err == nil {
		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "logout"),
			time.Now().Add(time.Second),
		)
		select {
		case <-s.done:
		case <-ctx.Done():
		}
	}

	s.shutdown(CloseEvent{Message: "logged out"})
	return err
}

// Close tears the session down without logging out.
func (s *session) Close() error {
	s.shutdown(CloseEvent{Message: "closed by client"})
	return nil
}

// writeFrame marshals and writes a single frame under the write lock.
func (s *session) writeFrame(f clientFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// shutdown finalizes the session exactly once: it records the close event,
// releases waiters, and closes the socket.
func (s *session) shutdown(ev CloseEvent) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		if s.haveEv {
			// A failure frame already told us the real cause; prefer it
			// over the generic transport error that followed.
			ev = s.closeEv
		}
		s.loggedIn = false
		s.mu.Unlock()

		select {
		case s.closed <- ev:
		default:
		}
		close(s.done)

		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		s.conn.Close()

		s.logger.Debug("session closed",
			"status_code", ev.StatusCode,
			"message", ev.Message,
		)
	})
}

// readLoop reads gateway frames until the connection dies.
func (s *session) readLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.shutdown(CloseEvent{Message: err.Error()})
			return
		}

		var frame serverFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.logger.Warn("unparseable gateway frame", "error", err)
			continue
		}

		s.handleFrame(frame)
	}
}

// handleFrame dispatches one server frame.
func (s *session) handleFrame(f serverFrame) {
	switch f.Type {
	case "qr":
		select {
		case s.qr <- f.Ref:
		default:
			// QR refs refresh quickly; stale ones are droppable.
		}

	case "success":
		s.mu.Lock()
		s.loggedIn = true
		s.mu.Unlock()

		var creds Credentials
		if f.Credentials != nil {
			creds = *f.Credentials
		}
		select {
		case s.opened <- creds:
		default:
		}

	case "failure":
		s.mu.Lock()
		s.closeEv = CloseEvent{StatusCode: f.Code, Message: f.Message}
		s.haveEv = true
		s.mu.Unlock()
		// The gateway closes the socket after a failure frame; the read
		// loop surfaces the stored event then.

	case "ack":
		s.pendingMu.Lock()
		ch, ok := s.pending[f.ID]
		s.pendingMu.Unlock()
		if ok {
			select {
			case ch <- struct{}{}:
			default:
			}
		}

	case "message":
		var msg Message
		if err := json.Unmarshal(f.Msg, &msg); err != nil {
			s.logger.Warn("unparseable chat message", "error", err)
			return
		}
		select {
		case s.messages <- msg:
		case <-s.done:
		default:
			s.logger.Warn("message buffer full, dropping message", "chat", msg.Chat)
		}

	default:
		s.logger.Debug("skipping frame type", "type", f.Type)
	}
}

// keepAliveLoop pings the gateway and closes the session when the connection
// goes quiet past the ping timeout.
func (s *session) keepAliveLoop() {
	ticker := time.NewTicker(s.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				s.logger.Debug("failed to send ping", "error", err)
			}

			s.mu.RLock()
			lastPong := s.lastPong
			s.mu.RUnlock()

			if time.Since(lastPong) > s.cfg.PingTimeout {
				s.logger.Warn("no pong received, connection stale",
					"last_pong", lastPong,
					"timeout", s.cfg.PingTimeout,
				)
				s.shutdown(CloseEvent{Message: "websocket: stale connection (no pong)"})
				return
			}
		}
	}
}
