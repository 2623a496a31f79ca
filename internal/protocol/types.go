package protocol

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrSessionClosed = errors.New("session closed")
	ErrAckTimeout    = errors.New("ack timeout")
)

// Gateway status codes carried on failure frames.
const (
	StatusUnauthorized     = 401
	StatusForbidden        = 403
	StatusMethodNotAllowed = 405
	StatusConnectionClosed = 428
	StatusTooManyRequests  = 429
	StatusLoggedOut        = 440
	StatusServerError      = 500
	StatusRestartRequired  = 515
)

// Credentials identify a registered device. The gateway refreshes tokens on
// every successful login; the refreshed set arrives on the Opened channel.
type Credentials struct {
	ClientID     string    `json:"clientId"`
	ClientToken  string    `json:"clientToken"`
	ServerToken  string    `json:"serverToken"`
	EncKey       string    `json:"encKey"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Registered reports whether the credentials belong to a linked device.
// Unregistered credentials trigger the QR registration flow on open.
func (c *Credentials) Registered() bool {
	return c != nil && c.ClientToken != "" && c.ServerToken != ""
}

// CloseEvent describes why a session ended. StatusCode 0 means the gateway
// sent no failure code (local errors, transport drops).
type CloseEvent struct {
	StatusCode int
	Message    string
}

// Message is a chat message moving through a session.
type Message struct {
	ID        string    `json:"id"`
	Chat      string    `json:"chat"`
	Sender    string    `json:"sender,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	FromMe    bool      `json:"fromMe,omitempty"`
}

// clientFrame is a frame sent to the gateway.
type clientFrame struct {
	Type        string   `json:"type"` // "init", "message", "logout"
	ID          string   `json:"id,omitempty"`
	ClientID    string   `json:"clientId,omitempty"`
	ClientToken string   `json:"clientToken,omitempty"`
	ServerToken string   `json:"serverToken,omitempty"`
	Fingerprint string   `json:"fingerprint,omitempty"`
	Msg         *Message `json:"msg,omitempty"`
}

// serverFrame is a frame received from the gateway.
type serverFrame struct {
	Type        string          `json:"type"` // "qr", "success", "failure", "ack", "message"
	Ref         string          `json:"ref,omitempty"`
	ID          string          `json:"id,omitempty"`
	Code        int             `json:"code,omitempty"`
	Message     string          `json:"message,omitempty"`
	Credentials *Credentials    `json:"credentials,omitempty"`
	Msg         json.RawMessage `json:"msg,omitempty"`
}

// ClientConfig configures gateway session clients.
type ClientConfig struct {
	URL               string        // gateway websocket URL
	Origin            string        // Origin header, some gateways require it
	ConnectTimeout    time.Duration // websocket handshake deadline
	KeepAliveInterval time.Duration // ping cadence
	PingTimeout       time.Duration // max silence before the connection counts as stale
	QueryTimeout      time.Duration // ack wait for sends
	RetryRequestDelay time.Duration // wait before retrying a failed send once
	WriteTimeout      time.Duration // write deadline per frame
	BufferSize        int           // inbound message channel capacity
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ConnectTimeout:    30 * time.Second,
		KeepAliveInterval: 20 * time.Second,
		PingTimeout:       60 * time.Second,
		QueryTimeout:      60 * time.Second,
		RetryRequestDelay: 250 * time.Millisecond,
		WriteTimeout:      5 * time.Second,
		BufferSize:        256,
	}
}

func (c ClientConfig) withDefaults() ClientConfig {
	def := DefaultClientConfig()
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.KeepAliveInterval == 0 {
		c.KeepAliveInterval = def.KeepAliveInterval
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = def.PingTimeout
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = def.QueryTimeout
	}
	if c.RetryRequestDelay == 0 {
		c.RetryRequestDelay = def.RetryRequestDelay
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.BufferSize == 0 {
		c.BufferSize = def.BufferSize
	}
	return c
}
