package connection

import (
	"strings"

	"github.com/madariss5/BLACKSKYMD-sub006/internal/protocol"
)

// Reason buckets a disconnect into the action the supervisor takes.
type Reason int

const (
	ReasonUnknown Reason = iota
	ReasonAuthFailure
	ReasonRateLimit
	ReasonConnectionError
	ReasonProtocolError
)

func (r Reason) String() string {
	switch r {
	case ReasonAuthFailure:
		return "auth_failure"
	case ReasonRateLimit:
		return "rate_limit"
	case ReasonConnectionError:
		return "connection_error"
	case ReasonProtocolError:
		return "protocol_error"
	default:
		return "unknown"
	}
}

// Classify maps a close event to a Reason. Rules are checked in order
// and the first match wins. A zero status code means the gateway sent
// none (local errors, transport drops).
func Classify(ev protocol.CloseEvent) Reason {
	switch ev.StatusCode {
	case protocol.StatusUnauthorized, protocol.StatusForbidden, protocol.StatusLoggedOut:
		return ReasonAuthFailure
	case protocol.StatusMethodNotAllowed, protocol.StatusTooManyRequests:
		return ReasonRateLimit
	}
	if ev.StatusCode >= 500 && ev.StatusCode <= 599 {
		return ReasonConnectionError
	}

	msg := strings.ToLower(ev.Message)
	if strings.Contains(msg, "protocol") || strings.Contains(msg, "websocket") {
		return ReasonProtocolError
	}
	return ReasonUnknown
}
