package eventsub

import (
	"errors"
	"fmt"
	"net"

	"github.com/gorilla/websocket"
)

// TransportError reports a socket dial, read or write failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("eventsub transport %s: %v", e.Op, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a read deadline expiring, i.e. the
// keepalive window elapsed without any frame.
func (e *TransportError) Timeout() bool {
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// ProtocolError reports a frame that could not be understood.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("eventsub protocol %s: %v", e.Op, e.Err) }

func (e *ProtocolError) Unwrap() error { return e.Err }

// errReconnectRequested ends a connection after a session_reconnect frame.
var errReconnectRequested = errors.New("server requested reconnect")

// ReconnectReason classifies the error that ended a connection into a short
// label for logs and metrics.
func ReconnectReason(err error) string {
	if err == nil {
		return "closed"
	}
	if errors.Is(err, errReconnectRequested) {
		return "server_reconnect"
	}
	var te *TransportError
	if errors.As(err, &te) {
		switch {
		case te.Timeout():
			return "keepalive_timeout"
		case te.Op == "dial":
			return "dial_error"
		case websocket.IsCloseError(te.Err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || isCloseError(te.Err):
			return "server_close"
		default:
			return "read_error"
		}
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return "protocol_error"
	}
	return "unknown"
}

func isCloseError(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce)
}
