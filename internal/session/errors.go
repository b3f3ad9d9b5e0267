package session

import (
	"errors"
	"fmt"
)

var (
	// A port could not be opened, e.g. the device is busy or permission was revoked.
	// The session does not start.
	ErrPortOpenFailure = errors.New("audio port open failure")

	// A port failed while the session was running, or while it was released.
	// Whatever was captured up to that point is still returned.
	ErrPortIOFailure = errors.New("audio port i/o failure")

	// The sweep could not be generated from the given spec.
	// Reported before any port is opened.
	ErrEncodingFailure = errors.New("sweep encoding failure")

	// Returned by Run when the session is not Idle.
	ErrSessionActive = errors.New("duplex session already active")

	// Returned by Wait when there is no result to collect.
	ErrNoSession = errors.New("no duplex session to wait for")
)

// Which side of the duplex session a PortError came from.
type Port string

const (
	PortPlayback Port = "playback"
	PortCapture  Port = "capture"
)

// Operations on a port.
const (
	OpOpen  = "open"
	OpWrite = "write"
	OpRead  = "read"
	OpStop  = "stop"
	OpClose = "close"
)

// A failure of one of the session's ports.
//
// errors.Is matches both the kind (ErrPortOpenFailure, ErrPortIOFailure)
// and the underlying cause reported by the port.
type PortError struct {
	Kind error
	Port Port
	Op   string
	Err  error
}

func newPortError(kind error, port Port, op string, err error) *PortError {
	return &PortError{Kind: kind, Port: port, Op: op, Err: err}
}

func (e *PortError) Error() string {
	return fmt.Sprintf("%v: %s %s: %v", e.Kind, e.Port, e.Op, e.Err)
}

func (e *PortError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
