// Package transport abstracts the unreliable frame link between the
// coordinator and its controllers. Implementations may drop, duplicate,
// reorder, or delay frames; the session layer assumes nothing else.
package transport

import "errors"

var (
	ErrPeerUnreachable = errors.New("transport: peer unreachable")
	ErrFrameTooLarge   = errors.New("transport: frame exceeds max frame size")
	ErrClosed          = errors.New("transport: closed")
)

// EventKind identifies one link event.
type EventKind uint8

const (
	EventConnect EventKind = iota
	EventDisconnect
	EventFrame
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventFrame:
		return "frame"
	default:
		return "invalid"
	}
}

// Event is one inbound link occurrence. Frame is set only for EventFrame.
type Event struct {
	Kind         EventKind
	ControllerID string
	Frame        []byte
}

// Transport is the coordinator-side view of the link. Send is
// fire-and-forget: delivery is observed later through protocol traffic or
// retry expiry, never through a blocking wait.
type Transport interface {
	Send(controllerID string, frame []byte) error
	MaxFrameSize() int
	Events() <-chan Event
	Close() error
}
