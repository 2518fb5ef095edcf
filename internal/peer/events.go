package peer

import (
	"fmt"

	"github.com/rudransh-shrivastava/peer-drop/internal/protocol"
)

type EventType int

const (
	EventStarted EventType = iota + 1
	EventStopped
	EventConnectionOpened
	EventConnectionClosed
	EventMessage
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventConnectionOpened:
		return "connection-opened"
	case EventConnectionClosed:
		return "connection-closed"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is a notification for the UI. RemoteID is set for connection and
// message events, Envelope for EventMessage and Err for EventError.
type Event struct {
	Type     EventType
	LocalID  string
	RemoteID string
	Inbound  bool
	Envelope protocol.Envelope
	Err      error
}
