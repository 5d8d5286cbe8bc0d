package realtime

import "encoding/json"

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "disconnected"
	}
}

// Envelope is one push message. Data is decoded by whoever handles Type.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event is one of EventConnecting, EventConnected, EventMessage or
// EventDisconnected.
type Event interface {
	isEvent()
}

type EventConnecting struct {
	Attempt int
}

type EventConnected struct{}

type EventMessage struct {
	Envelope Envelope
}

// EventDisconnected carries a ChannelError, or nil when the server closed the
// connection cleanly.
type EventDisconnected struct {
	Err error
}

func (EventConnecting) isEvent()   {}
func (EventConnected) isEvent()    {}
func (EventMessage) isEvent()      {}
func (EventDisconnected) isEvent() {}

// Next is the channel's transition function. Events that make no sense in
// the current state leave it unchanged.
func Next(s State, e Event) State {
	switch e.(type) {
	case EventConnecting:
		if s == StateDisconnected {
			return StateConnecting
		}
	case EventConnected:
		if s == StateConnecting {
			return StateOpen
		}
	case EventDisconnected:
		return StateDisconnected
	}
	return s
}

// ShouldReconnect reports whether the loop schedules a new dial after e.
func ShouldReconnect(s State, e Event) bool {
	_, ok := e.(EventDisconnected)
	return ok && Next(s, e) == StateDisconnected
}
