package session

import "fmt"

// Status is the connection state of one endpoint.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// State is a status snapshot. Reason is set only for StatusError.
type State struct {
	Status Status
	Reason error
}

func (s State) String() string {
	if s.Status == StatusError && s.Reason != nil {
		return fmt.Sprintf("error(%v)", s.Reason)
	}
	return s.Status.String()
}
