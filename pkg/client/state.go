package client

import "fmt"

// State is the lifecycle of the client's session with the server.
type State int32

const (
	StateDisconnected State = iota
	// StateConnecting has sent a connect request and waits for the accept.
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}
