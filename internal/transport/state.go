// internal/transport/state.go
package transport

// State is the connection lifecycle state, owned exclusively by the Manager.
// Other components only read it or subscribe to transitions.
type State int

const (
	// StateDisconnected means no connection exists and no retry is scheduled.
	StateDisconnected State = iota

	// StateConnecting means an initial (user-initiated) dial is in flight.
	StateConnecting

	// StateConnected means the handshake completed and the socket is live.
	StateConnected

	// StateReconnecting means a live connection was lost and an automatic
	// retry is in progress.
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// StateChange is delivered to subscribers on every transition.
type StateChange struct {
	Old State
	New State
}
