package rstore

// ConnState is the lifecycle state of the connection owned by a Store.
type ConnState int32

const (
	StateDisconnected ConnState = iota // no connection, Open may be called
	StateConnecting                    // Open is in progress
	StateReady                         // connected and database selected
	StateClosing                       // Close is in progress
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}
