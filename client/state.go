package client

// State is the sync machine's connection-lifecycle state.
type State string

const (
	StateDisconnected             State = "disconnected"
	StateConnecting                State = "connecting"
	StateConnectingRetrying        State = "connecting.retrying"
	StateConnectedIdle              State = "connected.idle"
	StateConnectedProcessingQueues  State = "connected.processingQueues"
	StateFailed                     State = "failed"
)

// IsConnected reports whether s is one of the connected.* substates.
func (s State) IsConnected() bool {
	return s == StateConnectedIdle || s == StateConnectedProcessingQueues
}
