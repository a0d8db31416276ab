package session

// State is a session's lifecycle position.
//
//	AwaitingStart -> Started -> Streaming -> {Stopped | Disconnected | Cancelled} -> Finalizing -> Closed
//
// The three terminal reasons can also be reached straight from AwaitingStart
// or Started.
type State string

const (
	StateAwaitingStart State = "awaiting_start"
	StateStarted       State = "started"
	StateStreaming     State = "streaming"
	StateStopped       State = "stopped"
	StateDisconnected  State = "disconnected"
	StateCancelled     State = "cancelled"
	StateFinalizing    State = "finalizing"
	StateClosed        State = "closed"
)

// Terminal reports whether s is one of the end-of-call reasons.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateDisconnected || s == StateCancelled
}

func (s State) live() bool {
	return s == StateAwaitingStart || s == StateStarted || s == StateStreaming
}

func (s State) String() string {
	return string(s)
}
