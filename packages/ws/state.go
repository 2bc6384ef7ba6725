package ws

// State is the lifecycle state of a Session
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// canConnect reports whether Connect is legal from s
func (s State) canConnect() bool {
	return s == StateClosed || s == StateErrored
}
