package scheduler

// State is the lifecycle state of a Scheduler
type State int32

// Scheduler states. StateWaiting and StateRefreshing together form the
// running state.
const (
	StateStopped State = iota
	StateStarting
	StateWaiting
	StateRefreshing
	StateStopping
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateWaiting:
		return "waiting"
	case StateRefreshing:
		return "refreshing"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Running reports whether the loop is past its startup delay
func (s State) Running() bool {
	return s == StateWaiting || s == StateRefreshing
}
