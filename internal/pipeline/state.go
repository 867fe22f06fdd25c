package pipeline

// State is a pipeline run stage.
type State string

const (
	StateIdle       State = "idle"
	StateCollecting State = "collecting"
	StateFormatting State = "formatting"
	StateMerging    State = "merging"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// next lists the forward transitions. Failed is reachable from every
// non-terminal state and is handled in CanTransition.
var next = map[State]State{
	StateIdle:       StateCollecting,
	StateCollecting: StateFormatting,
	StateFormatting: StateMerging,
	StateMerging:    StateDone,
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransition reports whether a run may move from one state to another.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	return next[from] == to
}
