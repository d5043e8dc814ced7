package engine

// State is the lifecycle state of one node within one run.
type State string

const (
	StatePending  State = "pending"
	StateRunning  State = "running"
	StateComplete State = "complete"
	StateError    State = "error"
	StateSkipped  State = "skipped"
)

// Terminal reports whether the state is final. Terminal states are never left.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateError || s == StateSkipped
}

// canTransition encodes the per-node state machine.
func canTransition(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateRunning || to == StateSkipped
	case StateRunning:
		return to == StateComplete || to == StateError
	}
	return false
}
