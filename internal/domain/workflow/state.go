package workflow

// State represents a request state in the approval lifecycle
type State string

const (
	StatePending  State = "PENDING"
	StateApproved State = "APPROVED"
	StateDeclined State = "DECLINED"
	StateTimedOut State = "TIMED_OUT"
)

var validStates = map[State]bool{
	StatePending:  true,
	StateApproved: true,
	StateDeclined: true,
	StateTimedOut: true,
}

var terminalStates = map[State]bool{
	StateApproved: true,
	StateDeclined: true,
	StateTimedOut: true,
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid request state
func (s State) IsValid() bool {
	return validStates[s]
}
