package breaker

import "time"

// State is the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
// Any state may return to closed through Reset.
var ValidTransitions = map[State][]State{
	StateClosed:   {StateOpen},
	StateOpen:     {StateHalfOpen, StateClosed},
	StateHalfOpen: {StateOpen, StateClosed},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	for _, target := range ValidTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Transition represents a state change with metadata.
type Transition struct {
	From      State
	To        State
	Reason    string
	Timestamp time.Time
}

// IsValid returns true if this transition is allowed by the state machine.
func (t Transition) IsValid() bool {
	return CanTransition(t.From, t.To)
}

// StateDescription returns a human-readable description of a state.
func StateDescription(s State) string {
	switch s {
	case StateClosed:
		return "Closed - calls pass through"
	case StateOpen:
		return "Open - calls rejected until timeout elapses"
	case StateHalfOpen:
		return "Half-open - probing the dependency"
	default:
		return "Unknown state"
	}
}
