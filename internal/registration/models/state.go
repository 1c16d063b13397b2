package models

// State is the wizard's position in the step machine.
type State string

const (
	StateStep1      State = "step1"
	StateStep2      State = "step2"
	StateStep3      State = "step3"
	StateSubmitting State = "submitting"
	StateSuccess    State = "success"
	// StateFailed is the settle outcome of a failed submission. The wizard
	// never rests in it: control returns to StateStep3 with errors attached.
	StateFailed State = "failed"
)

func (s State) String() string {
	return string(s)
}

// Step returns the 1-based step number for the form steps, 0 otherwise.
func (s State) Step() int {
	switch s {
	case StateStep1:
		return 1
	case StateStep2:
		return 2
	case StateStep3, StateSubmitting:
		return 3
	default:
		return 0
	}
}

// IsTerminal reports whether no transition leaves s.
func (s State) IsTerminal() bool {
	return s == StateSuccess
}
