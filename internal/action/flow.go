package action

// PhaseSigning is the wallet signature phase every flow passes through. A transaction
// hash can only be recorded while a run is in this phase.
const PhaseSigning Phase = "signing"

// Flow declares the shape of one action: its ordered phases and their status texts.
type Flow struct {
	Kind Kind
	// Phases lists the non-terminal phases after idle, in the order they are entered.
	Phases []Phase
	// Labels maps every phase, including idle and the terminal ones, to a status text.
	Labels map[Phase]string
	// DefaultError is shown when an error carries no user-facing message of its own.
	DefaultError string
}

// StatusText returns the status string for p, or the phase name when none is declared.
func (f Flow) StatusText(p Phase) string {
	if s, ok := f.Labels[p]; ok {
		return s
	}
	return string(p)
}

// rank orders phases for the forward-only check: idle is 0, declared phases follow,
// terminal phases rank above everything.
func (f Flow) rank(p Phase) (int, bool) {
	switch p {
	case PhaseIdle:
		return 0, true
	case PhaseSuccess, PhaseError:
		return len(f.Phases) + 1, true
	}
	for i, q := range f.Phases {
		if q == p {
			return i + 1, true
		}
	}
	return 0, false
}

// afterSigning reports whether p comes after the signing phase of the flow.
func (f Flow) afterSigning(p Phase) bool {
	sign, ok := f.rank(PhaseSigning)
	if !ok {
		return false
	}
	r, ok := f.rank(p)
	return ok && r > sign && !p.IsTerminal()
}
