package pipeline

// State is a step of the per-entity state machine:
//
//	Resolving -> Fetching -> Normalizing -> Quantizing -> Keying -> Persisting -> Done
//
// An entity leaves for Skipped from any step before Keying and for Failed
// from Persisting.
type State int

const (
	StateResolving State = iota
	StateFetching
	StateNormalizing
	StateQuantizing
	StateKeying
	StatePersisting
	StateDone
	StateSkipped
	StateFailed
)

var stateNames = [...]string{
	StateResolving:   "resolving",
	StateFetching:    "fetching",
	StateNormalizing: "normalizing",
	StateQuantizing:  "quantizing",
	StateKeying:      "keying",
	StatePersisting:  "persisting",
	StateDone:        "done",
	StateSkipped:     "skipped",
	StateFailed:      "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateSkipped || s == StateFailed
}
