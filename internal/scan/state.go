package scan

import "fmt"

// State is a position in the search lifecycle.
type State uint8

const (
	StateIdle State = iota
	StateSeeding
	StateDraining
	StateFinalizing
	StateCompleted
	StateTimedOut
	StateStopped
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSeeding:
		return "seeding"
	case StateDraining:
		return "draining"
	case StateFinalizing:
		return "finalizing"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	case StateStopped:
		return "stopped"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s >= StateCompleted
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for st := StateIdle; st <= StateErrored; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}
