// Package loader tracks the pending installation of a loader runtime for a
// profile. The only persisted state is a small sidecar record; the in-memory
// lifecycle is an explicit state machine.
package loader

import "fmt"

// State of a profile's loader installation
type State int

const (
	StateNone State = iota
	StatePending
	StateInstalling
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StatePending:
		return "pending"
	case StateInstalling:
		return "installing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Event drives a transition
type Event int

const (
	// EventRequire is a package install declaring an unsatisfied loader
	EventRequire Event = iota
	// EventTrigger starts the installation
	EventTrigger
	EventSucceed
	EventFail
)

func (e Event) String() string {
	switch e {
	case EventRequire:
		return "require"
	case EventTrigger:
		return "trigger"
	case EventSucceed:
		return "succeed"
	case EventFail:
		return "fail"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// transitions is the complete table; anything absent is rejected.
// Failed keeps its record, so it accepts Trigger like Pending does.
var transitions = map[State]map[Event]State{
	StateNone:       {EventRequire: StatePending},
	StatePending:    {EventRequire: StatePending, EventTrigger: StateInstalling},
	StateInstalling: {EventSucceed: StateDone, EventFail: StateFailed},
	StateDone:       {EventRequire: StatePending},
	StateFailed:     {EventRequire: StatePending, EventTrigger: StateInstalling},
}

// Transition returns the state reached from s on e
func Transition(s State, e Event) (State, error) {
	if next, ok := transitions[s][e]; ok {
		return next, nil
	}
	return s, fmt.Errorf("invalid loader transition: %s on %s", e, s)
}
