package window

import (
	"fmt"
	"slices"
)

// State is a chat window's lifecycle state. Open and Minimized both
// count as active for polling; only Closed stops the poller.
type State string

const (
	Closed    State = "CLOSED"
	Open      State = "OPEN"
	Minimized State = "MINIMIZED"
)

var validTransitions = map[State][]State{
	Closed:    {Open},
	Open:      {Minimized, Closed},
	Minimized: {Open, Closed},
}

func (s State) canTransition(to State) error {
	if !slices.Contains(validTransitions[s], to) {
		return fmt.Errorf("invalid transition from %s to %s", s, to)
	}
	return nil
}

// Active reports whether the window should keep polling.
func (s State) Active() bool {
	return s == Open || s == Minimized
}
