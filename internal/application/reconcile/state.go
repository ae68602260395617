package reconcile

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidTransition is returned when a run skips or revisits a state
var ErrInvalidTransition = errors.New("invalid run state transition")

// State is the lifecycle position of a reconciliation run
type State string

const (
	StateIdle      State = "idle"
	StateIndexing  State = "indexing"
	StateMatching  State = "matching"
	StateDone      State = "done"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

var transitions = map[State][]State{
	StateIdle:     {StateIndexing},
	StateIndexing: {StateMatching, StateCancelled, StateFailed},
	StateMatching: {StateDone, StateCancelled, StateFailed},
}

// CanTransition reports whether from → to is allowed
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s
func (s State) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Machine tracks one run's state. Safe for concurrent readers.
type Machine struct {
	mu    sync.RWMutex
	state State
}

// NewMachine starts in StateIdle
func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

// State returns the current state
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Transition moves to the next state or fails with ErrInvalidTransition
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !CanTransition(m.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, to)
	}
	m.state = to
	return nil
}
