package mode

import (
	"sync"

	"github.com/Dembrane/echo-sub002/pkg/turn"
)

// Machine is the runtime holder of a session's mode. The persisted session
// row is the source of truth; the machine mirrors it so concurrent requests
// for the same session agree without a round trip.
type Machine struct {
	mu      sync.Mutex
	current Mode
}

func NewMachine(initial Mode) *Machine {
	return &Machine{current: initial}
}

func (m *Machine) Current() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Set applies the unset -> concrete transition. Setting the same mode twice
// is a no-op; a different mode is rejected with turn.ErrModeAlreadySet.
func (m *Machine) Set(next Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	updated, err := Transition(m.current, next)
	if err != nil {
		return err
	}
	m.current = updated
	return nil
}

// Require returns the current mode, or turn.ErrModeUnset when no mode has
// been chosen yet. Turn submission calls this first.
func (m *Machine) Require() (Mode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == Unset {
		return Unset, turn.ErrModeUnset
	}
	return m.current, nil
}
