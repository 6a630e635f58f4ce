package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/lsanches/bico/internal/bus"
)

// State represents the push-channel connection state.
type State string

const (
	Idle         State = "IDLE"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Reconnecting State = "RECONNECTING"
	Disconnected State = "DISCONNECTED"
	Failed       State = "FAILED"
)

// validTransitions defines allowed state transitions.
// Disconnected and Failed are terminal: Disconnected is reached only by an
// explicit disconnect, Failed only after the reconnect budget is exhausted
// or the credential is rejected.
var validTransitions = map[State][]State{
	Idle:         {Connecting},
	Connecting:   {Connected, Reconnecting, Disconnected, Failed},
	Connected:    {Reconnecting, Disconnected},
	Reconnecting: {Connected, Disconnected, Failed},
	Disconnected: {},
	Failed:       {},
}

// Machine tracks and enforces connection state transitions.
// It is the single writer of the connection state; consumers observe
// changes via conn.status_changed bus events.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Idle state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Idle,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Terminal reports whether the machine is in a terminal state.
func (m *Machine) Terminal() bool {
	s := m.Current()
	return s == Disconnected || s == Failed
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      "conn.status_changed",
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
