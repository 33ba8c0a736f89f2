// Package state implements the connection state machine shared by all
// acquisition drivers.
package state

import (
	"sync"
	"time"
)

// State is the connection state of a driver.
type State string

const (
	Idle         State = "idle"
	Connecting   State = "connecting"
	Active       State = "active"
	Error        State = "error"
	Disconnected State = "disconnected"
)

// All lists all states.
var All = []State{Idle, Connecting, Active, Error, Disconnected}

// transitions lists the allowed target states per state. Disconnected is
// terminal until the machine is explicitly restarted.
var transitions = map[State][]State{
	Idle:         {Connecting, Disconnected},
	Connecting:   {Connecting, Active, Error, Disconnected},
	Active:       {Active, Error, Disconnected},
	Error:        {Connecting, Active, Error, Disconnected},
	Disconnected: {},
}

// Status is a point-in-time snapshot of a machine.
type Status struct {
	State State
	// Err is the message of the most recent error. It is kept while the
	// machine retries and cleared once it becomes active again.
	Err   string
	Since time.Time
}

// Machine is a concurrency safe state machine.
type Machine struct {
	mu       sync.Mutex
	status   Status
	onChange func(Status)
	now      func() time.Time
}

// New creates a new *Machine in the idle state. If non-nil, onChange is
// invoked after every transition. It must not call back into the machine.
func New(onChange func(Status)) *Machine {
	m := &Machine{
		onChange: onChange,
		now:      time.Now,
	}

	m.status = Status{State: Idle, Since: m.now()}

	return m
}

// Status returns the current status.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.status
}

// Transition moves the machine into state to, recording err if it is
// non-nil. Returns false if the transition is not allowed, in which case
// the machine is left unchanged.
func (m *Machine) Transition(to State, err error) bool {
	m.mu.Lock()

	if !allowed(m.status.State, to) {
		m.mu.Unlock()
		return false
	}

	status := Status{State: to, Since: m.now()}

	switch {
	case err != nil:
		status.Err = err.Error()
	case to != Active:
		status.Err = m.status.Err
	}

	if to == m.status.State {
		status.Since = m.status.Since
	}

	m.status = status
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(status)
	}

	return true
}

// Restart resets a machine to idle regardless of its current state.
func (m *Machine) Restart() {
	m.mu.Lock()
	m.status = Status{State: Idle, Since: m.now()}
	status := m.status
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(status)
	}
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}

	return false
}
