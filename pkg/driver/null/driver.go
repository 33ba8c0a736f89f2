package null

import (
	"context"

	"github.com/bonial-oss/kuma-monitor-client/pkg/state"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

var log = logf.Log.WithName("null-driver")

// Driver does not acquire any monitor data. This is useful for testing.
type Driver struct {
	machine *state.Machine
}

// New creates a new *Driver. onChange may be nil.
func New(onChange func(state.Status)) *Driver {
	return &Driver{machine: state.New(onChange)}
}

// Start implements driver.Interface.
func (d *Driver) Start(_ context.Context) error {
	log.Info("starting null driver, no monitors will be acquired")

	d.machine.Transition(state.Connecting, nil)
	d.machine.Transition(state.Active, nil)

	return nil
}

// Stop implements driver.Interface.
func (d *Driver) Stop() {
	log.V(1).Info("stopping null driver")

	d.machine.Transition(state.Disconnected, nil)
}

// Status implements driver.Interface.
func (d *Driver) Status() state.Status {
	return d.machine.Status()
}
