package fake

import (
	"context"

	"github.com/bonial-oss/kuma-monitor-client/pkg/state"
	"github.com/stretchr/testify/mock"
)

// Driver is a fake driver that can be used in unit tests.
type Driver struct {
	mock.Mock
}

// Start implements driver.Interface.
func (d *Driver) Start(ctx context.Context) error {
	args := d.Called(ctx)

	return args.Error(0)
}

// Stop implements driver.Interface.
func (d *Driver) Stop() {
	d.Called()
}

// Status implements driver.Interface.
func (d *Driver) Status() state.Status {
	args := d.Called()
	if obj, ok := args.Get(0).(state.Status); ok {
		return obj
	}

	return state.Status{}
}
