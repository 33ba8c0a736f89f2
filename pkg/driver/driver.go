package driver

import (
	"context"

	"github.com/bonial-oss/kuma-monitor-client/pkg/config"
	"github.com/bonial-oss/kuma-monitor-client/pkg/driver/null"
	"github.com/bonial-oss/kuma-monitor-client/pkg/driver/polling"
	"github.com/bonial-oss/kuma-monitor-client/pkg/driver/stream"
	"github.com/bonial-oss/kuma-monitor-client/pkg/kuma"
	"github.com/bonial-oss/kuma-monitor-client/pkg/socketio"
	"github.com/bonial-oss/kuma-monitor-client/pkg/state"
	"github.com/bonial-oss/kuma-monitor-client/pkg/store"
	"github.com/pkg/errors"
)

// Interface is the interface for a monitor acquisition driver.
type Interface interface {
	// Start starts acquiring monitor data in the background. Must return an
	// error if the driver cannot be started at all. Transient failures after
	// a successful start are reported through Status.
	Start(ctx context.Context) error

	// Stop stops the driver. After Stop returns, the driver does not write
	// to the store anymore. Calling Stop multiple times is safe.
	Stop()

	// Status returns the current driver state together with the last
	// transient error message.
	Status() state.Status
}

// Factory creates a driver for mode which writes through writer.
type Factory func(mode string, options *config.Options, writer *store.Writer, onChange func(state.Status)) (Interface, error)

// New creates a new acquisition driver by mode. Returns an error if the
// mode is not supported or the driver cannot be configured.
func New(mode string, options *config.Options, writer *store.Writer, onChange func(state.Status)) (Interface, error) {
	switch mode {
	case config.ModeStatusPage:
		client, err := kuma.NewClient(options.ServerURL, options.RequestTimeout.Duration())
		if err != nil {
			return nil, err
		}

		return polling.New(client, writer, options, onChange), nil
	case config.ModeSocket:
		client, err := socketio.NewClient(socketio.Options{
			URL:     options.ServerURL,
			Backoff: options.Reconnect.Backoff(),
		})
		if err != nil {
			return nil, err
		}

		return stream.New(client, writer, options, onChange), nil
	case config.ModeNull:
		return null.New(onChange), nil
	default:
		return nil, errors.Errorf("unsupported mode %q", mode)
	}
}
