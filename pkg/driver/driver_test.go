package driver

import (
	"context"
	"testing"

	"github.com/bonial-oss/kuma-monitor-client/pkg/config"
	"github.com/bonial-oss/kuma-monitor-client/pkg/driver/null"
	"github.com/bonial-oss/kuma-monitor-client/pkg/driver/polling"
	"github.com/bonial-oss/kuma-monitor-client/pkg/driver/stream"
	"github.com/bonial-oss/kuma-monitor-client/pkg/state"
	"github.com/bonial-oss/kuma-monitor-client/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		mode      string
		serverURL string
		expected  Interface
		expectErr bool
	}{
		{
			name:      "status page",
			mode:      config.ModeStatusPage,
			serverURL: "https://status.example.com",
			expected:  &polling.Driver{},
		},
		{
			name:      "socket",
			mode:      config.ModeSocket,
			serverURL: "https://status.example.com",
			expected:  &stream.Driver{},
		},
		{
			name:     "null",
			mode:     config.ModeNull,
			expected: &null.Driver{},
		},
		{
			name:      "invalid server url",
			mode:      config.ModeStatusPage,
			serverURL: "ftp://status.example.com",
			expectErr: true,
		},
		{
			name:      "unsupported mode",
			mode:      "carrier-pigeon",
			expectErr: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			options := config.NewDefaultOptions()
			options.ServerURL = test.serverURL

			d, err := New(test.mode, options, store.New().NewWriter(), nil)
			if test.expectErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.IsType(t, test.expected, d)
			assert.Equal(t, state.Idle, d.Status().State)
		})
	}
}

func TestNullDriver(t *testing.T) {
	var seen []state.State

	d, err := New(config.ModeNull, config.NewDefaultOptions(), store.New().NewWriter(), func(s state.Status) {
		seen = append(seen, s.State)
	})
	require.NoError(t, err)

	require.NoError(t, d.Start(context.Background()))
	assert.Equal(t, state.Active, d.Status().State)

	d.Stop()
	d.Stop()

	assert.Equal(t, []state.State{state.Connecting, state.Active, state.Disconnected}, seen)
}
