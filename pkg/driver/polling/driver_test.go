package polling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bonial-oss/kuma-monitor-client/pkg/config"
	"github.com/bonial-oss/kuma-monitor-client/pkg/kuma/fake"
	"github.com/bonial-oss/kuma-monitor-client/pkg/models"
	"github.com/bonial-oss/kuma-monitor-client/pkg/state"
	"github.com/bonial-oss/kuma-monitor-client/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	statusPageAPI = `{
		"config": {"slug": "demo", "title": "Demo"},
		"publicGroupList": [
			{"id": 1, "name": "Services", "weight": 1, "monitorList": [
				{"id": 1, "name": "API", "type": "http", "maintenance": false}
			]}
		]
	}`

	statusPageMaintenance = `{
		"config": {"slug": "demo"},
		"publicGroupList": [
			{"id": 1, "name": "Services", "monitorList": [
				{"id": 1, "name": "API", "type": "http", "maintenance": true}
			]}
		]
	}`

	heartbeatsUp = `{"1": {"heartbeatList": [{"status": 1, "time": "2024-05-01 10:00:00.000"}], "uptime": 0.999}}`

	heartbeatsDown = `{"1": {"heartbeatList": [{"status": 0, "time": "2024-05-01 10:00:00.000"}], "uptime": 0.5}}`
)

func newTestDriver(client *fake.Client) (*Driver, *store.Store) {
	options := config.NewDefaultOptions()
	options.StatusPageSlug = "demo"

	s := store.New()

	return New(client, s.NewWriter(), options, nil), s
}

func TestDriver_Poll(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*testing.T, *Driver, *fake.Client)
		validate func(*testing.T, *Driver, *store.Store)
	}{
		{
			name: "status page is enriched with heartbeats",
			setup: func(t *testing.T, d *Driver, c *fake.Client) {
				c.On("StatusPage", mock.Anything, "demo").Return([]byte(statusPageAPI), nil)
				c.On("Heartbeats", mock.Anything, "demo").Return([]byte(heartbeatsUp), nil)
			},
			validate: func(t *testing.T, d *Driver, s *store.Store) {
				view := s.CurrentView()
				require.Len(t, view.Monitors, 1)

				m := view.Monitors[0]
				assert.Equal(t, 1, m.ID)
				assert.Equal(t, "API", m.Name)
				assert.Equal(t, models.StatusUp, m.EffectiveStatus())
				assert.InDelta(t, 99.9, m.Uptime, 1e-9)

				// Replace and enrichment are published as one write.
				assert.Equal(t, uint64(1), view.Version)

				assert.Equal(t, state.Active, d.Status().State)
				assert.Empty(t, d.Status().Err)
			},
		},
		{
			name: "maintenance stub stays in maintenance after down heartbeat",
			setup: func(t *testing.T, d *Driver, c *fake.Client) {
				c.On("StatusPage", mock.Anything, "demo").Return([]byte(statusPageMaintenance), nil)
				c.On("Heartbeats", mock.Anything, "demo").Return([]byte(heartbeatsDown), nil)
			},
			validate: func(t *testing.T, d *Driver, s *store.Store) {
				m, err := s.Get(1)
				require.NoError(t, err)

				assert.Equal(t, models.StatusMaintenance, m.EffectiveStatus())
				assert.InDelta(t, 50.0, m.Uptime, 1e-9)
			},
		},
		{
			name: "failed fetch while connecting stays connecting",
			setup: func(t *testing.T, d *Driver, c *fake.Client) {
				c.On("StatusPage", mock.Anything, "demo").Return(nil, errors.New("connection refused"))
			},
			validate: func(t *testing.T, d *Driver, s *store.Store) {
				status := d.Status()
				assert.Equal(t, state.Connecting, status.State)
				assert.Contains(t, status.Err, "connection refused")
				assert.Empty(t, s.CurrentView().Monitors)
			},
		},
		{
			name: "undecodable status page is surfaced as error",
			setup: func(t *testing.T, d *Driver, c *fake.Client) {
				c.On("StatusPage", mock.Anything, "demo").Return([]byte(`<html>`), nil)
			},
			validate: func(t *testing.T, d *Driver, s *store.Store) {
				assert.Equal(t, state.Connecting, d.Status().State)
				assert.NotEmpty(t, d.Status().Err)
			},
		},
		{
			name: "failed heartbeat fetch still commits status page",
			setup: func(t *testing.T, d *Driver, c *fake.Client) {
				c.On("StatusPage", mock.Anything, "demo").Return([]byte(statusPageAPI), nil)
				c.On("Heartbeats", mock.Anything, "demo").Return(nil, errors.New("http 502"))
			},
			validate: func(t *testing.T, d *Driver, s *store.Store) {
				m, err := s.Get(1)
				require.NoError(t, err)
				assert.Equal(t, models.StatusUnknown, m.Status)

				status := d.Status()
				assert.Equal(t, state.Active, status.State)
				assert.Contains(t, status.Err, "http 502")
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := &fake.Client{}
			d, s := newTestDriver(c)

			d.machine.Transition(state.Connecting, nil)

			test.setup(t, d, c)

			d.poll(context.Background())

			test.validate(t, d, s)
			c.AssertExpectations(t)
		})
	}
}

func TestDriver_PollRecoversFromError(t *testing.T) {
	c := &fake.Client{}
	d, s := newTestDriver(c)

	d.machine.Transition(state.Connecting, nil)

	c.On("StatusPage", mock.Anything, "demo").Return([]byte(statusPageAPI), nil).Once()
	c.On("Heartbeats", mock.Anything, "demo").Return([]byte(heartbeatsUp), nil).Once()

	d.poll(context.Background())
	require.Equal(t, state.Active, d.Status().State)

	c.On("StatusPage", mock.Anything, "demo").Return(nil, errors.New("timeout")).Once()

	d.poll(context.Background())
	assert.Equal(t, state.Error, d.Status().State)
	assert.Contains(t, d.Status().Err, "timeout")

	// The last known view is kept.
	assert.Len(t, s.CurrentView().Monitors, 1)

	c.On("StatusPage", mock.Anything, "demo").Return([]byte(statusPageAPI), nil).Once()
	c.On("Heartbeats", mock.Anything, "demo").Return([]byte(heartbeatsDown), nil).Once()

	d.poll(context.Background())
	assert.Equal(t, state.Active, d.Status().State)
	assert.Empty(t, d.Status().Err)

	m, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDown, m.Status)

	c.AssertExpectations(t)
}

func TestDriver_StaleResponseIsDiscarded(t *testing.T) {
	c := &fake.Client{}
	d, s := newTestDriver(c)

	d.machine.Transition(state.Connecting, nil)

	inFlight := make(chan struct{})
	release := make(chan struct{})

	c.On("StatusPage", mock.Anything, "demo").
		Run(func(_ mock.Arguments) {
			close(inFlight)
			<-release
		}).
		Return([]byte(statusPageAPI), nil)
	c.On("Heartbeats", mock.Anything, "demo").Return([]byte(heartbeatsUp), nil).Maybe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.poll(context.Background())
	}()

	<-inFlight

	// Teardown while the request is in flight.
	s.Clear()
	next := s.NewWriter()

	close(release)
	<-done

	assert.Empty(t, s.CurrentView().Monitors)
	assert.True(t, next.Active())
}

func TestDriver_StartStop(t *testing.T) {
	c := &fake.Client{}
	d, s := newTestDriver(c)

	c.On("StatusPage", mock.Anything, "demo").Return([]byte(statusPageAPI), nil)
	c.On("Heartbeats", mock.Anything, "demo").Return([]byte(heartbeatsUp), nil)

	require.NoError(t, d.Start(context.Background()))
	require.Error(t, d.Start(context.Background()))

	require.Eventually(t, func() bool {
		return d.Status().State == state.Active
	}, 5*time.Second, 10*time.Millisecond)

	d.Stop()
	d.Stop()

	assert.Equal(t, state.Disconnected, d.Status().State)
	assert.Len(t, s.CurrentView().Monitors, 1)
}
