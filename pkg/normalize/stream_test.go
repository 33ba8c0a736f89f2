package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/bonial-oss/kuma-monitor-client/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorList(t *testing.T) {
	payload := `{
		"2": {"id": 2, "name": "Web", "type": "http", "url": "https://example.com", "uptime": 0.5, "maintenance": false},
		"1": {"id": 1, "name": "API", "type": "http", "status": 1, "lastCheck": "2024-05-01 10:00:00"},
		"3": {"id": 3, "name": "DB", "type": "port", "status": 0, "maintenance": true},
		"4": {"id": 4},
		"x": {"name": "keyless"},
		"9": {"id": 5, "name": "Mismatch", "type": "dns"}
	}`

	snapshot, err := MonitorList([]byte(payload), DefaultOptions())
	require.NoError(t, err)

	ids := make([]int, 0, len(snapshot.Monitors))
	for _, m := range snapshot.Monitors {
		ids = append(ids, m.ID)
	}

	assert.Equal(t, []int{1, 2, 3, 5}, ids)
	assert.Len(t, snapshot.Warnings, 3)

	api := snapshot.Monitors[0]
	assert.Equal(t, models.StatusUp, api.Status)
	require.NotNil(t, api.LastCheck)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), *api.LastCheck)

	web := snapshot.Monitors[1]
	assert.Equal(t, models.StatusUnknown, web.Status)
	assert.InDelta(t, 50.0, web.Uptime, 1e-9)
	assert.Equal(t, "https://example.com", *web.URL)

	db := snapshot.Monitors[2]
	assert.True(t, db.Maintenance)
	assert.Equal(t, models.StatusMaintenance, db.Status)
}

func TestMonitorList_Invalid(t *testing.T) {
	_, err := MonitorList([]byte(`[]`), DefaultOptions())
	assert.Error(t, err)

	_, err = MonitorList([]byte(`null`), DefaultOptions())
	assert.Error(t, err)
}

func TestHeartbeatEvent(t *testing.T) {
	tests := []struct {
		name             string
		payload          string
		expected         []models.Patch
		expectedWarnings int
		expectError      bool
	}{
		{
			name:    "heartbeat patches status and last check",
			payload: `{"monitorID": 2, "status": 0, "time": "2024-05-01 10:00:00.000", "msg": "timeout"}`,
			expected: []models.Patch{
				{
					ID:        2,
					Status:    statusPtr(models.StatusDown),
					LastCheck: timePtr(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)),
					Heartbeat: &models.Heartbeat{
						Status: models.StatusDown,
						Time:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
						Msg:    "timeout",
					},
				},
			},
		},
		{
			name:    "pending heartbeat maps to unknown",
			payload: `{"monitorID": 1, "status": 2}`,
			expected: []models.Patch{
				{
					ID:        1,
					Status:    statusPtr(models.StatusUnknown),
					Heartbeat: &models.Heartbeat{Status: models.StatusUnknown},
				},
			},
		},
		{
			name:             "missing monitor id yields warning",
			payload:          `{"status": 1}`,
			expectedWarnings: 1,
		},
		{
			name:             "non-numeric monitor id yields warning",
			payload:          `{"monitorID": "abc", "status": 1}`,
			expectedWarnings: 1,
		},
		{
			name:        "non-object payload is rejected",
			payload:     `"hello"`,
			expectError: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			delta, err := HeartbeatEvent([]byte(test.payload), DefaultOptions())
			if test.expectError {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, test.expected, delta.Patches)
			assert.Len(t, delta.Warnings, test.expectedWarnings)
		})
	}
}

func TestUptimeEvent(t *testing.T) {
	args := func(values ...string) []json.RawMessage {
		raw := make([]json.RawMessage, len(values))
		for i, v := range values {
			raw[i] = json.RawMessage(v)
		}

		return raw
	}

	delta, err := UptimeEvent(args(`1`, `24`, `0.9957`), DefaultOptions())
	require.NoError(t, err)
	require.Len(t, delta.Patches, 1)
	assert.InDelta(t, 99.57, *delta.Patches[0].Uptime, 1e-9)

	delta, err = UptimeEvent(args(`1`, `"24"`, `1`), DefaultOptions())
	require.NoError(t, err)
	require.Len(t, delta.Patches, 1)
	assert.InDelta(t, 100.0, *delta.Patches[0].Uptime, 1e-9)

	delta, err = UptimeEvent(args(`1`, `720`, `0.5`), DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, delta.Patches)

	_, err = UptimeEvent(args(`1`, `24`), DefaultOptions())
	assert.Error(t, err)

	_, err = UptimeEvent(args(`"x"`, `24`, `1`), DefaultOptions())
	assert.Error(t, err)
}

func TestCertInfoEvent(t *testing.T) {
	delta, err := CertInfoEvent([]json.RawMessage{
		json.RawMessage(`3`),
		json.RawMessage(`"{\"valid\":true,\"certInfo\":{\"daysRemaining\":42}}"`),
	})
	require.NoError(t, err)
	require.Len(t, delta.Patches, 1)
	assert.Equal(t, 3, delta.Patches[0].ID)
	assert.Equal(t, 42, *delta.Patches[0].CertExpiryDays)

	delta, err = CertInfoEvent([]json.RawMessage{json.RawMessage(`3`), json.RawMessage(`"{\"valid\":false}"`)})
	require.NoError(t, err)
	assert.Empty(t, delta.Patches)

	_, err = CertInfoEvent([]json.RawMessage{json.RawMessage(`3`), json.RawMessage(`"not json"`)})
	assert.Error(t, err)
}

func statusPtr(s models.Status) *models.Status {
	return &s
}

func timePtr(t time.Time) *time.Time {
	return &t
}
