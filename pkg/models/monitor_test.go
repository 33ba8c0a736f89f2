package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_EffectiveStatus(t *testing.T) {
	tests := []struct {
		name            string
		monitor         Monitor
		expected        Status
		expectedHealthy bool
	}{
		{
			name:            "raw status is used without maintenance",
			monitor:         Monitor{Status: StatusUp},
			expected:        StatusUp,
			expectedHealthy: true,
		},
		{
			name:     "down monitor is not healthy",
			monitor:  Monitor{Status: StatusDown},
			expected: StatusDown,
		},
		{
			name:     "maintenance flag wins over up",
			monitor:  Monitor{Status: StatusUp, Maintenance: true},
			expected: StatusMaintenance,
		},
		{
			name:     "maintenance flag wins over down",
			monitor:  Monitor{Status: StatusDown, Maintenance: true},
			expected: StatusMaintenance,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, test.monitor.EffectiveStatus())
			assert.Equal(t, test.expectedHealthy, test.monitor.IsHealthy())
		})
	}
}

func TestStatus_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    Status
		expectError bool
	}{
		{name: "code up", input: `1`, expected: StatusUp},
		{name: "code down", input: `0`, expected: StatusDown},
		{name: "code pending", input: `2`, expected: StatusUnknown},
		{name: "code maintenance", input: `3`, expected: StatusMaintenance},
		{name: "string up", input: `"UP"`, expected: StatusUp},
		{name: "string code", input: `"0"`, expected: StatusDown},
		{name: "invalid code", input: `7`, expectError: true},
		{name: "invalid string", input: `"sideways"`, expectError: true},
		{name: "invalid type", input: `{}`, expectError: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var status Status

			err := json.Unmarshal([]byte(test.input), &status)
			if test.expectError {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, test.expected, status)
		})
	}
}

func TestPatch_Empty(t *testing.T) {
	assert.True(t, Patch{ID: 1}.Empty())

	up := StatusUp
	assert.False(t, Patch{ID: 1, Status: &up}.Empty())
}
