package normalize

import (
	"testing"

	"github.com/bonial-oss/kuma-monitor-client/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusPage(t *testing.T) {
	tests := []struct {
		name             string
		payload          string
		expected         []models.Monitor
		expectedWarnings int
		expectError      bool
	}{
		{
			name: "monitors without maintenance have unknown status",
			payload: `{
				"config": {"slug": "demo", "title": "Demo"},
				"publicGroupList": [
					{"id": 1, "name": "Services", "weight": 1, "monitorList": [
						{"id": 1, "name": "API", "type": "http", "url": "https://api.example.com", "maintenance": false}
					]}
				]
			}`,
			expected: []models.Monitor{
				{ID: 1, Name: "API", Type: "http", URL: strPtr("https://api.example.com"), Status: models.StatusUnknown},
			},
		},
		{
			name: "maintenance stub forces maintenance status",
			payload: `{"config": {}, "publicGroupList": [
				{"id": 1, "name": "Services", "monitorList": [
					{"id": 7, "name": "DB", "type": "port", "maintenance": true}
				]}
			]}`,
			expected: []models.Monitor{
				{ID: 7, Name: "DB", Type: "port", Status: models.StatusMaintenance, Maintenance: true},
			},
		},
		{
			name: "monitors from several groups are merged and deduplicated",
			payload: `{"config": {}, "publicGroupList": [
				{"id": 1, "name": "A", "monitorList": [{"id": 1, "name": "API", "type": "http"}]},
				{"id": 2, "name": "B", "monitorList": [
					{"id": 2, "name": "Web", "type": "http", "description": "frontend"},
					{"id": 1, "name": "API", "type": "http"}
				]}
			]}`,
			expected: []models.Monitor{
				{ID: 1, Name: "API", Type: "http", Status: models.StatusUnknown},
				{ID: 2, Name: "Web", Type: "http", Description: strPtr("frontend"), Status: models.StatusUnknown},
			},
			expectedWarnings: 1,
		},
		{
			name: "malformed entries are dropped individually",
			payload: `{"config": {}, "publicGroupList": [
				{"id": 1, "name": "A", "monitorList": [
					{"name": "no id"},
					{"id": "abc", "name": "string id"},
					{"id": 3},
					{"id": 4, "name": "OK", "type": "dns"}
				]},
				"not a group"
			]}`,
			expected: []models.Monitor{
				{ID: 4, Name: "OK", Type: "dns", Status: models.StatusUnknown},
			},
			expectedWarnings: 4,
		},
		{
			name:        "invalid payload is rejected",
			payload:     `[1, 2, 3]`,
			expectError: true,
		},
		{
			name:        "payload without group list is rejected",
			payload:     `{"ok": false, "msg": "not found"}`,
			expectError: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			snapshot, err := StatusPage([]byte(test.payload))
			if test.expectError {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, test.expected, snapshot.Monitors)
			assert.Len(t, snapshot.Warnings, test.expectedWarnings)
		})
	}
}

func TestStatusPage_PageMetadata(t *testing.T) {
	snapshot, err := StatusPage([]byte(`{"config": {"slug": "demo", "title": "Demo Page"}, "publicGroupList": []}`))
	require.NoError(t, err)

	assert.Equal(t, Page{Slug: "demo", Title: "Demo Page"}, snapshot.Page)
	assert.Empty(t, snapshot.Monitors)
}

func strPtr(s string) *string {
	return &s
}
