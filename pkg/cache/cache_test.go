package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/bonial-oss/kuma-monitor-client/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T) (*Cache, string) {
	path := filepath.Join(t.TempDir(), "data", "cache.db")

	c, err := Open(path)
	require.NoError(t, err)

	t.Cleanup(func() {
		c.Close()
	})

	return c, path
}

func TestCache_SaveLoad(t *testing.T) {
	c, _ := openTestCache(t)

	monitors, err := c.Load()
	require.NoError(t, err)
	assert.Empty(t, monitors)

	url := "https://api.example.com"
	days := 30
	lastCheck := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	expected := []models.Monitor{
		{
			ID:             1,
			Name:           "API",
			Type:           "http",
			URL:            &url,
			Uptime:         99.9,
			Status:         models.StatusUp,
			LastCheck:      &lastCheck,
			CertExpiryDays: &days,
			LastHeartbeat:  &models.Heartbeat{Status: models.StatusUp, Time: lastCheck, Msg: "200 - OK"},
		},
		{ID: 2, Name: "Web", Type: "http", Status: models.StatusMaintenance, Maintenance: true},
	}

	require.NoError(t, c.Save(expected))

	monitors, err = c.Load()
	require.NoError(t, err)
	assert.Equal(t, expected, monitors)

	// Save replaces the previous contents.
	require.NoError(t, c.Save(expected[1:]))

	monitors, err = c.Load()
	require.NoError(t, err)
	assert.Equal(t, expected[1:], monitors)

	require.NoError(t, c.Save(nil))

	monitors, err = c.Load()
	require.NoError(t, err)
	assert.Empty(t, monitors)
}

func TestCache_Reopen(t *testing.T) {
	c, path := openTestCache(t)

	require.NoError(t, c.Save([]models.Monitor{{ID: 3, Name: "DB", Status: models.StatusDown}}))
	require.NoError(t, c.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	monitors, err := reopened.Load()
	require.NoError(t, err)
	require.Len(t, monitors, 1)
	assert.Equal(t, "DB", monitors[0].Name)
	assert.Equal(t, models.StatusDown, monitors[0].Status)
}

func TestCache_SkipsUndecodableRecords(t *testing.T) {
	c, _ := openTestCache(t)

	require.NoError(t, c.db.Create(&monitorRecord{ID: 1, Name: "broken", Data: "{"}).Error)
	require.NoError(t, c.db.Create(&monitorRecord{ID: 2, Name: "Web", Data: `{"id":2,"name":"Web","status":"up"}`}).Error)

	monitors, err := c.Load()
	require.NoError(t, err)
	require.Len(t, monitors, 1)
	assert.Equal(t, 2, monitors[0].ID)
}
