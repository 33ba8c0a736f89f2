// Package cache persists the last known monitor view in a SQLite database so
// that it can be shown immediately on the next start.
package cache

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/bonial-oss/kuma-monitor-client/pkg/models"
	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

var log = logf.Log.WithName("cache")

// monitorRecord is one cached monitor. The record itself is stored as JSON
// so that new monitor fields do not require migrations.
type monitorRecord struct {
	ID        int    `gorm:"primaryKey;autoIncrement:false"`
	Name      string `gorm:"index"`
	Data      string
	UpdatedAt time.Time
}

func (monitorRecord) TableName() string {
	return "cached_monitors"
}

// Cache is a SQLite backed store for the last known monitor view.
type Cache struct {
	db *gorm.DB
}

// Open opens the cache database at path and creates it if it does not exist
// yet.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "failed to create cache directory %q", dir)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open cache database %q", path)
	}

	// SQLite only supports a single writer.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqlDB}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		sqlDB.Close()
		return nil, errors.Wrapf(err, "failed to initialize cache database %q", path)
	}

	if err := db.AutoMigrate(&monitorRecord{}); err != nil {
		sqlDB.Close()
		return nil, errors.Wrapf(err, "failed to migrate cache database %q", path)
	}

	log.V(1).Info("opened monitor cache", "path", path)

	return &Cache{db: db}, nil
}

// Load returns the cached monitors ordered by ID. Records that cannot be
// decoded are skipped.
func (c *Cache) Load() ([]models.Monitor, error) {
	var records []monitorRecord

	if err := c.db.Order("id").Find(&records).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to load cached monitors")
	}

	monitors := make([]models.Monitor, 0, len(records))

	for _, record := range records {
		var m models.Monitor
		if err := json.Unmarshal([]byte(record.Data), &m); err != nil {
			log.Error(err, "skipping undecodable cached monitor", "id", record.ID)
			continue
		}

		monitors = append(monitors, m)
	}

	return monitors, nil
}

// Save replaces the cached monitors with monitors.
func (c *Cache) Save(monitors []models.Monitor) error {
	now := time.Now()

	records := make([]monitorRecord, 0, len(monitors))

	for _, m := range monitors {
		data, err := json.Marshal(m)
		if err != nil {
			return errors.Wrapf(err, "failed to encode monitor %d", m.ID)
		}

		records = append(records, monitorRecord{ID: m.ID, Name: m.Name, Data: string(data), UpdatedAt: now})
	}

	err := c.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&monitorRecord{}).Error; err != nil {
			return err
		}

		if len(records) == 0 {
			return nil
		}

		return tx.Create(&records).Error
	})
	if err != nil {
		return errors.Wrapf(err, "failed to save monitors")
	}

	return nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}
