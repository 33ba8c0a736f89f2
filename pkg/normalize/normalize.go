// Package normalize converts the payload shapes of the different acquisition
// modes into monitor records and partial updates. All functions are pure,
// they never touch the store.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bonial-oss/kuma-monitor-client/pkg/config"
	"github.com/bonial-oss/kuma-monitor-client/pkg/models"
	"github.com/pkg/errors"
)

// Options controls the interpretation of ambiguous payload fields.
type Options struct {
	// NewestFirst denotes that the first element of a heartbeat list is the
	// most recent one. Lists are never re-sorted.
	NewestFirst bool

	// UptimeMultiplier converts incoming uptime values into percent.
	UptimeMultiplier float64

	// UptimePeriod selects one period from payloads carrying several.
	UptimePeriod string
}

// DefaultOptions returns options for newest-first heartbeat lists, uptime
// fractions and the 24h uptime period.
func DefaultOptions() Options {
	return Options{
		NewestFirst:      true,
		UptimeMultiplier: 100,
		UptimePeriod:     "24",
	}
}

// OptionsFromSettings creates Options from the normalization settings.
func OptionsFromSettings(s config.NormalizationSettings) Options {
	opts := DefaultOptions()

	opts.NewestFirst = s.HeartbeatOrder != config.HeartbeatOrderOldestFirst

	if s.UptimeScale == config.UptimeScalePercent {
		opts.UptimeMultiplier = 1
	}

	if s.UptimePeriod != "" {
		opts.UptimePeriod = s.UptimePeriod
	}

	return opts
}

// Warning records a payload entry that was dropped or partially ignored.
type Warning struct {
	// Source is the payload kind, e.g. "status-page" or "heartbeat".
	Source string

	// Key locates the offending entry within the payload.
	Key string

	// Reason describes what was wrong with the entry.
	Reason string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s %s: %s", w.Source, w.Key, w.Reason)
}

// Page contains metadata of a status page.
type Page struct {
	Slug  string
	Title string
}

// Snapshot is the normalized form of a full monitor list. It is meant to
// fully replace the contents of the store.
type Snapshot struct {
	Page     Page
	Monitors []models.Monitor
	Warnings []Warning
}

// Delta is a list of partial updates.
type Delta struct {
	Patches  []models.Patch
	Warnings []Warning
}

type warnings struct {
	source string
	list   []Warning
}

func (w *warnings) add(key, format string, args ...interface{}) {
	w.list = append(w.list, Warning{Source: w.source, Key: key, Reason: fmt.Sprintf(format, args...)})
}

// scaleUptime converts v into percent and rejects values outside of 0-100.
// The result is rounded to four decimal places to get rid of float noise
// introduced by the multiplication.
func scaleUptime(v, multiplier float64) (float64, error) {
	scaled := math.Round(v*multiplier*1e4) / 1e4
	if math.IsNaN(scaled) || scaled < 0 || scaled > 100 {
		return 0, errors.Errorf("uptime %v out of range after scaling", v)
	}

	return scaled, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
}

// parseTime parses heartbeat timestamps. Strings are either RFC3339 or the
// server's UTC "2006-01-02 15:04:05.000" format, numbers are unix
// milliseconds. A missing or null value yields nil.
func parseTime(raw json.RawMessage) (*time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var millis int64
	if err := json.Unmarshal(raw, &millis); err == nil {
		t := time.UnixMilli(millis).UTC()
		return &t, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.Errorf("invalid time %s", string(raw))
	}

	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}

	return nil, errors.Errorf("invalid time %q", s)
}

// parseID parses a monitor id map key.
func parseID(key string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(key))
	if err != nil {
		return 0, errors.Errorf("non-numeric monitor id %q", key)
	}

	if id <= 0 {
		return 0, errors.Errorf("invalid monitor id %d", id)
	}

	return id, nil
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

func sortPatches(patches []models.Patch) {
	sort.SliceStable(patches, func(i, j int) bool {
		return patches[i].ID < patches[j].ID
	})
}

func isJSONObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
