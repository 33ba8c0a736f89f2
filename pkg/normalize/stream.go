package normalize

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/bonial-oss/kuma-monitor-client/pkg/models"
	"github.com/pkg/errors"
)

type monitorEntry struct {
	ID             *int            `json:"id"`
	Name           *string         `json:"name"`
	Description    *string         `json:"description"`
	Type           string          `json:"type"`
	URL            *string         `json:"url"`
	Method         *string         `json:"method"`
	Body           *string         `json:"body"`
	Headers        *string         `json:"headers"`
	Maintenance    *bool           `json:"maintenance"`
	Uptime         *float64        `json:"uptime"`
	Status         *models.Status  `json:"status"`
	LastCheck      json.RawMessage `json:"lastCheck"`
	CertExpiryDays *int            `json:"certExpiryDays"`
}

type heartbeatEvent struct {
	MonitorID *int            `json:"monitorID"`
	Status    *models.Status  `json:"status"`
	Time      json.RawMessage `json:"time"`
	Msg       string          `json:"msg"`
	Ping      *float64        `json:"ping"`
	Uptime    *float64        `json:"uptime"`
}

type certInfo struct {
	Valid    bool `json:"valid"`
	CertInfo *struct {
		DaysRemaining *int `json:"daysRemaining"`
	} `json:"certInfo"`
}

// MonitorList normalizes the id-keyed monitor map of a monitorList event.
// The result is meant to fully replace the store contents.
func MonitorList(payload []byte, opts Options) (Snapshot, error) {
	var entries map[string]json.RawMessage

	if err := json.Unmarshal(payload, &entries); err != nil {
		return Snapshot{}, errors.Wrapf(err, "failed to decode monitor list")
	}

	if entries == nil {
		return Snapshot{}, errors.New("monitor list is empty")
	}

	w := &warnings{source: "monitor-list"}
	seen := make(map[int]struct{})

	var snapshot Snapshot

	for _, key := range sortedKeys(entries) {
		monitor, err := monitorFromEntry(key, entries[key], opts, w)
		if err != nil {
			w.add(key, "%v", err)
			continue
		}

		if _, found := seen[monitor.ID]; found {
			w.add(key, "monitor %d is listed more than once", monitor.ID)
			continue
		}

		seen[monitor.ID] = struct{}{}
		snapshot.Monitors = append(snapshot.Monitors, monitor)
	}

	sort.Slice(snapshot.Monitors, func(i, j int) bool {
		return snapshot.Monitors[i].ID < snapshot.Monitors[j].ID
	})

	snapshot.Warnings = w.list

	return snapshot, nil
}

func monitorFromEntry(key string, raw json.RawMessage, opts Options, w *warnings) (models.Monitor, error) {
	var entry monitorEntry

	if err := json.Unmarshal(raw, &entry); err != nil {
		return models.Monitor{}, errors.Wrapf(err, "invalid monitor")
	}

	var id int
	switch {
	case entry.ID != nil:
		id = *entry.ID
		if keyID, err := strconv.Atoi(key); err == nil && keyID != id {
			w.add(key, "map key does not match monitor id %d, using monitor id", id)
		}
	default:
		keyID, err := parseID(key)
		if err != nil {
			return models.Monitor{}, err
		}

		id = keyID
	}

	if id <= 0 {
		return models.Monitor{}, errors.Errorf("invalid monitor id %d", id)
	}

	if entry.Name == nil || *entry.Name == "" {
		return models.Monitor{}, errors.Errorf("monitor %d has no name", id)
	}

	monitor := models.Monitor{
		ID:             id,
		Name:           *entry.Name,
		Description:    entry.Description,
		Type:           entry.Type,
		URL:            entry.URL,
		Method:         entry.Method,
		Body:           entry.Body,
		Headers:        entry.Headers,
		Status:         models.StatusUnknown,
		CertExpiryDays: entry.CertExpiryDays,
	}

	if entry.Status != nil {
		monitor.Status = *entry.Status
	}

	if entry.Uptime != nil {
		uptime, err := scaleUptime(*entry.Uptime, opts.UptimeMultiplier)
		if err != nil {
			w.add(key, "%v", err)
		} else {
			monitor.Uptime = uptime
		}
	}

	lastCheck, err := parseTime(entry.LastCheck)
	if err != nil {
		w.add(key, "%v", err)
	} else {
		monitor.LastCheck = lastCheck
	}

	if entry.Maintenance != nil && *entry.Maintenance {
		monitor.Maintenance = true
		monitor.Status = models.StatusMaintenance
	}

	return monitor, nil
}

// HeartbeatEvent normalizes a single heartbeat event into a patch for
// exactly the monitor it refers to. A malformed heartbeat yields an empty
// delta with a warning.
func HeartbeatEvent(payload []byte, opts Options) (Delta, error) {
	if !isJSONObject(payload) {
		return Delta{}, errors.Errorf("heartbeat must be an object, got %s", abbreviate(payload))
	}

	w := &warnings{source: "heartbeat-event"}

	var event heartbeatEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		w.add("heartbeat", "invalid heartbeat: %v", err)
		return Delta{Warnings: w.list}, nil
	}

	if event.MonitorID == nil || *event.MonitorID <= 0 {
		w.add("heartbeat", "monitorID missing or invalid")
		return Delta{Warnings: w.list}, nil
	}

	key := strconv.Itoa(*event.MonitorID)
	patch := models.Patch{ID: *event.MonitorID}

	if event.Status != nil {
		status := *event.Status
		patch.Status = &status

		heartbeat := &models.Heartbeat{Status: status, Msg: event.Msg, Ping: event.Ping}

		t, err := parseTime(event.Time)
		if err != nil {
			w.add(key, "%v", err)
		} else if t != nil {
			heartbeat.Time = *t
			patch.LastCheck = t
		}

		patch.Heartbeat = heartbeat
	}

	if event.Uptime != nil {
		applyUptime(&patch, *event.Uptime, opts, key, w)
	}

	delta := Delta{Warnings: w.list}
	if !patch.Empty() {
		delta.Patches = []models.Patch{patch}
	}

	return delta, nil
}

// UptimeEvent normalizes the arguments of an uptime event, which are
// (monitorID, period, value). Events for other periods than the configured
// one yield an empty delta.
func UptimeEvent(args []json.RawMessage, opts Options) (Delta, error) {
	if len(args) < 3 {
		return Delta{}, errors.Errorf("uptime event needs 3 arguments, got %d", len(args))
	}

	var id int
	if err := json.Unmarshal(args[0], &id); err != nil {
		return Delta{}, errors.Wrapf(err, "invalid monitor id in uptime event")
	}

	period := string(bytes.Trim(bytes.TrimSpace(args[1]), `"`))
	if period != opts.UptimePeriod {
		return Delta{}, nil
	}

	var value float64
	if err := json.Unmarshal(args[2], &value); err != nil {
		return Delta{}, errors.Wrapf(err, "invalid uptime value for monitor %d", id)
	}

	w := &warnings{source: "uptime-event"}
	patch := models.Patch{ID: id}

	applyUptime(&patch, value, opts, strconv.Itoa(id), w)

	delta := Delta{Warnings: w.list}
	if !patch.Empty() {
		delta.Patches = []models.Patch{patch}
	}

	return delta, nil
}

// CertInfoEvent normalizes the arguments of a certInfo event, which are
// (monitorID, certInfoJSON). The second argument is a JSON document encoded
// as string.
func CertInfoEvent(args []json.RawMessage) (Delta, error) {
	if len(args) < 2 {
		return Delta{}, errors.Errorf("certInfo event needs 2 arguments, got %d", len(args))
	}

	var id int
	if err := json.Unmarshal(args[0], &id); err != nil {
		return Delta{}, errors.Wrapf(err, "invalid monitor id in certInfo event")
	}

	var doc string
	if err := json.Unmarshal(args[1], &doc); err != nil {
		return Delta{}, errors.Wrapf(err, "invalid certInfo for monitor %d", id)
	}

	var info certInfo
	if err := json.Unmarshal([]byte(doc), &info); err != nil {
		return Delta{}, errors.Wrapf(err, "invalid certInfo for monitor %d", id)
	}

	if info.CertInfo == nil || info.CertInfo.DaysRemaining == nil {
		return Delta{}, nil
	}

	days := *info.CertInfo.DaysRemaining

	return Delta{Patches: []models.Patch{{ID: id, CertExpiryDays: &days}}}, nil
}

func abbreviate(b []byte) string {
	const limit = 64
	if len(b) <= limit {
		return string(b)
	}

	return string(b[:limit]) + "..."
}
