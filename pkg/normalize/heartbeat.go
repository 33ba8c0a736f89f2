package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bonial-oss/kuma-monitor-client/pkg/models"
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"
)

type heartbeatPoint struct {
	Status *models.Status  `json:"status"`
	Time   json.RawMessage `json:"time"`
	Msg    string          `json:"msg"`
	Ping   *float64        `json:"ping"`
}

type monitorHeartbeats struct {
	HeartbeatList []json.RawMessage `json:"heartbeatList"`
	Uptime        *float64          `json:"uptime"`
}

type combinedHeartbeats struct {
	HeartbeatList map[string]json.RawMessage `json:"heartbeatList"`
	UptimeList    map[string]json.RawMessage `json:"uptimeList"`
}

// Heartbeats normalizes a heartbeat overlay payload into one patch per
// monitor. Two shapes are supported:
//
//	{"<id>": {"heartbeatList": [...], "uptime": 0.99}}
//	{"heartbeatList": {"<id>": [...]}, "uptimeList": {"<id>_<period>": 0.99}}
//
// Each patch carries the scaled uptime and the status of the most recent
// heartbeat. For ids contained in maintenance the heartbeat status is
// discarded.
func Heartbeats(payload []byte, maintenance sets.Set[int], opts Options) (Delta, error) {
	var top map[string]json.RawMessage

	if err := json.Unmarshal(payload, &top); err != nil {
		return Delta{}, errors.Wrapf(err, "failed to decode heartbeats")
	}

	if top == nil {
		return Delta{}, errors.New("heartbeat payload is empty")
	}

	w := &warnings{source: "heartbeat"}

	var patches []models.Patch
	if raw, ok := top["heartbeatList"]; ok && isJSONObject(raw) {
		var combined combinedHeartbeats
		if err := json.Unmarshal(payload, &combined); err != nil {
			return Delta{}, errors.Wrapf(err, "failed to decode combined heartbeats")
		}

		patches = combinedPatches(combined, maintenance, opts, w)
	} else {
		patches = idKeyedPatches(top, maintenance, opts, w)
	}

	sortPatches(patches)

	return Delta{Patches: patches, Warnings: w.list}, nil
}

func idKeyedPatches(top map[string]json.RawMessage, maintenance sets.Set[int], opts Options, w *warnings) []models.Patch {
	var patches []models.Patch

	for _, key := range sortedKeys(top) {
		id, err := parseID(key)
		if err != nil {
			w.add(key, "%v", err)
			continue
		}

		var entry monitorHeartbeats
		if err := json.Unmarshal(top[key], &entry); err != nil {
			w.add(key, "invalid heartbeat entry: %v", err)
			continue
		}

		patch := models.Patch{ID: id}

		if entry.Uptime != nil {
			applyUptime(&patch, *entry.Uptime, opts, key, w)
		}

		applyLatestHeartbeat(&patch, entry.HeartbeatList, maintenance.Has(id), opts, key, w)

		if !patch.Empty() {
			patches = append(patches, patch)
		}
	}

	return patches
}

func combinedPatches(combined combinedHeartbeats, maintenance sets.Set[int], opts Options, w *warnings) []models.Patch {
	byID := make(map[int]*models.Patch)

	patchFor := func(id int) *models.Patch {
		if p, ok := byID[id]; ok {
			return p
		}

		p := &models.Patch{ID: id}
		byID[id] = p

		return p
	}

	for _, key := range sortedKeys(combined.HeartbeatList) {
		id, err := parseID(key)
		if err != nil {
			w.add("heartbeatList."+key, "%v", err)
			continue
		}

		var list []json.RawMessage
		if err := json.Unmarshal(combined.HeartbeatList[key], &list); err != nil {
			w.add("heartbeatList."+key, "invalid heartbeat list: %v", err)
			continue
		}

		applyLatestHeartbeat(patchFor(id), list, maintenance.Has(id), opts, "heartbeatList."+key, w)
	}

	suffix := "_" + opts.UptimePeriod

	for _, key := range sortedKeys(combined.UptimeList) {
		if !strings.HasSuffix(key, suffix) {
			continue
		}

		id, err := parseID(strings.TrimSuffix(key, suffix))
		if err != nil {
			w.add("uptimeList."+key, "%v", err)
			continue
		}

		var uptime float64
		if err := json.Unmarshal(combined.UptimeList[key], &uptime); err != nil {
			w.add("uptimeList."+key, "invalid uptime: %v", err)
			continue
		}

		applyUptime(patchFor(id), uptime, opts, "uptimeList."+key, w)
	}

	patches := make([]models.Patch, 0, len(byID))
	for _, p := range byID {
		if !p.Empty() {
			patches = append(patches, *p)
		}
	}

	return patches
}

func applyUptime(patch *models.Patch, value float64, opts Options, key string, w *warnings) {
	uptime, err := scaleUptime(value, opts.UptimeMultiplier)
	if err != nil {
		w.add(key, "%v", err)
		return
	}

	patch.Uptime = &uptime
}

// applyLatestHeartbeat sets status, last check and heartbeat of patch from
// the most recent point in list.
func applyLatestHeartbeat(patch *models.Patch, list []json.RawMessage, inMaintenance bool, opts Options, key string, w *warnings) {
	if len(list) == 0 {
		return
	}

	idx := 0
	if !opts.NewestFirst {
		idx = len(list) - 1
	}

	pointKey := fmt.Sprintf("%s[%d]", key, idx)

	heartbeat, err := decodeHeartbeatPoint(list[idx])
	if err != nil {
		w.add(pointKey, "%v", err)
		return
	}

	patch.Heartbeat = heartbeat

	if !heartbeat.Time.IsZero() {
		lastCheck := heartbeat.Time
		patch.LastCheck = &lastCheck
	}

	if inMaintenance {
		return
	}

	status := heartbeat.Status
	patch.Status = &status
}

func decodeHeartbeatPoint(raw json.RawMessage) (*models.Heartbeat, error) {
	var point heartbeatPoint

	if err := json.Unmarshal(raw, &point); err != nil {
		return nil, errors.Wrapf(err, "invalid heartbeat")
	}

	if point.Status == nil {
		return nil, errors.New("heartbeat status missing")
	}

	heartbeat := &models.Heartbeat{
		Status: *point.Status,
		Msg:    point.Msg,
		Ping:   point.Ping,
	}

	t, err := parseTime(point.Time)
	if err != nil {
		return nil, err
	}

	if t != nil {
		heartbeat.Time = *t
	}

	return heartbeat, nil
}
