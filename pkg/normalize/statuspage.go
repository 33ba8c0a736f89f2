package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/bonial-oss/kuma-monitor-client/pkg/models"
	"github.com/pkg/errors"
)

type statusPagePayload struct {
	Config struct {
		Slug  string `json:"slug"`
		Title string `json:"title"`
	} `json:"config"`
	PublicGroupList []json.RawMessage `json:"publicGroupList"`
}

type publicGroup struct {
	ID          int               `json:"id"`
	Name        string            `json:"name"`
	Weight      int               `json:"weight"`
	MonitorList []json.RawMessage `json:"monitorList"`
}

type monitorStub struct {
	ID          *int    `json:"id"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Type        string  `json:"type"`
	URL         *string `json:"url"`
	Maintenance *bool   `json:"maintenance"`
}

// StatusPage normalizes a status page payload. The resulting monitors carry
// no live data: their status is maintenance if the stub is in maintenance,
// unknown otherwise, and uptime is zero. Live fields are supplied by the
// heartbeat overlay.
func StatusPage(payload []byte) (Snapshot, error) {
	var page statusPagePayload

	if err := json.Unmarshal(payload, &page); err != nil {
		return Snapshot{}, errors.Wrapf(err, "failed to decode status page")
	}

	if page.PublicGroupList == nil {
		return Snapshot{}, errors.New("status page has no publicGroupList")
	}

	w := &warnings{source: "status-page"}
	seen := make(map[int]struct{})
	snapshot := Snapshot{
		Page: Page{Slug: page.Config.Slug, Title: page.Config.Title},
	}

	for i, rawGroup := range page.PublicGroupList {
		groupKey := fmt.Sprintf("publicGroupList[%d]", i)

		var group publicGroup
		if err := json.Unmarshal(rawGroup, &group); err != nil {
			w.add(groupKey, "invalid group: %v", err)
			continue
		}

		for j, rawStub := range group.MonitorList {
			key := fmt.Sprintf("%s.monitorList[%d]", groupKey, j)

			monitor, err := monitorFromStub(rawStub)
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
	}

	snapshot.Warnings = w.list

	return snapshot, nil
}

func monitorFromStub(raw json.RawMessage) (models.Monitor, error) {
	var stub monitorStub

	if err := json.Unmarshal(raw, &stub); err != nil {
		return models.Monitor{}, errors.Wrapf(err, "invalid monitor")
	}

	if stub.ID == nil {
		return models.Monitor{}, errors.New("monitor id missing")
	}

	if *stub.ID <= 0 {
		return models.Monitor{}, errors.Errorf("invalid monitor id %d", *stub.ID)
	}

	if stub.Name == nil || *stub.Name == "" {
		return models.Monitor{}, errors.Errorf("monitor %d has no name", *stub.ID)
	}

	monitor := models.Monitor{
		ID:          *stub.ID,
		Name:        *stub.Name,
		Description: stub.Description,
		Type:        stub.Type,
		URL:         stub.URL,
		Status:      models.StatusUnknown,
	}

	if stub.Maintenance != nil && *stub.Maintenance {
		monitor.Maintenance = true
		monitor.Status = models.StatusMaintenance
	}

	return monitor, nil
}
