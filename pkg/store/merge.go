package store

import (
	"github.com/bonial-oss/kuma-monitor-client/pkg/models"
)

// merge applies all non-nil fields of patch to m. The maintenance flag is
// applied before the status: while the resulting flag is set, status changes
// away from maintenance are ignored.
func merge(m *models.Monitor, patch models.Patch) {
	if patch.Name != nil && *patch.Name != "" {
		m.Name = *patch.Name
	}

	if patch.Type != nil {
		m.Type = *patch.Type
	}

	setIfPresent(&m.Description, patch.Description)
	setIfPresent(&m.URL, patch.URL)
	setIfPresent(&m.Method, patch.Method)
	setIfPresent(&m.Body, patch.Body)
	setIfPresent(&m.Headers, patch.Headers)
	setIfPresent(&m.LastCheck, patch.LastCheck)
	setIfPresent(&m.CertExpiryDays, patch.CertExpiryDays)
	setIfPresent(&m.LastHeartbeat, patch.Heartbeat)

	if patch.Uptime != nil {
		m.Uptime = *patch.Uptime
	}

	if patch.Maintenance != nil {
		wasInMaintenance := m.Maintenance
		m.Maintenance = *patch.Maintenance

		// Leaving maintenance without a new status: the raw status is not
		// known until the next heartbeat.
		if wasInMaintenance && !m.Maintenance && patch.Status == nil && m.Status == models.StatusMaintenance {
			m.Status = models.StatusUnknown
		}
	}

	if patch.Status != nil {
		if m.Maintenance && *patch.Status != models.StatusMaintenance {
			log.V(2).Info("ignoring status change of monitor in maintenance", "id", m.ID, "status", *patch.Status)
		} else {
			m.Status = *patch.Status
		}
	}
}

// setIfPresent replaces *dst with a copy of src if src is non-nil. Copying
// keeps published views independent of the caller's patch.
func setIfPresent[T any](dst **T, src *T) {
	if src == nil {
		return
	}

	v := *src
	*dst = &v
}
