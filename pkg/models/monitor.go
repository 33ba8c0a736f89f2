package models

import (
	"errors"
	"time"
)

// ErrMonitorNotFound is returned on lookups of monitor IDs that are not
// present in the current view.
var ErrMonitorNotFound = errors.New("monitor not found")

// Monitor is the canonical record of one monitored service and its current
// status.
type Monitor struct {
	// ID is the server side ID of the monitor. It never changes once a
	// record exists.
	ID int `json:"id"`

	// Name is the display name of the monitor.
	Name string `json:"name"`

	// Description is the optional free text description.
	Description *string `json:"description,omitempty"`

	// Type is the probe type, e.g. http, port, dns or keyword.
	Type string `json:"type"`

	// URL is the url that the monitor supervises, if any.
	URL *string `json:"url,omitempty"`

	// Method, Body and Headers are only meaningful for http-type probes.
	Method  *string `json:"method,omitempty"`
	Body    *string `json:"body,omitempty"`
	Headers *string `json:"headers,omitempty"`

	// Uptime is the uptime ratio as a percentage in the range 0-100.
	Uptime float64 `json:"uptime"`

	// Status is the raw status as reported by the server. Use
	// EffectiveStatus for display purposes.
	Status Status `json:"status"`

	// Maintenance is set if an operator put the monitor into maintenance
	// mode. It overrides Status.
	Maintenance bool `json:"maintenance"`

	// LastCheck is the time of the most recent heartbeat.
	LastCheck *time.Time `json:"lastCheck,omitempty"`

	// CertExpiryDays is the number of days until the TLS certificate of the
	// monitored endpoint expires.
	CertExpiryDays *int `json:"certExpiryDays,omitempty"`

	// LastHeartbeat is the most recent heartbeat. No older heartbeats are
	// retained.
	LastHeartbeat *Heartbeat `json:"lastHeartbeat,omitempty"`
}

// EffectiveStatus returns the status that should be displayed and used for
// alerting. Maintenance always wins over the raw status.
func (m Monitor) EffectiveStatus() Status {
	if m.Maintenance {
		return StatusMaintenance
	}

	return m.Status
}

// IsHealthy returns true if the effective status is up.
func (m Monitor) IsHealthy() bool {
	return m.EffectiveStatus() == StatusUp
}

// Heartbeat is a single timestamped health check result.
type Heartbeat struct {
	Status Status    `json:"status"`
	Time   time.Time `json:"time"`
	Ping   *float64  `json:"ping,omitempty"`
	Msg    string    `json:"msg,omitempty"`
}

// Patch is a partial update for the monitor with the given ID. Nil fields
// are not part of the update.
type Patch struct {
	ID int

	Name           *string
	Description    *string
	Type           *string
	URL            *string
	Method         *string
	Body           *string
	Headers        *string
	Uptime         *float64
	Status         *Status
	Maintenance    *bool
	LastCheck      *time.Time
	CertExpiryDays *int
	Heartbeat      *Heartbeat
}

// Empty returns true if the patch does not touch any field.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Type == nil &&
		p.URL == nil && p.Method == nil && p.Body == nil && p.Headers == nil &&
		p.Uptime == nil && p.Status == nil && p.Maintenance == nil &&
		p.LastCheck == nil && p.CertExpiryDays == nil && p.Heartbeat == nil
}
