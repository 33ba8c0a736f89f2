package models

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Status is the status of a monitor.
type Status string

const (
	StatusUp          Status = "up"
	StatusDown        Status = "down"
	StatusMaintenance Status = "maintenance"
	StatusUnknown     Status = "unknown"
)

// Uptime Kuma heartbeat status codes.
const (
	codeDown        = 0
	codeUp          = 1
	codePending     = 2
	codeMaintenance = 3
)

// ParseStatus parses a status string. Pending monitors are reported as
// unknown since they are neither confirmed up nor down.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up":
		return StatusUp, nil
	case "down":
		return StatusDown, nil
	case "maintenance":
		return StatusMaintenance, nil
	case "unknown", "pending", "":
		return StatusUnknown, nil
	default:
		return StatusUnknown, errors.Errorf("invalid status %q", s)
	}
}

// StatusFromCode converts an Uptime Kuma heartbeat status code.
func StatusFromCode(code int) (Status, error) {
	switch code {
	case codeDown:
		return StatusDown, nil
	case codeUp:
		return StatusUp, nil
	case codePending:
		return StatusUnknown, nil
	case codeMaintenance:
		return StatusMaintenance, nil
	default:
		return StatusUnknown, errors.Errorf("invalid status code %d", code)
	}
}

// UnmarshalJSON accepts both status strings and numeric heartbeat codes.
func (s *Status) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	var code int
	if err := json.Unmarshal(data, &code); err == nil {
		status, err := StatusFromCode(code)
		if err != nil {
			return err
		}

		*s = status
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.Errorf("status must be a string or status code, got %s", string(data))
	}

	// Some server versions send the numeric code as a string.
	if code, err := strconv.Atoi(str); err == nil {
		status, err := StatusFromCode(code)
		if err != nil {
			return err
		}

		*s = status
		return nil
	}

	status, err := ParseStatus(str)
	if err != nil {
		return err
	}

	*s = status
	return nil
}
