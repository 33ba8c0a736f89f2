// Package notifier detects up/down transitions in consecutive monitor views
// and delivers them to alert sinks.
package notifier

import (
	"fmt"
	"sync"
	"time"

	"github.com/bonial-oss/kuma-monitor-client/pkg/models"
)

// Transition is a change of the healthy state of a single monitor.
type Transition struct {
	ID     int
	Name   string
	WentUp bool
	At     time.Time
}

// Message returns the human readable alert text.
func (t Transition) Message() string {
	if t.WentUp {
		return fmt.Sprintf("%s: Service is UP", t.Name)
	}

	return fmt.Sprintf("%s: Service is DOWN", t.Name)
}

// Notifier remembers the last seen healthy state of every monitor that had
// a definitive status.
type Notifier struct {
	mu      sync.Mutex
	healthy map[int]bool
	now     func() time.Time
}

// New creates a new *Notifier with empty memory.
func New() *Notifier {
	return &Notifier{
		healthy: make(map[int]bool),
		now:     time.Now,
	}
}

// Observe compares monitors against the remembered state and returns the
// transitions in the order of monitors. The first sighting of a monitor
// never yields a transition. Monitors in maintenance or with unknown status
// are skipped and their remembered state is kept. Monitors missing from the
// view are not forgotten.
func (n *Notifier) Observe(monitors []models.Monitor) []Transition {
	n.mu.Lock()
	defer n.mu.Unlock()

	var transitions []Transition

	at := n.now()

	for _, m := range monitors {
		var healthy bool

		switch m.EffectiveStatus() {
		case models.StatusUp:
			healthy = true
		case models.StatusDown:
			healthy = false
		default:
			continue
		}

		previous, seen := n.healthy[m.ID]
		n.healthy[m.ID] = healthy

		if !seen || previous == healthy {
			continue
		}

		transitions = append(transitions, Transition{
			ID:     m.ID,
			Name:   m.Name,
			WentUp: healthy,
			At:     at,
		})
	}

	return transitions
}

// Reset forgets all remembered states.
func (n *Notifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.healthy = make(map[int]bool)
}
