// Package store holds the authoritative, name-sorted collection of monitor
// records for one session.
//
// Writes are serialized by a mutex. Every write publishes a new immutable
// View through an atomic pointer so that readers never observe a partially
// applied write and never block writers.
package store

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bonial-oss/kuma-monitor-client/pkg/models"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

var log = logf.Log.WithName("store")

// View is an immutable snapshot of the store contents. Monitors are sorted by
// name, ties are broken by id. Callers must not modify the monitors.
type View struct {
	Monitors  []models.Monitor
	Version   uint64
	UpdatedAt time.Time
}

// Len returns the number of monitors in the view.
func (v View) Len() int {
	return len(v.Monitors)
}

// Get looks up a monitor by id.
func (v View) Get(id int) (models.Monitor, bool) {
	for _, m := range v.Monitors {
		if m.ID == id {
			return m, true
		}
	}

	return models.Monitor{}, false
}

// Batch is a single atomic write. If Replace is true, the store contents are
// replaced by Monitors before Patches are applied. Subscribers observe the
// whole batch as one change.
type Batch struct {
	Replace  bool
	Monitors []models.Monitor
	Patches  []models.Patch
}

// Store is the reconciliation store. The zero value is not usable, use New.
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[View]

	// token identifies the only writer whose writes are accepted. An empty
	// token invalidates all writers.
	token string

	subscribers map[int]chan View
	nextSubID   int

	now func() time.Time
}

// New creates an empty *Store.
func New() *Store {
	s := &Store{
		subscribers: make(map[int]chan View),
		now:         time.Now,
	}

	s.current.Store(&View{})

	return s
}

// CurrentView returns the most recently published view. It never blocks.
func (s *Store) CurrentView() View {
	return *s.current.Load()
}

// Get returns the monitor with id. Returns models.ErrMonitorNotFound if the
// store does not contain it.
func (s *Store) Get(id int) (models.Monitor, error) {
	m, ok := s.CurrentView().Get(id)
	if !ok {
		return models.Monitor{}, models.ErrMonitorNotFound
	}

	return m, nil
}

// ReplaceAll swaps the entire collection and returns the new view. Records
// with invalid ids, empty names or duplicate ids are skipped.
func (s *Store) ReplaceAll(monitors []models.Monitor) View {
	view, _ := s.Apply(Batch{Replace: true, Monitors: monitors})
	return view
}

// ApplyPartial merges patch into the record with id. Returns false if the id
// is unknown, in which case the store is left untouched.
func (s *Store) ApplyPartial(id int, patch models.Patch) bool {
	patch.ID = id

	_, changed := s.Apply(Batch{Patches: []models.Patch{patch}})

	return changed
}

// Apply performs batch as one write and publishes a single view. The second
// return value is false if the batch did not modify the store.
func (s *Store) Apply(batch Batch) (View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.applyLocked(batch)
}

// Clear empties the store and invalidates all writers.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""

	prev := s.current.Load()
	if len(prev.Monitors) == 0 {
		return
	}

	s.publishLocked(nil, prev.Version)
}

// Subscribe registers a subscriber that receives views after each change.
// The channel buffers only the latest unseen view: pending older views are
// replaced, so slow subscribers never block writers. The returned func
// cancels the subscription and closes the channel.
func (s *Store) Subscribe() (<-chan View, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++

	ch := make(chan View, 1)
	s.subscribers[id] = ch

	var once sync.Once

	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()

			delete(s.subscribers, id)
			close(ch)
		})
	}

	return ch, cancel
}

func (s *Store) applyLocked(batch Batch) (View, bool) {
	prev := s.current.Load()

	var monitors []models.Monitor
	changed := false

	if batch.Replace {
		monitors = validRecords(batch.Monitors)
		changed = true
	} else {
		monitors = make([]models.Monitor, len(prev.Monitors))
		copy(monitors, prev.Monitors)
	}

	index := make(map[int]int, len(monitors))
	for i, m := range monitors {
		index[m.ID] = i
	}

	for _, patch := range batch.Patches {
		i, found := index[patch.ID]
		if !found {
			log.V(2).Info("ignoring patch for unknown monitor", "id", patch.ID)
			continue
		}

		merge(&monitors[i], patch)
		changed = true
	}

	if !changed {
		return *prev, false
	}

	return s.publishLocked(monitors, prev.Version), true
}

func (s *Store) publishLocked(monitors []models.Monitor, prevVersion uint64) View {
	sortMonitors(monitors)

	view := &View{
		Monitors:  monitors,
		Version:   prevVersion + 1,
		UpdatedAt: s.now(),
	}

	s.current.Store(view)

	for _, ch := range s.subscribers {
		// Drop the pending view, if any, in favor of the new one. Only
		// publishers send and they hold the lock, so the send cannot block.
		select {
		case <-ch:
		default:
		}

		select {
		case ch <- *view:
		default:
		}
	}

	return *view
}

// validRecords returns a copy of monitors without records that have an
// invalid id or name. Of duplicate ids the first record wins.
func validRecords(monitors []models.Monitor) []models.Monitor {
	seen := make(map[int]struct{}, len(monitors))
	result := make([]models.Monitor, 0, len(monitors))

	for _, m := range monitors {
		switch {
		case m.ID <= 0:
			log.Info("skipping monitor with invalid id", "id", m.ID, "name", m.Name)
			continue
		case m.Name == "":
			log.Info("skipping monitor without name", "id", m.ID)
			continue
		}

		if _, found := seen[m.ID]; found {
			log.Info("skipping duplicate monitor", "id", m.ID, "name", m.Name)
			continue
		}

		seen[m.ID] = struct{}{}

		if m.Status == "" {
			m.Status = models.StatusUnknown
		}

		result = append(result, m)
	}

	return result
}

func sortMonitors(monitors []models.Monitor) {
	sort.SliceStable(monitors, func(i, j int) bool {
		if monitors[i].Name != monitors[j].Name {
			return monitors[i].Name < monitors[j].Name
		}

		return monitors[i].ID < monitors[j].ID
	})
}
