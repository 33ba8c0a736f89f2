package store

import (
	"github.com/bonial-oss/kuma-monitor-client/pkg/models"
	"github.com/google/uuid"
)

// Writer is a handle for writing to the store on behalf of one driver
// instance. Only the most recently issued writer is active: writes through
// a writer that was superseded by NewWriter or invalidated by Clear are
// discarded.
type Writer struct {
	store *Store
	token string
}

// NewWriter issues a new writer and makes it the only active one.
func (s *Store) NewWriter() *Writer {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = uuid.NewString()

	return &Writer{store: s, token: s.token}
}

// ID returns the instance identity of the writer.
func (w *Writer) ID() string {
	return w.token
}

// Active returns true if writes through w are still accepted.
func (w *Writer) Active() bool {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()

	return w.store.token == w.token
}

// ReplaceAll is like Store.ReplaceAll. The second return value is false if
// the writer is stale.
func (w *Writer) ReplaceAll(monitors []models.Monitor) (View, bool) {
	return w.Apply(Batch{Replace: true, Monitors: monitors})
}

// ApplyPartial is like Store.ApplyPartial but returns false without touching
// the store if the writer is stale.
func (w *Writer) ApplyPartial(id int, patch models.Patch) bool {
	patch.ID = id

	_, changed := w.Apply(Batch{Patches: []models.Patch{patch}})

	return changed
}

// Apply is like Store.Apply but discards the batch if the writer is stale.
func (w *Writer) Apply(batch Batch) (View, bool) {
	s := w.store

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != w.token {
		log.V(1).Info("discarding write of inactive writer", "writer", w.token)
		return *s.current.Load(), false
	}

	return s.applyLocked(batch)
}
