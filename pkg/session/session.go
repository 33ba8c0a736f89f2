// Package session wires the store, the acquisition driver and the change
// notifier together. Exactly one driver is active per session.
package session

import (
	"context"
	"sync"

	"github.com/bonial-oss/kuma-monitor-client/pkg/cache"
	"github.com/bonial-oss/kuma-monitor-client/pkg/config"
	"github.com/bonial-oss/kuma-monitor-client/pkg/driver"
	"github.com/bonial-oss/kuma-monitor-client/pkg/metrics"
	"github.com/bonial-oss/kuma-monitor-client/pkg/models"
	"github.com/bonial-oss/kuma-monitor-client/pkg/notifier"
	"github.com/bonial-oss/kuma-monitor-client/pkg/state"
	"github.com/bonial-oss/kuma-monitor-client/pkg/store"
	"github.com/pkg/errors"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

var log = logf.Log.WithName("session")

// Session defines the interface for a monitor tracking session.
type Session interface {
	// Start seeds the store from the cache, starts the driver for the
	// configured mode and starts delivering views to the notifier. Must
	// return an error if the driver cannot be started.
	Start(ctx context.Context) error

	// SwitchMode stops the current driver, clears the store and starts a
	// driver for mode. No write of the previous driver is visible after
	// SwitchMode returns.
	SwitchMode(ctx context.Context, mode string) error

	// Stop stops the driver, clears the store and closes the cache. Calling
	// Stop multiple times is safe.
	Stop()

	// View returns the current sorted monitor view.
	View() store.View

	// Status returns the state of the active driver.
	Status() Status

	// Subscribe delivers every new view on the returned channel until the
	// returned func is called.
	Subscribe() (<-chan store.View, func())
}

// Status is the status of the active driver together with its mode.
type Status struct {
	state.Status

	Mode string
}

// Cache persists the last known monitors.
type Cache interface {
	Load() ([]models.Monitor, error)
	Save(monitors []models.Monitor) error
	Close() error
}

type session struct {
	options   *config.Options
	store     *store.Store
	notifier  *notifier.Notifier
	sink      notifier.Sink
	cache     Cache
	newDriver driver.Factory

	mu     sync.Mutex
	mode   string
	driver driver.Interface
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession creates a new Session with options. Returns an error if the
// cache cannot be opened.
func NewSession(options *config.Options) (Session, error) {
	s := &session{
		options:   options,
		store:     store.New(),
		notifier:  notifier.New(),
		sink:      notifier.NewSinks(options.Notifications),
		newDriver: driver.New,
		mode:      options.Mode,
	}

	if options.CacheFile != "" {
		c, err := cache.Open(options.CacheFile)
		if err != nil {
			return nil, err
		}

		s.cache = c
	}

	return s, nil
}

// Start implements Session.
func (s *session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return errors.New("session was already started")
	}

	s.store.Clear()
	s.seed()

	views, unsubscribe := s.store.Subscribe()

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.deliver(loopCtx, views, unsubscribe)

	if err := s.startDriverLocked(ctx, s.mode); err != nil {
		s.stopLocked()
		return err
	}

	return nil
}

// SwitchMode implements Session.
func (s *session) SwitchMode(ctx context.Context, mode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done == nil {
		return errors.New("session is not running")
	}

	log.Info("switching mode", "from", s.mode, "to", mode)

	s.stopDriverLocked()
	s.store.Clear()

	s.mode = mode

	return s.startDriverLocked(ctx, mode)
}

// Stop implements Session.
func (s *session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
}

// View implements Session.
func (s *session) View() store.View {
	return s.store.CurrentView()
}

// Status implements Session.
func (s *session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{Mode: s.mode}
	if s.driver != nil {
		status.Status = s.driver.Status()
	}

	return status
}

// Subscribe implements Session.
func (s *session) Subscribe() (<-chan store.View, func()) {
	return s.store.Subscribe()
}

func (s *session) seed() {
	if s.cache == nil {
		return
	}

	monitors, err := s.cache.Load()
	if err != nil {
		log.Error(err, "failed to load cached monitors")
		return
	}

	if len(monitors) == 0 {
		return
	}

	view := s.store.ReplaceAll(monitors)

	log.Info("loaded cached monitors", "monitors", view.Len())
}

func (s *session) startDriverLocked(ctx context.Context, mode string) error {
	d, err := s.newDriver(mode, s.options, s.store.NewWriter(), func(status state.Status) {
		onStateChange(mode, status)
	})
	if err != nil {
		return errors.Wrapf(err, "failed to create %s driver", mode)
	}

	if err := d.Start(ctx); err != nil {
		return errors.Wrapf(err, "failed to start %s driver", mode)
	}

	s.driver = d

	return nil
}

func (s *session) stopDriverLocked() {
	if s.driver == nil {
		return
	}

	s.driver.Stop()
	s.driver = nil
}

func (s *session) stopLocked() {
	if s.done == nil {
		return
	}

	s.stopDriverLocked()

	// The delivery loop is stopped first so that the cleared store does
	// not end up in the cache.
	s.cancel()
	<-s.done

	s.done = nil
	s.store.Clear()

	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			log.Error(err, "failed to close cache")
		}

		s.cache = nil
	}
}

// deliver feeds every published view to the notifier, the cache and the
// metrics until ctx is done.
func (s *session) deliver(ctx context.Context, views <-chan store.View, unsubscribe func()) {
	defer close(s.done)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case view, ok := <-views:
			if !ok {
				return
			}

			s.observe(ctx, view)
		}
	}
}

func (s *session) observe(ctx context.Context, view store.View) {
	metrics.ObserveMonitors(view.Monitors)

	for _, t := range s.notifier.Observe(view.Monitors) {
		direction := "down"
		if t.WentUp {
			direction = "up"
		}

		metrics.TransitionsTotal.WithLabelValues(direction).Inc()

		if err := s.sink.Notify(ctx, t); err != nil {
			log.Error(err, "failed to deliver notification", "id", t.ID)
		}
	}

	// Empty views are not cached so that a cleared store does not wipe
	// the last known monitors.
	if s.cache == nil || view.Len() == 0 {
		return
	}

	if err := s.cache.Save(view.Monitors); err != nil {
		log.Error(err, "failed to cache monitors")
	}
}

func onStateChange(mode string, status state.Status) {
	metrics.ObserveDriverState(mode, status.State)

	if status.Err != "" {
		log.Info("driver state changed", "mode", mode, "state", status.State, "error", status.Err)
		return
	}

	log.Info("driver state changed", "mode", mode, "state", status.State)
}
