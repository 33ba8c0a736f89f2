// Package polling implements the acquisition driver that periodically polls
// the public status page and heartbeat endpoints of the server.
package polling

import (
	"context"
	"sync"
	"time"

	"github.com/bonial-oss/kuma-monitor-client/pkg/config"
	"github.com/bonial-oss/kuma-monitor-client/pkg/kuma"
	"github.com/bonial-oss/kuma-monitor-client/pkg/metrics"
	"github.com/bonial-oss/kuma-monitor-client/pkg/normalize"
	"github.com/bonial-oss/kuma-monitor-client/pkg/state"
	"github.com/bonial-oss/kuma-monitor-client/pkg/store"
	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

var log = logf.Log.WithName("polling-driver")

// Driver polls the status page on a fixed interval. Every cycle fully
// replaces the store contents and enriches them with the heartbeat overlay
// in a single store write.
type Driver struct {
	client   kuma.Interface
	writer   *store.Writer
	machine  *state.Machine
	slug     string
	interval time.Duration
	opts     normalize.Options

	mu        sync.Mutex
	scheduler gocron.Scheduler
	cancel    context.CancelFunc
	stopped   bool
}

// New creates a new *Driver which writes through writer. onChange is called
// on every state transition and may be nil.
func New(client kuma.Interface, writer *store.Writer, options *config.Options, onChange func(state.Status)) *Driver {
	return &Driver{
		client:   client,
		writer:   writer,
		machine:  state.New(onChange),
		slug:     options.StatusPageSlug,
		interval: options.PollInterval.Duration(),
		opts:     normalize.OptionsFromSettings(options.Normalization),
	}
}

// Start schedules the first poll immediately and repeats it every interval.
// Cycles never overlap: a cycle that is still running when the next one is
// due delays it.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.scheduler != nil || d.stopped {
		return errors.New("polling driver was already started")
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return errors.Wrapf(err, "failed to create scheduler")
	}

	ctx, cancel := context.WithCancel(ctx)

	_, err = scheduler.NewJob(
		gocron.DurationJob(d.interval),
		gocron.NewTask(func() {
			d.poll(ctx)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		cancel()
		return errors.Wrapf(err, "failed to schedule status page poll")
	}

	d.machine.Transition(state.Connecting, nil)

	log.Info("starting to poll status page", "slug", d.slug, "interval", d.interval)

	d.scheduler = scheduler
	d.cancel = cancel

	scheduler.Start()

	return nil
}

// Stop cancels a running poll and shuts the scheduler down. After Stop
// returns no further poll is started.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.stopped = true

	if d.cancel != nil {
		d.cancel()
	}

	if d.scheduler != nil {
		if err := d.scheduler.Shutdown(); err != nil {
			log.Error(err, "failed to shut down scheduler")
		}
	}

	d.machine.Transition(state.Disconnected, nil)
}

// Status returns the current driver status.
func (d *Driver) Status() state.Status {
	return d.machine.Status()
}

// poll runs one refresh cycle.
func (d *Driver) poll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	if d.machine.Status().State == state.Error {
		d.machine.Transition(state.Connecting, nil)
	}

	payload, err := d.client.StatusPage(ctx, d.slug)
	if err != nil {
		metrics.FetchesTotal.WithLabelValues("status-page", "error").Inc()
		d.fail(errors.Wrapf(err, "failed to fetch status page"))
		return
	}

	metrics.FetchesTotal.WithLabelValues("status-page", "success").Inc()

	snapshot, err := normalize.StatusPage(payload)
	if err != nil {
		d.fail(err)
		return
	}

	recordWarnings(snapshot.Warnings)

	d.machine.Transition(state.Active, nil)

	maintenance := sets.New[int]()
	for _, m := range snapshot.Monitors {
		if m.Maintenance {
			maintenance.Insert(m.ID)
		}
	}

	batch := store.Batch{Replace: true, Monitors: snapshot.Monitors}

	delta, heartbeatErr := d.fetchHeartbeats(ctx, maintenance)
	if heartbeatErr == nil {
		batch.Patches = delta.Patches
	}

	view, ok := d.writer.Apply(batch)
	if !ok {
		log.V(1).Info("discarded poll result of stopped driver", "slug", d.slug)
		return
	}

	log.V(1).Info("refreshed monitors", "slug", d.slug, "page", snapshot.Page.Title, "monitors", view.Len(), "version", view.Version)

	if heartbeatErr != nil {
		log.Error(heartbeatErr, "heartbeat overlay unavailable, keeping monitors without live status", "slug", d.slug)
		d.machine.Transition(state.Active, heartbeatErr)
	}
}

func (d *Driver) fetchHeartbeats(ctx context.Context, maintenance sets.Set[int]) (normalize.Delta, error) {
	payload, err := d.client.Heartbeats(ctx, d.slug)
	if err != nil {
		metrics.FetchesTotal.WithLabelValues("heartbeat", "error").Inc()
		return normalize.Delta{}, errors.Wrapf(err, "failed to fetch heartbeats")
	}

	metrics.FetchesTotal.WithLabelValues("heartbeat", "success").Inc()

	delta, err := normalize.Heartbeats(payload, maintenance, d.opts)
	if err != nil {
		return normalize.Delta{}, err
	}

	recordWarnings(delta.Warnings)

	return delta, nil
}

// fail records err. An active driver moves to error and retries on the next
// tick, otherwise it stays connecting.
func (d *Driver) fail(err error) {
	log.Error(err, "status page poll failed", "slug", d.slug)

	if d.machine.Status().State == state.Active {
		d.machine.Transition(state.Error, err)
		return
	}

	d.machine.Transition(state.Connecting, err)
}

func recordWarnings(warnings []normalize.Warning) {
	for _, w := range warnings {
		log.V(1).Info("ignoring malformed payload entry", "source", w.Source, "key", w.Key, "reason", w.Reason)
		metrics.DecodeWarningsTotal.WithLabelValues(w.Source).Inc()
	}
}
