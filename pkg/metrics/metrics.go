package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/bonial-oss/kuma-monitor-client/pkg/models"
	"github.com/bonial-oss/kuma-monitor-client/pkg/state"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

var log = logf.Log.WithName("metrics")

var (
	// FetchesTotal counts status page API requests.
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kuma_client_fetches_total",
			Help: "Total number of status page API requests",
		},
		[]string{"endpoint", "result"}, // result: success, error
	)

	// SocketEventsTotal counts received socket.io events.
	SocketEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kuma_client_socket_events_total",
			Help: "Total number of received socket.io events",
		},
		[]string{"event"},
	)

	// DecodeWarningsTotal counts payload entries that were dropped or
	// partially ignored during normalization.
	DecodeWarningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kuma_client_decode_warnings_total",
			Help: "Total number of dropped or partially ignored payload entries",
		},
		[]string{"source"},
	)

	// TransitionsTotal counts up/down transitions of monitors.
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kuma_client_transitions_total",
			Help: "Total number of monitor up/down transitions",
		},
		[]string{"direction"}, // direction: up, down
	)

	// NotificationErrorsTotal counts failed alert deliveries.
	NotificationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kuma_client_notification_errors_total",
			Help: "Total number of failed alert deliveries",
		},
		[]string{"sink"},
	)

	// Monitors is the number of monitors per effective status.
	Monitors = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kuma_client_monitors",
			Help: "Number of tracked monitors by effective status",
		},
		[]string{"status"},
	)

	// DriverState is 1 for the current state of the acquisition driver
	// and 0 for all other states.
	DriverState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kuma_client_driver_state",
			Help: "Current state of the acquisition driver",
		},
		[]string{"mode", "state"},
	)
)

var statuses = []models.Status{
	models.StatusUp,
	models.StatusDown,
	models.StatusMaintenance,
	models.StatusUnknown,
}

// ObserveMonitors updates the Monitors gauge from a view.
func ObserveMonitors(monitors []models.Monitor) {
	counts := make(map[models.Status]int, len(statuses))
	for _, m := range monitors {
		counts[m.EffectiveStatus()]++
	}

	for _, status := range statuses {
		Monitors.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

// ObserveDriverState sets the DriverState gauge for mode to current.
func ObserveDriverState(mode string, current state.State) {
	for _, s := range state.All {
		value := 0.0
		if s == current {
			value = 1
		}

		DriverState.WithLabelValues(mode, string(s)).Set(value)
	}
}

// Serve serves the prometheus metrics endpoint on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(err, "failed to shut down metrics server")
		}
	}()

	log.Info("serving metrics", "addr", addr)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrapf(err, "metrics server failed")
	}

	return nil
}
