package notifier

import (
	"context"

	"github.com/bonial-oss/kuma-monitor-client/pkg/config"
	"github.com/bonial-oss/kuma-monitor-client/pkg/metrics"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

var log = logf.Log.WithName("notifier")

// Sink delivers transitions to the user.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// Notify delivers a single transition. Must return an error if the
	// delivery failed.
	Notify(ctx context.Context, t Transition) error
}

// LogSink logs transitions.
type LogSink struct{}

// Name implements Sink.
func (LogSink) Name() string {
	return "log"
}

// Notify implements Sink.
func (LogSink) Notify(_ context.Context, t Transition) error {
	log.Info(t.Message(), "id", t.ID, "at", t.At)

	return nil
}

// Multi fans a transition out to all of its sinks. Failing sinks are logged
// and do not keep the others from being notified.
type Multi []Sink

// Name implements Sink.
func (m Multi) Name() string {
	return "multi"
}

// Notify implements Sink. It always returns nil.
func (m Multi) Notify(ctx context.Context, t Transition) error {
	for _, sink := range m {
		if err := sink.Notify(ctx, t); err != nil {
			log.Error(err, "failed to deliver notification", "sink", sink.Name(), "id", t.ID)
			metrics.NotificationErrorsTotal.WithLabelValues(sink.Name()).Inc()
		}
	}

	return nil
}

// NewSinks creates the sinks configured in settings. Transitions are always
// logged.
func NewSinks(settings config.NotificationSettings) Multi {
	sinks := Multi{LogSink{}}

	if settings.SlackWebhookURL != "" {
		sinks = append(sinks, NewSlackSink(settings.SlackWebhookURL))
	}

	if settings.SendGridAPIKey != "" && settings.AlertEmail != "" {
		sinks = append(sinks, NewSendGridSink(settings.SendGridAPIKey, settings.AlertEmail))
	}

	return sinks
}
