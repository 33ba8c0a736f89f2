package config

import (
	"net/url"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const (
	// ModeStatusPage polls the public status page and heartbeat endpoints.
	ModeStatusPage = "status-page"

	// ModeSocket logs in via the authenticated socket.io connection and
	// receives incremental updates.
	ModeSocket = "socket"

	// ModeNull does nothing but log driver lifecycle events. This is
	// intended for testing purposes only.
	ModeNull = "null"
)

const (
	HeartbeatOrderNewestFirst = "newest-first"
	HeartbeatOrderOldestFirst = "oldest-first"

	UptimeScaleFraction = "fraction"
	UptimeScalePercent  = "percent"
)

// MinPollInterval is the lower bound for the status page poll interval.
const MinPollInterval = 5 * time.Second

// Options holds the runtime configuration of a monitoring session.
type Options struct {
	Settings

	// SettingsFile is the path of the YAML settings file. Values found in
	// the file override defaults but not explicitly set flags.
	SettingsFile string

	// MetricsAddr is the listen address of the prometheus metrics endpoint.
	// Metrics are not served if empty.
	MetricsAddr string
}

// NewDefaultOptions creates a new *Options value with defaults applied.
func NewDefaultOptions() *Options {
	return &Options{
		Settings: Settings{
			Mode:            ModeStatusPage,
			Password:        os.Getenv("KUMA_PASSWORD"),
			PollInterval:    Duration(60 * time.Second),
			RequestTimeout:  Duration(10 * time.Second),
			LoginGraceDelay: Duration(1 * time.Second),
			LoginTimeout:    Duration(10 * time.Second),
			Reconnect: ReconnectSettings{
				InitialDelay: Duration(1 * time.Second),
				MaxDelay:     Duration(30 * time.Second),
				Factor:       2,
				Attempts:     10,
			},
			Normalization: NormalizationSettings{
				HeartbeatOrder: HeartbeatOrderNewestFirst,
				UptimeScale:    UptimeScaleFraction,
				UptimePeriod:   "24",
			},
			Notifications: NotificationSettings{
				SlackWebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
				SendGridAPIKey:  os.Getenv("SENDGRID_API_KEY"),
				AlertEmail:      os.Getenv("ALERT_EMAIL"),
			},
		},
	}
}

// AddFlags adds cli flags for configurable options to the command.
func (o *Options) AddFlags(cmd *cobra.Command) {
	flags := cmd.Flags()

	flags.StringVar(&o.SettingsFile, "settings-file", o.SettingsFile, "Location of the settings file.")
	flags.StringVar(&o.MetricsAddr, "metrics-addr", o.MetricsAddr, "Listen address for the prometheus metrics endpoint. Disabled if empty.")
	flags.StringVar(&o.Mode, "mode", o.Mode, `Acquisition mode, one of "status-page", "socket" or "null".`)
	flags.StringVar(&o.ServerURL, "server-url", o.ServerURL, "Base URL of the Uptime Kuma server.")
	flags.StringVar(&o.StatusPageSlug, "slug", o.StatusPageSlug, "Slug of the status page to poll in status-page mode.")
	flags.StringVar(&o.Username, "username", o.Username, "Username for socket mode.")
	flags.StringVar(&o.Password, "password", o.Password, "Password for socket mode. Defaults to $KUMA_PASSWORD.")
	flags.StringVar(&o.CacheFile, "cache-file", o.CacheFile, "SQLite file for caching the last known monitor view. Disabled if empty.")
	flags.Var(&o.PollInterval, "poll-interval", "Interval between status page refreshes.")
	flags.Var(&o.RequestTimeout, "request-timeout", "Timeout for HTTP requests against the server.")
	flags.Var(&o.LoginGraceDelay, "login-grace-delay", "Delay between sending credentials and requesting the monitor list.")
	flags.Var(&o.LoginTimeout, "login-timeout", "Time to wait for the first monitor list after connecting.")
	flags.Var(&o.Reconnect.InitialDelay, "reconnect-initial-delay", "Initial delay between socket reconnection attempts.")
	flags.Var(&o.Reconnect.MaxDelay, "reconnect-max-delay", "Maximum delay between socket reconnection attempts.")
	flags.Float64Var(&o.Reconnect.Factor, "reconnect-factor", o.Reconnect.Factor, "Backoff factor for socket reconnection attempts.")
	flags.IntVar(&o.Reconnect.Attempts, "reconnect-attempts", o.Reconnect.Attempts, "Number of socket reconnection attempts before giving up.")
	flags.StringVar(&o.Normalization.HeartbeatOrder, "heartbeat-order", o.Normalization.HeartbeatOrder, `Order of heartbeat lists, "newest-first" or "oldest-first".`)
	flags.StringVar(&o.Normalization.UptimeScale, "uptime-scale", o.Normalization.UptimeScale, `Scale of uptime values sent by the server, "fraction" or "percent".`)
	flags.StringVar(&o.Normalization.UptimePeriod, "uptime-period", o.Normalization.UptimePeriod, "Uptime period in hours to track.")
	flags.StringVar(&o.Notifications.SlackWebhookURL, "slack-webhook-url", o.Notifications.SlackWebhookURL, "Slack webhook for up/down alerts. Defaults to $SLACK_WEBHOOK_URL.")
	flags.StringVar(&o.Notifications.AlertEmail, "alert-email", o.Notifications.AlertEmail, "Recipient of up/down alert emails. Defaults to $ALERT_EMAIL.")
}

// Validate validates options.
func (o *Options) Validate() error {
	switch o.Mode {
	case ModeStatusPage, ModeSocket:
		if err := validateServerURL(o.ServerURL); err != nil {
			return err
		}
	case ModeNull:
	default:
		return errors.Errorf("unsupported mode %q", o.Mode)
	}

	if o.Mode == ModeStatusPage && o.StatusPageSlug == "" {
		return errors.New("--slug is required in status-page mode")
	}

	if o.PollInterval.Duration() < MinPollInterval {
		return errors.Errorf("--poll-interval must be at least %s", MinPollInterval)
	}

	if o.RequestTimeout <= 0 {
		return errors.New("--request-timeout must be positive")
	}

	if o.LoginTimeout < o.LoginGraceDelay {
		return errors.New("--login-timeout must not be shorter than --login-grace-delay")
	}

	if o.Reconnect.Attempts < 0 {
		return errors.New("--reconnect-attempts must not be negative")
	}

	if o.Reconnect.Factor < 1 {
		return errors.New("--reconnect-factor must be at least 1")
	}

	switch o.Normalization.HeartbeatOrder {
	case HeartbeatOrderNewestFirst, HeartbeatOrderOldestFirst:
	default:
		return errors.Errorf("unsupported heartbeat order %q", o.Normalization.HeartbeatOrder)
	}

	switch o.Normalization.UptimeScale {
	case UptimeScaleFraction, UptimeScalePercent:
	default:
		return errors.Errorf("unsupported uptime scale %q", o.Normalization.UptimeScale)
	}

	return nil
}

func validateServerURL(serverURL string) error {
	if serverURL == "" {
		return errors.New("--server-url is required")
	}

	u, err := url.Parse(serverURL)
	if err != nil {
		return errors.Wrapf(err, "invalid server url %q", serverURL)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("server url %q must use http or https", serverURL)
	}

	if u.Host == "" {
		return errors.Errorf("server url %q has no host", serverURL)
	}

	return nil
}
