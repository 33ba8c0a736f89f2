package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"k8s.io/apimachinery/pkg/util/wait"
	"sigs.k8s.io/yaml"
)

// Settings is the part of the configuration that is persisted in the
// settings file.
type Settings struct {
	// ServerURL is the base URL of the Uptime Kuma server.
	ServerURL string `json:"serverURL,omitempty"`

	// Mode is the acquisition mode. See the Mode* constants.
	Mode string `json:"mode,omitempty"`

	// StatusPageSlug is the slug of the public status page used in
	// status-page mode.
	StatusPageSlug string `json:"statusPageSlug,omitempty"`

	// Username and Password are the credentials used in socket mode. They
	// are passed through to the server as is.
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// PollInterval is the interval between two status page refreshes.
	PollInterval Duration `json:"pollInterval,omitempty"`

	// RequestTimeout bounds every HTTP request against the server.
	RequestTimeout Duration `json:"requestTimeout,omitempty"`

	// LoginGraceDelay is the delay between emitting the credentials and
	// requesting the monitor list. The server does not acknowledge logins.
	LoginGraceDelay Duration `json:"loginGraceDelay,omitempty"`

	// LoginTimeout is the time after connecting within which the first
	// monitor list must arrive.
	LoginTimeout Duration `json:"loginTimeout,omitempty"`

	// Reconnect configures the socket reconnection backoff.
	Reconnect ReconnectSettings `json:"reconnect,omitempty"`

	// Normalization configures how ambiguous payload fields are
	// interpreted.
	Normalization NormalizationSettings `json:"normalization,omitempty"`

	// Notifications configures the up/down alert sinks.
	Notifications NotificationSettings `json:"notifications,omitempty"`

	// CacheFile is the path of the SQLite database caching the last known
	// monitor view. Caching is disabled if empty.
	CacheFile string `json:"cacheFile,omitempty"`
}

// ReconnectSettings configures the bounded exponential reconnection backoff
// of the socket transport.
type ReconnectSettings struct {
	InitialDelay Duration `json:"initialDelay,omitempty"`
	MaxDelay     Duration `json:"maxDelay,omitempty"`
	Factor       float64  `json:"factor,omitempty"`
	Attempts     int      `json:"attempts,omitempty"`
}

// NormalizationSettings make deployment specific payload conventions
// explicit instead of guessing them.
type NormalizationSettings struct {
	// HeartbeatOrder is either "newest-first" or "oldest-first".
	HeartbeatOrder string `json:"heartbeatOrder,omitempty"`

	// UptimeScale is either "fraction" (0-1) or "percent" (0-100).
	UptimeScale string `json:"uptimeScale,omitempty"`

	// UptimePeriod selects the uptime period (in hours) from payloads that
	// carry several periods.
	UptimePeriod string `json:"uptimePeriod,omitempty"`
}

// NotificationSettings configures where up/down alerts are delivered to.
// Alerts are always logged.
type NotificationSettings struct {
	// SlackWebhookURL enables the Slack sink if set.
	SlackWebhookURL string `json:"slackWebhookURL,omitempty"`

	// SendGridAPIKey and AlertEmail enable the email sink if both are set.
	SendGridAPIKey string `json:"sendGridAPIKey,omitempty"`
	AlertEmail     string `json:"alertEmail,omitempty"`
}

// ReadSettings reads the settings from given file.
func ReadSettings(filename string) (*Settings, error) {
	buf, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var settings Settings

	err = yaml.Unmarshal(buf, &settings)
	if err != nil {
		return nil, err
	}

	return &settings, nil
}

// WriteSettings writes settings to given file. The file is only readable by
// the owner since it may contain credentials.
func WriteSettings(filename string, settings *Settings) error {
	buf, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return errors.Wrapf(err, "failed to create settings directory")
		}
	}

	return os.WriteFile(filename, buf, 0o600)
}

// ApplySettingsFile merges the settings file into options. Settings from the
// file override defaults while flags that were explicitly set on the command
// line take precedence over the file. A missing settings file is not an
// error.
func ApplySettingsFile(flags *pflag.FlagSet, options *Options) error {
	if options.SettingsFile == "" {
		return nil
	}

	settings, err := ReadSettings(options.SettingsFile)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return errors.Wrapf(err, "failed to load settings from file")
	}

	changed := make(map[string]string)
	flags.Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	err = mergo.Merge(&options.Settings, settings, mergo.WithOverride)
	if err != nil {
		return errors.Wrapf(err, "failed to merge settings")
	}

	for name, value := range changed {
		if err := flags.Set(name, value); err != nil {
			return errors.Wrapf(err, "failed to reapply flag --%s", name)
		}
	}

	return nil
}

// Duration is a time.Duration that is represented as a duration string in
// the settings file and can be used as a flag value.
type Duration time.Duration

// Duration returns d as time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String implements pflag.Value.
func (d *Duration) String() string {
	return time.Duration(*d).String()
}

// Set implements pflag.Value.
func (d *Duration) Set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}

	*d = Duration(v)
	return nil
}

// Type implements pflag.Value.
func (d *Duration) Type() string {
	return "duration"
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Errorf("duration must be a string like \"30s\", got %s", string(data))
	}

	return d.Set(s)
}

// Backoff converts the settings into a wait.Backoff. Steps is the number of
// reconnection attempts.
func (r ReconnectSettings) Backoff() wait.Backoff {
	return wait.Backoff{
		Duration: r.InitialDelay.Duration(),
		Factor:   r.Factor,
		Cap:      r.MaxDelay.Duration(),
		Steps:    r.Attempts,
	}
}
