package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// SlackSink posts transitions to a Slack incoming webhook.
type SlackSink struct {
	webhookURL string
	httpClient *http.Client
}

// NewSlackSink creates a new *SlackSink for webhookURL.
func NewSlackSink(webhookURL string) *SlackSink {
	return &SlackSink{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Name implements Sink.
func (s *SlackSink) Name() string {
	return "slack"
}

// Notify implements Sink.
func (s *SlackSink) Notify(ctx context.Context, t Transition) error {
	payload, err := json.Marshal(map[string]string{"text": t.Message()})
	if err != nil {
		return errors.Wrapf(err, "failed to encode slack message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrapf(err, "failed to create slack request")
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to post slack message")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errors.Errorf("slack webhook returned http %d", resp.StatusCode)
	}

	return nil
}
