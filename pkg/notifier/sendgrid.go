package notifier

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type mailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridSink emails transitions through the SendGrid API.
type SendGridSink struct {
	client    mailSender
	recipient string
}

// NewSendGridSink creates a new *SendGridSink which sends from and to
// recipient.
func NewSendGridSink(apiKey, recipient string) *SendGridSink {
	return &SendGridSink{
		client:    sendgrid.NewSendClient(apiKey),
		recipient: recipient,
	}
}

// Name implements Sink.
func (s *SendGridSink) Name() string {
	return "sendgrid"
}

// Notify implements Sink.
func (s *SendGridSink) Notify(ctx context.Context, t Transition) error {
	subject := t.Message()
	content := fmt.Sprintf("%s\n\nMonitor: %s (id %d)\nTime: %s", subject, t.Name, t.ID, t.At.Format("2006-01-02 15:04:05 MST"))

	from := mail.NewEmail("Kuma Monitor Client", s.recipient)
	to := mail.NewEmail("Admin", s.recipient)
	message := mail.NewSingleEmail(from, subject, to, content, content)

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return errors.Wrapf(err, "failed to send email")
	}

	if resp.StatusCode >= 300 {
		return errors.Errorf("sendgrid returned http %d: %s", resp.StatusCode, resp.Body)
	}

	return nil
}
