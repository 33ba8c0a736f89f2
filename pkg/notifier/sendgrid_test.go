package notifier

import (
	"context"
	"errors"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type senderFunc func(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)

func (f senderFunc) SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	return f(ctx, email)
}

func TestSendGridSink_Notify(t *testing.T) {
	tests := []struct {
		name      string
		resp      *rest.Response
		err       error
		expectErr bool
	}{
		{name: "accepted", resp: &rest.Response{StatusCode: 202}},
		{name: "rejected", resp: &rest.Response{StatusCode: 401, Body: "unauthorized"}, expectErr: true},
		{name: "transport error", err: errors.New("connection reset"), expectErr: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var sent *mail.SGMailV3

			sink := NewSendGridSink("key", "ops@example.com")
			sink.client = senderFunc(func(_ context.Context, email *mail.SGMailV3) (*rest.Response, error) {
				sent = email
				return test.resp, test.err
			})

			err := sink.Notify(context.Background(), Transition{ID: 1, Name: "API"})
			if test.expectErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			require.NotNil(t, sent)
			assert.Equal(t, "API: Service is DOWN", sent.Subject)
			assert.Equal(t, "ops@example.com", sent.From.Address)
		})
	}
}
