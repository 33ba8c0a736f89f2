package fake

import (
	"context"

	"github.com/bonial-oss/kuma-monitor-client/pkg/notifier"
	"github.com/stretchr/testify/mock"
)

// Sink is a fake sink that can be used in unit tests.
type Sink struct {
	mock.Mock
}

// Name implements notifier.Sink.
func (s *Sink) Name() string {
	return "fake"
}

// Notify implements notifier.Sink.
func (s *Sink) Notify(ctx context.Context, t notifier.Transition) error {
	args := s.Called(ctx, t)

	return args.Error(0)
}
