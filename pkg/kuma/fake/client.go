package fake

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// Client is a fake status page client that can be used in unit tests.
type Client struct {
	mock.Mock
}

// StatusPage implements kuma.Interface.
func (c *Client) StatusPage(ctx context.Context, slug string) ([]byte, error) {
	args := c.Called(ctx, slug)
	if obj, ok := args.Get(0).([]byte); ok {
		return obj, args.Error(1)
	}

	return nil, args.Error(1)
}

// Heartbeats implements kuma.Interface.
func (c *Client) Heartbeats(ctx context.Context, slug string) ([]byte, error) {
	args := c.Called(ctx, slug)
	if obj, ok := args.Get(0).([]byte); ok {
		return obj, args.Error(1)
	}

	return nil, args.Error(1)
}
