package fake

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/bonial-oss/kuma-monitor-client/pkg/socketio"
	"github.com/stretchr/testify/mock"
)

// Client is a fake socket.io client that can be used in unit tests. Emit,
// Connect and Close are mocked, registered handlers can be triggered with
// Fire. Since On is shadowed, expectations must be set via c.Mock.On.
type Client struct {
	mock.Mock

	mu       sync.Mutex
	handlers map[string][]socketio.Handler
	emitted  map[string]int
}

// On implements socketio.Interface.
func (c *Client) On(event string, handler socketio.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handlers == nil {
		c.handlers = make(map[string][]socketio.Handler)
	}

	c.handlers[event] = append(c.handlers[event], handler)
}

// Emit implements socketio.Interface.
func (c *Client) Emit(event string, args ...interface{}) error {
	c.mu.Lock()
	if c.emitted == nil {
		c.emitted = make(map[string]int)
	}
	c.emitted[event]++
	c.mu.Unlock()

	callArgs := c.Called(append([]interface{}{event}, args...)...)

	return callArgs.Error(0)
}

// Connect implements socketio.Interface.
func (c *Client) Connect(ctx context.Context) error {
	args := c.Called(ctx)

	return args.Error(0)
}

// Close implements socketio.Interface.
func (c *Client) Close() error {
	args := c.Called()

	return args.Error(0)
}

// Fire invokes the handlers of event with args encoded as JSON. Arguments
// of type json.RawMessage are passed through unchanged.
func (c *Client) Fire(event string, args ...interface{}) {
	raw := make([]json.RawMessage, len(args))
	for i, arg := range args {
		if msg, ok := arg.(json.RawMessage); ok {
			raw[i] = msg
			continue
		}

		b, err := json.Marshal(arg)
		if err != nil {
			panic(err)
		}

		raw[i] = b
	}

	c.mu.Lock()
	handlers := append([]socketio.Handler(nil), c.handlers[event]...)
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(raw)
	}
}

// Emitted returns how often event was emitted.
func (c *Client) Emitted(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.emitted[event]
}
