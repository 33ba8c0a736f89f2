// Package socketio implements a minimal Socket.IO v4 client on top of the
// Engine.IO v4 websocket transport. Only the default namespace, JSON events
// and server initiated pings are supported.
package socketio

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/wait"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

var log = logf.Log.WithName("socketio")

// Events emitted by the client itself. Handlers of EventDisconnect,
// EventConnectError and EventReconnectFailed receive the reason as a single
// JSON string argument.
const (
	EventConnect         = "connect"
	EventDisconnect      = "disconnect"
	EventConnectError    = "connect_error"
	EventReconnectFailed = "reconnect_failed"
)

const (
	defaultReadTimeout = 60 * time.Second
	writeTimeout       = 10 * time.Second
)

// ErrNotConnected is returned by Emit if there is no established connection.
var ErrNotConnected = errors.New("socket.io client is not connected")

// Handler handles the arguments of a received event.
type Handler func(args []json.RawMessage)

// Interface is the interface of a Socket.IO client.
type Interface interface {
	// On registers handler for event. Handlers are invoked sequentially on
	// the receive goroutine in the order in which events arrive.
	On(event string, handler Handler)

	// Emit sends an event with args. Returns ErrNotConnected if the client
	// is not connected.
	Emit(event string, args ...interface{}) error

	// Connect starts connecting in the background. Lost connections are
	// re-established with backoff until the retries are exhausted.
	Connect(ctx context.Context) error

	// Close closes the connection and stops reconnecting. No handler is
	// invoked after Close returns. Must not be called from a handler.
	Close() error
}

// Options configures a *Client.
type Options struct {
	// URL is the http(s) or ws(s) url of the server.
	URL string

	// Header is sent with the websocket handshake.
	Header http.Header

	// Backoff controls reconnection. Steps is the maximum number of
	// consecutive reconnection attempts.
	Backoff wait.Backoff

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Client is a Socket.IO client.
type Client struct {
	url     string
	header  http.Header
	backoff wait.Backoff
	dialer  *websocket.Dialer

	handlersMu sync.Mutex
	handlers   map[string][]Handler

	writeMu   sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewClient creates a new *Client.
func NewClient(options Options) (*Client, error) {
	endpoint, err := endpointURL(options.URL)
	if err != nil {
		return nil, err
	}

	dialer := options.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	c := &Client{
		url:      endpoint,
		header:   options.Header,
		backoff:  options.Backoff,
		dialer:   dialer,
		handlers: make(map[string][]Handler),
	}

	return c, nil
}

// endpointURL converts a server url into the Engine.IO websocket endpoint.
func endpointURL(serverURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return "", errors.Wrapf(err, "invalid server url %q", serverURL)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", errors.Errorf("unsupported scheme in server url %q", serverURL)
	}

	u.Path += "/socket.io/"
	u.RawQuery = url.Values{"EIO": {"4"}, "transport": {"websocket"}}.Encode()

	return u.String(), nil
}

// On implements Interface.
func (c *Client) On(event string, handler Handler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	c.handlers[event] = append(c.handlers[event], handler)
}

// Emit implements Interface.
func (c *Client) Emit(event string, args ...interface{}) error {
	frame, err := encodeEvent(event, args...)
	if err != nil {
		return err
	}

	if !c.connected.Load() {
		return ErrNotConnected
	}

	return c.write(frame)
}

// Connect implements Interface.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return errors.New("socket.io client was already started")
	}

	ctx, cancel := context.WithCancel(ctx)

	c.cancel = cancel
	c.done = make(chan struct{})

	go c.run(ctx, c.done)

	return nil
}

// Close implements Interface.
func (c *Client) Close() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	<-done

	return nil
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	backoff := c.backoff
	failures := 0

	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			return
		}

		if connected {
			log.Info("connection lost", "url", c.url, "reason", err.Error())
			c.dispatch(ctx, EventDisconnect, reason(err))

			backoff = c.backoff
			failures = 0
		} else {
			log.V(1).Info("failed to connect", "url", c.url, "reason", err.Error())
			c.dispatch(ctx, EventConnectError, reason(err))
		}

		if failures >= c.backoff.Steps {
			log.Info("giving up reconnecting", "url", c.url, "attempts", failures)
			c.dispatch(ctx, EventReconnectFailed, reason(err))
			return
		}

		failures++
		delay := backoff.Step()

		log.V(1).Info("reconnecting", "url", c.url, "attempt", failures, "delay", delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// session runs one connection until it fails. The returned bool reports
// whether the Socket.IO handshake completed.
func (c *Client) session(ctx context.Context) (bool, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return false, errors.Wrapf(err, "failed to dial %s", c.url)
	}

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()

	stop := context.AfterFunc(ctx, func() { conn.Close() })

	defer func() {
		stop()
		c.connected.Store(false)

		c.writeMu.Lock()
		c.conn = nil
		c.writeMu.Unlock()

		conn.Close()
	}()

	connected := false
	readTimeout := defaultReadTimeout

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return connected, err
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return connected, errors.Wrapf(err, "read failed")
		}

		if len(data) == 0 {
			continue
		}

		switch data[0] {
		case engineOpen:
			var hs handshake
			if err := json.Unmarshal(data[1:], &hs); err != nil {
				return connected, errors.Wrapf(err, "invalid handshake")
			}

			if hs.PingInterval > 0 {
				readTimeout = time.Duration(hs.PingInterval+hs.PingTimeout) * time.Millisecond
			}

			if err := c.write([]byte{engineMessage, packetConnect}); err != nil {
				return connected, err
			}
		case enginePing:
			if err := c.write([]byte{enginePong}); err != nil {
				return connected, err
			}
		case engineClose:
			return connected, errors.New("server closed the connection")
		case engineMessage:
			p, err := decodePacket(data[1:])
			if err != nil {
				log.Error(err, "dropping malformed packet")
				continue
			}

			switch p.Type {
			case packetConnect:
				connected = true
				c.connected.Store(true)
				c.dispatch(ctx, EventConnect)
			case packetConnectError:
				return connected, errors.Errorf("connection rejected: %s", string(p.Data))
			case packetDisconnect:
				return connected, errors.New("server disconnected the socket")
			case packetEvent:
				name, args, err := decodeEvent(p.Data)
				if err != nil {
					log.Error(err, "dropping malformed event")
					continue
				}

				c.dispatch(ctx, name, args...)
			}
		}
	}
}

func (c *Client) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}

	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) dispatch(ctx context.Context, event string, args ...json.RawMessage) {
	if ctx.Err() != nil {
		return
	}

	c.handlersMu.Lock()
	handlers := append([]Handler(nil), c.handlers[event]...)
	c.handlersMu.Unlock()

	if len(handlers) == 0 {
		log.V(2).Info("no handler for event", "event", event)
		return
	}

	for _, handler := range handlers {
		handler(args)
	}
}

func reason(err error) json.RawMessage {
	msg := "unknown"
	if err != nil {
		msg = err.Error()
	}

	raw, _ := json.Marshal(msg)

	return raw
}
