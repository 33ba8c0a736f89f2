// Package stream implements the acquisition driver that logs into the
// server via socket.io and applies the pushed monitor updates.
package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/bonial-oss/kuma-monitor-client/pkg/config"
	"github.com/bonial-oss/kuma-monitor-client/pkg/metrics"
	"github.com/bonial-oss/kuma-monitor-client/pkg/normalize"
	"github.com/bonial-oss/kuma-monitor-client/pkg/socketio"
	"github.com/bonial-oss/kuma-monitor-client/pkg/state"
	"github.com/bonial-oss/kuma-monitor-client/pkg/store"
	"github.com/pkg/errors"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

var log = logf.Log.WithName("stream-driver")

// ErrMonitorListTimeout is surfaced if no monitor list arrived within the
// login timeout after connecting. The server does not acknowledge logins,
// so this usually means that the credentials were rejected.
var ErrMonitorListTimeout = errors.New("no monitor list received after login, check the credentials")

// Server events.
const (
	eventLoginRequired  = "loginRequired"
	eventMonitorList    = "monitorList"
	eventHeartbeat      = "heartbeat"
	eventUptime         = "uptime"
	eventCertInfo       = "certInfo"
	eventError          = "error"
	eventLogin          = "login"
	eventGetMonitorList = "getMonitorList"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Token    string `json:"token"`
}

// Driver keeps a socket.io connection to the server. The first monitor list
// received on a connection is the only signal of a successful login.
type Driver struct {
	client       socketio.Interface
	writer       *store.Writer
	machine      *state.Machine
	username     string
	password     string
	graceDelay   time.Duration
	loginTimeout time.Duration
	opts         normalize.Options

	mu      sync.Mutex
	started bool
	stopped bool

	// generation is incremented on every connect and disconnect. Timers of
	// older generations are ignored.
	generation   int
	loginSent    bool
	listReceived bool
	graceTimer   *time.Timer
	loginTimer   *time.Timer
}

// New creates a new *Driver which writes through writer. onChange is called
// on every state transition and may be nil.
func New(client socketio.Interface, writer *store.Writer, options *config.Options, onChange func(state.Status)) *Driver {
	return &Driver{
		client:       client,
		writer:       writer,
		machine:      state.New(onChange),
		username:     options.Username,
		password:     options.Password,
		graceDelay:   options.LoginGraceDelay.Duration(),
		loginTimeout: options.LoginTimeout.Duration(),
		opts:         normalize.OptionsFromSettings(options.Normalization),
	}
}

// Start registers the event handlers and starts connecting.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return errors.New("stream driver was already started")
	}

	d.started = true
	d.mu.Unlock()

	d.on(socketio.EventConnect, d.onConnect)
	d.on(socketio.EventDisconnect, d.onDisconnect)
	d.on(socketio.EventConnectError, d.onConnectError)
	d.on(socketio.EventReconnectFailed, d.onReconnectFailed)
	d.on(eventError, d.onError)
	d.on(eventLoginRequired, d.onLoginRequired)
	d.on(eventMonitorList, d.onMonitorList)
	d.on(eventHeartbeat, d.onHeartbeat)
	d.on(eventUptime, d.onUptime)
	d.on(eventCertInfo, d.onCertInfo)

	d.machine.Transition(state.Connecting, nil)

	if err := d.client.Connect(ctx); err != nil {
		err = errors.Wrapf(err, "failed to connect")
		d.machine.Transition(state.Disconnected, err)
		return err
	}

	return nil
}

// Stop closes the connection and cancels all pending timers. No store write
// happens after Stop returns.
func (d *Driver) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}

	d.stopped = true
	d.generation++
	d.stopTimersLocked()
	d.mu.Unlock()

	if err := d.client.Close(); err != nil {
		log.Error(err, "failed to close connection")
	}

	d.machine.Transition(state.Disconnected, nil)
}

// Status returns the current driver status.
func (d *Driver) Status() state.Status {
	return d.machine.Status()
}

func (d *Driver) on(event string, fn func(args []json.RawMessage)) {
	d.client.On(event, func(args []json.RawMessage) {
		metrics.SocketEventsTotal.WithLabelValues(event).Inc()
		fn(args)
	})
}

func (d *Driver) onConnect(_ []json.RawMessage) {
	d.mu.Lock()
	d.generation++
	generation := d.generation
	d.loginSent = false
	d.listReceived = false
	d.stopTimersLocked()
	d.loginTimer = time.AfterFunc(d.loginTimeout, func() {
		d.onLoginTimeout(generation)
	})
	d.mu.Unlock()

	log.Info("connected, waiting for monitor list")

	if d.machine.Status().State != state.Connecting {
		d.machine.Transition(state.Connecting, nil)
	}
}

func (d *Driver) onDisconnect(args []json.RawMessage) {
	d.mu.Lock()
	d.generation++
	d.loginSent = false
	d.listReceived = false
	d.stopTimersLocked()
	d.mu.Unlock()

	d.machine.Transition(state.Error, errors.Errorf("connection lost: %s", reasonOf(args)))
}

func (d *Driver) onConnectError(args []json.RawMessage) {
	err := errors.Errorf("failed to connect: %s", reasonOf(args))

	if d.machine.Status().State == state.Connecting {
		d.machine.Transition(state.Connecting, err)
		return
	}

	d.machine.Transition(state.Error, err)
}

func (d *Driver) onReconnectFailed(args []json.RawMessage) {
	err := errors.Errorf("giving up reconnecting: %s", reasonOf(args))

	log.Error(err, "connection is permanently lost, keeping last known monitors")

	d.machine.Transition(state.Disconnected, err)
}

func (d *Driver) onError(args []json.RawMessage) {
	log.Error(errors.New(reasonOf(args)), "received error event")
}

func (d *Driver) onLoginRequired(_ []json.RawMessage) {
	d.mu.Lock()
	if d.loginSent || d.stopped {
		d.mu.Unlock()
		return
	}

	d.loginSent = true
	generation := d.generation
	d.mu.Unlock()

	log.V(1).Info("server requires login, sending credentials", "username", d.username)

	err := d.client.Emit(eventLogin, loginRequest{Username: d.username, Password: d.password})
	if err != nil {
		log.Error(err, "failed to send credentials")
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if generation != d.generation {
		return
	}

	d.graceTimer = time.AfterFunc(d.graceDelay, func() {
		d.requestMonitorList(generation)
	})
}

func (d *Driver) requestMonitorList(generation int) {
	d.mu.Lock()
	skip := generation != d.generation || d.stopped || d.listReceived
	d.mu.Unlock()

	if skip {
		return
	}

	log.V(1).Info("requesting monitor list")

	if err := d.client.Emit(eventGetMonitorList); err != nil {
		log.Error(err, "failed to request monitor list")
	}
}

func (d *Driver) onLoginTimeout(generation int) {
	d.mu.Lock()
	skip := generation != d.generation || d.stopped || d.listReceived
	d.mu.Unlock()

	if skip {
		return
	}

	log.Error(ErrMonitorListTimeout, "login timed out", "timeout", d.loginTimeout)

	d.machine.Transition(state.Error, ErrMonitorListTimeout)
}

func (d *Driver) onMonitorList(args []json.RawMessage) {
	if len(args) == 0 {
		log.Error(errors.New("monitor list event without payload"), "ignoring event")
		return
	}

	snapshot, err := normalize.MonitorList(args[0], d.opts)
	if err != nil {
		log.Error(err, "ignoring monitor list")
		metrics.DecodeWarningsTotal.WithLabelValues("monitor-list").Inc()
		return
	}

	recordWarnings(snapshot.Warnings)

	view, ok := d.writer.ReplaceAll(snapshot.Monitors)
	if !ok {
		return
	}

	d.mu.Lock()
	first := !d.listReceived
	d.listReceived = true
	if d.loginTimer != nil {
		d.loginTimer.Stop()
	}
	d.mu.Unlock()

	if first {
		log.Info("received monitor list", "monitors", view.Len())
	}

	if d.machine.Status().State != state.Active {
		d.machine.Transition(state.Active, nil)
	}
}

func (d *Driver) onHeartbeat(args []json.RawMessage) {
	if len(args) == 0 {
		return
	}

	delta, err := normalize.HeartbeatEvent(args[0], d.opts)
	d.applyDelta(eventHeartbeat, delta, err)
}

func (d *Driver) onUptime(args []json.RawMessage) {
	delta, err := normalize.UptimeEvent(args, d.opts)
	d.applyDelta(eventUptime, delta, err)
}

func (d *Driver) onCertInfo(args []json.RawMessage) {
	delta, err := normalize.CertInfoEvent(args)
	d.applyDelta(eventCertInfo, delta, err)
}

func (d *Driver) applyDelta(event string, delta normalize.Delta, err error) {
	if err != nil {
		log.V(1).Info("ignoring malformed event", "event", event, "reason", err.Error())
		metrics.DecodeWarningsTotal.WithLabelValues(event).Inc()
		return
	}

	recordWarnings(delta.Warnings)

	if len(delta.Patches) == 0 {
		return
	}

	d.writer.Apply(store.Batch{Patches: delta.Patches})
}

func (d *Driver) stopTimersLocked() {
	if d.graceTimer != nil {
		d.graceTimer.Stop()
		d.graceTimer = nil
	}

	if d.loginTimer != nil {
		d.loginTimer.Stop()
		d.loginTimer = nil
	}
}

func reasonOf(args []json.RawMessage) string {
	if len(args) == 0 {
		return "unknown reason"
	}

	var reason string
	if err := json.Unmarshal(args[0], &reason); err != nil {
		return string(args[0])
	}

	return reason
}

func recordWarnings(warnings []normalize.Warning) {
	for _, w := range warnings {
		log.V(1).Info("ignoring malformed payload entry", "source", w.Source, "key", w.Key, "reason", w.Reason)
		metrics.DecodeWarningsTotal.WithLabelValues(w.Source).Inc()
	}
}
