package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/livhair/schedule-engine/pkg/logging"
)

// State is the channel's connection lifecycle phase.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateLive       State = "live"
	StateOffline    State = "offline"
)

const (
	defaultInitialDelay = 2 * time.Second
	defaultMaxDelay     = 15 * time.Second
	defaultMultiplier   = 1.5
	defaultDialTimeout  = 10 * time.Second
)

// Channel owns one reconnecting websocket to the update feed. It is
// receive-only: the engine never writes to the socket. All reconnect timing
// runs through a single timer owned by the channel, so a manual Connect or a
// Close can always cancel the pending attempt.
type Channel struct {
	url         string
	header      http.Header
	dialer      *websocket.Dialer
	dialTimeout time.Duration
	logger      *logging.Logger

	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64

	onSync  func([]ActivityEvent)
	onEvent func(ActivityEvent)
	onState func(State)

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	timer    *time.Timer
	delay    time.Duration
	failures int
	closed   bool
}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the channel logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Channel) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSyncHandler registers the backfill callback, invoked once per
// successful (re)connect with the server's recent history, newest first.
func WithSyncHandler(fn func([]ActivityEvent)) Option {
	return func(c *Channel) { c.onSync = fn }
}

// WithEventHandler registers the incremental event callback.
func WithEventHandler(fn func(ActivityEvent)) Option {
	return func(c *Channel) { c.onEvent = fn }
}

// WithStateHandler registers a callback for connection state changes.
func WithStateHandler(fn func(State)) Option {
	return func(c *Channel) { c.onState = fn }
}

// WithBackoff overrides the reconnect timing.
func WithBackoff(initial, max time.Duration, multiplier float64) Option {
	return func(c *Channel) {
		if initial > 0 {
			c.initialDelay = initial
		}
		if max > 0 {
			c.maxDelay = max
		}
		if multiplier > 1 {
			c.multiplier = multiplier
		}
	}
}

// WithDialTimeout bounds each dial attempt.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

// WithRequestHeader sets headers sent on the upgrade request, typically the
// bearer token or session cookie.
func WithRequestHeader(header http.Header) Option {
	return func(c *Channel) { c.header = header }
}

// NewChannel creates a channel for the given ws:// or wss:// URL. The
// channel stays idle until Connect.
func NewChannel(url string, opts ...Option) *Channel {
	c := &Channel{
		url:          url,
		dialer:       websocket.DefaultDialer,
		dialTimeout:  defaultDialTimeout,
		logger:       logging.Default(),
		initialDelay: defaultInitialDelay,
		maxDelay:     defaultMaxDelay,
		multiplier:   defaultMultiplier,
		state:        StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.delay = c.initialDelay
	return c
}

// Connect starts the connection loop. Calling it while a connect attempt or
// a live socket exists is a no-op; calling it while a reconnect timer is
// pending cancels the timer and dials immediately.
func (c *Channel) Connect() {
	c.mu.Lock()
	if c.closed || c.state == StateConnecting || c.state == StateLive {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.state = StateConnecting
	cb := c.onState
	c.mu.Unlock()

	c.notify(cb, StateConnecting)
	go c.dial()
}

// Close tears the channel down: it cancels any pending reconnect, closes the
// socket and stops all callbacks. Safe to call more than once.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopTimerLocked()
	conn := c.conn
	c.conn = nil
	c.state = StateIdle
	cb := c.onState
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.notify(cb, StateIdle)
}

// State reports the current lifecycle phase.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ReconnectDelay reports the wait the next reconnect attempt would use.
func (c *Channel) ReconnectDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delay
}

func (c *Channel) dial() {
	ctx, cancel := context.WithTimeout(context.Background(), c.dialTimeout)
	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	cancel()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.logger.Warn("realtime: dial failed", "url", c.url, "error", err)
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.failures = 0
	c.delay = c.initialDelay
	c.state = StateLive
	cb := c.onState
	c.mu.Unlock()

	c.notify(cb, StateLive)
	c.logger.Info("realtime: connected", "url", c.url)
	c.readLoop(conn)
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			_ = conn.Close()
			if closed {
				return
			}
			c.logger.Warn("realtime: connection lost", "error", err)
			c.scheduleReconnect()
			return
		}
		c.handleFrame(data)
	}
}

// handleFrame routes one text frame. Malformed payloads are logged and
// dropped; the socket stays open.
func (c *Channel) handleFrame(data []byte) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		c.logger.Warn("realtime: dropping malformed frame", "error", err)
		return
	}

	if probe.Type == SyncType {
		var frame SyncFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("realtime: dropping malformed sync frame", "error", err)
			return
		}
		if c.onSync != nil {
			c.onSync(frame.Items)
		}
		return
	}

	var event ActivityEvent
	if err := json.Unmarshal(data, &event); err != nil {
		c.logger.Warn("realtime: dropping malformed event", "error", err)
		return
	}
	if event.Entity == "" && event.Type == "" {
		c.logger.Warn("realtime: dropping frame without entity or type")
		return
	}
	if c.onEvent != nil {
		c.onEvent(event)
	}
}

// scheduleReconnect moves the channel offline and arms the reconnect timer
// with the next backoff delay.
func (c *Channel) scheduleReconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state = StateOffline
	wait := c.nextDelayLocked()
	c.stopTimerLocked()
	c.timer = time.AfterFunc(wait, c.retry)
	cb := c.onState
	c.mu.Unlock()

	c.notify(cb, StateOffline)
	c.logger.Info("realtime: reconnecting", "wait", wait.String(), "failures", c.failureCount())
}

func (c *Channel) retry() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.state = StateConnecting
	cb := c.onState
	c.mu.Unlock()

	c.notify(cb, StateConnecting)
	c.dial()
}

// nextDelayLocked returns the wait for the attempt being scheduled and
// advances the backoff: initial delay, multiplied per consecutive failure,
// capped at maxDelay. A successful open resets it.
func (c *Channel) nextDelayLocked() time.Duration {
	if c.delay <= 0 {
		c.delay = c.initialDelay
	}
	wait := c.delay
	next := time.Duration(float64(c.delay) * c.multiplier)
	if next > c.maxDelay {
		next = c.maxDelay
	}
	c.delay = next
	c.failures++
	return wait
}

func (c *Channel) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Channel) failureCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

func (c *Channel) notify(cb func(State), s State) {
	if cb != nil {
		cb(s)
	}
}
