// Package stream maintains the websocket connection to the backend's event
// stream, tracking liveness and reconnecting with exponential backoff.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/mnemo-go/internal/metrics"
	"github.com/raphaelgruber/mnemo-go/internal/notify"
	"github.com/raphaelgruber/mnemo-go/internal/reconcile"
)

// ErrRetriesExhausted is returned by Run after MaxRetries consecutive
// failed connection attempts.
var ErrRetriesExhausted = errors.New("stream reconnect retries exhausted")

// Path is appended to the websocket base URL.
const Path = "/ws/all"

// Defaults.
const (
	DefaultPingInterval    = 10 * time.Second
	DefaultMaxRetries      = 10
	DefaultInitialInterval = time.Second
	DefaultMaxInterval     = 30 * time.Second

	eventBuffer  = 256
	writeTimeout = 5 * time.Second
)

// Status is the published liveness of the connection.
type Status struct {
	Connected bool
	RTT       time.Duration
	HasRTT    bool
	// Attempt counts consecutive failed connection attempts.
	Attempt int
}

// Conn owns one logical event-stream subscription across reconnects.
type Conn struct {
	url          string
	dialer       *websocket.Dialer
	events       chan reconcile.RawEvent
	status       *notify.Bus[Status]
	pingInterval time.Duration
	maxRetries   int
	backoff      *backoff.ExponentialBackOff
	onReconnect  func()
	metrics      *metrics.Collector
	logger       *slog.Logger
	now          func() time.Time
}

// Option configures a Conn.
type Option func(*Conn)

// WithPingInterval sets how often a liveness probe is sent.
func WithPingInterval(d time.Duration) Option {
	return func(c *Conn) {
		if d > 0 {
			c.pingInterval = d
		}
	}
}

// WithMaxRetries caps consecutive failed attempts. Zero disables
// reconnection and a negative value retries forever.
func WithMaxRetries(n int) Option {
	return func(c *Conn) { c.maxRetries = n }
}

// WithBackoff sets the first and the largest reconnect delay.
func WithBackoff(initial, max time.Duration) Option {
	return func(c *Conn) {
		c.backoff.InitialInterval = initial
		c.backoff.MaxInterval = max
	}
}

// OnReconnect registers fn to run after every successful connection but the
// first, so the caller can resynchronize state missed while disconnected.
func OnReconnect(fn func()) Option {
	return func(c *Conn) { c.onReconnect = fn }
}

// WithMetrics records events, malformed frames, liveness and reconnects.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Conn) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Conn) { c.logger = l }
}

// WithStatusBus publishes liveness on an existing bus.
func WithStatusBus(bus *notify.Bus[Status]) Option {
	return func(c *Conn) { c.status = bus }
}

// New creates a connection to baseURL + Path. Nothing is dialed until Run.
func New(baseURL string, opts ...Option) *Conn {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = DefaultInitialInterval
	b.RandomizationFactor = 0.5
	b.Multiplier = 2
	b.MaxInterval = DefaultMaxInterval

	c := &Conn{
		url: strings.TrimRight(baseURL, "/") + Path,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		events:       make(chan reconcile.RawEvent, eventBuffer),
		status:       notify.NewBus[Status](),
		pingInterval: DefaultPingInterval,
		maxRetries:   DefaultMaxRetries,
		backoff:      b,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.backoff.Reset()
	return c
}

// URL returns the endpoint being dialed.
func (c *Conn) URL() string { return c.url }

// Events delivers every well-formed inbound message. It is closed when Run returns.
func (c *Conn) Events() <-chan reconcile.RawEvent { return c.events }

// Status returns the liveness bus.
func (c *Conn) Status() *notify.Bus[Status] { return c.status }

// Run connects and keeps the stream alive until ctx is cancelled or the
// retry cap is hit. It must be called at most once.
func (c *Conn) Run(ctx context.Context) error {
	defer close(c.events)

	failures := 0
	connectedOnce := false
	for {
		opened := false
		err := c.session(ctx, func() {
			opened = true
			failures = 0
			c.backoff.Reset()
			c.publish(Status{Connected: true})
			c.logger.Info("stream connected", "url", c.url)
			if connectedOnce {
				if c.metrics != nil {
					c.metrics.RecordReconnect()
				}
				if c.onReconnect != nil {
					c.onReconnect()
				}
			}
			connectedOnce = true
		})

		if ctx.Err() != nil {
			c.publish(Status{Connected: false})
			return ctx.Err()
		}

		failures++
		c.publish(Status{Connected: false, Attempt: failures})
		if opened {
			c.logger.Warn("stream disconnected", "error", err)
		}

		if c.maxRetries >= 0 && failures > c.maxRetries {
			return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, failures, err)
		}

		wait := c.backoff.NextBackOff()
		c.logger.Warn("stream reconnecting", "attempt", failures, "wait", wait, "error", err)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.publish(Status{Connected: false})
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// session runs one connection lifetime: dial, read until error, tear down.
func (c *Conn) session(ctx context.Context, onOpen func()) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}

	// Track connection state for proper cleanup
	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	onOpen()

	var wg sync.WaitGroup
	done := make(chan struct{})
	defer func() {
		close(done)
		wg.Wait()
	}()

	// Handle context cancellation in a separate goroutine
	wg.Add(2)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()
	go func() {
		defer wg.Done()
		c.pingLoop(conn, done)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read message: %w", err)
		}

		ev, err := reconcile.ParseEvent(data)
		if err != nil {
			c.logger.Debug("dropping malformed frame", "error", err)
			if c.metrics != nil {
				c.metrics.RecordMalformed()
			}
			continue
		}
		if c.metrics != nil {
			c.metrics.RecordEvent(ev.Name)
		}
		if ev.Name == reconcile.EventPong {
			c.observePong(ev)
		}

		select {
		case c.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// pingLoop sends {"event":"ping","ts":<unix ms>} until done. A failed write
// is logged and the connection is left open.
func (c *Conn) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ping := map[string]any{"event": reconcile.EventPing, "ts": c.now().UnixMilli()}
			_ = conn.SetWriteDeadline(c.now().Add(writeTimeout))
			if err := conn.WriteJSON(ping); err != nil {
				c.logger.Warn("stream ping failed", "error", err)
			}
		}
	}
}

func (c *Conn) observePong(ev reconcile.RawEvent) {
	if !ev.Has("ts") {
		return
	}
	sent, err := strconv.ParseFloat(ev.TS, 64)
	if err != nil {
		return
	}
	rtt := c.now().Sub(time.UnixMilli(int64(sent)))
	if rtt < 0 {
		rtt = 0
	}
	c.publish(Status{Connected: true, RTT: rtt, HasRTT: true})
}

func (c *Conn) publish(s Status) {
	c.status.Publish(s)
	if c.metrics != nil {
		c.metrics.SetConnected(s.Connected, s.RTT)
	}
}
