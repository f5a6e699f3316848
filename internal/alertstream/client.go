// Package alertstream maintains the persistent push connection to the
// backend's white-list alert socket. It reconnects after errors and clean
// closes with a fixed delay and decodes each frame into an Alert.
package alertstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultReconnectDelay is the fixed wait between a dropped connection and
// the next attempt.
const DefaultReconnectDelay = 5 * time.Second

// State is the connection lifecycle state.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
	StateError      State = "error"
)

// ErrPeerClosed is returned by Conn.Read when the server closed the
// connection cleanly.
var ErrPeerClosed = errors.New("stream closed by peer")

// Conn is one live stream connection.
type Conn interface {
	// Read blocks for the next frame.
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens stream connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Timer is a pending reconnect.
type Timer interface {
	Stop() bool
}

// Observer receives lifecycle signals for metrics.
type Observer interface {
	ObserveStreamState(state State)
	ObserveReconnect()
}

// Config configures a Client.
type Config struct {
	URL            string
	Dialer         Dialer
	ReconnectDelay time.Duration
	Logger         *zap.Logger
	Observer       Observer

	// OnAlert receives every decoded frame. It runs on the read goroutine.
	OnAlert func(Alert)
	// OnState receives every state transition.
	OnState func(State)

	// AfterFunc schedules reconnects. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) Timer
}

// Client owns one logical stream subscription across reconnects.
type Client struct {
	url       string
	dialer    Dialer
	delay     time.Duration
	logger    *zap.Logger
	observer  Observer
	onAlert   func(Alert)
	onState   func(State)
	afterFunc func(time.Duration, func()) Timer

	mu     sync.Mutex
	active bool
	// gen identifies the current connection attempt. Callbacks from an
	// older attempt are ignored.
	gen     uint64
	state   State
	baseCtx context.Context
	cancel  context.CancelFunc
	conn    Conn
	timer   Timer

	wg sync.WaitGroup
}

// New validates cfg and returns an idle Client in the connecting state.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("alert stream url is required")
	}
	if cfg.Dialer == nil {
		return nil, errors.New("alert stream dialer is required")
	}
	c := &Client{
		url:       cfg.URL,
		dialer:    cfg.Dialer,
		delay:     cfg.ReconnectDelay,
		logger:    cfg.Logger,
		observer:  cfg.Observer,
		onAlert:   cfg.OnAlert,
		onState:   cfg.OnState,
		afterFunc: cfg.AfterFunc,
		state:     StateConnecting,
	}
	if c.delay <= 0 {
		c.delay = DefaultReconnectDelay
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.afterFunc == nil {
		c.afterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	return c, nil
}

// URL returns the stream address.
func (c *Client) URL() string { return c.url }

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins connecting. Cancelling ctx ends the subscription the same
// way Stop does, without waiting. Calling Start on a running client is a
// no-op.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return
	}
	c.active = true
	c.baseCtx = ctx
	c.mu.Unlock()

	c.logger.Info("alert stream starting", zap.String("url", c.url))
	c.connect()
}

// Stop cancels any pending reconnect and closes the live connection. Once
// Stop returns no callback fires and no state transition is emitted.
// Callbacks must not call Stop.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		c.wg.Wait()
		return
	}
	c.active = false
	c.gen++
	if c.timer != nil {
		if c.timer.Stop() {
			c.wg.Done()
		}
		c.timer = nil
	}
	cancel, conn := c.cancel, c.conn
	c.cancel, c.conn = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	c.wg.Wait()
	c.logger.Info("alert stream stopped", zap.String("url", c.url))
}

// connect starts a fresh attempt under a new generation.
func (c *Client) connect() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	c.timer = nil
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(c.baseCtx)
	c.cancel = cancel
	c.state = StateConnecting
	c.wg.Add(1)
	c.mu.Unlock()

	c.emitState(StateConnecting)
	go c.run(ctx, gen)
}

func (c *Client) run(ctx context.Context, gen uint64) {
	defer c.wg.Done()

	conn, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		c.fail(gen, StateError, fmt.Errorf("dial alert stream: %w", err))
		return
	}

	c.mu.Lock()
	if !c.current(gen) {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.state = StateOpen
	c.mu.Unlock()

	c.logger.Info("alert stream connected", zap.String("url", c.url))
	c.emitState(StateOpen)

	for {
		frame, err := conn.Read(ctx)
		if err != nil {
			_ = conn.Close()
			if errors.Is(err, ErrPeerClosed) {
				c.fail(gen, StateClosed, err)
			} else {
				c.fail(gen, StateError, fmt.Errorf("read alert stream: %w", err))
			}
			return
		}
		alert, ok := Decode(frame)
		if !ok {
			continue
		}
		if !c.isCurrent(gen) {
			return
		}
		if c.onAlert != nil {
			c.onAlert(alert)
		}
	}
}

// fail records a terminal event for attempt gen and schedules exactly one
// reconnect. Repeated failures before the timer fires reuse the pending
// timer.
func (c *Client) fail(gen uint64, state State, cause error) {
	c.mu.Lock()
	if !c.current(gen) {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = state

	// The parent context ended: the subscription is over.
	if c.baseCtx.Err() != nil {
		c.active = false
		c.gen++
		c.state = StateClosed
		c.mu.Unlock()
		c.logger.Info("alert stream context done", zap.String("url", c.url))
		c.emitState(StateClosed)
		return
	}

	scheduled := false
	if c.timer == nil {
		c.wg.Add(1)
		c.timer = c.afterFunc(c.delay, func() {
			defer c.wg.Done()
			c.connect()
		})
		scheduled = true
	}
	c.mu.Unlock()

	if state == StateError {
		c.logger.Warn("alert stream error", zap.String("url", c.url), zap.Error(cause))
	} else {
		c.logger.Info("alert stream closed", zap.String("url", c.url), zap.Error(cause))
	}
	c.emitState(state)
	if scheduled {
		c.logger.Debug("alert stream reconnect scheduled", zap.Duration("delay", c.delay))
		if c.observer != nil {
			c.observer.ObserveReconnect()
		}
	}
}

func (c *Client) current(gen uint64) bool {
	return c.active && c.gen == gen
}

func (c *Client) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current(gen)
}

func (c *Client) emitState(s State) {
	if c.observer != nil {
		c.observer.ObserveStreamState(s)
	}
	if c.onState != nil {
		c.onState(s)
	}
}
