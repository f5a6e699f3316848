// Package correlator attributes decoded stream alerts to devices and keeps
// the bounded global and per-device alert feeds with unread counters.
package correlator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HerbHall/netdash/internal/alertstream"
	"github.com/HerbHall/netdash/internal/devicestore"
	"github.com/HerbHall/netdash/internal/event"
	"github.com/HerbHall/netdash/internal/identity"
	"github.com/HerbHall/netdash/pkg/models"
)

// Feed bounds.
const (
	DefaultGlobalCap = 120
	DefaultDeviceCap = 40
)

// Bus topics published by the correlator.
const (
	TopicAlertReceived = "alerts.received"
	TopicAlertsRead    = "alerts.read"
	TopicAlertsCleared = "alerts.cleared"
)

// Inventory provides the device snapshot alerts are resolved against.
type Inventory interface {
	Snapshot() devicestore.Snapshot
}

// Observer counts accepted alerts for metrics.
type Observer interface {
	ObserveAlert(resolved bool)
}

// State is an immutable view of the alert feeds. Feeds are newest first.
type State struct {
	Version   uint64                        `json:"version"`
	Global    []models.AlertItem            `json:"global"`
	PerDevice map[string][]models.AlertItem `json:"per_device"`
	Unread    map[string]int                `json:"unread"`
}

// Feed returns the alerts attributed to a device key.
func (s State) Feed(key string) []models.AlertItem {
	return s.PerDevice[identity.NormalizeKey(key)]
}

// UnreadFor returns the unread count of a device key.
func (s State) UnreadFor(key string) int {
	return s.Unread[identity.NormalizeKey(key)]
}

// UnreadTotal sums every device's unread counter.
func (s State) UnreadTotal() int {
	total := 0
	for _, n := range s.Unread {
		total += n
	}
	return total
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithCaps overrides the feed bounds. Non-positive values keep defaults.
func WithCaps(global, perDevice int) Option {
	return func(c *Correlator) {
		if global > 0 {
			c.globalCap = global
		}
		if perDevice > 0 {
			c.deviceCap = perDevice
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Correlator) { c.now = now }
}

// WithIDGenerator overrides alert id generation.
func WithIDGenerator(newID func() string) Option {
	return func(c *Correlator) { c.newID = newID }
}

// WithPublisher sends correlator events to a bus.
func WithPublisher(p event.Publisher) Option {
	return func(c *Correlator) { c.publisher = p }
}

// WithObserver reports accepted alerts to o.
func WithObserver(o Observer) Option {
	return func(c *Correlator) { c.observer = o }
}

// Correlator owns the alert state.
type Correlator struct {
	inventory Inventory
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
	globalCap int
	deviceCap int
	publisher event.Publisher
	observer  Observer

	// notifyMu serializes mutations so listeners see states in order.
	notifyMu sync.Mutex

	mu           sync.Mutex
	state        State
	index        *identity.Index
	indexVersion uint64
	indexBuilt   bool
	listeners    map[int]func(State)
	nextListener int
}

// New creates a Correlator resolving against inv.
func New(inv Inventory, logger *zap.Logger, opts ...Option) *Correlator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Correlator{
		inventory: inv,
		logger:    logger,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
		globalCap: DefaultGlobalCap,
		deviceCap: DefaultDeviceCap,
		listeners: make(map[int]func(State)),
		state:     emptyState(0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func emptyState(version uint64) State {
	return State{
		Version:   version,
		Global:    []models.AlertItem{},
		PerDevice: map[string][]models.AlertItem{},
		Unread:    map[string]int{},
	}
}

// Snapshot returns the current alert state.
func (c *Correlator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn for every state published after the call. fn may
// read the correlator but must not mutate it.
func (c *Correlator) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Ingest correlates one decoded alert and records it. Every alert lands
// in the global feed; resolved alerts also land in their device feed and
// bump its unread counter.
func (c *Correlator) Ingest(ctx context.Context, a alertstream.Alert) models.AlertItem {
	var mac, ip string
	if !identity.IsSentinelMAC(a.MAC) {
		mac = identity.NormalizeMAC(a.MAC)
	}
	if n := identity.NormalizeIP(a.IP); !identity.IsSentinelIP(n) {
		ip = n
	}

	snap := c.inventory.Snapshot()

	var item models.AlertItem
	resolved := false
	state := c.mutate(func(cur State) (State, bool) {
		key, ok := c.indexFor(snap).Lookup(a.MAC, a.IP)
		resolved = ok
		now := c.now()
		item = models.AlertItem{
			ID:           c.newID(),
			Message:      a.Message,
			ReceivedAt:   now.UTC().Format(time.RFC3339),
			ReceivedAtMs: now.UnixMilli(),
			DeviceMAC:    mac,
			DeviceIP:     ip,
			DeviceKey:    key,
		}

		next := cur
		next.Global = prepend(cur.Global, item, c.globalCap)
		if ok {
			next.PerDevice = copyFeeds(cur.PerDevice)
			next.PerDevice[key] = prepend(cur.PerDevice[key], item, c.deviceCap)
			next.Unread = copyCounts(cur.Unread)
			next.Unread[key]++
		}
		return next, true
	})

	if c.observer != nil {
		c.observer.ObserveAlert(resolved)
	}
	c.logger.Debug("alert correlated",
		zap.String("alert_id", item.ID),
		zap.String("device_key", item.DeviceKey),
		zap.String("mac", mac),
		zap.String("ip", ip),
		zap.Bool("resolved", resolved),
		zap.Uint64("version", state.Version),
	)
	c.publish(ctx, TopicAlertReceived, item)
	return item
}

// MarkRead resets one device's unread counter. It reports whether the
// counter was non-zero.
func (c *Correlator) MarkRead(ctx context.Context, key string) bool {
	key = identity.NormalizeKey(key)
	if key == "" {
		return false
	}
	changed := false
	c.mutate(func(cur State) (State, bool) {
		if cur.Unread[key] == 0 {
			return cur, false
		}
		next := cur
		next.Unread = copyCounts(cur.Unread)
		delete(next.Unread, key)
		changed = true
		return next, true
	})
	if changed {
		c.publish(ctx, TopicAlertsRead, key)
	}
	return changed
}

// Clear empties every feed and counter in one state replacement.
func (c *Correlator) Clear(ctx context.Context) {
	c.mutate(func(cur State) (State, bool) {
		return emptyState(cur.Version), true
	})
	c.logger.Info("alert feeds cleared")
	c.publish(ctx, TopicAlertsCleared, nil)
}

// mutate applies fn under the lock, bumps the version and notifies
// listeners in order.
func (c *Correlator) mutate(fn func(cur State) (State, bool)) State {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	next, ok := fn(c.state)
	if !ok {
		cur := c.state
		c.mu.Unlock()
		return cur
	}
	next.Version = c.state.Version + 1
	c.state = next
	listeners := make([]func(State), 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(next)
	}
	return next
}

// indexFor returns the index for snap, rebuilding it when the snapshot
// version moved. c.mu must be held.
func (c *Correlator) indexFor(snap devicestore.Snapshot) *identity.Index {
	if c.indexBuilt && c.indexVersion == snap.Version {
		return c.index
	}
	c.index = identity.BuildIndex(snap.Devices)
	c.indexVersion = snap.Version
	c.indexBuilt = true
	c.logger.Debug("correlation index rebuilt",
		zap.Uint64("snapshot_version", snap.Version),
		zap.Int("devices", len(snap.Devices)),
		zap.Int("addresses", c.index.Len()),
	)
	return c.index
}

func (c *Correlator) publish(ctx context.Context, topic string, payload any) {
	if c.publisher == nil {
		return
	}
	_ = c.publisher.Publish(ctx, event.Event{
		Topic:     topic,
		Source:    "correlator",
		Timestamp: c.now(),
		Payload:   payload,
	})
}

// prepend returns a new feed with item first, trimmed to limit.
func prepend(feed []models.AlertItem, item models.AlertItem, limit int) []models.AlertItem {
	n := len(feed)
	if n > limit-1 {
		n = limit - 1
	}
	out := make([]models.AlertItem, 0, n+1)
	out = append(out, item)
	return append(out, feed[:n]...)
}

func copyFeeds(m map[string][]models.AlertItem) map[string][]models.AlertItem {
	out := make(map[string][]models.AlertItem, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
