// Package inventory exposes the device store, its projection and the
// backend group and credential operations over HTTP.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/HerbHall/netdash/internal/backend"
	"github.com/HerbHall/netdash/internal/config"
	"github.com/HerbHall/netdash/internal/correlator"
	"github.com/HerbHall/netdash/internal/devicestore"
	"github.com/HerbHall/netdash/internal/event"
	"github.com/HerbHall/netdash/internal/plugin"
	"github.com/HerbHall/netdash/pkg/models"
)

// TopicUpdated is published with a Summary whenever the store snapshot
// changes.
const TopicUpdated = "inventory.updated"

// Groups is the backend group API.
type Groups interface {
	GetGroups(ctx context.Context) ([]models.GroupWithMembers, error)
	GetGroup(ctx context.Context, name string) (models.GroupWithMembers, error)
	AddGroup(ctx context.Context, name string) error
	AssignDeviceToGroup(ctx context.Context, mac, group string) error
	RemoveDeviceFromGroup(ctx context.Context, mac, group string) error
	DeleteGroup(ctx context.Context, name string) error
}

// AlertState provides the alert feeds the projection annotates devices with.
type AlertState interface {
	Snapshot() correlator.State
}

// SnapshotObserver receives every new snapshot for metrics.
type SnapshotObserver interface {
	ObserveSnapshot(s devicestore.Snapshot)
}

// Deps are the collaborators the plugin serves.
type Deps struct {
	Store    *devicestore.Store
	Groups   Groups
	Alerts   AlertState
	Bus      event.Publisher
	Observer SnapshotObserver
}

// Summary describes a snapshot without its device list.
type Summary struct {
	Version       uint64    `json:"version"`
	Devices       int       `json:"devices"`
	Credentials   int       `json:"credentials"`
	UsingFallback bool      `json:"using_fallback"`
	Message       string    `json:"message"`
	LoadedAt      time.Time `json:"loaded_at"`
}

func summarize(s devicestore.Snapshot) Summary {
	return Summary{
		Version:       s.Version,
		Devices:       len(s.Devices),
		Credentials:   len(s.Credentials),
		UsingFallback: s.UsingFallback,
		Message:       s.Message,
		LoadedAt:      s.LoadedAt,
	}
}

// Plugin implements the inventory module.
type Plugin struct {
	store    *devicestore.Store
	groups   Groups
	alerts   AlertState
	bus      event.Publisher
	observer SnapshotObserver

	logger        *zap.Logger
	reloadOnStart bool
	refreshMethod string

	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
}

// New creates the inventory plugin.
func New(deps Deps) *Plugin {
	return &Plugin{
		store:    deps.Store,
		groups:   deps.Groups,
		alerts:   deps.Alerts,
		bus:      deps.Bus,
		observer: deps.Observer,
		logger:   zap.NewNop(),
	}
}

func (p *Plugin) Name() string    { return "inventory" }
func (p *Plugin) Version() string { return "0.1.0" }

func (p *Plugin) Init(v *viper.Viper, logger *zap.Logger) error {
	cfg := config.New(v)
	p.logger = logger
	p.reloadOnStart = true
	if cfg.IsSet("reload_on_start") {
		p.reloadOnStart = cfg.GetBool("reload_on_start")
	}
	p.refreshMethod = cfg.GetString("refresh_method")
	if p.refreshMethod == "" {
		p.refreshMethod = string(backend.MethodSNMP)
	}
	p.logger.Info("inventory module initialized",
		zap.Bool("reload_on_start", p.reloadOnStart),
		zap.String("refresh_method", p.refreshMethod),
	)
	return nil
}

// ValidateConfig implements plugin.Validator.
func (p *Plugin) ValidateConfig() error {
	if p.store == nil {
		return errors.New("device store is required")
	}
	if _, ok := backend.ParseMethod(p.refreshMethod); !ok {
		return fmt.Errorf("refresh_method %q: %w", p.refreshMethod, devicestore.ErrInvalidMethod)
	}
	return nil
}

// Start forwards snapshot changes to the bus and, when configured, loads
// the inventory in the background.
func (p *Plugin) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)
	p.unsubscribe = p.store.Subscribe(func(s devicestore.Snapshot) {
		p.onSnapshot(ctx, s)
	})

	if p.reloadOnStart {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			snap, err := p.store.Reload(ctx)
			if err != nil {
				p.logger.Warn("initial inventory load failed", zap.Error(err))
				return
			}
			p.logger.Info("inventory loaded",
				zap.Int("devices", len(snap.Devices)),
				zap.Bool("using_fallback", snap.UsingFallback),
			)
		}()
	}
	p.logger.Info("inventory module started")
	return nil
}

func (p *Plugin) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
	p.logger.Info("inventory module stopped")
	return nil
}

// Health implements plugin.HealthChecker. Fallback data and a store that
// has not loaded yet are reported as degraded.
func (p *Plugin) Health(_ context.Context) plugin.HealthStatus {
	s := p.store.Snapshot()
	details := map[string]string{
		"version": fmt.Sprint(s.Version),
		"devices": fmt.Sprint(len(s.Devices)),
	}
	switch {
	case s.UsingFallback, s.Version == 0:
		return plugin.HealthStatus{Status: plugin.HealthDegraded, Message: s.Message, Details: details}
	default:
		return plugin.HealthStatus{Status: plugin.HealthOK, Details: details}
	}
}

func (p *Plugin) onSnapshot(ctx context.Context, s devicestore.Snapshot) {
	if p.observer != nil {
		p.observer.ObserveSnapshot(s)
	}
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(ctx, event.Event{
		Topic:   TopicUpdated,
		Source:  p.Name(),
		Payload: summarize(s),
	}); err != nil {
		p.logger.Debug("publish inventory update", zap.Error(err))
	}
}

func (p *Plugin) alertState() correlator.State {
	if p.alerts == nil {
		return correlator.State{}
	}
	return p.alerts.Snapshot()
}
