// Package alerts connects the white-list alert stream to the correlator and
// serves the alert feeds, the live WebSocket feed and the white-list
// management API.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/HerbHall/netdash/internal/alertstream"
	"github.com/HerbHall/netdash/internal/config"
	"github.com/HerbHall/netdash/internal/correlator"
	"github.com/HerbHall/netdash/internal/event"
	"github.com/HerbHall/netdash/internal/forward"
	"github.com/HerbHall/netdash/internal/live"
	"github.com/HerbHall/netdash/internal/plugin"
)

// TopicStreamState is published with a StreamStatus on every connection
// state change.
const TopicStreamState = "alerts.stream"

// WhiteList is the backend white-list API.
type WhiteList interface {
	GetWhiteList(ctx context.Context) ([]string, error)
	AddWhiteListWords(ctx context.Context, words []string) error
	DeleteWhiteListWord(ctx context.Context, word string) error
}

// Bus is the event bus the plugin publishes to and fans out from.
type Bus interface {
	event.Publisher
	event.Subscriber
}

// Deps are the collaborators the plugin wires together.
type Deps struct {
	Correlator *correlator.Correlator
	WhiteList  WhiteList
	Bus        Bus
	// StreamURL is used when plugins.alerts.stream_url is empty.
	StreamURL string
	// Dialer defaults to alertstream.WebSocketDialer.
	Dialer   alertstream.Dialer
	Observer alertstream.Observer
}

// StreamStatus describes the alert stream connection.
type StreamStatus struct {
	State alertstream.State `json:"state"`
	URL   string            `json:"url"`
	Since time.Time         `json:"since"`
}

// Plugin implements the alerts module.
type Plugin struct {
	correlator *correlator.Correlator
	whiteList  WhiteList
	bus        Bus
	defaultURL string
	dialer     alertstream.Dialer
	observer   alertstream.Observer

	logger *zap.Logger
	stream *alertstream.Client
	hub    *live.Hub
	mqtt   forward.Config
	qos    int

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	since     time.Time
	forwarder *forward.Forwarder
	detach    func()
	hubDone   chan struct{}
}

// New creates the alerts plugin.
func New(deps Deps) *Plugin {
	return &Plugin{
		correlator: deps.Correlator,
		whiteList:  deps.WhiteList,
		bus:        deps.Bus,
		defaultURL: deps.StreamURL,
		dialer:     deps.Dialer,
		observer:   deps.Observer,
		logger:     zap.NewNop(),
		ctx:        context.Background(),
	}
}

func (p *Plugin) Name() string    { return "alerts" }
func (p *Plugin) Version() string { return "0.1.0" }

// Dependencies implements plugin.Dependent. Alerts are resolved against
// the inventory.
func (p *Plugin) Dependencies() []string { return []string{"inventory"} }

func (p *Plugin) Init(v *viper.Viper, logger *zap.Logger) error {
	cfg := config.New(v)
	p.logger = logger

	url := cfg.GetString("stream_url")
	if url == "" {
		url = p.defaultURL
	}
	dialer := p.dialer
	if dialer == nil {
		dialer = alertstream.WebSocketDialer{}
	}
	stream, err := alertstream.New(alertstream.Config{
		URL:            url,
		Dialer:         dialer,
		ReconnectDelay: cfg.GetDuration("reconnect_delay"),
		Logger:         logger,
		Observer:       p.observer,
		OnAlert:        p.onAlert,
		OnState:        p.onState,
	})
	if err != nil {
		return fmt.Errorf("alert stream: %w", err)
	}
	p.stream = stream

	p.hub = live.NewHub(logger.Named("live"), live.Options{
		OriginPatterns: cfg.Viper().GetStringSlice("origin_patterns"),
		Hello:          p.hello,
	})

	mq := cfg.Sub("mqtt")
	p.qos = mq.GetInt("qos")
	p.mqtt = forward.Config{
		Broker:         mq.GetString("broker"),
		ClientID:       mq.GetString("client_id"),
		Username:       mq.GetString("username"),
		Password:       mq.GetString("password"),
		TopicPrefix:    mq.GetString("topic_prefix"),
		QoS:            qosByte(p.qos),
		ConnectTimeout: mq.GetDuration("connect_timeout"),
	}

	p.logger.Info("alerts module initialized",
		zap.String("stream_url", url),
		zap.Bool("mqtt", p.mqtt.Broker != ""),
	)
	return nil
}

// ValidateConfig implements plugin.Validator.
func (p *Plugin) ValidateConfig() error {
	if p.correlator == nil {
		return errors.New("alert correlator is required")
	}
	if p.qos < 0 || p.qos > 1 {
		return fmt.Errorf("mqtt qos %d not supported (use 0 or 1)", p.qos)
	}
	return nil
}

// Start runs the live hub, attaches the optional MQTT forwarder and opens
// the alert stream. A broker that cannot be reached is logged and skipped.
func (p *Plugin) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.ctx, p.cancel = ctx, cancel
	p.since = time.Now()
	p.hubDone = make(chan struct{})
	p.mu.Unlock()

	go func() {
		defer close(p.hubDone)
		p.hub.Run()
	}()
	if p.bus != nil {
		p.detach = p.hub.Attach(p.bus)
	}

	if p.mqtt.Broker != "" && p.bus != nil {
		fwd, err := forward.New(p.mqtt, p.logger.Named("mqtt"))
		if err != nil {
			p.logger.Warn("mqtt forwarding disabled", zap.String("broker", p.mqtt.Broker), zap.Error(err))
		} else {
			fwd.Attach(p.bus)
			p.forwarder = fwd
		}
	}

	p.stream.Start(ctx)
	p.logger.Info("alerts module started")
	return nil
}

func (p *Plugin) Stop() error {
	if p.stream != nil {
		p.stream.Stop()
	}
	if p.forwarder != nil {
		p.forwarder.Stop()
		p.forwarder = nil
	}
	if p.detach != nil {
		p.detach()
		p.detach = nil
	}
	if p.hub != nil {
		p.hub.Stop()
	}
	p.mu.Lock()
	cancel, done := p.cancel, p.hubDone
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	p.logger.Info("alerts module stopped")
	return nil
}

// Health implements plugin.HealthChecker. Anything but an open stream is
// degraded; the feeds keep serving while the stream reconnects.
func (p *Plugin) Health(_ context.Context) plugin.HealthStatus {
	st := p.status()
	details := map[string]string{
		"state":      string(st.State),
		"unread":     fmt.Sprint(p.correlator.Snapshot().UnreadTotal()),
		"live_peers": fmt.Sprint(p.hub.Clients()),
	}
	if st.State == alertstream.StateOpen {
		return plugin.HealthStatus{Status: plugin.HealthOK, Details: details}
	}
	return plugin.HealthStatus{
		Status:  plugin.HealthDegraded,
		Message: "alert stream " + string(st.State),
		Details: details,
	}
}

// qosByte converts a validated QoS level. Out of range values map to 0 and
// are rejected by ValidateConfig.
func qosByte(qos int) byte {
	if qos == 1 {
		return 1
	}
	return 0
}

func (p *Plugin) status() StreamStatus {
	p.mu.Lock()
	since := p.since
	p.mu.Unlock()
	return StreamStatus{State: p.stream.State(), URL: p.stream.URL(), Since: since}
}

func (p *Plugin) onAlert(a alertstream.Alert) {
	p.mu.Lock()
	ctx := p.ctx
	p.mu.Unlock()
	item := p.correlator.Ingest(ctx, a)
	p.logger.Debug("alert received",
		zap.String("id", item.ID),
		zap.String("device", item.DeviceKey),
	)
}

func (p *Plugin) onState(s alertstream.State) {
	p.mu.Lock()
	p.since = time.Now()
	ctx, since := p.ctx, p.since
	p.mu.Unlock()
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(ctx, event.Event{
		Topic:   TopicStreamState,
		Source:  p.Name(),
		Payload: StreamStatus{State: s, URL: p.stream.URL(), Since: since},
	}); err != nil {
		p.logger.Debug("publish stream state", zap.Error(err))
	}
}

// hello is the first frame of every live connection.
func (p *Plugin) hello() any {
	s := p.correlator.Snapshot()
	return map[string]any{
		"stream":       p.status(),
		"version":      s.Version,
		"unread_total": s.UnreadTotal(),
		"recent":       s.Global,
	}
}
