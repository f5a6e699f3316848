// Package forward republishes correlated alerts to an MQTT broker.
package forward

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/HerbHall/netdash/internal/correlator"
	"github.com/HerbHall/netdash/internal/event"
	"github.com/HerbHall/netdash/pkg/models"
)

// Config holds MQTT forwarder configuration.
type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	ConnectTimeout time.Duration
}

// ErrNoBroker is returned by New when no broker URL is configured.
var ErrNoBroker = errors.New("mqtt broker not configured")

// publisher is the subset of pahomqtt.Client the forwarder uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
}

// Forwarder publishes alert.received events to MQTT.
type Forwarder struct {
	client publisher
	prefix string
	qos    byte
	logger *zap.Logger

	mu    sync.Mutex
	unsub func()
}

// New connects to the broker and returns a Forwarder. The broker's last
// will marks the bridge offline when netdash disappears.
func New(cfg Config, logger *zap.Logger) (*Forwarder, error) {
	if cfg.Broker == "" {
		return nil, ErrNoBroker
	}
	if cfg.QoS > 1 {
		return nil, fmt.Errorf("mqtt qos %d not supported (use 0 or 1)", cfg.QoS)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "netdash"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := strings.TrimRight(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = "netdash"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(prefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(c pahomqtt.Client) {
			logger.Info("mqtt connected", zap.String("broker", cfg.Broker))
			c.Publish(prefix+"/bridge/state", 1, true, "online")
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			logger.Warn("mqtt connection lost", zap.Error(err))
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return newForwarder(client, prefix, cfg.QoS, logger), nil
}

func newForwarder(client publisher, prefix string, qos byte, logger *zap.Logger) *Forwarder {
	return &Forwarder{client: client, prefix: prefix, qos: qos, logger: logger}
}

// Attach subscribes the forwarder to correlated alerts on sub.
func (f *Forwarder) Attach(sub event.Subscriber) {
	unsub := sub.Subscribe(correlator.TopicAlertReceived, f.handleEvent)
	f.mu.Lock()
	f.unsub = unsub
	f.mu.Unlock()
	f.logger.Info("mqtt forwarder started", zap.String("prefix", f.prefix))
}

// Stop unsubscribes, marks the bridge offline and disconnects.
func (f *Forwarder) Stop() {
	f.mu.Lock()
	if f.unsub != nil {
		f.unsub()
		f.unsub = nil
	}
	f.mu.Unlock()
	f.publish(f.prefix+"/bridge/state", []byte("offline"), true)
	f.client.Disconnect(1000)
	f.logger.Info("mqtt forwarder stopped")
}

func (f *Forwarder) handleEvent(_ context.Context, e event.Event) {
	item, ok := e.Payload.(models.AlertItem)
	if !ok {
		return
	}
	f.Forward(item)
}

// Forward publishes one alert to the global topic and, when attributed,
// to its device topic.
func (f *Forwarder) Forward(item models.AlertItem) {
	payload, err := json.Marshal(item)
	if err != nil {
		f.logger.Error("marshal alert", zap.String("alert_id", item.ID), zap.Error(err))
		return
	}
	f.publish(f.prefix+"/alerts", payload, false)
	if item.DeviceKey != "" {
		f.publish(f.prefix+"/devices/"+TopicSegment(item.DeviceKey)+"/alerts", payload, false)
	}
}

func (f *Forwarder) publish(topic string, payload []byte, retained bool) {
	token := f.client.Publish(topic, f.qos, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			f.logger.Warn("mqtt publish timeout", zap.String("topic", topic))
		} else if err := token.Error(); err != nil {
			f.logger.Warn("mqtt publish error", zap.String("topic", topic), zap.Error(err))
		}
	}()
}

// TopicSegment makes a device key safe for use as one topic level.
func TopicSegment(key string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_", ":", "_").Replace(key)
}
