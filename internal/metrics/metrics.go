// Package metrics exposes Prometheus instruments for the backend client,
// the alert stream, the correlator and the device inventory.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HerbHall/netdash/internal/alertstream"
	"github.com/HerbHall/netdash/internal/backend"
	"github.com/HerbHall/netdash/internal/correlator"
	"github.com/HerbHall/netdash/internal/devicestore"
)

const namespace = "netdash"

var streamStates = []alertstream.State{
	alertstream.StateConnecting,
	alertstream.StateOpen,
	alertstream.StateClosed,
	alertstream.StateError,
}

// Compile-time interface guards.
var (
	_ backend.RequestObserver = (*Metrics)(nil)
	_ alertstream.Observer    = (*Metrics)(nil)
	_ correlator.Observer     = (*Metrics)(nil)
)

// Metrics owns a private Prometheus registry and every netdash instrument.
type Metrics struct {
	registry *prometheus.Registry

	backendRequests *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
	streamState     *prometheus.GaugeVec
	reconnects      prometheus.Counter
	alerts          *prometheus.CounterVec
	devices         prometheus.Gauge
	credentials     prometheus.Gauge
	fallback        prometheus.Gauge
	snapshotVersion prometheus.Gauge
}

// New registers all instruments plus the Go and process collectors on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		backendRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Backend HTTP requests by endpoint and status code (0 for transport errors).",
		}, []string{"endpoint", "code"}),
		backendLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Backend HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		streamState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "state",
			Help:      "Alert stream connection state; 1 for the current state.",
		}, []string{"state"}),
		reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Scheduled alert stream reconnect attempts.",
		}),
		alerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "received_total",
			Help:      "Alerts accepted by the correlator.",
		}, []string{"result"}),
		devices: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "devices",
			Help:      "Devices in the current snapshot.",
		}),
		credentials: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "credentials",
			Help:      "Credentials in the current snapshot.",
		}),
		fallback: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "fallback",
			Help:      "1 when the snapshot holds bundled fallback data.",
		}),
		snapshotVersion: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "snapshot_version",
			Help:      "Version of the current device snapshot.",
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveBackendRequest records one backend call.
func (m *Metrics) ObserveBackendRequest(path string, status int, elapsed time.Duration) {
	endpoint := endpointLabel(path)
	m.backendRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	m.backendLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// ObserveStreamState sets the state gauge to one-hot on s.
func (m *Metrics) ObserveStreamState(s alertstream.State) {
	for _, st := range streamStates {
		v := 0.0
		if st == s {
			v = 1
		}
		m.streamState.WithLabelValues(string(st)).Set(v)
	}
}

// ObserveReconnect counts a scheduled reconnect.
func (m *Metrics) ObserveReconnect() {
	m.reconnects.Inc()
}

// ObserveAlert counts an accepted alert.
func (m *Metrics) ObserveAlert(resolved bool) {
	result := "unresolved"
	if resolved {
		result = "resolved"
	}
	m.alerts.WithLabelValues(result).Inc()
}

// ObserveSnapshot mirrors a device snapshot into the inventory gauges.
func (m *Metrics) ObserveSnapshot(s devicestore.Snapshot) {
	m.devices.Set(float64(len(s.Devices)))
	m.credentials.Set(float64(len(s.Credentials)))
	m.snapshotVersion.Set(float64(s.Version))
	if s.UsingFallback {
		m.fallback.Set(1)
	} else {
		m.fallback.Set(0)
	}
}

// endpointLabel collapses per-word white-list paths so the label set
// stays bounded.
func endpointLabel(path string) string {
	const deleteWords = "/white_list/delete_words/"
	if strings.HasPrefix(path, deleteWords) {
		return deleteWords + "{word}"
	}
	return path
}
