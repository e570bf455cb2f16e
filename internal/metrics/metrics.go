// Package metrics exposes bridge activity to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/garage-bridge/internal/door"
)

const namespace = "garagebridge"

// Metrics holds the bridge's collectors in a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	refreshes           *prometheus.CounterVec
	refreshDuration     prometheus.Histogram
	notifications       *prometheus.CounterVec
	transitions         *prometheus.CounterVec
	regionSwitches      prometheus.Counter
	commands            *prometheus.CounterVec
	discoveryReplies    *prometheus.CounterVec
}

// New creates a fresh Metrics registry with all bridge metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of HTTP requests served by the bridge",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests served by the bridge",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Cloud refresh cycles by result",
		}, []string{"result"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of cloud refresh cycles",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Hub notifications by result",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "door_transitions_total",
			Help:      "Observed door state transitions by new state",
		}, []string{"state"}),
		regionSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "region_switches_total",
			Help:      "Number of times the cloud session moved to another region",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Door commands by command and result",
		}, []string{"command", "result"}),
		discoveryReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_replies_total",
			Help:      "Discovery messages sent by kind and result",
		}, []string{"kind", "result"}),
	}

	registry.MustRegister(
		m.httpRequests,
		m.httpRequestDuration,
		m.refreshes,
		m.refreshDuration,
		m.notifications,
		m.transitions,
		m.regionSwitches,
		m.commands,
		m.discoveryReplies,
	)
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
// path should be a route pattern, not the raw URL.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// RefreshCompleted records one refresh cycle.
func (m *Metrics) RefreshCompleted(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result(err)).Inc()
	m.refreshDuration.Observe(elapsed.Seconds())
}

// NotificationDelivered records one hub notification attempt.
func (m *Metrics) NotificationDelivered(err error) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result(err)).Inc()
}

// TransitionObserved counts a door state change.
func (m *Metrics) TransitionObserved(to door.DoorState) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(to)).Inc()
}

// RegionSwitched counts a cloud region fallback.
func (m *Metrics) RegionSwitched() {
	if m == nil {
		return
	}
	m.regionSwitches.Inc()
}

// CommandExecuted records a door command.
func (m *Metrics) CommandExecuted(command string, err error) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, result(err)).Inc()
}

// DiscoveryReply records a discovery message.
func (m *Metrics) DiscoveryReply(kind string, err error) {
	if m == nil {
		return
	}
	m.discoveryReplies.WithLabelValues(kind, result(err)).Inc()
}

// RegisterDeviceGauge exposes the cached device count, read on each scrape.
func (m *Metrics) RegisterDeviceGauge(count func() int) {
	if m == nil || count == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "devices",
		Help:      "Devices currently held in the cache",
	}, func() float64 { return float64(count()) }))
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
