package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the last refresh succeeded.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the last refresh failed.
	HealthDegraded HealthStatus = "degraded"

	// HealthOffline is the last-will status published by the broker.
	HealthOffline HealthStatus = "offline"

	// HealthStarting indicates no refresh has completed yet.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is the retained status document published for the bridge.
type HealthMessage struct {
	BridgeID      string       `json:"bridge_id"`
	Version       string       `json:"version,omitempty"`
	Status        HealthStatus `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	Region        string       `json:"region,omitempty"`
	Devices       int          `json:"devices"`
	LastRefresh   *time.Time   `json:"last_refresh,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Timestamp     time.Time    `json:"timestamp"`
}

// NewLWTMessage returns the message the broker publishes if the bridge
// disconnects uncleanly.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		BridgeID:  bridgeID,
		Status:    HealthOffline,
		Reason:    "unexpected disconnect",
		Timestamp: time.Now().UTC(),
	}
}

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// HealthSource supplies the figures reported in each message.
// *Engine satisfies it.
type HealthSource interface {
	Metrics() Metrics
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	BridgeID string
	Version  string

	// Topic is where status messages are published (retained).
	Topic string

	// Interval is how often to publish. Default: 30 seconds.
	Interval time.Duration

	Publisher HealthPublisher
	Source    HealthSource
}

// HealthReporter periodically publishes the bridge status.
type HealthReporter struct {
	cfg       HealthReporterConfig
	startTime time.Time

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a reporter. Call Start to begin publishing.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &HealthReporter{
		cfg:       cfg,
		startTime: time.Now(),
		done:      make(chan struct{}),
		logger:    noopLogger{},
	}
}

// Start begins periodic reporting until Stop or ctx cancellation.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publish(h.message(HealthStopping, ""))
	})
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// LWTPayload returns the last-will payload for the MQTT connection. It is
// needed before the connection, and so before any reporter, exists.
func LWTPayload(bridgeID string) ([]byte, error) {
	return json.Marshal(NewLWTMessage(bridgeID))
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publish(h.message(status, reason))
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// determineStatus evaluates the engine's last refresh.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.cfg.Source == nil {
		return HealthStarting, ""
	}
	m := h.cfg.Source.Metrics()
	switch {
	case m.LastError != "":
		return HealthDegraded, m.LastError
	case m.LastRefresh.IsZero():
		return HealthStarting, ""
	default:
		return HealthHealthy, ""
	}
}

func (h *HealthReporter) message(status HealthStatus, reason string) HealthMessage {
	msg := HealthMessage{
		BridgeID:      h.cfg.BridgeID,
		Version:       h.cfg.Version,
		Status:        status,
		Reason:        reason,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Timestamp:     time.Now().UTC(),
	}
	if h.cfg.Source != nil {
		m := h.cfg.Source.Metrics()
		msg.Region = m.Region
		msg.Devices = m.Devices
		if !m.LastRefresh.IsZero() {
			last := m.LastRefresh.UTC()
			msg.LastRefresh = &last
		}
	}
	return msg
}

func (h *HealthReporter) publish(msg HealthMessage) error {
	if h.cfg.Publisher == nil || !h.cfg.Publisher.IsConnected() {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.cfg.Publisher.Publish(h.cfg.Topic, payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()
	logger.Error(msg, "error", err)
}
