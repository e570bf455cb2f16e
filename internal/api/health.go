package api

import (
	"net/http"
	"runtime"
	"time"
)

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status        string         `json:"status"`
	Version       string         `json:"version"`
	Timestamp     string         `json:"timestamp"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Region        string         `json:"region"`
	Bridge        BridgeMetrics  `json:"bridge"`
	Runtime       RuntimeMetrics `json:"runtime"`
}

// BridgeMetrics contains refresh loop statistics.
type BridgeMetrics struct {
	Devices             int    `json:"devices"`
	Refreshes           uint64 `json:"refreshes"`
	RefreshFailures     uint64 `json:"refresh_failures"`
	Transitions         uint64 `json:"transitions"`
	NotificationsSent   uint64 `json:"notifications_sent"`
	NotificationsFailed uint64 `json:"notifications_failed"`
	Commands            uint64 `json:"commands"`
	LastRefresh         string `json:"last_refresh,omitempty"`
	LastError           string `json:"last_error,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// handleHealth reports "ok", or "degraded" while the last refresh failed.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m := s.bridge.Metrics()
	resp := HealthResponse{
		Status:        "ok",
		Version:       s.version,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Region:        m.Region,
		Bridge: BridgeMetrics{
			Devices:             m.Devices,
			Refreshes:           m.Refreshes,
			RefreshFailures:     m.RefreshFailures,
			Transitions:         m.Transitions,
			NotificationsSent:   m.NotificationsSent,
			NotificationsFailed: m.NotificationsFailed,
			Commands:            m.Commands,
			LastError:           m.LastError,
		},
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	}
	if !m.LastRefresh.IsZero() {
		resp.Bridge.LastRefresh = m.LastRefresh.UTC().Format(time.RFC3339)
	}
	if m.LastError != "" {
		resp.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, resp)
}
