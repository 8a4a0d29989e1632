package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/keyrhythm-core/internal/telemetry"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	Capture       CaptureMetrics   `json:"capture"`
	Attempts      *telemetry.Stats `json:"attempts,omitempty"`
	Sinks         SinkMetrics      `json:"sinks"`
	Database      DatabaseMetrics  `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// CaptureMetrics counts open capture sockets.
type CaptureMetrics struct {
	OpenSockets int `json:"open_sockets"`
}

// SinkMetrics lists the telemetry sinks and broker connectivity.
type SinkMetrics struct {
	Active        []string `json:"active"`
	MQTTConnected bool     `json:"mqtt_connected"`
	InfluxDB      bool     `json:"influxdb_connected"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns runtime, capture, attempt and storage metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Capture: CaptureMetrics{
			OpenSockets: s.hub.ClientCount(),
		},
		Sinks: SinkMetrics{Active: []string{}},
	}

	if s.telemetry != nil {
		stats := s.telemetry.Stats()
		metrics.Attempts = &stats
		metrics.Sinks.Active = s.telemetry.Sinks()
	}
	if s.mqtt != nil {
		metrics.Sinks.MQTTConnected = s.mqtt.IsConnected()
	}
	if s.influx != nil {
		metrics.Sinks.InfluxDB = s.influx.IsConnected()
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
