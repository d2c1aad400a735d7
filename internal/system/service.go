package system

import (
	"log"
	"runtime"
	"time"

	"github.com/strefethen/heos-hub-go/internal/heos"
	"github.com/strefethen/heos-hub-go/internal/host"
	"github.com/strefethen/heos-hub-go/internal/stream"
)

// Version is the hub version, set at build time or defaulted.
var Version = "1.0.0"

// HostStatus is implemented by *host.Host.
type HostStatus interface {
	Stats() host.Stats
}

// PlatformStatus is implemented by *heos.Platform.
type PlatformStatus interface {
	Connected() bool
	Stats() heos.PlatformStats
}

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	IsHealthy() bool
}

// StreamStatus is implemented by *stream.Manager.
type StreamStatus interface {
	Stats() stream.Stats
}

// ConnectionStatus is implemented by the MQTT and InfluxDB clients.
type ConnectionStatus interface {
	IsConnected() bool
}

// Options wires the components the service reports on. Nil fields are
// reported as disabled.
type Options struct {
	Logger   *log.Logger
	Host     HostStatus
	Platform PlatformStatus
	Audit    HealthChecker
	Stream   StreamStatus
	MQTT     ConnectionStatus
	Influx   ConnectionStatus
	MCP      bool
}

// Service provides runtime information about the hub.
type Service struct {
	opts      Options
	logger    *log.Logger
	startTime time.Time
	now       func() time.Time
}

// NewService creates a new system service.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		opts:      opts,
		logger:    logger,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// ControllerInfo describes the HEOS controller connection.
type ControllerInfo struct {
	Connected bool                `json:"connected"`
	Stats     *heos.PlatformStats `json:"stats,omitempty"`
}

// SystemInfo holds system information.
type SystemInfo struct {
	HubVersion        string          `json:"hub_version"`
	Uptime            int64           `json:"uptime_seconds"`
	MemoryUsageMB     float64         `json:"memory_mb"`
	Goroutines        int             `json:"goroutines"`
	EntitiesTotal     int             `json:"entities_total"`
	EntitiesAvailable int             `json:"entities_available"`
	Host              host.Stats      `json:"host"`
	Controller        ControllerInfo  `json:"controller"`
	AuditHealthy      bool            `json:"audit_healthy"`
	Stream            *stream.Stats   `json:"stream,omitempty"`
	MQTTConnected     *bool           `json:"mqtt_connected"`
	InfluxConnected   *bool           `json:"influx_connected"`
	MCPEnabled        bool            `json:"mcp_enabled"`
	AttentionItems    []AttentionItem `json:"attention_items"`
}

// AttentionItem represents an item that needs user attention.
type AttentionItem struct {
	Type        string         `json:"type"`
	Severity    string         `json:"severity"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	ResolveHint string         `json:"resolve_hint,omitempty"`
}

// GetSystemInfo returns current system information.
func (s *Service) GetSystemInfo() *SystemInfo {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	info := &SystemInfo{
		HubVersion:    Version,
		Uptime:        int64(s.now().Sub(s.startTime).Seconds()),
		MemoryUsageMB: float64(memStats.Alloc) / 1024 / 1024,
		Goroutines:    runtime.NumGoroutine(),
		MCPEnabled:    s.opts.MCP,
	}

	if s.opts.Host != nil {
		info.Host = s.opts.Host.Stats()
		info.EntitiesTotal = info.Host.Entities
		info.EntitiesAvailable = info.Host.AvailableEntities
	}
	if s.opts.Platform != nil {
		info.Controller.Connected = s.opts.Platform.Connected()
		stats := s.opts.Platform.Stats()
		info.Controller.Stats = &stats
	}
	if s.opts.Audit != nil {
		info.AuditHealthy = s.opts.Audit.IsHealthy()
	}
	if s.opts.Stream != nil {
		stats := s.opts.Stream.Stats()
		info.Stream = &stats
	}
	if s.opts.MQTT != nil {
		connected := s.opts.MQTT.IsConnected()
		info.MQTTConnected = &connected
	}
	if s.opts.Influx != nil {
		connected := s.opts.Influx.IsConnected()
		info.InfluxConnected = &connected
	}

	info.AttentionItems = s.checkAttentionItems(info)
	return info
}

// checkAttentionItems checks for items that need user attention.
func (s *Service) checkAttentionItems(info *SystemInfo) []AttentionItem {
	items := []AttentionItem{}

	if s.opts.Platform != nil && !info.Controller.Connected {
		items = append(items, AttentionItem{
			Type:        "controller_disconnected",
			Severity:    "critical",
			Message:     "HEOS controller is not connected",
			ResolveHint: "Check HEOS_HOST and the account credentials",
		})
	}

	if offline := info.EntitiesTotal - info.EntitiesAvailable; offline > 0 {
		items = append(items, AttentionItem{
			Type:     "entity_unavailable",
			Severity: "warning",
			Message:  "Some players are unavailable",
			Details: map[string]any{
				"unavailable_count": offline,
			},
			ResolveHint: "Check device power and network connectivity",
		})
	}

	if info.Host.DroppedUpdates > 0 {
		items = append(items, AttentionItem{
			Type:     "updates_dropped",
			Severity: "warning",
			Message:  "State updates were dropped because the update queue was full",
			Details: map[string]any{
				"dropped": info.Host.DroppedUpdates,
			},
			ResolveHint: "Increase UPDATE_QUEUE_SIZE",
		})
	}

	if s.opts.Audit != nil && !info.AuditHealthy {
		items = append(items, AttentionItem{
			Type:        "database_unhealthy",
			Severity:    "critical",
			Message:     "Audit trail writes are failing",
			ResolveHint: "Check database file permissions and disk space",
		})
	}

	if info.MQTTConnected != nil && !*info.MQTTConnected {
		items = append(items, AttentionItem{
			Type:        "mqtt_disconnected",
			Severity:    "warning",
			Message:     "MQTT broker connection lost",
			ResolveHint: "The client reconnects automatically; check MQTT_HOST if this persists",
		})
	}

	return items
}
