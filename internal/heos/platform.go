package heos

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/strefethen/heos-hub-go/internal/audit"
	"github.com/strefethen/heos-hub-go/internal/host"
)

// PlatformName labels HEOS entities in the registry.
const PlatformName = "heos"

// DefaultName is used when neither the configuration nor a device supplies a name.
const DefaultName = "HEOS Player"

var (
	ErrSetupFailed   = errors.New("heos setup failed")
	ErrInvalidConfig = errors.New("invalid heos config")
)

// PlatformConfig is the user-facing platform configuration. Host is optional;
// the controller locates a device on its own when it is empty.
type PlatformConfig struct {
	Host     string
	Name     string
	Username string
	Password string
}

func (c PlatformConfig) withDefaults() PlatformConfig {
	c.Host = strings.TrimSpace(c.Host)
	c.Name = strings.TrimSpace(c.Name)
	c.Username = strings.TrimSpace(c.Username)
	if c.Name == "" {
		c.Name = DefaultName
	}
	return c
}

// Validate checks that account credentials come as a pair.
func (c PlatformConfig) Validate() error {
	c = c.withDefaults()
	if c.Password != "" && c.Username == "" {
		return fmt.Errorf("%w: password given without username", ErrInvalidConfig)
	}
	return nil
}

// SetupOptions carries optional collaborators. A nil Auditor disables auditing.
type SetupOptions struct {
	Logger  *log.Logger
	Auditor host.Auditor
	Now     func() time.Time
}

// PlatformStats summarizes the connection.
type PlatformStats struct {
	Host        string    `json:"host,omitempty"`
	Name        string    `json:"name"`
	Players     int       `json:"players"`
	Groups      int       `json:"groups"`
	Discovered  int       `json:"discovered"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Platform is a connected HEOS controller and the entities built from it.
type Platform struct {
	cfg        PlatformConfig
	controller Controller
	hub        Hub
	add        host.AddEntitiesFunc
	logger     *log.Logger
	auditor    host.Auditor

	mu          sync.Mutex
	entities    []*MediaPlayer
	discovered  int
	connectedAt time.Time
	closed      bool
}

// Setup connects to the controller and registers one entity per player and
// group in a single batch. Each entity gets a background refresh task, and
// devices announced later are registered one at a time.
func Setup(ctx context.Context, hub Hub, cfg PlatformConfig, dial Dialer, add host.AddEntitiesFunc, opts SetupOptions) (*Platform, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetupFailed, err)
	}

	controller, err := dial(ctx, ConnectOptions{Host: cfg.Host, Username: cfg.Username, Password: cfg.Password})
	if err != nil {
		if opts.Auditor != nil {
			opts.Auditor.Log(audit.EventControllerFailed, audit.EventLevelError, "", "HEOS controller connection failed",
				map[string]any{"host": cfg.Host, "error": err.Error()})
		}
		return nil, fmt.Errorf("%w: connect: %w", ErrSetupFailed, err)
	}

	p := &Platform{
		cfg:         cfg,
		controller:  controller,
		hub:         hub,
		add:         add,
		logger:      logger,
		auditor:     opts.Auditor,
		connectedAt: now(),
	}

	batch := make([]*MediaPlayer, 0)
	for _, device := range controller.Players() {
		if device == nil {
			continue
		}
		batch = append(batch, NewMediaPlayer(device, KindPlayer, hub, cfg.Name, logger))
	}
	for _, device := range controller.Groups() {
		if device == nil {
			continue
		}
		batch = append(batch, NewMediaPlayer(device, KindGroup, hub, cfg.Name, logger))
	}

	p.mu.Lock()
	p.entities = append(p.entities, batch...)
	p.mu.Unlock()

	entities := make([]host.Entity, len(batch))
	for i, player := range batch {
		entities[i] = player
	}
	add(entities)

	for _, player := range batch {
		p.startRefresh(player)
	}

	controller.OnNewDevice(p.handleNewDevice)

	if p.auditor != nil {
		p.auditor.Log(audit.EventControllerConnected, audit.EventLevelInfo, "", "HEOS controller connected",
			map[string]any{"host": cfg.Host, "entities": len(batch)})
	}
	logger.Printf("HEOS: connected, %d entities registered", len(batch))
	return p, nil
}

func (p *Platform) handleNewDevice(device Device, kind DeviceKind) {
	if device == nil {
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	player := NewMediaPlayer(device, kind, p.hub, p.cfg.Name, p.logger)
	p.entities = append(p.entities, player)
	p.discovered++
	p.mu.Unlock()

	if p.auditor != nil {
		p.auditor.Log(audit.EventDeviceDiscovered, audit.EventLevelInfo, player.EntityID(), "HEOS device discovered",
			map[string]any{"kind": string(kind), "name": player.Name()})
	}
	p.logger.Printf("HEOS: discovered %s (%s)", player.EntityID(), player.Name())

	p.add([]host.Entity{player})
	p.startRefresh(player)
}

func (p *Platform) startRefresh(player *MediaPlayer) {
	p.hub.CreateTask("heos refresh "+player.EntityID(), player.runUpdater)
}

// Entities returns the adapters created so far.
func (p *Platform) Entities() []*MediaPlayer {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*MediaPlayer, len(p.entities))
	copy(out, p.entities)
	return out
}

// Connected reports whether the controller is still open.
func (p *Platform) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed
}

func (p *Platform) Stats() PlatformStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	stats := PlatformStats{
		Host:        p.cfg.Host,
		Name:        p.cfg.Name,
		Discovered:  p.discovered,
		ConnectedAt: p.connectedAt,
	}
	for _, player := range p.entities {
		if player.Kind() == KindGroup {
			stats.Groups++
		} else {
			stats.Players++
		}
	}
	return stats
}

// Close disconnects the controller. Calling it twice is safe.
func (p *Platform) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if err := p.controller.Close(); err != nil {
		return fmt.Errorf("close heos controller: %w", err)
	}
	return nil
}
