// Package entities is the command and query path over the host registry,
// shared by the HTTP, MQTT and MCP surfaces.
package entities

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/strefethen/heos-hub-go/internal/audit"
	"github.com/strefethen/heos-hub-go/internal/host"
	"github.com/strefethen/heos-hub-go/internal/mediaplayer"
)

var ErrNotMediaPlayer = errors.New("entity is not a media player")

// Hub is the registry surface the service needs; *host.Host implements it.
type Hub interface {
	Entity(entityID string) (host.Entity, bool)
	Entities() []host.Entity
	Lock(entityID string) (func(), error)
	RefreshEntity(ctx context.Context, entityID string) error
	RemoveEntity(entityID string) error
}

// Registry lists persisted entity records.
type Registry interface {
	List(includeRemoved bool) ([]host.RegistryEntry, error)
}

// Auditor records command outcomes.
type Auditor interface {
	RecordEvent(input audit.WriteEventInput) (*audit.AuditEvent, error)
}

// CommandRequest is one command from any surface.
type CommandRequest struct {
	EntityID  string
	Command   string
	Args      mediaplayer.Args
	RequestID string
	// Origin names the surface the command came from ("http", "mqtt", "mcp").
	Origin string
	// Client is the paired client name for authenticated HTTP requests.
	Client string
}

// Service executes commands and reads snapshots.
type Service struct {
	hub      Hub
	registry Registry
	auditor  Auditor
	logger   *log.Logger
}

// NewService builds a Service. registry and auditor may be nil.
func NewService(hub Hub, registry Registry, auditor Auditor, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{hub: hub, registry: registry, auditor: auditor, logger: logger}
}

// List returns a snapshot of every media player in registration order.
func (s *Service) List() []mediaplayer.Snapshot {
	entities := s.hub.Entities()
	snapshots := make([]mediaplayer.Snapshot, 0, len(entities))
	for _, entity := range entities {
		if player, ok := entity.(mediaplayer.Player); ok {
			snapshots = append(snapshots, mediaplayer.SnapshotOf(player))
		}
	}
	return snapshots
}

// Player looks up a media player by id.
func (s *Service) Player(entityID string) (mediaplayer.Player, error) {
	entity, ok := s.hub.Entity(entityID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", host.ErrEntityNotFound, entityID)
	}
	player, ok := entity.(mediaplayer.Player)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotMediaPlayer, entityID)
	}
	return player, nil
}

func (s *Service) Get(entityID string) (mediaplayer.Snapshot, error) {
	player, err := s.Player(entityID)
	if err != nil {
		return mediaplayer.Snapshot{}, err
	}
	return mediaplayer.SnapshotOf(player), nil
}

// Execute runs one command under the entity's command lock and audits the outcome.
// The returned snapshot is read after the command completes.
func (s *Service) Execute(ctx context.Context, req CommandRequest) (mediaplayer.Snapshot, error) {
	player, err := s.Player(req.EntityID)
	if err != nil {
		return mediaplayer.Snapshot{}, err
	}
	cmd, err := mediaplayer.ParseCommand(req.Command)
	if err != nil {
		return mediaplayer.Snapshot{}, err
	}

	unlock, err := s.hub.Lock(req.EntityID)
	if err != nil {
		return mediaplayer.Snapshot{}, err
	}
	err = mediaplayer.Dispatch(ctx, player, cmd, req.Args)
	unlock()

	s.auditCommand(req, cmd, err)
	if err != nil {
		return mediaplayer.Snapshot{}, err
	}
	return mediaplayer.SnapshotOf(player), nil
}

func (s *Service) auditCommand(req CommandRequest, cmd mediaplayer.Command, cmdErr error) {
	eventType, level := audit.EventCommandDispatched, audit.EventLevelInfo
	message := fmt.Sprintf("Command %s dispatched", cmd)
	payload := map[string]any{"command": string(cmd), "origin": req.Origin}
	if req.Client != "" {
		payload["client"] = req.Client
	}
	if args := argsPayload(req.Args); len(args) > 0 {
		payload["args"] = args
	}

	switch {
	case errors.Is(cmdErr, mediaplayer.ErrSourceNotFound):
		eventType, level = audit.EventSourceNotFound, audit.EventLevelWarn
		message = fmt.Sprintf("Source %q not found", req.Args.Source)
	case errors.Is(cmdErr, mediaplayer.ErrInvalidArgument), errors.Is(cmdErr, mediaplayer.ErrUnsupportedCommand):
		eventType, level = audit.EventCommandFailed, audit.EventLevelWarn
		message = fmt.Sprintf("Command %s rejected", cmd)
		payload["error"] = cmdErr.Error()
	case cmdErr != nil:
		eventType, level = audit.EventCommandFailed, audit.EventLevelError
		message = fmt.Sprintf("Command %s failed", cmd)
		payload["error"] = cmdErr.Error()
	}

	if cmdErr != nil {
		s.logger.Printf("ENTITIES: %s on %s failed: %v", cmd, req.EntityID, cmdErr)
	}
	if s.auditor == nil {
		return
	}

	input := audit.WriteEventInput{
		Type:     string(eventType),
		Level:    &level,
		EntityID: &req.EntityID,
		Message:  message,
		Payload:  payload,
	}
	if req.RequestID != "" {
		input.RequestID = &req.RequestID
	}
	if _, err := s.auditor.RecordEvent(input); err != nil {
		s.logger.Printf("ENTITIES: failed to audit %s on %s: %v", cmd, req.EntityID, err)
	}
}

func argsPayload(args mediaplayer.Args) map[string]any {
	out := make(map[string]any)
	if args.VolumeLevel != nil {
		out["volume_level"] = *args.VolumeLevel
	}
	if args.IsVolumeMuted != nil {
		out["is_volume_muted"] = *args.IsVolumeMuted
	}
	if args.Source != "" {
		out["source"] = args.Source
	}
	if args.Position != nil {
		out["position"] = *args.Position
	}
	return out
}

// Refresh asks the entity to update from its device.
func (s *Service) Refresh(ctx context.Context, entityID string) (mediaplayer.Snapshot, error) {
	player, err := s.Player(entityID)
	if err != nil {
		return mediaplayer.Snapshot{}, err
	}
	if err := s.hub.RefreshEntity(ctx, entityID); err != nil {
		return mediaplayer.Snapshot{}, err
	}
	return mediaplayer.SnapshotOf(player), nil
}

// Remove unregisters an entity from the host.
func (s *Service) Remove(entityID string) error {
	return s.hub.RemoveEntity(entityID)
}

// Registry lists persisted entity records. A nil registry yields an empty list.
func (s *Service) Registry(includeRemoved bool) ([]host.RegistryEntry, error) {
	if s.registry == nil {
		return []host.RegistryEntry{}, nil
	}
	return s.registry.List(includeRemoved)
}
