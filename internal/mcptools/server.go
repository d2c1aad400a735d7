// Package mcptools exposes the media players as MCP tools over SSE.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/strefethen/heos-hub-go/internal/entities"
	"github.com/strefethen/heos-hub-go/internal/mediaplayer"
)

const (
	ServerName      = "heos-hub"
	SSEEndpoint     = "/mcp/sse"
	MessageEndpoint = "/mcp/message"
)

// Service is the command path the tools call; *entities.Service implements it.
type Service interface {
	List() []mediaplayer.Snapshot
	Get(entityID string) (mediaplayer.Snapshot, error)
	Execute(ctx context.Context, req entities.CommandRequest) (mediaplayer.Snapshot, error)
}

// Server is an MCP server with an SSE transport mounted on the hub router.
type Server struct {
	mcp    *server.MCPServer
	sse    *server.SSEServer
	tools  *tools
	logger *log.Logger
}

// NewServer registers the tools. baseURL is the externally reachable hub URL
// advertised to SSE clients.
func NewServer(service Service, baseURL, version string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	mcpServer := server.NewMCPServer(ServerName, version, server.WithToolCapabilities(true))
	t := &tools{service: service}
	mcpServer.AddTools(t.serverTools()...)

	sseServer := server.NewSSEServer(
		mcpServer,
		server.WithBaseURL(strings.TrimSuffix(baseURL, "/")),
		server.WithSSEEndpoint(SSEEndpoint),
		server.WithMessageEndpoint(MessageEndpoint),
		server.WithKeepAlive(true),
		server.WithKeepAliveInterval(30*time.Second),
	)

	return &Server{mcp: mcpServer, sse: sseServer, tools: t, logger: logger}
}

// RegisterRoutes mounts the SSE and message endpoints.
func (s *Server) RegisterRoutes(router chi.Router) {
	router.Handle(SSEEndpoint, s.sse.SSEHandler())
	router.Handle(MessageEndpoint, s.sse.MessageHandler())
	s.logger.Printf("MCP: tools available at %s", SSEEndpoint)
}

// Shutdown closes open SSE sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.sse.Shutdown(ctx)
}

type tools struct {
	service Service
}

func (t *tools) serverTools() []server.ServerTool {
	commands := make([]string, 0, 12)
	for _, cmd := range mediaplayer.SupportedCommands(^mediaplayer.Feature(0)) {
		commands = append(commands, string(cmd))
	}

	return []server.ServerTool{
		{
			Tool: mcp.NewTool("list_media_players",
				mcp.WithDescription("List every HEOS player and group with its current state"),
			),
			Handler: t.listMediaPlayers,
		},
		{
			Tool: mcp.NewTool("get_media_player",
				mcp.WithDescription("Get the current state of one player or group"),
				mcp.WithString("entity_id",
					mcp.Required(),
					mcp.Description("Entity id, for example player-1 or group-2"),
				),
			),
			Handler: t.getMediaPlayer,
		},
		{
			Tool: mcp.NewTool("media_player_command",
				mcp.WithDescription("Send a command to a player or group"),
				mcp.WithString("entity_id",
					mcp.Required(),
					mcp.Description("Entity id, for example player-1 or group-2"),
				),
				mcp.WithString("command",
					mcp.Required(),
					mcp.Description("Command name"),
					mcp.Enum(commands...),
				),
				mcp.WithNumber("volume_level",
					mcp.Description("Volume between 0 and 1, for volume_set"),
				),
				mcp.WithBoolean("is_volume_muted",
					mcp.Description("Requested mute state, for volume_mute"),
				),
				mcp.WithString("source",
					mcp.Description("Source or Favorites__<name>, for select_source"),
				),
				mcp.WithNumber("position",
					mcp.Description("Position in seconds, for media_seek"),
				),
			),
			Handler: t.mediaPlayerCommand,
		},
	}
}

func (t *tools) listMediaPlayers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snapshots := t.service.List()
	if len(snapshots) == 0 {
		return mcp.NewToolResultText("No media players registered"), nil
	}
	return jsonResult(snapshots)
}

func (t *tools) getMediaPlayer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entityID, err := request.RequireString("entity_id")
	if err != nil {
		return mcp.NewToolResultError("entity_id parameter is required"), nil
	}
	snapshot, err := t.service.Get(entityID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(snapshot)
}

func (t *tools) mediaPlayerCommand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entityID, err := request.RequireString("entity_id")
	if err != nil {
		return mcp.NewToolResultError("entity_id parameter is required"), nil
	}
	command, err := request.RequireString("command")
	if err != nil {
		return mcp.NewToolResultError("command parameter is required"), nil
	}

	args, err := parseArgs(request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	snapshot, err := t.service.Execute(ctx, entities.CommandRequest{
		EntityID: entityID,
		Command:  command,
		Args:     args,
		Origin:   "mcp",
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Command failed: %v", err)), nil
	}
	return jsonResult(snapshot)
}

func parseArgs(raw map[string]any) (mediaplayer.Args, error) {
	var args mediaplayer.Args
	if value, ok := raw["volume_level"]; ok && value != nil {
		level, ok := value.(float64)
		if !ok {
			return args, fmt.Errorf("volume_level must be a number")
		}
		args.VolumeLevel = &level
	}
	if value, ok := raw["is_volume_muted"]; ok && value != nil {
		muted, ok := value.(bool)
		if !ok {
			return args, fmt.Errorf("is_volume_muted must be a boolean")
		}
		args.IsVolumeMuted = &muted
	}
	if value, ok := raw["source"]; ok && value != nil {
		source, ok := value.(string)
		if !ok {
			return args, fmt.Errorf("source must be a string")
		}
		args.Source = source
	}
	if value, ok := raw["position"]; ok && value != nil {
		position, ok := value.(float64)
		if !ok {
			return args, fmt.Errorf("position must be a number")
		}
		args.Position = &position
	}
	return args, nil
}

func jsonResult(value any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
