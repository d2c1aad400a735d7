package entities

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/heos-hub-go/internal/api"
	"github.com/strefethen/heos-hub-go/internal/apperrors"
	"github.com/strefethen/heos-hub-go/internal/auth"
	"github.com/strefethen/heos-hub-go/internal/host"
	"github.com/strefethen/heos-hub-go/internal/mediaplayer"
)

// RegisterRoutes wires entity routes to the router. A nil fetcher disables artwork.
func RegisterRoutes(router chi.Router, service *Service, artwork *ArtworkFetcher) {
	router.Method(http.MethodGet, "/v1/entities", api.Handler(listEntities(service)))
	router.Method(http.MethodGet, "/v1/entities/{entity_id}", api.Handler(getEntity(service)))
	router.Method(http.MethodDelete, "/v1/entities/{entity_id}", api.Handler(removeEntity(service)))
	router.Method(http.MethodPost, "/v1/entities/{entity_id}/commands/{command}", api.Handler(executeCommand(service)))
	router.Method(http.MethodPost, "/v1/entities/{entity_id}/refresh", api.Handler(refreshEntity(service)))
	if artwork != nil {
		router.Method(http.MethodGet, "/v1/entities/{entity_id}/artwork", api.Handler(getArtwork(service, artwork)))
	}

	router.Method(http.MethodGet, "/v1/registry", api.Handler(listRegistry(service)))
}

// CommandResult is the body of a successful command.
type CommandResult struct {
	Object    string               `json:"object"`
	EntityID  string               `json:"entity_id"`
	Command   string               `json:"command"`
	RequestID string               `json:"request_id,omitempty"`
	Entity    mediaplayer.Snapshot `json:"entity"`
}

// GET /v1/entities
func listEntities(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteList(w, "/v1/entities", service.List(), false)
	}
}

// GET /v1/entities/{entity_id}
func getEntity(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		snapshot, err := service.Get(chi.URLParam(r, "entity_id"))
		if err != nil {
			return toAppError(err, chi.URLParam(r, "entity_id"))
		}
		return api.WriteResource(w, http.StatusOK, snapshot)
	}
}

// POST /v1/entities/{entity_id}/commands/{command}
func executeCommand(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		entityID := chi.URLParam(r, "entity_id")
		command := chi.URLParam(r, "command")

		var args mediaplayer.Args
		if err := api.DecodeJSON(r, &args); err != nil {
			return err
		}

		requestID := api.GetRequestID(r)
		req := CommandRequest{
			EntityID:  entityID,
			Command:   command,
			Args:      args,
			RequestID: requestID,
			Origin:    "http",
		}
		if user, ok := auth.UserFromContext(r.Context()); ok {
			req.Client = user.ClientName
		}
		snapshot, err := service.Execute(r.Context(), req)
		if err != nil {
			return toAppError(err, entityID)
		}

		return api.WriteAction(w, http.StatusOK, CommandResult{
			Object:    "command_result",
			EntityID:  entityID,
			Command:   command,
			RequestID: requestID,
			Entity:    snapshot,
		})
	}
}

// POST /v1/entities/{entity_id}/refresh
func refreshEntity(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		entityID := chi.URLParam(r, "entity_id")
		snapshot, err := service.Refresh(r.Context(), entityID)
		if err != nil {
			return toAppError(err, entityID)
		}
		return api.WriteResource(w, http.StatusOK, snapshot)
	}
}

// DELETE /v1/entities/{entity_id}
func removeEntity(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		entityID := chi.URLParam(r, "entity_id")
		if err := service.Remove(entityID); err != nil {
			return toAppError(err, entityID)
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	}
}

// GET /v1/entities/{entity_id}/artwork
func getArtwork(service *Service, fetcher *ArtworkFetcher) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		entityID := chi.URLParam(r, "entity_id")
		player, err := service.Player(entityID)
		if err != nil {
			return toAppError(err, entityID)
		}

		artwork, err := fetcher.Fetch(r.Context(), player.MediaImageURL())
		if err != nil {
			return toAppError(err, entityID)
		}

		w.Header().Set("Content-Type", artwork.ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(artwork.Body)))
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		_, err = w.Write(artwork.Body)
		return err
	}
}

// GET /v1/registry
func listRegistry(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		includeRemoved := r.URL.Query().Get("include_removed") == "true"
		entries, err := service.Registry(includeRemoved)
		if err != nil {
			return apperrors.NewInternalError("Failed to list registry")
		}

		formatted := make([]map[string]any, 0, len(entries))
		for _, entry := range entries {
			formatted = append(formatted, formatRegistryEntry(entry))
		}
		return api.WriteList(w, "/v1/registry", formatted, false)
	}
}

func formatRegistryEntry(entry host.RegistryEntry) map[string]any {
	result := map[string]any{
		"object":        "registry_entry",
		"entity_id":     entry.EntityID,
		"platform":      entry.Platform,
		"kind":          entry.Kind,
		"device_id":     entry.DeviceID,
		"name":          entry.Name,
		"first_seen_at": api.FormatTime(entry.FirstSeenAt),
		"last_seen_at":  api.FormatTime(entry.LastSeenAt),
		"removed_at":    nil,
	}
	if entry.RemovedAt != nil {
		result["removed_at"] = api.FormatTime(*entry.RemovedAt)
	}
	return result
}

func toAppError(err error, entityID string) error {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, host.ErrEntityNotFound):
		return apperrors.NewEntityNotFound(entityID)
	case errors.Is(err, ErrNotMediaPlayer):
		return apperrors.NewAppError(apperrors.ErrorCodeCommandNotSupported, "Entity is not a media player", 400,
			map[string]any{"entity_id": entityID})
	case errors.Is(err, mediaplayer.ErrUnknownCommand), errors.Is(err, mediaplayer.ErrUnsupportedCommand):
		return apperrors.NewAppError(apperrors.ErrorCodeCommandNotSupported, err.Error(), 400,
			map[string]any{"entity_id": entityID})
	case errors.Is(err, mediaplayer.ErrInvalidArgument):
		return apperrors.NewValidationError(err.Error(), map[string]any{"entity_id": entityID})
	case errors.Is(err, mediaplayer.ErrSourceNotFound):
		return apperrors.NewAppError(apperrors.ErrorCodeSourceNotFound, err.Error(), 404,
			map[string]any{"entity_id": entityID})
	case errors.Is(err, ErrNoArtwork):
		return apperrors.NewAppError(apperrors.ErrorCodeArtworkUnavailable, "No artwork for entity", 404,
			map[string]any{"entity_id": entityID})
	case errors.Is(err, ErrArtworkUpstream):
		return apperrors.NewUpstreamError(apperrors.ErrorCodeArtworkUnavailable, "Artwork fetch failed", err)
	default:
		return apperrors.NewUpstreamError(apperrors.ErrorCodeCommandFailed, "Device command failed", err)
	}
}
