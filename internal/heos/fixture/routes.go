package fixture

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/heos-hub-go/internal/api"
	"github.com/strefethen/heos-hub-go/internal/apperrors"
	"github.com/strefethen/heos-hub-go/internal/heos"
)

// DiscoverRequest is the body of POST /v1/fixture/devices.
type DiscoverRequest struct {
	Kind   heos.DeviceKind `json:"kind"`
	Device DeviceSpec      `json:"device"`
}

// RegisterRoutes exposes fixture-only controls. Adding a device here runs the
// same new-device callback a real controller fires on discovery.
func RegisterRoutes(router chi.Router, session *Session) {
	router.Method(http.MethodPost, "/v1/fixture/devices", api.Handler(discoverDevice(session)))
}

// POST /v1/fixture/devices
func discoverDevice(session *Session) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var body DiscoverRequest
		if err := api.DecodeJSON(r, &body); err != nil {
			return err
		}
		if body.Kind == "" {
			body.Kind = heos.KindPlayer
		}
		if body.Kind != heos.KindPlayer && body.Kind != heos.KindGroup {
			return apperrors.NewValidationError("kind must be player or group", map[string]any{"kind": body.Kind})
		}
		if body.Device.ID <= 0 {
			return apperrors.NewValidationError("device.id must be positive", nil)
		}

		controller, ok := session.Controller()
		if !ok {
			return apperrors.NewAppError(apperrors.ErrorCodeControllerUnavailable, "Fixture controller is not connected", http.StatusConflict, nil)
		}

		device, err := controller.Discover(body.Kind, body.Device)
		switch {
		case errors.Is(err, ErrInvalidFleet):
			return apperrors.NewValidationError(err.Error(), nil)
		case errors.Is(err, ErrDuplicateID):
			return apperrors.NewConflictError(err.Error(), map[string]any{"id": body.Device.ID})
		case errors.Is(err, ErrClosed):
			return apperrors.NewAppError(apperrors.ErrorCodeControllerUnavailable, "Fixture controller is closed", http.StatusConflict, nil)
		case err != nil:
			return apperrors.NewInternalError("Failed to add fixture device")
		}

		return api.WriteResource(w, http.StatusCreated, map[string]any{
			"object": "fixture_device",
			"kind":   body.Kind,
			"id":     device.ID(),
			"name":   device.Name(),
		})
	}
}
