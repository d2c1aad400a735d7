package auth

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/strefethen/heos-hub-go/internal/api"
	"github.com/strefethen/heos-hub-go/internal/apperrors"
	"github.com/strefethen/heos-hub-go/internal/config"
)

// RegisterRoutes wires auth routes to the router.
// The pairing code is only printed to the hub's log, so pairing requires
// access to the machine running the hub.
func RegisterRoutes(router chi.Router, store *PairingStore, cfg config.Config, logger *log.Logger) {
	if logger == nil {
		logger = log.Default()
	}

	router.Method(http.MethodPost, "/v1/auth/pair/start", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			Scope string `json:"scope"`
		}
		if err := api.DecodeJSON(r, &body); err != nil {
			return err
		}
		scope, err := ParseScope(body.Scope)
		if err != nil {
			return apperrors.NewValidationError("scope must be read or control", map[string]any{"scope": body.Scope})
		}

		store.CleanupExpired()

		pairCode, err := store.Create(api.GetRequestID(r), scope)
		if err != nil {
			return apperrors.NewInternalError("Failed to generate pairing code")
		}

		logger.Printf("AUTH: %s pairing code generated, enter it on your client: %s", scope, pairCode)

		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object":       "pairing_start",
			"pairing_hint": "Enter the pairing code printed in the hub log.",
			"scope":        scope,
			"expires_in":   int(store.ttl.Seconds()),
		})
	}))

	router.Method(http.MethodPost, "/v1/auth/pair/complete", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			PairCode   string `json:"pair_code"`
			ClientName string `json:"client_name"`
		}
		if err := api.DecodeJSON(r, &body); err != nil {
			return err
		}
		if body.PairCode == "" {
			return apperrors.NewValidationError("pair_code is required", nil)
		}
		if body.ClientName == "" {
			return apperrors.NewValidationError("client_name is required", nil)
		}

		scope, err := store.Redeem(body.PairCode)
		switch {
		case errors.Is(err, ErrPairingExpired):
			return apperrors.NewUnauthorizedError("Pairing code has expired", apperrors.ErrorCodeAuthPairingExpired)
		case err != nil:
			return apperrors.NewUnauthorizedError("Invalid or expired pairing code", apperrors.ErrorCodeAuthPairingInvalid)
		}

		tokens, err := GenerateTokenPair(cfg, TokenPayload{
			Sub:        uuid.NewString(),
			ClientName: body.ClientName,
			Scope:      scope,
		})
		if err != nil {
			return apperrors.NewInternalError("Failed to generate token pair")
		}

		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":         "token_pair",
			"access_token":   tokens.AccessToken,
			"refresh_token":  tokens.RefreshToken,
			"expires_in_sec": tokens.ExpiresInSec,
			"scope":          scope,
		})
	}))

	router.Method(http.MethodPost, "/v1/auth/refresh", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := api.DecodeJSON(r, &body); err != nil {
			return err
		}
		if body.RefreshToken == "" {
			return apperrors.NewValidationError("refresh_token is required", nil)
		}

		accessToken, expiresIn, err := RefreshAccessToken(cfg, body.RefreshToken)
		if err != nil {
			switch {
			case errors.Is(err, ErrTokenExpired):
				return apperrors.NewUnauthorizedError("Refresh token has expired", apperrors.ErrorCodeAuthTokenExpired)
			case errors.Is(err, ErrTokenType):
				return apperrors.NewUnauthorizedError("Invalid token: expected refresh token", apperrors.ErrorCodeAuthTokenInvalid)
			default:
				return apperrors.NewUnauthorizedError("Invalid refresh token", apperrors.ErrorCodeAuthTokenInvalid)
			}
		}

		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":         "token_refresh",
			"access_token":   accessToken,
			"expires_in_sec": expiresIn,
		})
	}))
}
