package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/strefethen/heos-hub-go/internal/api"
	"github.com/strefethen/heos-hub-go/internal/apperrors"
	"github.com/strefethen/heos-hub-go/internal/config"
)

var publicRoutes = map[string]struct{}{
	"/v1/auth/pair/start":    {},
	"/v1/auth/pair/complete": {},
	"/v1/auth/refresh":       {},
}

var publicPrefixes = []string{
	"/v1/health",
	"/v1/openapi",
}

// Browsers cannot set headers on a websocket upgrade or an EventSource,
// so these paths also accept the token as an access_token query parameter.
var queryTokenPrefixes = []string{
	"/ws/",
	"/mcp/",
}

// controlPrefixes need a control token whatever the method; MCP tools can
// execute commands over a GET-opened session.
var controlPrefixes = []string{
	"/mcp/",
}

// Middleware validates JWT tokens for protected routes and enforces the
// token scope: read tokens may only use safe methods outside controlPrefixes.
func Middleware(cfg config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicRoute(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if isTestModeRequest(r, cfg) {
				user := User{
					Sub:        "test-client",
					ClientName: "Test Client",
					Type:       TokenTypeAccess,
					Scope:      ScopeControl,
				}
				next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
				return
			}

			token, err := bearerToken(r)
			if err != nil {
				api.WriteError(w, r, err)
				return
			}

			payload, err := VerifyToken(cfg, token)
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					api.WriteError(w, r, apperrors.NewUnauthorizedError("Token has expired", apperrors.ErrorCodeAuthTokenExpired))
					return
				}
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Invalid token", apperrors.ErrorCodeAuthTokenInvalid))
				return
			}

			if payload.Type != TokenTypeAccess {
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Invalid token type", apperrors.ErrorCodeAuthTokenInvalid))
				return
			}

			user := User{
				Sub:        payload.Sub,
				ClientName: payload.ClientName,
				Type:       payload.Type,
				Scope:      payload.Scope,
			}
			if required := requiredScope(r); !user.Scope.Allows(required) {
				api.WriteError(w, r, apperrors.NewForbiddenError("Token scope "+string(user.Scope)+" does not allow this request"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func requiredScope(r *http.Request) Scope {
	if hasPrefix(r.URL.Path, controlPrefixes) {
		return ScopeControl
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ScopeRead
	}
	return ScopeControl
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if hasPrefix(r.URL.Path, queryTokenPrefixes) {
			if token := r.URL.Query().Get("access_token"); token != "" {
				return token, nil
			}
		}
		return "", apperrors.NewUnauthorizedError("Missing Authorization header")
	}
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || token == "" {
		return "", apperrors.NewUnauthorizedError("Invalid Authorization header format")
	}
	return token, nil
}

func isPublicRoute(path string) bool {
	if _, ok := publicRoutes[path]; ok {
		return true
	}
	return hasPrefix(path, publicPrefixes)
}

func hasPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func isTestModeRequest(r *http.Request, cfg config.Config) bool {
	if !cfg.AllowTestMode {
		return false
	}
	if cfg.HubEnv != "development" {
		return false
	}
	return r.Header.Get("x-test-mode") == "true"
}
