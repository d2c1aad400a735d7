package auth

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/heos-hub-go/internal/api"
	"github.com/strefethen/heos-hub-go/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		HubEnv:                   "development",
		JWTSecret:                "0123456789abcdef0123456789abcdef",
		JWTAccessTokenExpirySec:  60,
		JWTRefreshTokenExpirySec: 600,
	}
}

func TestTokenRoundTrip(t *testing.T) {
	cfg := testConfig()

	pair, err := GenerateTokenPair(cfg, TokenPayload{Sub: "client-1", ClientName: "Kitchen iPad"})
	require.NoError(t, err)

	payload, err := VerifyToken(cfg, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, TokenTypeAccess, payload.Type)
	require.Equal(t, "Kitchen iPad", payload.ClientName)
	require.Equal(t, ScopeControl, payload.Scope)

	_, _, err = RefreshAccessToken(cfg, pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenType)

	access, expires, err := RefreshAccessToken(cfg, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.Equal(t, 60, expires)

	other := cfg
	other.JWTSecret = "ffffffffffffffffffffffffffffffff"
	_, err = VerifyToken(other, pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestExpiredToken(t *testing.T) {
	cfg := testConfig()
	cfg.JWTAccessTokenExpirySec = -10

	pair, err := GenerateTokenPair(cfg, TokenPayload{Sub: "client-1", ClientName: "Phone"})
	require.NoError(t, err)

	_, err = VerifyToken(cfg, pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func protectedRouter(cfg config.Config) http.Handler {
	router := chi.NewRouter()
	router.Use(Middleware(cfg))
	ok := func(w http.ResponseWriter, r *http.Request) {
		user, _ := UserFromContext(r.Context())
		_, _ = w.Write([]byte(user.ClientName))
	}
	router.Get("/v1/entities", ok)
	router.Get("/v1/health", ok)
	router.Get("/ws/entities", ok)
	router.Post("/v1/entities/{entity_id}/commands/{command}", ok)
	router.Get("/mcp/sse", ok)
	return router
}

func TestMiddlewareEnforcesScope(t *testing.T) {
	cfg := testConfig()
	router := protectedRouter(cfg)

	readPair, err := GenerateTokenPair(cfg, TokenPayload{Sub: "client-1", ClientName: "Wall Display", Scope: ScopeRead})
	require.NoError(t, err)
	controlPair, err := GenerateTokenPair(cfg, TokenPayload{Sub: "client-2", ClientName: "Phone", Scope: ScopeControl})
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		status int
	}{
		{"read token lists", http.MethodGet, "/v1/entities", readPair.AccessToken, http.StatusOK},
		{"read token streams", http.MethodGet, "/ws/entities", readPair.AccessToken, http.StatusOK},
		{"read token commands", http.MethodPost, "/v1/entities/player-1/commands/media_play", readPair.AccessToken, http.StatusForbidden},
		{"read token opens mcp", http.MethodGet, "/mcp/sse", readPair.AccessToken, http.StatusForbidden},
		{"control token commands", http.MethodPost, "/v1/entities/player-1/commands/media_play", controlPair.AccessToken, http.StatusOK},
		{"control token opens mcp", http.MethodGet, "/mcp/sse", controlPair.AccessToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			require.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusForbidden {
				require.Contains(t, rec.Body.String(), "FORBIDDEN")
			}
		})
	}

	// Refreshing keeps the scope.
	access, _, err := RefreshAccessToken(cfg, readPair.RefreshToken)
	require.NoError(t, err)
	payload, err := VerifyToken(cfg, access)
	require.NoError(t, err)
	require.Equal(t, ScopeRead, payload.Scope)
}

func TestMiddleware(t *testing.T) {
	cfg := testConfig()
	router := protectedRouter(cfg)
	pair, err := GenerateTokenPair(cfg, TokenPayload{Sub: "client-1", ClientName: "Phone"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/entities", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/entities", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Phone", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/v1/entities", nil)
	req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Query tokens only count on websocket paths.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/entities?access_token="+pair.AccessToken, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/entities?access_token="+pair.AccessToken, nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareTestMode(t *testing.T) {
	cfg := testConfig()
	cfg.AllowTestMode = true
	router := protectedRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/v1/entities", nil)
	req.Header.Set("x-test-mode", "true")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	cfg.HubEnv = "production"
	router = protectedRouter(cfg)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPairingStoreExpiry(t *testing.T) {
	store := NewPairingStore(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	code, err := store.Create("req", ScopeRead)
	require.NoError(t, err)
	require.Len(t, code, 6)

	now = now.Add(2 * time.Minute)
	_, err = store.Redeem(code)
	require.ErrorIs(t, err, ErrPairingExpired)

	_, err = store.Redeem(code)
	require.ErrorIs(t, err, ErrPairingInvalid)

	_, err = store.Create("req", ScopeControl)
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	store.CleanupExpired()
	require.Zero(t, store.Pending())
}

func TestPairingStoreRedeemReturnsScope(t *testing.T) {
	store := NewPairingStore(time.Minute)

	code, err := store.Create("req", ScopeRead)
	require.NoError(t, err)
	scope, err := store.Redeem(code)
	require.NoError(t, err)
	require.Equal(t, ScopeRead, scope)
}

func TestPairingStoreDropsCodesAfterRepeatedGuesses(t *testing.T) {
	store := NewPairingStore(time.Minute)
	code, err := store.Create("req", ScopeControl)
	require.NoError(t, err)

	for i := 0; i < maxFailedRedeems-1; i++ {
		_, err = store.Redeem("000000")
		require.ErrorIs(t, err, ErrPairingInvalid)
	}
	require.Equal(t, 1, store.Pending())

	_, err = store.Redeem("000000")
	require.ErrorIs(t, err, ErrPairingInvalid)
	require.Zero(t, store.Pending())

	_, err = store.Redeem(code)
	require.ErrorIs(t, err, ErrPairingInvalid)
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		input string
		want  Scope
		err   bool
	}{
		{"", ScopeControl, false},
		{"control", ScopeControl, false},
		{"read", ScopeRead, false},
		{"admin", "", true},
		{"READ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseScope(tt.input)
			if tt.err {
				require.ErrorIs(t, err, ErrScopeInvalid)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	require.True(t, ScopeControl.Allows(ScopeRead))
	require.True(t, ScopeRead.Allows(ScopeRead))
	require.False(t, ScopeRead.Allows(ScopeControl))
}

func TestPairingFlow(t *testing.T) {
	cfg := testConfig()
	store := NewPairingStore(time.Minute)
	var logs bytes.Buffer

	router := chi.NewRouter()
	router.Use(api.RequestIDMiddleware)
	RegisterRoutes(router, store, cfg, log.New(&logs, "", 0))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/pair/start", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	code := regexp.MustCompile(`\d{6}`).FindString(logs.String())
	require.NotEmpty(t, code)

	body := `{"pair_code":"` + code + `","client_name":"Living Room Tablet"}`
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/pair/complete", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var tokens map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokens))
	require.Equal(t, "token_pair", tokens["object"])
	require.Equal(t, "control", tokens["scope"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/pair/complete", strings.NewReader(body)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "AUTH_PAIRING_INVALID")

	refresh := `{"refresh_token":"` + tokens["refresh_token"].(string) + `"}`
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", strings.NewReader(refresh)))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPairingReadScope(t *testing.T) {
	cfg := testConfig()
	store := NewPairingStore(time.Minute)
	var logs bytes.Buffer

	router := chi.NewRouter()
	router.Use(api.RequestIDMiddleware)
	RegisterRoutes(router, store, cfg, log.New(&logs, "", 0))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/pair/start", strings.NewReader(`{"scope":"admin"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Zero(t, store.Pending())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/pair/start", strings.NewReader(`{"scope":"read"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	code := regexp.MustCompile(`\d{6}`).FindString(logs.String())
	require.NotEmpty(t, code)

	body := `{"pair_code":"` + code + `","client_name":"Wall Display"}`
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/pair/complete", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var tokens map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokens))
	require.Equal(t, "read", tokens["scope"])

	payload, err := VerifyToken(cfg, tokens["access_token"].(string))
	require.NoError(t, err)
	require.Equal(t, ScopeRead, payload.Scope)
}
