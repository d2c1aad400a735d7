package openapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestServeOpenAPI(t *testing.T) {
	t.Setenv("OPENAPI_SPEC_PATH", "../../assets/openapi/heos-hub.v1.yaml")
	router := chi.NewRouter()
	RegisterRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/openapi", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "yaml")
	require.Contains(t, rec.Body.String(), "openapi: 3.0.3")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/openapi.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	paths := doc["paths"].(map[string]any)
	require.Contains(t, paths, "/v1/entities/{entity_id}/commands/{command}")
}

func TestServeOpenAPIMissingFile(t *testing.T) {
	t.Setenv("OPENAPI_SPEC_PATH", "/nonexistent/heos-hub.v1.yaml")
	router := chi.NewRouter()
	RegisterRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/openapi.json", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
