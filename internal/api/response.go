package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/strefethen/heos-hub-go/internal/apperrors"
)

// RFC3339Millis is the timestamp layout used in every response body.
const RFC3339Millis = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t in UTC with millisecond precision.
func FormatTime(t time.Time) string {
	return t.UTC().Format(RFC3339Millis)
}

// =============================================================================
// Stripe API Standard Response Types
// =============================================================================

// StripeListResponse is the Stripe-style list response for all collection endpoints.
// Example: {"object": "list", "data": [...], "has_more": false, "url": "/v1/entities"}
type StripeListResponse struct {
	Object  string `json:"object"`   // Always "list"
	Data    any    `json:"data"`     // Array of resources
	HasMore bool   `json:"has_more"` // Whether more items exist beyond this page
	URL     string `json:"url"`      // The URL for this list endpoint
}

// StripeErrorResponse wraps errors in Stripe format.
type StripeErrorResponse struct {
	Error     apperrors.StripeErrorBody `json:"error"`
	RequestID string                    `json:"request_id,omitempty"`
}

// =============================================================================
// Core Response Functions
// =============================================================================

// WriteJSON sends a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

// WriteError serializes an AppError into the Stripe-style error response.
// Response format: {"error": {"type": "...", "code": "...", "message": "..."}, "request_id": "..."}
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.EnsureAppError(err)

	response := StripeErrorResponse{
		Error:     appErr.StripeErrorBody(),
		RequestID: GetRequestID(r),
	}

	_ = WriteJSON(w, appErr.StatusCode, response)
}

// =============================================================================
// Stripe-Style Response Helpers
// =============================================================================

// WriteList writes a Stripe-style list response.
// Produces: {"object": "list", "data": [...], "has_more": false, "url": "/v1/entities"}
func WriteList(w http.ResponseWriter, url string, data any, hasMore bool) error {
	return WriteJSON(w, http.StatusOK, StripeListResponse{
		Object:  "list",
		Data:    data,
		HasMore: hasMore,
		URL:     url,
	})
}

// WriteResource writes a single resource directly (Stripe-style, no wrapper).
// The resource should already have an "object" field set.
func WriteResource(w http.ResponseWriter, status int, resource any) error {
	return WriteJSON(w, status, resource)
}

// WriteAction writes an action result directly (Stripe-style, no wrapper).
// The result should already have an "object" field set.
func WriteAction(w http.ResponseWriter, status int, result any) error {
	return WriteJSON(w, status, result)
}

// DecodeJSON decodes an optional JSON body into dst. An empty body leaves dst untouched.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.NewValidationError("Invalid JSON body", map[string]any{"reason": err.Error()})
	}
	return nil
}
