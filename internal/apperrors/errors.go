package apperrors

import "errors"

// =============================================================================
// Error Codes
// =============================================================================

type ErrorCode string

const (
	ErrorCodeInternalError         ErrorCode = "INTERNAL_ERROR"
	ErrorCodeValidationError       ErrorCode = "VALIDATION_ERROR"
	ErrorCodeNotFound              ErrorCode = "NOT_FOUND"
	ErrorCodeUnauthorized          ErrorCode = "UNAUTHORIZED"
	ErrorCodeForbidden             ErrorCode = "FORBIDDEN"
	ErrorCodeConflict              ErrorCode = "CONFLICT"
	ErrorCodeEntityNotFound        ErrorCode = "ENTITY_NOT_FOUND"
	ErrorCodeSourceNotFound        ErrorCode = "SOURCE_NOT_FOUND"
	ErrorCodeCommandNotSupported   ErrorCode = "COMMAND_NOT_SUPPORTED"
	ErrorCodeCommandFailed         ErrorCode = "COMMAND_FAILED"
	ErrorCodeControllerUnavailable ErrorCode = "CONTROLLER_UNAVAILABLE"
	ErrorCodeArtworkUnavailable    ErrorCode = "ARTWORK_UNAVAILABLE"
	ErrorCodeEventNotFound         ErrorCode = "EVENT_NOT_FOUND"
	ErrorCodeInvalidEventType      ErrorCode = "INVALID_EVENT_TYPE"
	ErrorCodeAuthPairingExpired    ErrorCode = "AUTH_PAIRING_EXPIRED"
	ErrorCodeAuthPairingInvalid    ErrorCode = "AUTH_PAIRING_INVALID"
	ErrorCodeAuthTokenExpired      ErrorCode = "AUTH_TOKEN_EXPIRED"
	ErrorCodeAuthTokenInvalid      ErrorCode = "AUTH_TOKEN_INVALID"
)

// =============================================================================
// Stripe API Error Types
// =============================================================================

// ErrorType categorizes errors following Stripe API conventions.
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates invalid parameters, missing required fields, etc.
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeAPIError indicates an internal API error or an upstream device failure.
	ErrorTypeAPIError ErrorType = "api_error"
	// ErrorTypeAuthError indicates authentication or authorization failure.
	ErrorTypeAuthError ErrorType = "authentication_error"
)

// StripeErrorBody is the Stripe-style error payload.
// Format: {"type": "invalid_request_error", "code": "NOT_FOUND", "message": "..."}
type StripeErrorBody struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// AppError is the base error type for HTTP responses.
type AppError struct {
	Code       ErrorCode
	Message    string
	StatusCode int
	Details    map[string]any
	Err        error
}

func (err *AppError) Error() string {
	return err.Message
}

// Unwrap exposes the underlying cause, if any.
func (err *AppError) Unwrap() error {
	return err.Err
}

// StripeErrorBody returns the error in Stripe API format.
func (err *AppError) StripeErrorBody() StripeErrorBody {
	errType := ErrorTypeAPIError
	switch {
	case err.StatusCode == 401 || err.StatusCode == 403:
		errType = ErrorTypeAuthError
	case err.StatusCode >= 400 && err.StatusCode < 500:
		errType = ErrorTypeInvalidRequest
	}

	return StripeErrorBody{
		Type:    errType,
		Code:    string(err.Code),
		Message: err.Message,
		Details: err.Details,
	}
}

func NewAppError(code ErrorCode, message string, statusCode int, details map[string]any) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Details:    details,
	}
}

func NewValidationError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeValidationError, message, 400, details)
}

func NewUnauthorizedError(message string, code ...ErrorCode) *AppError {
	errCode := ErrorCodeUnauthorized
	if len(code) > 0 {
		errCode = code[0]
	}
	return NewAppError(errCode, message, 401, nil)
}

func NewForbiddenError(message string) *AppError {
	return NewAppError(ErrorCodeForbidden, message, 403, nil)
}

func NewNotFoundError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeNotFound, message, 404, details)
}

func NewNotFoundResource(resource, id string) *AppError {
	message := resource + " not found"
	details := map[string]any{
		"resource": resource,
	}
	if id != "" {
		message = resource + " not found: " + id
		details["id"] = id
	}
	return NewAppError(ErrorCodeNotFound, message, 404, details)
}

func NewEntityNotFound(entityID string) *AppError {
	return NewAppError(ErrorCodeEntityNotFound, "Entity not found: "+entityID, 404, map[string]any{"entity_id": entityID})
}

func NewConflictError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeConflict, message, 409, details)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrorCodeInternalError, message, 500, nil)
}

// NewUpstreamError reports a failure in the device or controller behind an entity.
func NewUpstreamError(code ErrorCode, message string, cause error) *AppError {
	appErr := NewAppError(code, message, 502, nil)
	appErr.Err = cause
	return appErr
}

// EnsureAppError converts an arbitrary error into an AppError.
func EnsureAppError(err error) *AppError {
	if err == nil {
		return NewInternalError("Unknown error")
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError("Internal server error")
}
