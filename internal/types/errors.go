package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Handlers and services MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField   ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidEmail   ErrorCode = "validation_invalid_email"
	ErrCodeValidationInvalidPayload ErrorCode = "validation_invalid_payload"
	ErrCodeValidationInvalidField   ErrorCode = "validation_invalid_field"

	// Auth (401; webhook signature failures are 400)
	ErrCodeAuthSignatureMissing ErrorCode = "auth_signature_missing"
	ErrCodeAuthSignatureInvalid ErrorCode = "auth_signature_invalid"
	ErrCodeAuthAdminKeyInvalid  ErrorCode = "auth_admin_key_invalid"

	// Rate Limit (429)
	ErrCodeRateLimitExceeded ErrorCode = "rate_limit_exceeded"

	// Not Found (404)
	ErrCodeNotFoundTransaction ErrorCode = "not_found_transaction"
	ErrCodeNotFoundLead        ErrorCode = "not_found_lead"
	ErrCodeNotFoundObject      ErrorCode = "not_found_stripe_object"

	// Configuration (500). A misconfigured deployment must never silently accept money events.
	ErrCodeConfigWebhookSecret ErrorCode = "config_webhook_secret_missing"
	ErrCodeConfigLedger        ErrorCode = "config_ledger_unconfigured"

	// Internal/Upstream (500/502/503)
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalLedger      ErrorCode = "internal_ledger_unavailable"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeInternalTaskRunner  ErrorCode = "internal_task_submit_failed"
	ErrCodeUpstreamStripe      ErrorCode = "upstream_stripe_unavailable"
	ErrCodeUpstreamEmail       ErrorCode = "upstream_email_provider_unavailable"
	ErrCodeUpstreamPush        ErrorCode = "upstream_push_provider_unavailable"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "auth_signature_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized // 401
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case s == string(ErrCodeInternalLedger):
		return http.StatusServiceUnavailable // 503
	case s == string(ErrCodeUpstreamRateLimited), strings.HasPrefix(s, "rate_limit_"):
		return http.StatusTooManyRequests // 429
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "config_"), strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type.
// Domain and handler errors are expressed as AppError so the API layer can
// render a consistent body and status code.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
