package core

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"marketingapi/internal/types"
)

// maxJSONBodySize bounds DecodeJSON. Webhook payloads use their own limit.
const maxJSONBodySize = 64 << 10

// APIErrorResponse is the error envelope for every non-2xx response.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the client-facing part of an AppError.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// JSON writes data with the given status. A marshal failure turns into a 500.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(APIErrorResponse{Error: ErrorDetail{
			Code:      string(types.ErrCodeInternalUnexpected),
			Message:   "failed to marshal response",
			RequestID: types.GetRequestID(r.Context()),
		}})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error renders err. An AppError anywhere in the chain decides the status and
// code; anything else is a 500 with a generic message so internals never leak.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	detail := ErrorDetail{
		Code:      string(types.ErrCodeInternalUnexpected),
		Message:   "an unexpected error occurred",
		RequestID: types.GetRequestID(r.Context()),
	}
	status := http.StatusInternalServerError

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		status = appErr.HTTPStatus()
		detail.Code = string(appErr.Code)
		detail.Message = appErr.Message
		detail.Details = appErr.Details
	}

	JSON(w, r, status, APIErrorResponse{Error: detail})
}

// DecodeJSON decodes a single JSON object from the request body into dst.
// Unknown fields are rejected. All failures are validation_invalid_payload.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return decodeError(err)
	}
	if dec.More() {
		return types.NewAppError(types.ErrCodeValidationInvalidPayload,
			"request body must contain a single JSON object", nil)
	}
	return nil
}

func decodeError(err error) *types.AppError {
	var (
		maxBytesErr *http.MaxBytesError
		syntaxErr   *json.SyntaxError
		typeErr     *json.UnmarshalTypeError
	)

	code := types.ErrCodeValidationInvalidPayload
	switch {
	case errors.As(err, &maxBytesErr):
		return types.NewAppError(code, "request body is too large", err)
	case errors.As(err, &syntaxErr):
		return types.NewAppError(code, "malformed JSON in request body", err)
	case errors.As(err, &typeErr):
		return types.NewAppErrorWithDetails(code, "invalid value for field", err, map[string]any{
			"field":    typeErr.Field,
			"expected": typeErr.Type.String(),
		})
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		return types.NewAppError(code,
			"unknown field in request body: "+strings.TrimPrefix(err.Error(), "json: unknown field "), err)
	case errors.Is(err, io.EOF):
		return types.NewAppError(code, "request body must not be empty", err)
	default:
		return types.NewAppError(code, "invalid JSON in request body", err)
	}
}
