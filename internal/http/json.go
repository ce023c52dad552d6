package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/target/receiptq/internal/errors"
)

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}

	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
	Field   string
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	body := map[string]string{"error": p.ErrCode, "message": p.Err.Error()}
	if p.Field != "" {
		body["field"] = p.Field
	}
	WriteJSON(w, p.Code, body)
}

// ErrorStatus maps an error onto an HTTP status by its AppError code.
// Errors without a code are treated as internal.
func ErrorStatus(err error) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}

	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict:
		return http.StatusConflict
	case apperrors.ErrCodeTooLarge:
		return http.StatusRequestEntityTooLarge
	case apperrors.ErrCodeConnection, apperrors.ErrCodeEnqueue:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WriteAppError renders err with the status from ErrorStatus. Server-side
// failures are reported with a generic message so storage and broker details
// stay in the logs.
func WriteAppError(w http.ResponseWriter, err error) {
	status := ErrorStatus(err)
	code := string(apperrors.GetCode(err))
	if code == "" {
		code = string(apperrors.ErrCodeInternal)
	}

	msg := err
	var field string
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = errors.New(appErr.Message)
		field = appErr.Field
	}
	switch status {
	case http.StatusInternalServerError:
		msg = errors.New("internal server error")
	case http.StatusServiceUnavailable:
		msg = errors.New("job queue unavailable")
	case http.StatusRequestEntityTooLarge:
		code = string(apperrors.ErrCodeTooLarge)
	}

	WriteError(w, ErrorParams{Code: status, ErrCode: code, Err: msg, Field: field})
}
