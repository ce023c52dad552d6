package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/target/receiptq/internal/errors"
)

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", apperrors.ValidationField("status", "bad"), http.StatusBadRequest},
		{"conflict", apperrors.AlreadyExists("j1"), http.StatusConflict},
		{"connection", apperrors.Connection(errors.New("refused"), "down"), http.StatusServiceUnavailable},
		{"enqueue", apperrors.Enqueue(errors.New("oops"), "j1"), http.StatusServiceUnavailable},
		{"storage", apperrors.Storage(errors.New("disk"), "create", "job_records"), http.StatusInternalServerError},
		{"not found", apperrors.NotFound("missing"), http.StatusNotFound},
		{"unauthenticated", apperrors.Unauthenticated("no"), http.StatusUnauthorized},
		{"too large", apperrors.TooLarge("big"), http.StatusRequestEntityTooLarge},
		{"wrapped", fmt.Errorf("handler: %w", apperrors.NotFound("missing")), http.StatusNotFound},
		{"max bytes", &http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorStatus(tt.err))
		})
	}
}

func TestWriteAppError_HidesServerDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteAppError(rec, apperrors.Storage(errors.New("pq: relation missing"), "create", "job_records"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"storage","message":"internal server error"}`, rec.Body.String())
}

func TestWriteAppError_IncludesField(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteAppError(rec, apperrors.ValidationField("status", "status is invalid"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"validation","message":"status is invalid","field":"status"}`, rec.Body.String())
}

func TestDecodeJSON_RejectsUnknownFields(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"success","bogus":1}`))

	var dst struct {
		Status string `json:"status"`
	}
	ok := DecodeJSON(rec, req, &dst)

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_json")
}
