package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printforge/upload/internal/apperr"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func TestOKAndCreated(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, map[string]string{"a": "b"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	env := decode(t, rec)
	assert.True(t, env.Success)
	assert.Equal(t, map[string]any{"a": "b"}, env.Data)

	rec = httptest.NewRecorder()
	Created(rec, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestFromError(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name      string
		err       error
		status    int
		code      string
		subject   string
		message   string
		retryable bool
	}{
		{
			name:    "auth hides cause",
			err:     apperr.Auth("ticket_expired", errors.New("expired at 12:00")),
			status:  http.StatusUnauthorized,
			code:    "ticket_expired",
			message: "ticket_expired",
		},
		{
			name:    "validation names subject",
			err:     fmt.Errorf("init: %w", apperr.Validation("limit_exceeded", "big.stl", "too big")),
			status:  http.StatusBadRequest,
			code:    "limit_exceeded",
			subject: "big.stl",
			message: "limit_exceeded (big.stl): too big",
		},
		{
			name:    "quota names tier",
			err:     apperr.New(apperr.KindQuotaExceeded, "session_daily", "s1", errors.New("over")),
			status:  http.StatusTooManyRequests,
			code:    "session_daily",
			subject: "s1",
			message: "session_daily (s1): over",
		},
		{
			name:    "not found",
			err:     apperr.NotFound("upload_not_found", "abc"),
			status:  http.StatusNotFound,
			code:    "upload_not_found",
			subject: "abc",
			message: "upload_not_found (abc)",
		},
		{
			name:    "storage inconsistency",
			err:     apperr.New(apperr.KindStorageInconsistency, "object_missing", "a.stl", nil),
			status:  http.StatusConflict,
			code:    "object_missing",
			subject: "a.stl",
			message: "object_missing (a.stl)",
		},
		{
			name:      "transient is retryable",
			err:       apperr.Transient("storage_timeout", errors.New("dial tcp: i/o timeout")),
			status:    http.StatusServiceUnavailable,
			code:      "storage_timeout",
			message:   "storage_timeout",
			retryable: true,
		},
		{
			name:    "unclassified is internal",
			err:     errors.New("pq: relation does not exist"),
			status:  http.StatusInternalServerError,
			message: "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/x", nil)
			FromError(rec, req, log, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			env := decode(t, rec)
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.Code)
			assert.Equal(t, tt.subject, env.Subject)
			assert.Equal(t, tt.message, env.Error)
			assert.Equal(t, tt.retryable, env.Retryable)
			if tt.retryable {
				assert.Equal(t, "1", rec.Header().Get("Retry-After"))
			}
		})
	}
}
