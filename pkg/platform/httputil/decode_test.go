package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "fishtank/pkg/domain-errors"
)

type plainRequest struct {
	Ticket string            `json:"ticket"`
	Values map[string]string `json:"values"`
}

type preparedRequest struct {
	Name  string `json:"name"`
	steps []string
}

func (r *preparedRequest) Sanitize()  { r.steps = append(r.steps, "sanitize") }
func (r *preparedRequest) Normalize() { r.steps = append(r.steps, "normalize"); r.Name = strings.TrimSpace(r.Name) }
func (r *preparedRequest) Validate() error {
	r.steps = append(r.steps, "validate")
	if r.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

type domainValidated struct {
	Role string `json:"role"`
}

func (r *domainValidated) Validate() error {
	return dErrors.New(dErrors.CodeInvalidInput, "unknown role")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var res ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestDecodeJSON(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"ticket":"t","values":{"email":"a@b.co"}}`))
		rec := httptest.NewRecorder()

		got, ok := DecodeJSON[plainRequest](rec, req, discardLogger(), ctx, "req-1")

		require.True(t, ok)
		assert.Equal(t, "t", got.Ticket)
		assert.Equal(t, "a@b.co", got.Values["email"])
	})

	t.Run("malformed json is a bad request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{nope`))
		rec := httptest.NewRecorder()

		got, ok := DecodeJSON[plainRequest](rec, req, discardLogger(), ctx, "req-2")

		assert.False(t, ok)
		assert.Nil(t, got)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "bad_request", decodeError(t, rec).Error)
	})

	t.Run("empty body is a bad request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
		rec := httptest.NewRecorder()

		_, ok := DecodeJSON[plainRequest](rec, req, discardLogger(), ctx, "req-4")

		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "request body is required", decodeError(t, rec).ErrorDescription)
	})

	t.Run("a second document is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"ticket":"a"} {"ticket":"b"}`))
		rec := httptest.NewRecorder()

		_, ok := DecodeJSON[plainRequest](rec, req, discardLogger(), ctx, "req-5")

		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("oversized body is 413", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"ticket":"`+strings.Repeat("x", 64)+`"}`))
		req.Body = http.MaxBytesReader(rec, req.Body, 16)

		_, ok := DecodeJSON[plainRequest](rec, req, discardLogger(), ctx, "req-3")

		assert.False(t, ok)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestDecodeAndPrepare(t *testing.T) {
	ctx := context.Background()

	t.Run("runs sanitize normalize validate in order", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"  Ada  "}`))
		rec := httptest.NewRecorder()

		got, ok := DecodeAndPrepare[preparedRequest](rec, req, discardLogger(), ctx, "req-4")

		require.True(t, ok)
		assert.Equal(t, []string{"sanitize", "normalize", "validate"}, got.steps)
		assert.Equal(t, "Ada", got.Name)
	})

	t.Run("plain validation error becomes bad request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"   "}`))
		rec := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[preparedRequest](rec, req, discardLogger(), ctx, "req-5")

		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "name is required", decodeError(t, rec).ErrorDescription)
	})

	t.Run("domain validation error keeps its code", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"role":"pirate"}`))
		rec := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[domainValidated](rec, req, discardLogger(), ctx, "req-6")

		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "unknown role", decodeError(t, rec).ErrorDescription)
	})
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		status      int
		code        string
		description string
	}{
		{"validation shows labels", dErrors.New(dErrors.CodeValidation, "Please fill: Email"), http.StatusUnprocessableEntity, "validation_error", "Please fill: Email"},
		{"spam", dErrors.New(dErrors.CodeSpamRejected, "Submission blocked."), http.StatusForbidden, "submission_blocked", "Submission blocked."},
		{"busy", dErrors.New(dErrors.CodeBusy, "pending"), http.StatusConflict, "submission_pending", "pending"},
		{"relay rejected", dErrors.New(dErrors.CodeRelayRejected, "Error: quota"), http.StatusBadGateway, "relay_rejected", "Error: quota"},
		{"relay unavailable hides detail", dErrors.New(dErrors.CodeRelayUnavailable, "dial tcp 10.0.0.1"), http.StatusBadGateway, "relay_unavailable", ""},
		{"config missing hides detail", dErrors.New(dErrors.CodeConfigMissing, "RELAY_API_KEY unset"), http.StatusServiceUnavailable, "service_not_configured", ""},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "internal_error", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			res := decodeError(t, rec)
			assert.Equal(t, tt.code, res.Error)
			assert.Equal(t, tt.description, res.ErrorDescription)
		})
	}
}
