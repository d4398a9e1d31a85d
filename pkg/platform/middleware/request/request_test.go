package request

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fishtank/pkg/requestcontext"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestID(t *testing.T) {
	t.Run("generates UUID when no header provided", func(t *testing.T) {
		var captured string
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			captured = requestcontext.RequestID(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/apply", nil))

		assert.Len(t, captured, 36)
		assert.Equal(t, captured, w.Header().Get("X-Request-ID"))
	})

	t.Run("reuses a well-formed client id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/apply", nil)
		req.Header.Set("X-Request-ID", "edge.trace_42-a")
		w := httptest.NewRecorder()
		RequestID(okHandler()).ServeHTTP(w, req)

		assert.Equal(t, "edge.trace_42-a", w.Header().Get("X-Request-ID"))
	})

	t.Run("replaces malformed client ids", func(t *testing.T) {
		for _, id := range []string{
			strings.Repeat("a", MaxRequestIDLength+1),
			"valid\ninjected-log-line",
			"request id",
			"request<id>",
			"request\x00id",
		} {
			req := httptest.NewRequest(http.MethodGet, "/apply", nil)
			req.Header.Set("X-Request-ID", id)
			w := httptest.NewRecorder()
			RequestID(okHandler()).ServeHTTP(w, req)

			got := w.Header().Get("X-Request-ID")
			assert.NotEqual(t, id, got)
			assert.Len(t, got, 36)
		}
	})
}

func TestIsValidRequestID(t *testing.T) {
	assert.True(t, isValidRequestID("a"))
	assert.True(t, isValidRequestID(strings.Repeat("x", MaxRequestIDLength)))
	assert.False(t, isValidRequestID(""))
	assert.False(t, isValidRequestID("has;semicolon"))
	assert.False(t, isValidRequestID("has\ttab"))
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/feedback", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, buf.String(), "panic recovered")
}

func TestLogger(t *testing.T) {
	t.Run("logs request with anonymised client address", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))

		req := httptest.NewRequest(http.MethodPost, "/apply", nil)
		req = req.WithContext(requestcontext.WithClientMetadata(req.Context(), "203.0.113.77", "Mozilla/5.0"))
		w := httptest.NewRecorder()
		Logger(logger)(okHandler()).ServeHTTP(w, req)

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "/apply", entry["path"])
		assert.Equal(t, "203.0.113.0", entry["remote_addr_prefix"])
		assert.NotContains(t, buf.String(), "203.0.113.77")
	})

	t.Run("skips successful probes", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))

		w := httptest.NewRecorder()
		Logger(logger)(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))

		assert.Empty(t, buf.String())
	})
}

func TestContentType(t *testing.T) {
	mw := ContentType("application/json", "application/x-www-form-urlencoded")

	tests := []struct {
		name        string
		method      string
		contentType string
		want        int
	}{
		{"json post", http.MethodPost, "application/json", http.StatusOK},
		{"form post with charset", http.MethodPost, "application/x-www-form-urlencoded; charset=UTF-8", http.StatusOK},
		{"no content type", http.MethodPost, "", http.StatusOK},
		{"multipart rejected", http.MethodPost, "multipart/form-data; boundary=x", http.StatusUnsupportedMediaType},
		{"garbage rejected", http.MethodPost, ";;;", http.StatusUnsupportedMediaType},
		{"get ignores header", http.MethodGet, "text/plain", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/forms/apply/submissions", nil)
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			mw(okHandler()).ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestLatencyMiddleware(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	handler := LatencyMiddleware(m, func(*http.Request) string { return "/api/forms/{form}/submissions" })(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/forms/apply/submissions", nil))

	assert.Equal(t, 1, testutil.CollectAndCount(m.EndpointLatency, "fishtank_endpoint_latency_seconds"))
}
