// Package httptransport assembles the HTTP surface: platform middleware,
// probes, metrics and the form routes.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	formsHandler "fishtank/internal/forms/handler"
	"fishtank/internal/platform/health"
	"fishtank/internal/platform/metrics"
	rlMiddleware "fishtank/internal/ratelimit/middleware"
	"fishtank/internal/ratelimit/models"
	"fishtank/internal/site"
	"fishtank/pkg/platform/middleware/metadata"
	request "fishtank/pkg/platform/middleware/request"
)

const (
	contentTypeJSON = "application/json"
	contentTypeForm = "application/x-www-form-urlencoded"
)

// RouterDeps carries the handlers and middleware built by main. RateLimit
// may be nil to serve without submission limits.
type RouterDeps struct {
	Logger         *slog.Logger
	Health         *health.Handler
	Registry       *prometheus.Registry
	RequestMetrics *request.Metrics
	Metadata       *metadata.Middleware
	RateLimit      *rlMiddleware.Middleware
	Forms          *formsHandler.Handler
	Site           *site.Handler
	MaxBodyBytes   int64
	RequestTimeout time.Duration
}

// NewRouter wires all public endpoints with middleware.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(d.Logger))
	r.Use(request.RequestID)
	r.Use(d.Metadata.Handler)
	r.Use(request.Logger(d.Logger))
	r.Use(request.LatencyMiddleware(d.RequestMetrics, routePattern))

	d.Health.Register(r)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(d.Registry))

	submitGuard := func(next http.Handler) http.Handler { return next }
	if d.RateLimit != nil {
		submitGuard = d.RateLimit.RateLimit(models.ScopeSubmit)
	}

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(d.RequestTimeout))
		r.Use(request.BodyLimit(d.MaxBodyBytes))

		r.Group(func(r chi.Router) {
			r.Use(request.ContentType(contentTypeJSON))
			d.Forms.Register(r)
			r.With(submitGuard).Group(d.Forms.RegisterSubmissions)
		})

		r.Group(func(r chi.Router) {
			r.Use(request.ContentType(contentTypeForm))
			d.Site.Register(r, submitGuard)
		})
	})

	return r
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}
