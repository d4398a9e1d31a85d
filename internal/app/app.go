// Package app is the composition root shared by the server binary and the
// end-to-end suite.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	formsHandler "fishtank/internal/forms/handler"
	formsMetrics "fishtank/internal/forms/metrics"
	"fishtank/internal/forms/models"
	"fishtank/internal/forms/schema"
	"fishtank/internal/forms/service"
	"fishtank/internal/forms/store"
	"fishtank/internal/forms/ticket"
	formsCleanup "fishtank/internal/forms/workers/cleanup"
	"fishtank/internal/platform/config"
	"fishtank/internal/platform/health"
	"fishtank/internal/platform/metrics"
	"fishtank/internal/platform/redis"
	rlMetrics "fishtank/internal/ratelimit/metrics"
	rlMiddleware "fishtank/internal/ratelimit/middleware"
	rlModels "fishtank/internal/ratelimit/models"
	rlService "fishtank/internal/ratelimit/service"
	"fishtank/internal/ratelimit/store/bucket"
	rlCleanup "fishtank/internal/ratelimit/workers/cleanup"
	"fishtank/internal/relay"
	"fishtank/internal/site"
	httptransport "fishtank/internal/transport/http"
	"fishtank/pkg/platform/circuit"
	"fishtank/pkg/platform/middleware/metadata"
	request "fishtank/pkg/platform/middleware/request"
	"fishtank/pkg/platform/tracer"
)

const (
	poolStatsInterval = 15 * time.Second
	// requestSlack is added to the relay timeout so a slow relay answer is
	// still reported to the page instead of cut off by the handler timeout.
	requestSlack = 5 * time.Second
)

type options struct {
	clock      func() time.Time
	registry   *prometheus.Registry
	httpClient relay.HTTPDoer
	tracer     tracer.Tracer
}

type Option func(*options)

// WithClock replaces time.Now in the form flow and tickets.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}

// WithRegistry registers metrics on reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithRelayHTTPClient replaces the HTTP client of the relay dispatcher.
func WithRelayHTTPClient(c relay.HTTPDoer) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// App is a fully wired server: the HTTP handler plus its background workers.
type App struct {
	Handler  http.Handler
	Registry *prometheus.Registry
	Forms    *service.Service

	logger  *slog.Logger
	workers []func(ctx context.Context) error
	closers []func() error
}

func New(ctx context.Context, cfg *config.Server, logger *slog.Logger, opts ...Option) (*App, error) {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = metrics.NewRegistry()
	}
	if o.tracer == nil {
		o.tracer = tracer.NewOTel()
	}
	a := &App{Registry: o.registry, logger: logger}

	proxies, err := metadata.ParseTrustedProxies(cfg.Security.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	probes := health.New(cfg.Environment)

	limiter, err := a.buildRateLimit(ctx, cfg, probes)
	if err != nil {
		return nil, err
	}

	dispatcher := relay.New(relay.Config{
		URL:    cfg.Relay.URL,
		APIKey: cfg.Relay.APIKey,
		Sheets: map[models.FormName]string{
			models.FormApply:    cfg.Relay.SheetApply,
			models.FormFeedback: cfg.Relay.SheetFeedback,
		},
		Timeout:    cfg.Relay.Timeout,
		HTTPClient: o.httpClient,
		Breaker:    circuit.New("relay"),
		Tracer:     o.tracer,
		Metrics:    relay.NewMetrics(o.registry),
		Logger:     logger,
	})
	probes.RegisterCheck("relay", dispatcher.Ready)
	if !dispatcher.Configured() {
		logger.WarnContext(ctx, "relay endpoint or api key missing, submissions will report a configuration fault")
	}

	sessions := store.NewInMemorySessionStore()
	forms, err := service.New(
		schema.Default(),
		sessions,
		ticket.New(cfg.Session.TicketSigningKey, cfg.Session.TicketTTL, ticket.WithClock(o.clock)),
		dispatcher,
		&service.Config{MinDwell: cfg.Forms.MinDwell, SessionTTL: cfg.Session.TTL},
		service.WithLogger(logger),
		service.WithMetrics(formsMetrics.New(o.registry)),
		service.WithTracer(o.tracer),
		service.WithClock(o.clock),
	)
	if err != nil {
		return nil, err
	}
	a.Forms = forms

	sweeper, err := formsCleanup.New(sessions,
		formsCleanup.WithCleanupInterval(cfg.Session.CleanupInterval),
		formsCleanup.WithCleanupLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	a.workers = append(a.workers, sweeper.Start)

	renderer, err := site.NewRenderer()
	if err != nil {
		return nil, err
	}

	a.Handler = httptransport.NewRouter(httptransport.RouterDeps{
		Logger:         logger,
		Health:         probes,
		Registry:       o.registry,
		RequestMetrics: request.NewMetrics(o.registry),
		Metadata:       metadata.New(proxies),
		RateLimit:      limiter,
		Forms:          formsHandler.New(forms, logger),
		Site:           site.New(forms, renderer, logger),
		MaxBodyBytes:   cfg.MaxBodyBytes,
		RequestTimeout: cfg.Relay.Timeout + requestSlack,
	})
	return a, nil
}

// buildRateLimit picks the Redis bucket store when REDIS_URL is set and the
// in-memory store otherwise.
func (a *App) buildRateLimit(ctx context.Context, cfg *config.Server, probes *health.Handler) (*rlMiddleware.Middleware, error) {
	m := rlMetrics.New(a.Registry)

	var buckets rlService.BucketStore
	client, err := redis.New(ctx, cfg.Redis, a.Registry)
	if err != nil {
		return nil, err
	}
	if client != nil {
		buckets = bucket.NewRedisBucketStore(client)
		probes.RegisterCheck("redis", client.Health)
		a.closers = append(a.closers, client.Close)
		a.workers = append(a.workers, func(ctx context.Context) error {
			return every(ctx, poolStatsInterval, client.RecordPoolStats)
		})
		a.logger.InfoContext(ctx, "rate limit buckets in redis")
	} else {
		mem := bucket.NewInMemoryBucketStore()
		buckets = mem
		a.workers = append(a.workers, rlCleanup.New(mem,
			rlCleanup.WithLogger(a.logger),
			rlCleanup.WithMetrics(m),
			rlCleanup.WithInterval(cfg.Session.CleanupInterval),
		).Start)
	}

	limits, err := rlService.New(buckets, map[rlModels.Scope]rlService.Limit{
		rlModels.ScopeSubmit: {Requests: cfg.RateLimit.SubmitLimit, Window: cfg.RateLimit.SubmitWindow},
	})
	if err != nil {
		return nil, err
	}
	return rlMiddleware.New(limits, a.logger, m), nil
}

// RunWorkers runs the background workers until ctx is cancelled.
func (a *App) RunWorkers(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range a.workers {
		g.Go(func() error {
			if err := w(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Close releases external connections.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func every(ctx context.Context, interval time.Duration, fn func()) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			fn()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
