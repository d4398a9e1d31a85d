package cleanup

import (
	"context"
	"log/slog"
	"time"

	"fishtank/internal/ratelimit/metrics"
)

// IdleBucketStore is implemented by the in-memory bucket store. The Redis
// store expires keys on its own and needs no worker.
type IdleBucketStore interface {
	DeleteIdleBuckets(ctx context.Context, now time.Time) (int, error)
}

type Option func(*BucketCleanupService)

func WithLogger(logger *slog.Logger) Option {
	return func(s *BucketCleanupService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(s *BucketCleanupService) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *BucketCleanupService) {
		s.metrics = m
	}
}

type BucketCleanupService struct {
	store    IdleBucketStore
	logger   *slog.Logger
	interval time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time
}

func New(store IdleBucketStore, opts ...Option) *BucketCleanupService {
	s := &BucketCleanupService{
		store:    store,
		logger:   slog.Default(),
		interval: 5 * time.Minute,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start sweeps idle buckets every interval until ctx is cancelled.
func (s *BucketCleanupService) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "ratelimit_cleanup_failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce performs a single sweep and returns the number of buckets removed.
func (s *BucketCleanupService) RunOnce(ctx context.Context) (int, error) {
	deleted, err := s.store.DeleteIdleBuckets(ctx, s.now())
	if s.metrics != nil {
		if err != nil {
			s.metrics.CleanupRunsTotal.WithLabelValues("error").Inc()
		} else {
			s.metrics.CleanupRunsTotal.WithLabelValues("ok").Inc()
			s.metrics.CleanupDeleted.Add(float64(deleted))
		}
	}
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.DebugContext(ctx, "ratelimit_cleanup_completed", "buckets_deleted", deleted)
	}
	return deleted, nil
}
