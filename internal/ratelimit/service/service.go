// Package service applies per-client request limits on top of a bucket store.
package service

import (
	"context"
	"fmt"
	"time"

	"fishtank/internal/platform/privacy"
	"fishtank/internal/ratelimit/models"
)

// BucketStore is implemented by the memory and Redis bucket stores.
type BucketStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)
}

// Limit is the allowance for one scope.
type Limit struct {
	Requests int
	Window   time.Duration
}

type Service struct {
	store  BucketStore
	limits map[models.Scope]Limit
}

func New(store BucketStore, limits map[models.Scope]Limit) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("bucket store is required")
	}
	for scope, l := range limits {
		if l.Requests <= 0 || l.Window <= 0 {
			return nil, fmt.Errorf("invalid limit for scope %q", scope)
		}
	}
	return &Service{store: store, limits: limits}, nil
}

// CheckIP consumes one hit for ip in scope. Buckets are keyed by the
// anonymised prefix so raw addresses never reach the store.
func (s *Service) CheckIP(ctx context.Context, ip string, scope models.Scope) (*models.RateLimitResult, error) {
	limit, ok := s.limits[scope]
	if !ok {
		return &models.RateLimitResult{Allowed: true}, nil
	}
	return s.store.Allow(ctx, models.Key(scope, privacy.AnonymizeIP(ip)), limit.Requests, limit.Window)
}
