package cache

import (
	"context"
	"time"

	"retailpos/backend/internal/domain"
)

// IdempotencyCache holds completed idempotency records so replays can skip
// the database. The durable record stays authoritative; a miss or an error
// here only means the slow path is taken.
type IdempotencyCache interface {
	Get(ctx context.Context, scope string, key string) (*domain.IdempotencyRecord, bool, error)
	Set(ctx context.Context, rec domain.IdempotencyRecord, ttl time.Duration) error
}

type NoopIdempotencyCache struct{}

func (NoopIdempotencyCache) Get(_ context.Context, _ string, _ string) (*domain.IdempotencyRecord, bool, error) {
	return nil, false, nil
}

func (NoopIdempotencyCache) Set(_ context.Context, _ domain.IdempotencyRecord, _ time.Duration) error {
	return nil
}

func cacheKey(scope string, key string) string {
	return "pos:idem:" + scope + ":" + key
}
