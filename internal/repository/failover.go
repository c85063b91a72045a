package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"reservas/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverIdempotencyStore serves from redis and drops to the in-process store
// while redis is unreachable, trying it again once a minute.
type FailoverIdempotencyStore struct {
	primary  domain.IdempotencyStore
	fallback domain.IdempotencyStore
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverIdempotencyStore(primary, fallback domain.IdempotencyStore, logger *zerolog.Logger) *FailoverIdempotencyStore {
	return &FailoverIdempotencyStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// usePrimary reports whether the next call should try redis.
func (r *FailoverIdempotencyStore) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Since(r.lastCheck) > recoveryInterval
}

func (r *FailoverIdempotencyStore) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary idempotency store failed, falling back to memory")
	}
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

func (r *FailoverIdempotencyStore) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary idempotency store recovered")
	}
}

func (r *FailoverIdempotencyStore) GetReservationID(ctx context.Context, key string) (int64, bool, error) {
	if r.usePrimary() {
		id, ok, err := r.primary.GetReservationID(ctx, key)
		if err == nil {
			r.markUp()
			if ok {
				return id, true, nil
			}
			// Keys written while redis was down only live in memory.
			return r.fallback.GetReservationID(ctx, key)
		}
		r.markDown(err)
	}
	return r.fallback.GetReservationID(ctx, key)
}

func (r *FailoverIdempotencyStore) SetReservationID(ctx context.Context, key string, id int64, ttl time.Duration) error {
	if r.usePrimary() {
		err := r.primary.SetReservationID(ctx, key, id, ttl)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetReservationID(ctx, key, id, ttl)
}

func (r *FailoverIdempotencyStore) CheckRateLimit(ctx context.Context, subject string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, subject, limit, window)
		if err == nil {
			r.markUp()
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, subject, limit, window)
}
