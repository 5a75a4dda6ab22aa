package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"shinebin/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverCacheRepository serves from primary (Redis) and switches to fallback
// (memory) on the first error, probing primary again once a minute.
type FailoverCacheRepository struct {
	primary   domain.CacheRepository
	fallback  domain.CacheRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverCacheRepository(primary, fallback domain.CacheRepository, logger *zerolog.Logger) *FailoverCacheRepository {
	return &FailoverCacheRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverCacheRepository) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary cache failed, falling back to memory")
	}
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverCacheRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Since(r.lastCheck) > recoveryInterval
}

func (r *FailoverCacheRepository) recovered() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary cache recovered")
	}
}

func (r *FailoverCacheRepository) IsOccupied(ctx context.Context, date, slot string) (bool, error) {
	if r.usePrimary() {
		occupied, err := r.primary.IsOccupied(ctx, date, slot)
		if err == nil {
			r.recovered()
			return occupied, nil
		}
		r.markDown(err)
	}
	return r.fallback.IsOccupied(ctx, date, slot)
}

func (r *FailoverCacheRepository) MarkOccupied(ctx context.Context, date, slot string) error {
	if r.usePrimary() {
		err := r.primary.MarkOccupied(ctx, date, slot)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.MarkOccupied(ctx, date, slot)
}

// Forget clears both stores so an entry written during an outage cannot outlive a release.
func (r *FailoverCacheRepository) Forget(ctx context.Context, date, slot string) error {
	_ = r.fallback.Forget(ctx, date, slot)
	if r.usePrimary() {
		err := r.primary.Forget(ctx, date, slot)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return nil
}

func (r *FailoverCacheRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.recovered()
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
