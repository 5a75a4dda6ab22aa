package service

import (
	"context"
	"time"

	"shinebin/internal/availability"
	"shinebin/internal/metrics"

	"github.com/rs/zerolog"
)

const (
	sweepBatchSize = 100
	// holds never attached to a booking are left over from crashed submissions
	staleHoldAge = 15 * time.Minute
)

// ExpirySweeper periodically cancels pending bookings that were never confirmed
// and drops orphaned slot holds.
type ExpirySweeper struct {
	bookings *BookingService
	index    *availability.Index
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *zerolog.Logger
}

func NewExpirySweeper(bookings *BookingService, index *availability.Index, ttl, interval time.Duration, logger *zerolog.Logger) *ExpirySweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ExpirySweeper{
		bookings: bookings,
		index:    index,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
}

// Start sweeps once immediately and then every interval until ctx is done.
// A zero ttl disables pending expiry but orphaned holds are still purged.
func (s *ExpirySweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ExpirySweeper) sweep(ctx context.Context) {
	expired, purged, err := s.SweepOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("Pending sweep failed")
		}
		return
	}
	if expired > 0 || purged > 0 {
		s.logger.Info().Int("expired", expired).Int("purged_holds", purged).Msg("Pending sweep finished")
	}
}

// SweepOnce runs a single pass and reports how many bookings expired and how
// many orphaned holds were purged.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (int, int, error) {
	now := s.now()

	expired := 0
	if s.ttl > 0 {
		for {
			n, err := s.bookings.ExpirePending(ctx, now.Add(-s.ttl), sweepBatchSize)
			expired += n
			if err != nil {
				metrics.AddPendingExpired(expired)
				return expired, 0, err
			}
			if n < sweepBatchSize {
				break
			}
		}
		metrics.AddPendingExpired(expired)
	}

	purged, err := s.index.PurgeStale(ctx, now.Add(-staleHoldAge))
	if err != nil {
		return expired, 0, err
	}
	return expired, purged, nil
}
