// Package availability decides which (date, slot) pairs are free and grants
// exclusive reservations on them.
//
// The database is the single source of truth: a reservation is a row in
// slot_holds guarded by a UNIQUE constraint, so two processes racing for the
// same slot are serialized by the store, not by this package. The optional
// cache only short-circuits requests for slots already known to be taken.
package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"shinebin/internal/catalog"
	"shinebin/internal/database"
	"shinebin/internal/domain"
	"shinebin/internal/metrics"
	"shinebin/internal/models"

	"github.com/rs/zerolog"
)

// ErrSlotUnavailable is matched by every conflict returned from TryReserve.
var ErrSlotUnavailable = database.ErrSlotUnavailable

// ConflictError reports the slot a reservation lost.
type ConflictError struct {
	Date string
	Slot string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("slot %s on %s is unavailable", e.Slot, e.Date)
}

func (e *ConflictError) Unwrap() error {
	return ErrSlotUnavailable
}

// Token identifies a granted reservation.
type Token string

type Index struct {
	store   domain.SlotStore
	cache   domain.SlotCache
	catalog *catalog.Catalog
	logger  *zerolog.Logger
}

// NewIndex builds an index over store. cache may be nil.
func NewIndex(store domain.SlotStore, cache domain.SlotCache, cat *catalog.Catalog, logger *zerolog.Logger) *Index {
	return &Index{
		store:   store,
		cache:   cache,
		catalog: cat,
		logger:  logger,
	}
}

// TryReserve grants the slot to exactly one caller. Losers get a *ConflictError
// immediately; nothing waits or retries.
func (i *Index) TryReserve(ctx context.Context, date time.Time, slot string) (Token, error) {
	day := date.Format(models.DateLayout)

	if i.cache != nil {
		occupied, err := i.cache.IsOccupied(ctx, day, slot)
		if err != nil {
			i.logger.Warn().Err(err).Str("date", day).Str("slot", slot).Msg("Slot cache lookup failed")
		} else if occupied {
			metrics.IncSlotConflict()
			return "", &ConflictError{Date: day, Slot: slot}
		}
	}

	token, err := i.store.TryReserve(ctx, day, slot)
	if err != nil {
		if errors.Is(err, database.ErrSlotUnavailable) {
			// Not cached: the winner may still release, and a late write here
			// would outlive that release.
			metrics.IncSlotConflict()
			return "", &ConflictError{Date: day, Slot: slot}
		}
		return "", fmt.Errorf("reserve %s %s: %w", day, slot, err)
	}

	i.remember(ctx, day, slot)
	i.logger.Debug().Str("date", day).Str("slot", slot).Msg("Slot reserved")
	return Token(token), nil
}

// Release frees the slot held by token. Unknown or already released tokens are a no-op,
// as are tokens still owned by an active booking.
func (i *Index) Release(ctx context.Context, token Token) error {
	if token == "" {
		return nil
	}
	hold, released, err := i.store.Release(ctx, string(token))
	if err != nil {
		return fmt.Errorf("release: %w", err)
	}
	if released {
		i.forget(ctx, hold.Date, hold.Slot)
		i.logger.Debug().Str("date", hold.Date).Str("slot", hold.Slot).Msg("Slot released")
	}
	return nil
}

func (i *Index) IsFree(ctx context.Context, date time.Time, slot string) (bool, error) {
	return i.store.IsFree(ctx, date.Format(models.DateLayout), slot)
}

// ListOccupied returns the occupied slots of date in catalog order.
func (i *Index) ListOccupied(ctx context.Context, date time.Time) ([]string, error) {
	slots, err := i.store.ListOccupied(ctx, date.Format(models.DateLayout))
	if err != nil {
		return nil, err
	}
	if i.catalog != nil {
		sort.SliceStable(slots, func(a, b int) bool {
			return i.catalog.SlotIndex(slots[a]) < i.catalog.SlotIndex(slots[b])
		})
	} else {
		sort.Strings(slots)
	}
	return slots, nil
}

// PurgeStale drops holds older than cutoff that no active booking owns.
func (i *Index) PurgeStale(ctx context.Context, cutoff time.Time) (int, error) {
	holds, err := i.store.PurgeStaleHolds(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, h := range holds {
		i.forget(ctx, h.Date, h.Slot)
	}
	return len(holds), nil
}

func (i *Index) remember(ctx context.Context, day, slot string) {
	if i.cache == nil {
		return
	}
	if err := i.cache.MarkOccupied(ctx, day, slot); err != nil {
		i.logger.Warn().Err(err).Str("date", day).Str("slot", slot).Msg("Slot cache write failed")
	}
}

func (i *Index) forget(ctx context.Context, day, slot string) {
	if i.cache == nil {
		return
	}
	if err := i.cache.Forget(ctx, day, slot); err != nil {
		i.logger.Warn().Err(err).Str("date", day).Str("slot", slot).Msg("Slot cache invalidation failed")
	}
}
