package service

import (
	"context"
	"testing"
	"time"

	"shinebin/internal/config"
	"shinebin/internal/events"
	"shinebin/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepExpiresPending(t *testing.T) {
	f := newFixture(t, config.BookingConfig{})
	ctx := context.Background()

	pending, err := f.svc.Submit(ctx, candidate())
	require.NoError(t, err)

	other := candidate()
	other.TimeSlot = "10:00-12:00"
	confirmed, err := f.svc.Submit(ctx, other)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, confirmed.ID, confirmed.Version)
	require.NoError(t, err)

	expiredEvents := 0
	f.bus.Subscribe(events.EventBookingExpired, func(*events.Event) error {
		expiredEvents++
		return nil
	})

	logger := zerolog.Nop()
	sweeper := NewExpirySweeper(f.svc, f.index, 48*time.Hour, time.Minute, &logger)

	expired, _, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired, "fresh bookings must survive")

	sweeper.now = func() time.Time { return time.Now().Add(49 * time.Hour) }
	expired, _, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	assert.Equal(t, 1, expiredEvents)

	b, err := f.svc.GetBooking(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, b.Status)
	assert.Equal(t, models.CancelReasonExpired, b.CancelReason)
	assert.True(t, slotFree(t, f.index, "2030-01-02", "08:00-10:00"))

	b, err = f.svc.GetBooking(ctx, confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, b.Status)
	assert.False(t, slotFree(t, f.index, "2030-01-02", "10:00-12:00"))
}

func TestSweepPurgesOrphanedHolds(t *testing.T) {
	f := newFixture(t, config.BookingConfig{})
	ctx := context.Background()

	date := time.Date(2030, 1, 3, 0, 0, 0, 0, time.UTC)
	_, err := f.index.TryReserve(ctx, date, "12:00-14:00")
	require.NoError(t, err)

	logger := zerolog.Nop()
	sweeper := NewExpirySweeper(f.svc, f.index, 0, time.Minute, &logger)
	sweeper.now = func() time.Time { return time.Now().Add(time.Hour) }

	expired, purged, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)
	assert.Equal(t, 1, purged)

	free, err := f.index.IsFree(ctx, date, "12:00-14:00")
	require.NoError(t, err)
	assert.True(t, free)
}

func TestSweeperStops(t *testing.T) {
	f := newFixture(t, config.BookingConfig{})
	logger := zerolog.Nop()
	sweeper := NewExpirySweeper(f.svc, f.index, time.Hour, 10*time.Millisecond, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Start(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
