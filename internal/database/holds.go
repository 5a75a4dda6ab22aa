package database

import (
	"context"
	"fmt"
	"time"

	"shinebin/internal/models"

	"github.com/google/uuid"
)

// releasableHold matches a hold that no active booking owns.
const releasableHold = `(booking_id IS NULL OR booking_id NOT IN (
        SELECT id FROM bookings WHERE status IN ('pending', 'confirmed')))`

// TryReserve inserts a hold for (date, slot). The UNIQUE constraint on slot_holds
// decides between concurrent callers; the loser gets ErrSlotUnavailable.
func (db *DB) TryReserve(ctx context.Context, date, slot string) (string, error) {
	token := uuid.NewString()
	query := `INSERT INTO slot_holds (token, date, time_slot, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := db.ExecContext(ctx, query, token, date, slot, time.Now().UTC()); err != nil {
		if isUniqueViolation(err) {
			return "", ErrSlotUnavailable
		}
		return "", fmt.Errorf("failed to insert slot hold: %w", err)
	}
	return token, nil
}

// Release drops the hold identified by token unless an active booking still owns it.
// It reports whether a row was removed; unknown tokens are a no-op.
func (db *DB) Release(ctx context.Context, token string) (models.SlotHold, bool, error) {
	query := `DELETE FROM slot_holds WHERE token = $1 AND ` + releasableHold + `
              RETURNING date, time_slot`
	h := models.SlotHold{Token: token}
	err := db.QueryRowContext(ctx, query, token).Scan(&h.Date, &h.Slot)
	if err != nil {
		if isNoRows(err) {
			return models.SlotHold{}, false, nil
		}
		return models.SlotHold{}, false, fmt.Errorf("failed to release slot hold: %w", err)
	}
	return h, true, nil
}

// ListOccupied returns the slots of date taken by an active booking or an in-flight hold.
func (db *DB) ListOccupied(ctx context.Context, date string) ([]string, error) {
	query := `SELECT time_slot FROM slot_holds WHERE date = $1
              UNION
              SELECT time_slot FROM bookings WHERE date = $1 AND status IN ('pending', 'confirmed')`
	rows, err := db.QueryContext(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list occupied slots: %w", err)
	}
	defer rows.Close()

	slots := []string{}
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return nil, fmt.Errorf("failed to scan occupied slot: %w", err)
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

func (db *DB) IsFree(ctx context.Context, date, slot string) (bool, error) {
	query := `SELECT
                (SELECT COUNT(*) FROM slot_holds WHERE date = $1 AND time_slot = $2) +
                (SELECT COUNT(*) FROM bookings WHERE date = $1 AND time_slot = $2 AND status IN ('pending', 'confirmed'))`
	var n int
	if err := db.QueryRowContext(ctx, query, date, slot).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check slot: %w", err)
	}
	return n == 0, nil
}

// PurgeStaleHolds removes releasable holds created before the cutoff. These are
// left behind when a process dies between reserving and persisting, or between
// cancelling and releasing.
func (db *DB) PurgeStaleHolds(ctx context.Context, before time.Time) ([]models.SlotHold, error) {
	query := `DELETE FROM slot_holds WHERE created_at < $1 AND ` + releasableHold + `
              RETURNING token, date, time_slot`
	rows, err := db.QueryContext(ctx, query, before.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to purge stale holds: %w", err)
	}
	defer rows.Close()

	var holds []models.SlotHold
	for rows.Next() {
		var h models.SlotHold
		if err := rows.Scan(&h.Token, &h.Date, &h.Slot); err != nil {
			return nil, fmt.Errorf("failed to scan purged hold: %w", err)
		}
		holds = append(holds, h)
	}
	return holds, rows.Err()
}
