package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"shinebin/internal/models"

	"github.com/google/uuid"
)

const bookingColumns = `id, customer_name, customer_email, address, plan, bin_quantity, date,
                 time_slot, addons, payment_method, total_cents, status, cancel_reason,
                 hold_token, created_at, updated_at, version`

// CreateBooking persists booking as pending and attaches it to the hold in
// booking.HoldToken, in one transaction. ID, timestamps and version are assigned here.
func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	addons, err := json.Marshal(nonNil(booking.Addons))
	if err != nil {
		return fmt.Errorf("failed to encode addons: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	id := uuid.NewString()
	now := time.Now().UTC()

	queryInsert := `INSERT INTO bookings (
                id, customer_name, customer_email, address, plan, bin_quantity, date,
                time_slot, addons, payment_method, total_cents, status, cancel_reason,
                hold_token, created_at, updated_at, version
            ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err = tx.ExecContext(ctx, queryInsert,
		id,
		booking.Customer.Name,
		booking.Customer.Email,
		booking.Address,
		booking.Plan,
		booking.BinQuantity,
		booking.DateKey(),
		booking.TimeSlot,
		string(addons),
		booking.PaymentMethod,
		int64(booking.TotalPrice),
		models.StatusPending,
		"",
		booking.HoldToken,
		now,
		now,
		1,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotUnavailable
		}
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}

	queryAttach := `UPDATE slot_holds SET booking_id = $1
                    WHERE token = $2 AND date = $3 AND time_slot = $4 AND booking_id IS NULL`
	result, err := tx.ExecContext(ctx, queryAttach, id, booking.HoldToken, booking.DateKey(), booking.TimeSlot)
	if err != nil {
		return fmt.Errorf("failed to attach slot hold: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrHoldNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}

	booking.ID = id
	booking.Status = models.StatusPending
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	booking, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// UpdateBookingStatusWithVersion moves a booking to status if it is still at fromVersion.
// A stale version yields ErrConcurrentModification, an unknown id ErrBookingNotFound.
func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id string, fromVersion int64, status, reason string) error {
	query := `UPDATE bookings SET status = $1, cancel_reason = $2, version = version + 1, updated_at = $3
              WHERE id = $4 AND version = $5`
	result, err := db.ExecContext(ctx, query, status, reason, time.Now().UTC(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists int
	err = db.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE id = $1`, id).Scan(&exists)
	if isNoRows(err) {
		return ErrBookingNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check booking: %w", err)
	}
	return ErrConcurrentModification
}

// GetBookingsByDateRange returns bookings with from <= date <= to (both YYYY-MM-DD).
func (db *DB) GetBookingsByDateRange(ctx context.Context, from, to string) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + `
              FROM bookings WHERE date >= $1 AND date <= $2 ORDER BY date ASC, time_slot ASC, created_at ASC`
	return db.queryBookings(ctx, query, from, to)
}

// GetExpiredPending returns pending bookings created before the cutoff.
func (db *DB) GetExpiredPending(ctx context.Context, before time.Time, limit int) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + `
              FROM bookings WHERE status = $1 AND created_at < $2 ORDER BY created_at ASC LIMIT $3`
	return db.queryBookings(ctx, query, models.StatusPending, before.UTC(), limit)
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...any) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	bookings := []*models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b       models.Booking
		dateStr string
		addons  string
		total   int64
	)
	err := row.Scan(
		&b.ID, &b.Customer.Name, &b.Customer.Email, &b.Address, &b.Plan, &b.BinQuantity, &dateStr,
		&b.TimeSlot, &addons, &b.PaymentMethod, &total, &b.Status, &b.CancelReason,
		&b.HoldToken, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}

	b.Date, err = time.Parse(models.DateLayout, dateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse booking date %s: %w", dateStr, err)
	}
	if err := json.Unmarshal([]byte(addons), &b.Addons); err != nil {
		return nil, fmt.Errorf("failed to decode addons of %s: %w", b.ID, err)
	}
	b.TotalPrice = models.Money(total)
	return &b, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SuggestAddresses returns distinct addresses of earlier bookings that start with
// prefix, case-insensitively, most recently booked first.
func (db *DB) SuggestAddresses(ctx context.Context, prefix string, limit int) ([]string, error) {
	pattern := likeEscaper.Replace(strings.ToLower(prefix)) + "%"
	query := `SELECT address FROM bookings WHERE LOWER(address) LIKE $1 ESCAPE '\'
              GROUP BY address ORDER BY MAX(created_at) DESC LIMIT $2`
	rows, err := db.QueryContext(ctx, query, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest addresses: %w", err)
	}
	defer rows.Close()

	addresses := []string{}
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		addresses = append(addresses, a)
	}
	return addresses, rows.Err()
}
