package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrSlotUnavailable        = errors.New("slot unavailable")
	ErrHoldNotFound           = errors.New("slot hold not found")
	ErrBookingNotFound        = errors.New("booking not found")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY violation in either driver.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
