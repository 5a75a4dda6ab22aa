package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"shinebin/internal/config"

	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// DB wraps the connection pool. All queries use $N placeholders, which both
// drivers accept.
type DB struct {
	*sql.DB
	driver string
	path   string
	logger *zerolog.Logger
}

// NewDB opens the configured database and ensures the schema exists.
func NewDB(cfg config.DatabaseConfig, logger *zerolog.Logger) (*DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	var dsn string
	switch driver {
	case DriverSQLite:
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn = sqliteDSN(cfg.Path)
	case DriverPostgres:
		dsn = cfg.DSN
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// one writer connection; concurrent callers queue in the pool instead of hitting SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, driver: driver, path: cfg.Path, logger: logger}
	if err := db.migrate(context.Background()); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("driver", driver).Msg("Database initialized")
	return db, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_busy_timeout=5000&_foreign_keys=on"
}

// Driver returns the sql driver name.
func (db *DB) Driver() string {
	return db.driver
}

// Path returns the sqlite file path; empty for postgres.
func (db *DB) Path() string {
	if db.driver != DriverSQLite {
		return ""
	}
	return db.path
}

func (db *DB) migrate(ctx context.Context) error {
	for _, query := range schema(db.driver) {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func schema(driver string) []string {
	ts, serial := "DATETIME", "INTEGER PRIMARY KEY AUTOINCREMENT"
	if driver == DriverPostgres {
		ts, serial = "TIMESTAMPTZ", "BIGSERIAL PRIMARY KEY"
	}

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS bookings (
            id TEXT PRIMARY KEY,
            customer_name TEXT NOT NULL,
            customer_email TEXT NOT NULL,
            address TEXT NOT NULL,
            plan TEXT NOT NULL,
            bin_quantity INTEGER NOT NULL CHECK (bin_quantity >= 1),
            date TEXT NOT NULL,
            time_slot TEXT NOT NULL,
            addons TEXT NOT NULL DEFAULT '[]',
            payment_method TEXT NOT NULL,
            total_cents BIGINT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending'
                CHECK (status IN ('pending', 'confirmed', 'completed', 'cancelled')),
            cancel_reason TEXT NOT NULL DEFAULT '',
            hold_token TEXT NOT NULL,
            created_at %[1]s NOT NULL,
            updated_at %[1]s NOT NULL,
            version BIGINT NOT NULL DEFAULT 1
        )`, ts),

		// at most one active booking per slot
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_active_slot
            ON bookings(date, time_slot) WHERE status IN ('pending', 'confirmed')`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_date ON bookings(date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status_created ON bookings(status, created_at)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS slot_holds (
            token TEXT PRIMARY KEY,
            date TEXT NOT NULL,
            time_slot TEXT NOT NULL,
            booking_id TEXT,
            created_at %s NOT NULL,
            UNIQUE (date, time_slot)
        )`, ts),
		`CREATE INDEX IF NOT EXISTS idx_slot_holds_booking ON slot_holds(booking_id)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS notification_queue (
            id %[2]s,
            task_type TEXT NOT NULL,
            booking_id TEXT NOT NULL,
            payload TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at %[1]s NOT NULL,
            processed_at %[1]s,
            next_retry_at %[1]s
        )`, ts, serial),
		`CREATE INDEX IF NOT EXISTS idx_notification_queue_status ON notification_queue(status, next_retry_at)`,
	}
}
