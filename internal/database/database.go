package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB wraps sql.DB for the booking service.
type DB struct {
	*sql.DB
	path   string
	logger zerolog.Logger
}

var (
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrSlotTaken means a live booking already starts at the same trainer,
	// date and time.
	ErrSlotTaken = errors.New("slot already taken")
)

// NewDB opens the database at path and creates tables if they don't exist.
func NewDB(path string, logger zerolog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL, busy timeout and immediate transactions: every BeginTx takes the
	// write lock up front, so a read-check-insert sequence is serialized.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	instance := &DB{
		DB:     db,
		path:   path,
		logger: logger.With().Str("component", "database").Logger(),
	}

	if err := instance.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	instance.logger.Info().Str("path", path).Msg("database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trainers (
			id INTEGER PRIMARY KEY,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			email TEXT,
			specialties TEXT,
			session_fee_minor INTEGER NOT NULL DEFAULT 0,
			work_start TEXT NOT NULL,
			work_end TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS services (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			category TEXT NOT NULL DEFAULT 'other',
			duration_minutes INTEGER NOT NULL CHECK (duration_minutes BETWEEN 15 AND 240),
			price_minor INTEGER NOT NULL DEFAULT 0,
			max_participants INTEGER NOT NULL DEFAULT 1,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS trainer_services (
			trainer_id INTEGER NOT NULL,
			service_id INTEGER NOT NULL,
			PRIMARY KEY (trainer_id, service_id),
			FOREIGN KEY (trainer_id) REFERENCES trainers(id),
			FOREIGN KEY (service_id) REFERENCES services(id)
		)`,

		// day_of_week: 1=Mon .. 7=Sun
		`CREATE TABLE IF NOT EXISTS availability_windows (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			trainer_id INTEGER NOT NULL,
			day_of_week INTEGER NOT NULL CHECK (day_of_week BETWEEN 1 AND 7),
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			is_available BOOLEAN NOT NULL DEFAULT 1,
			note TEXT,
			CHECK (start_time < end_time),
			FOREIGN KEY (trainer_id) REFERENCES trainers(id)
		)`,

		`CREATE TABLE IF NOT EXISTS bookings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			reference TEXT UNIQUE NOT NULL,
			member_id TEXT NOT NULL,
			trainer_id INTEGER NOT NULL,
			service_id INTEGER NOT NULL,
			date TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			price_minor INTEGER NOT NULL,
			member_note TEXT,
			trainer_note TEXT,
			cancel_reason TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME,
			version INTEGER NOT NULL DEFAULT 1,
			CHECK (start_time < end_time),
			FOREIGN KEY (trainer_id) REFERENCES trainers(id),
			FOREIGN KEY (service_id) REFERENCES services(id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_windows_trainer_day ON availability_windows(trainer_id, day_of_week)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_trainer_date ON bookings(trainer_id, date, start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_date ON bookings(date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_member ON bookings(member_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_live_slot
			ON bookings(trainer_id, date, start_time) WHERE status != 'cancelled'`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// Ready pings the database with a short deadline.
func (db *DB) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return db.PingContext(ctx)
}
