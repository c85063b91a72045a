package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"reservas/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Schema is the set of statements one service needs at startup.
type Schema []string

// BookingSchema backs the booking service: reservations, reservation types and the space projection.
var BookingSchema = Schema{
	`CREATE TABLE IF NOT EXISTS reservations (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL,
            space_id INTEGER NOT NULL,
            start_at TEXT NOT NULL,
            end_at TEXT NOT NULL,
            hours INTEGER NOT NULL,
            status INTEGER NOT NULL DEFAULT 1,
            total TEXT NOT NULL,
            transaction_id TEXT NOT NULL UNIQUE,
            calendar_event_id TEXT NOT NULL,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
	`CREATE TABLE IF NOT EXISTS space_projection (
            id INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            type_id INTEGER NOT NULL DEFAULT 0,
            description TEXT NOT NULL DEFAULT '',
            capacity INTEGER NOT NULL DEFAULT 0,
            hourly_rate REAL NOT NULL DEFAULT 0,
            daily_rate REAL NOT NULL DEFAULT 0,
            active INTEGER NOT NULL DEFAULT 1,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL,
            event_ts TEXT NOT NULL
        )`,
	`CREATE TABLE IF NOT EXISTS reservation_types (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL UNIQUE,
            description TEXT NOT NULL DEFAULT '',
            created_at TEXT NOT NULL
        )`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_space_interval ON reservations(space_id, start_at, end_at)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_user_id ON reservations(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_status ON reservations(status)`,
}

// CatalogSchema backs the catalog service: spaces, their types and the publish outbox.
var CatalogSchema = Schema{
	`CREATE TABLE IF NOT EXISTS space_types (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL UNIQUE,
            description TEXT NOT NULL DEFAULT '',
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
	`CREATE TABLE IF NOT EXISTS spaces (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL UNIQUE,
            type_id INTEGER NOT NULL DEFAULT 0,
            description TEXT NOT NULL DEFAULT '',
            capacity INTEGER NOT NULL,
            hourly_rate REAL NOT NULL,
            daily_rate REAL NOT NULL,
            active INTEGER NOT NULL DEFAULT 1,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
	`CREATE TABLE IF NOT EXISTS publish_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            space_id INTEGER NOT NULL,
            event_type TEXT NOT NULL,
            payload TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at TEXT NOT NULL,
            processed_at TEXT,
            next_retry_at TEXT
        )`,
	`CREATE INDEX IF NOT EXISTS idx_publish_queue_status ON publish_queue(status, next_retry_at)`,
	`CREATE INDEX IF NOT EXISTS idx_spaces_type_id ON spaces(type_id)`,
}

type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

// NewDB opens the SQLite file at path and applies schema.
// Writers use BEGIN IMMEDIATE so conflict checks and inserts serialize in the engine.
func NewDB(path string, logger *zerolog.Logger, schema Schema) (*DB, error) {
	inMemory := path == ":memory:"
	if !inMemory {
		// Создаем директорию для БД, если её нет
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", dsn(path, inMemory))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		// every connection would otherwise get its own empty database
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, logger: logger}
	if err := db.createTables(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return db, nil
}

func dsn(path string, inMemory bool) string {
	params := []string{"_txlock=immediate", "_busy_timeout=5000", "_foreign_keys=1"}
	if !inMemory {
		params = append(params, "_journal_mode=WAL")
	}
	return path + "?" + strings.Join(params, "&")
}

func (db *DB) createTables(schema Schema) error {
	for _, query := range schema {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(models.TimeLayout)
}

// parseTime also accepts RFC 3339 text with a shorter fraction, as written
// by earlier versions of the schema.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(models.TimeLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored time %q: %w", s, err)
	}
	return t, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
