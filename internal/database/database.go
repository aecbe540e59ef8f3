package database

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
	logger *zap.Logger
}

func New(storagePath string, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("sqlite", storagePath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Reconciliation serializes per date above the store; a single connection
	// keeps sqlite writes from tripping over each other below it.
	db.SetMaxOpenConns(1)

	database := &DB{
		DB:     db,
		logger: logger,
	}

	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Database connection established", zap.String("path", storagePath))
	return database, nil
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		// Append-only event log; the unique index is the dedupe boundary for
		// at-least-once delivery. Instants are unix milliseconds so range
		// scans order chronologically.
		`CREATE TABLE IF NOT EXISTS system_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			event_time INTEGER NOT NULL,
			event_source TEXT NOT NULL DEFAULT 'system',
			details TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(event_type, event_time, event_source)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_system_events_time ON system_events(event_time)`,
		// One row per calendar date
		`CREATE TABLE IF NOT EXISTS time_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT NOT NULL UNIQUE,
			clock_in INTEGER,
			clock_out INTEGER,
			duration INTEGER NOT NULL DEFAULT 0,
			break_duration INTEGER NOT NULL DEFAULT 0,
			overtime_duration INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'normal',
			notes TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_time_records_status ON time_records(status)`,
		// Derived aggregates; droppable at any time
		`CREATE TABLE IF NOT EXISTS statistics_cache (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			stat_type TEXT NOT NULL,
			stat_date TEXT NOT NULL,
			stat_data TEXT NOT NULL,
			computed_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			UNIQUE(stat_type, stat_date)
		)`,
		// Raw events awaiting normalization; survives crashes for redelivery
		`CREATE TABLE IF NOT EXISTS pending_raw_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			payload TEXT NOT NULL,
			delivery_id TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			retry_count INTEGER DEFAULT 0,
			last_attempt TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_raw_events_created ON pending_raw_events(created_at)`,
		// Cursor for the catch-up sweep
		`CREATE TABLE IF NOT EXISTS sweep_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			last_swept_date TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	db.logger.Info("Database migrations completed")
	return nil
}

func (db *DB) Close() error {
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db.logger.Info("Database connection closed")
	return nil
}
