package repository

import (
	"database/sql"
	"errors"
	"fmt"
)

// SweepStateRepository holds the single-row cursor recording the last date
// the end-of-day sweep fully reconciled
type SweepStateRepository struct {
	db *sql.DB
}

func NewSweepStateRepository(db *sql.DB) *SweepStateRepository {
	return &SweepStateRepository{db: db}
}

// LastSweptDate returns the cursor, or ok=false when no sweep has run yet
func (r *SweepStateRepository) LastSweptDate() (string, bool, error) {
	var date string
	err := r.db.QueryRow(`SELECT last_swept_date FROM sweep_state WHERE id = 1`).Scan(&date)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get sweep state: %w", err)
	}
	return date, true, nil
}

// SetLastSweptDate advances the cursor
func (r *SweepStateRepository) SetLastSweptDate(date string) error {
	if _, err := r.db.Exec(`
		INSERT INTO sweep_state (id, last_swept_date, updated_at)
		VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			last_swept_date = excluded.last_swept_date,
			updated_at = CURRENT_TIMESTAMP
	`, date); err != nil {
		return fmt.Errorf("failed to set sweep state: %w", err)
	}
	return nil
}
