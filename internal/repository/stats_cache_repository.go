package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"timetrace/worktime-agent/internal/models"
)

// StatsCacheRepository stores serialized aggregates keyed by (stat_type,
// stat_date). The table is derived data only; dropping it costs a recompute.
type StatsCacheRepository struct {
	db *sql.DB
}

func NewStatsCacheRepository(db *sql.DB) *StatsCacheRepository {
	return &StatsCacheRepository{db: db}
}

// Get returns the cached payload for a key if a row exists and has not
// expired as of now. A stale row is treated as absent.
func (r *StatsCacheRepository) Get(statType models.StatType, statDate string, now time.Time) ([]byte, bool, error) {
	var (
		data      string
		expiresAt int64
	)
	err := r.db.QueryRow(`
		SELECT stat_data, expires_at
		FROM statistics_cache
		WHERE stat_type = ? AND stat_date = ?
	`, string(statType), statDate).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cache entry: %w", err)
	}

	if now.Unix() >= expiresAt {
		return nil, false, nil
	}
	return []byte(data), true, nil
}

// Put stores or refreshes the payload for a key
func (r *StatsCacheRepository) Put(statType models.StatType, statDate string, data []byte, now, expiresAt time.Time) error {
	_, err := r.db.Exec(`
		INSERT INTO statistics_cache (stat_type, stat_date, stat_data, computed_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(stat_type, stat_date) DO UPDATE SET
			stat_data = excluded.stat_data,
			computed_at = excluded.computed_at,
			expires_at = excluded.expires_at
	`, string(statType), statDate, string(data), now.Unix(), expiresAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}
	return nil
}

// Delete removes the entry for a key if present
func (r *StatsCacheRepository) Delete(statType models.StatType, statDate string) error {
	if _, err := r.db.Exec(`
		DELETE FROM statistics_cache WHERE stat_type = ? AND stat_date = ?
	`, string(statType), statDate); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// PurgeExpired drops every entry whose expiry has passed
func (r *StatsCacheRepository) PurgeExpired(now time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM statistics_cache WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired cache entries: %w", err)
	}
	purged, _ := result.RowsAffected()
	return purged, nil
}
