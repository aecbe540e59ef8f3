package repository

import (
	"database/sql"
	"fmt"
	"time"

	"timetrace/worktime-agent/internal/models"

	"go.uber.org/zap"
)

// SystemEventRepository is the append-only event log. Events are never
// updated or deleted; records and caches are derived from them.
type SystemEventRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSystemEventRepository(db *sql.DB, logger *zap.Logger) *SystemEventRepository {
	return &SystemEventRepository{db: db, logger: logger}
}

// Append stores an event and reports whether it was newly inserted.
// Duplicate deliveries of the same (type, time, source) are absorbed here.
func (r *SystemEventRepository) Append(event *models.SystemEvent) (bool, error) {
	result, err := r.db.Exec(`
		INSERT OR IGNORE INTO system_events (event_type, event_time, event_source, details)
		VALUES (?, ?, ?, ?)
	`, string(event.Type), event.Time.UnixMilli(), string(event.Source), event.Details)
	if err != nil {
		return false, fmt.Errorf("failed to append event: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		r.logger.Debug("Duplicate event delivery ignored",
			zap.String("type", string(event.Type)),
			zap.Time("time", event.Time),
		)
		return false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to get event id: %w", err)
	}
	event.ID = id
	return true, nil
}

// GetInRange returns events with start <= event_time < end, ordered by time
// with insertion order breaking ties
func (r *SystemEventRepository) GetInRange(start, end time.Time) ([]models.SystemEvent, error) {
	rows, err := r.db.Query(`
		SELECT id, event_type, event_time, event_source, details, created_at
		FROM system_events
		WHERE event_time >= ? AND event_time < ?
		ORDER BY event_time ASC, id ASC
	`, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.SystemEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// EarliestEventTime returns the time of the oldest logged event, with
// ok=false when the log is empty
func (r *SystemEventRepository) EarliestEventTime() (time.Time, bool, error) {
	var ms sql.NullInt64
	if err := r.db.QueryRow(`SELECT MIN(event_time) FROM system_events`).Scan(&ms); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get earliest event time: %w", err)
	}
	if !ms.Valid {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms.Int64).UTC(), true, nil
}

// Count returns the total number of logged events
func (r *SystemEventRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM system_events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

func scanEvent(rows *sql.Rows) (*models.SystemEvent, error) {
	var (
		event     models.SystemEvent
		eventType string
		eventMs   int64
		source    string
		details   sql.NullString
	)
	if err := rows.Scan(&event.ID, &eventType, &eventMs, &source, &details, &event.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}
	event.Type = models.EventType(eventType)
	event.Time = time.UnixMilli(eventMs).UTC()
	event.Source = models.EventSource(source)
	if details.Valid {
		event.Details = &details.String
	}
	return &event, nil
}
