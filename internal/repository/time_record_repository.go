package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"timetrace/worktime-agent/internal/models"
)

// ErrRecordNotFound is returned when no record exists for the requested date
var ErrRecordNotFound = errors.New("time record not found")

type TimeRecordRepository struct {
	db *sql.DB
}

func NewTimeRecordRepository(db *sql.DB) *TimeRecordRepository {
	return &TimeRecordRepository{db: db}
}

// Upsert writes the record for its date atomically, inserting or replacing
// the existing row. The row id for a date is stable across upserts.
func (r *TimeRecordRepository) Upsert(record *models.TimeRecord) (*models.TimeRecord, error) {
	_, err := r.db.Exec(`
		INSERT INTO time_records
			(date, clock_in, clock_out, duration, break_duration, overtime_duration, status, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			clock_in = excluded.clock_in,
			clock_out = excluded.clock_out,
			duration = excluded.duration,
			break_duration = excluded.break_duration,
			overtime_duration = excluded.overtime_duration,
			status = excluded.status,
			notes = excluded.notes,
			updated_at = CURRENT_TIMESTAMP
	`,
		record.Date,
		nullMilli(record.ClockIn),
		nullMilli(record.ClockOut),
		record.Duration,
		record.BreakDuration,
		record.OvertimeDuration,
		string(record.Status),
		record.Notes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert time record for %s: %w", record.Date, err)
	}

	return r.GetByDate(record.Date)
}

// GetByDate returns the record for a date, or ErrRecordNotFound
func (r *TimeRecordRepository) GetByDate(date string) (*models.TimeRecord, error) {
	row := r.db.QueryRow(`
		SELECT id, date, clock_in, clock_out, duration, break_duration, overtime_duration,
		       status, notes, created_at, updated_at
		FROM time_records
		WHERE date = ?
	`, date)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get time record for %s: %w", date, err)
	}
	return record, nil
}

// GetInRange returns records with startDate <= date <= endDate, oldest first
func (r *TimeRecordRepository) GetInRange(startDate, endDate string) ([]*models.TimeRecord, error) {
	rows, err := r.db.Query(`
		SELECT id, date, clock_in, clock_out, duration, break_duration, overtime_duration,
		       status, notes, created_at, updated_at
		FROM time_records
		WHERE date >= ? AND date <= ?
		ORDER BY date ASC
	`, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query time records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// List returns a page of records matching the query plus the total match count
func (r *TimeRecordRepository) List(query models.RecordQuery) ([]*models.TimeRecord, int, error) {
	where := "1=1"
	args := []interface{}{}

	if query.StartDate != "" {
		where += " AND date >= ?"
		args = append(args, query.StartDate)
	}
	if query.EndDate != "" {
		where += " AND date <= ?"
		args = append(args, query.EndDate)
	}
	if query.Status != nil {
		where += " AND status = ?"
		args = append(args, string(*query.Status))
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM time_records WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count time records: %w", err)
	}

	order := "ASC"
	if query.OrderDesc {
		order = "DESC"
	}
	page := query.Page
	if page < 1 {
		page = 1
	}
	size := query.Size
	if size < 1 {
		size = 20
	}
	args = append(args, size, (page-1)*size)

	rows, err := r.db.Query(fmt.Sprintf(`
		SELECT id, date, clock_in, clock_out, duration, break_duration, overtime_duration,
		       status, notes, created_at, updated_at
		FROM time_records
		WHERE %s
		ORDER BY date %s
		LIMIT ? OFFSET ?
	`, where, order), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query time records: %w", err)
	}
	defer rows.Close()

	records, err := collectRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// Delete removes the record for a date
func (r *TimeRecordRepository) Delete(date string) error {
	result, err := r.db.Exec("DELETE FROM time_records WHERE date = ?", date)
	if err != nil {
		return fmt.Errorf("failed to delete time record for %s: %w", date, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.TimeRecord, error) {
	var (
		record   models.TimeRecord
		clockIn  sql.NullInt64
		clockOut sql.NullInt64
		status   string
		notes    sql.NullString
	)
	err := row.Scan(
		&record.ID,
		&record.Date,
		&clockIn,
		&clockOut,
		&record.Duration,
		&record.BreakDuration,
		&record.OvertimeDuration,
		&status,
		&notes,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Status = models.RecordStatus(status)
	if clockIn.Valid {
		t := time.UnixMilli(clockIn.Int64).UTC()
		record.ClockIn = &t
	}
	if clockOut.Valid {
		t := time.UnixMilli(clockOut.Int64).UTC()
		record.ClockOut = &t
	}
	if notes.Valid {
		record.Notes = &notes.String
	}
	return &record, nil
}

func collectRecords(rows *sql.Rows) ([]*models.TimeRecord, error) {
	var records []*models.TimeRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan time record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating time records: %w", err)
	}
	return records, nil
}

func nullMilli(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
