package models

import "time"

// RecordStatus describes how a day's record was derived
type RecordStatus string

const (
	StatusNormal     RecordStatus = "normal"
	StatusAbnormal   RecordStatus = "abnormal"
	StatusManual     RecordStatus = "manual"
	StatusIncomplete RecordStatus = "incomplete"
)

// ValidRecordStatus reports whether s is one of the known record statuses
func ValidRecordStatus(s RecordStatus) bool {
	switch s {
	case StatusNormal, StatusAbnormal, StatusManual, StatusIncomplete:
		return true
	}
	return false
}

// TimeRecord is the derived work-session ledger row, at most one per calendar date.
// Date is the local calendar day in YYYY-MM-DD form; timestamps are UTC.
// Durations are minutes and never negative.
type TimeRecord struct {
	ID               int64        `json:"id"`
	Date             string       `json:"date"`
	ClockIn          *time.Time   `json:"clock_in,omitempty"`
	ClockOut         *time.Time   `json:"clock_out,omitempty"`
	Duration         int          `json:"duration"`
	BreakDuration    int          `json:"break_duration"`
	OvertimeDuration int          `json:"overtime_duration"`
	Status           RecordStatus `json:"status"`
	Notes            *string      `json:"notes,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// ManualEdit carries the fields a manual override may change.
// Nil fields are left untouched.
type ManualEdit struct {
	ClockIn       *time.Time `json:"clock_in,omitempty"`
	ClockOut      *time.Time `json:"clock_out,omitempty"`
	BreakDuration *int       `json:"break_duration,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
}

// RecordQuery selects and paginates time records
type RecordQuery struct {
	StartDate string        `json:"start_date,omitempty"`
	EndDate   string        `json:"end_date,omitempty"`
	Status    *RecordStatus `json:"status,omitempty"`
	Page      int           `json:"page"`
	Size      int           `json:"size"`
	OrderDesc bool          `json:"order_desc"`
}
