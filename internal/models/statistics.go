package models

// StatType identifies an aggregate period kind
type StatType string

const (
	StatDaily   StatType = "daily"
	StatWeekly  StatType = "weekly"
	StatMonthly StatType = "monthly"
	StatYearly  StatType = "yearly"
	StatCustom  StatType = "custom"
)

// ValidStatType reports whether t is one of the known stat types
func ValidStatType(t StatType) bool {
	switch t {
	case StatDaily, StatWeekly, StatMonthly, StatYearly, StatCustom:
		return true
	}
	return false
}

// DailyStats summarizes a single day's record
type DailyStats struct {
	Date          string        `json:"date"`
	WorkHours     float64       `json:"work_hours"`
	OvertimeHours float64       `json:"overtime_hours"`
	BreakHours    float64       `json:"break_hours"`
	ClockIn       *string       `json:"clock_in,omitempty"`
	ClockOut      *string       `json:"clock_out,omitempty"`
	Status        *RecordStatus `json:"status,omitempty"`
}

// WeeklyStats summarizes a Monday-start week
type WeeklyStats struct {
	WeekStart          string       `json:"week_start"`
	WeekEnd            string       `json:"week_end"`
	TotalWorkHours     float64      `json:"total_work_hours"`
	TotalOvertimeHours float64      `json:"total_overtime_hours"`
	TotalBreakHours    float64      `json:"total_break_hours"`
	WorkDays           int          `json:"work_days"`
	AvgDailyHours      float64      `json:"avg_daily_hours"`
	Days               []DailyStats `json:"days"`
}

// MonthlyStats summarizes a calendar month
type MonthlyStats struct {
	Year               int     `json:"year"`
	Month              int     `json:"month"`
	TotalWorkHours     float64 `json:"total_work_hours"`
	TotalOvertimeHours float64 `json:"total_overtime_hours"`
	TotalBreakHours    float64 `json:"total_break_hours"`
	WorkDaysInMonth    int     `json:"work_days_in_month"`
	ActualWorkDays     int     `json:"actual_work_days"`
	AttendanceRate     float64 `json:"attendance_rate"`
	AvgDailyHours      float64 `json:"avg_daily_hours"`
	ExpectedHours      float64 `json:"expected_hours"`
	HoursVariance      float64 `json:"hours_variance"`
}

// MonthTotal is one month's slice of a yearly summary
type MonthTotal struct {
	Month         int     `json:"month"`
	WorkHours     float64 `json:"work_hours"`
	OvertimeHours float64 `json:"overtime_hours"`
	WorkDays      int     `json:"work_days"`
}

// RangeStats summarizes an arbitrary inclusive date range
type RangeStats struct {
	StartDate          string  `json:"start_date"`
	EndDate            string  `json:"end_date"`
	TotalWorkHours     float64 `json:"total_work_hours"`
	TotalOvertimeHours float64 `json:"total_overtime_hours"`
	TotalBreakHours    float64 `json:"total_break_hours"`
	WorkDays           int     `json:"work_days"`
	AvgDailyHours      float64 `json:"avg_daily_hours"`
}

// YearlyStats summarizes a calendar year
type YearlyStats struct {
	Year               int          `json:"year"`
	TotalWorkHours     float64      `json:"total_work_hours"`
	TotalOvertimeHours float64      `json:"total_overtime_hours"`
	ActualWorkDays     int          `json:"actual_work_days"`
	Months             []MonthTotal `json:"months"`
}
