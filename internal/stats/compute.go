package stats

import (
	"errors"
	"time"

	"timetrace/worktime-agent/internal/dateutil"
	"timetrace/worktime-agent/internal/models"
	"timetrace/worktime-agent/internal/repository"
)

const clockLayout = "15:04"

func (c *Cache) computeDaily(date string) (*models.DailyStats, error) {
	record, err := c.records.GetByDate(date)
	if err != nil && !errors.Is(err, repository.ErrRecordNotFound) {
		return nil, err
	}
	if record == nil {
		// No record is a valid answer: a day with zero events
		return &models.DailyStats{Date: date}, nil
	}
	return dailyFromRecord(record, c.loc), nil
}

func dailyFromRecord(record *models.TimeRecord, loc *time.Location) *models.DailyStats {
	stats := &models.DailyStats{
		Date:          record.Date,
		WorkHours:     float64(record.Duration) / 60,
		OvertimeHours: float64(record.OvertimeDuration) / 60,
		BreakHours:    float64(record.BreakDuration) / 60,
	}
	status := record.Status
	stats.Status = &status
	if record.ClockIn != nil {
		in := record.ClockIn.In(loc).Format(clockLayout)
		stats.ClockIn = &in
	}
	if record.ClockOut != nil {
		out := record.ClockOut.In(loc).Format(clockLayout)
		stats.ClockOut = &out
	}
	return stats
}

func (c *Cache) computeWeekly(weekStart string) (*models.WeeklyStats, error) {
	weekEnd, err := dateutil.AddDays(weekStart, 6)
	if err != nil {
		return nil, err
	}
	records, err := c.records.GetInRange(weekStart, weekEnd)
	if err != nil {
		return nil, err
	}

	stats := &models.WeeklyStats{WeekStart: weekStart, WeekEnd: weekEnd}
	byDate := make(map[string]*models.TimeRecord, len(records))
	for _, record := range records {
		byDate[record.Date] = record
		stats.TotalWorkHours += float64(record.Duration) / 60
		stats.TotalOvertimeHours += float64(record.OvertimeDuration) / 60
		stats.TotalBreakHours += float64(record.BreakDuration) / 60
		stats.WorkDays++
	}
	if stats.WorkDays > 0 {
		stats.AvgDailyHours = stats.TotalWorkHours / float64(stats.WorkDays)
	}

	days, err := dateutil.DatesBetween(weekStart, weekEnd)
	if err != nil {
		return nil, err
	}
	for _, day := range days {
		if record, ok := byDate[day]; ok {
			stats.Days = append(stats.Days, *dailyFromRecord(record, c.loc))
		} else {
			stats.Days = append(stats.Days, models.DailyStats{Date: day})
		}
	}
	return stats, nil
}

func (c *Cache) computeMonthly(monthStart string) (*models.MonthlyStats, error) {
	start, end, err := dateutil.MonthRange(monthStart)
	if err != nil {
		return nil, err
	}
	first, err := dateutil.Parse(start)
	if err != nil {
		return nil, err
	}
	records, err := c.records.GetInRange(start, end)
	if err != nil {
		return nil, err
	}
	workdays, err := dateutil.Workdays(start, end)
	if err != nil {
		return nil, err
	}

	stats := &models.MonthlyStats{
		Year:            first.Year(),
		Month:           int(first.Month()),
		WorkDaysInMonth: workdays,
	}
	for _, record := range records {
		stats.TotalWorkHours += float64(record.Duration) / 60
		stats.TotalOvertimeHours += float64(record.OvertimeDuration) / 60
		stats.TotalBreakHours += float64(record.BreakDuration) / 60
		stats.ActualWorkDays++
	}
	if stats.ActualWorkDays > 0 {
		stats.AvgDailyHours = stats.TotalWorkHours / float64(stats.ActualWorkDays)
	}
	if workdays > 0 {
		stats.AttendanceRate = float64(stats.ActualWorkDays) / float64(workdays)
	}
	stats.ExpectedHours = float64(workdays) * 8
	stats.HoursVariance = stats.TotalWorkHours - stats.ExpectedHours
	return stats, nil
}

func (c *Cache) computeYearly(yearStart string) (*models.YearlyStats, error) {
	start, end, err := dateutil.YearRange(yearStart)
	if err != nil {
		return nil, err
	}
	first, err := dateutil.Parse(start)
	if err != nil {
		return nil, err
	}
	records, err := c.records.GetInRange(start, end)
	if err != nil {
		return nil, err
	}

	stats := &models.YearlyStats{Year: first.Year()}
	months := make([]models.MonthTotal, 12)
	for i := range months {
		months[i].Month = i + 1
	}
	for _, record := range records {
		day, err := dateutil.Parse(record.Date)
		if err != nil {
			return nil, err
		}
		m := &months[int(day.Month())-1]
		m.WorkHours += float64(record.Duration) / 60
		m.OvertimeHours += float64(record.OvertimeDuration) / 60
		m.WorkDays++

		stats.TotalWorkHours += float64(record.Duration) / 60
		stats.TotalOvertimeHours += float64(record.OvertimeDuration) / 60
		stats.ActualWorkDays++
	}
	stats.Months = months
	return stats, nil
}
