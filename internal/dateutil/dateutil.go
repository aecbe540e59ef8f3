// Package dateutil handles calendar-day bucketing and period arithmetic.
// Dates are plain YYYY-MM-DD strings in the configured work timezone;
// instants stay in UTC everywhere else.
package dateutil

import (
	"fmt"
	"time"
)

const Layout = "2006-01-02"

// Parse parses a YYYY-MM-DD date string
func Parse(date string) (time.Time, error) {
	t, err := time.Parse(Layout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return t, nil
}

// Valid reports whether date is a well-formed YYYY-MM-DD string
func Valid(date string) bool {
	_, err := time.Parse(Layout, date)
	return err == nil
}

// DayOf returns the calendar date of an instant in the given location
func DayOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(Layout)
}

// DayStart returns the first instant of the date in the given location
func DayStart(date string, loc *time.Location) (time.Time, error) {
	d, err := Parse(date)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc), nil
}

// DayEnd returns the last whole second of the date in the given location
func DayEnd(date string, loc *time.Location) (time.Time, error) {
	start, err := DayStart(date, loc)
	if err != nil {
		return time.Time{}, err
	}
	return start.AddDate(0, 0, 1).Add(-time.Second), nil
}

// AddDays shifts a date by n calendar days
func AddDays(date string, n int) (string, error) {
	d, err := Parse(date)
	if err != nil {
		return "", err
	}
	return d.AddDate(0, 0, n).Format(Layout), nil
}

// WeekRange returns the Monday and Sunday of the week containing date
func WeekRange(date string) (string, string, error) {
	d, err := Parse(date)
	if err != nil {
		return "", "", err
	}
	weekday := int(d.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday belongs to the week that started the prior Monday
	}
	start := d.AddDate(0, 0, -(weekday - 1))
	end := start.AddDate(0, 0, 6)
	return start.Format(Layout), end.Format(Layout), nil
}

// MonthRange returns the first and last day of the month containing date
func MonthRange(date string) (string, string, error) {
	d, err := Parse(date)
	if err != nil {
		return "", "", err
	}
	start := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return start.Format(Layout), end.Format(Layout), nil
}

// YearRange returns the first and last day of the year containing date
func YearRange(date string) (string, string, error) {
	d, err := Parse(date)
	if err != nil {
		return "", "", err
	}
	start := time.Date(d.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(d.Year(), 12, 31, 0, 0, 0, 0, time.UTC)
	return start.Format(Layout), end.Format(Layout), nil
}

// Workdays counts Monday-to-Friday days in the inclusive range
func Workdays(start, end string) (int, error) {
	s, err := Parse(start)
	if err != nil {
		return 0, err
	}
	e, err := Parse(end)
	if err != nil {
		return 0, err
	}
	count := 0
	for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			count++
		}
	}
	return count, nil
}

// DatesBetween lists every date from start to end inclusive, oldest first
func DatesBetween(start, end string) ([]string, error) {
	s, err := Parse(start)
	if err != nil {
		return nil, err
	}
	e, err := Parse(end)
	if err != nil {
		return nil, err
	}
	var dates []string
	for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(Layout))
	}
	return dates, nil
}
