// Package worktime computes derived work durations. All functions are pure:
// identical inputs always yield identical outputs, which keeps reconciliation
// re-runs byte-stable.
package worktime

import "time"

// Minutes returns the whole minutes between two instants, floored at 0
func Minutes(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from) / time.Minute)
}

// Compute derives work and overtime minutes from a resolved session.
// duration = minutes(clockOut - clockIn) - breakMinutes, floored at 0;
// overtime = the part of duration beyond overtimeThresholdMinutes.
func Compute(clockIn, clockOut time.Time, breakMinutes, overtimeThresholdMinutes int) (duration, overtime int) {
	total := Minutes(clockIn, clockOut)
	duration = total - breakMinutes
	if duration < 0 {
		duration = 0
	}
	overtime = duration - overtimeThresholdMinutes
	if overtime < 0 {
		overtime = 0
	}
	return duration, overtime
}
