// Package reconciler folds a day's ordered event stream into at most one
// TimeRecord. The scan is a pure function of the events and thresholds, so
// re-running it for an unchanged day reproduces the same record.
package reconciler

import (
	"time"

	"timetrace/worktime-agent/internal/models"
	"timetrace/worktime-agent/internal/worktime"

	"go.uber.org/zap"
)

// Config carries the policy thresholds for session resolution
type Config struct {
	// MaxSession is the longest believable single session; anything longer
	// is a missed checkout and gets truncated
	MaxSession time.Duration
	// BreakThreshold is the longest between-session gap accepted as a
	// genuine break; longer gaps flag the day
	BreakThreshold time.Duration
	// OvertimeThresholdMinutes is the standard working day in minutes
	OvertimeThresholdMinutes int
}

// Outcome is the result of reconciling one day
type Outcome struct {
	// Record is the derived row, nil when the day yields none
	Record *models.TimeRecord
	// Anomalies lists every irregularity the scan resolved
	Anomalies []Anomaly
	// LeadingOrphanClose is set when the day's first event closed nothing,
	// the signal that the prior day's session may have run past midnight
	LeadingOrphanClose *models.SystemEvent
	// OrphanCloses counts close events that matched no open session
	OrphanCloses int
	// DanglingOpen is set when a session was still open at scan end
	DanglingOpen *time.Time
}

// Reconciler derives TimeRecords from event sequences
type Reconciler struct {
	cfg    Config
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Reconciler {
	return &Reconciler{cfg: cfg, logger: logger}
}

type session struct {
	start time.Time
	end   time.Time
}

// ReconcileDay scans the day's events (ordered by time, ties by insertion
// order) and produces the day's outcome. now is the reconciliation instant,
// used to resolve sessions still open at scan end. carryForwardEnd, when
// non-nil, tells the scan that the following day starts with a lone orphan
// close, so a session still open at scan end is closed retroactively at that
// instant (the day's local midnight cap) instead of being left dangling.
func (r *Reconciler) ReconcileDay(date string, events []models.SystemEvent, now time.Time, carryForwardEnd *time.Time) *Outcome {
	outcome := &Outcome{}
	if len(events) == 0 {
		return outcome
	}

	var (
		sessions []session
		openAt   *time.Time
	)

	for i, event := range events {
		switch {
		case event.Type.Opens():
			if openAt == nil {
				t := event.Time
				openAt = &t
				continue
			}
			// Session already open; treat the extra open as continuation
			outcome.Anomalies = append(outcome.Anomalies,
				anomaly(AnomalyDoubleOpen, event.Time,
					"redundant %s at %s while session open", event.Type, event.Time.Format(time.RFC3339)))

		case event.Type.Closes():
			if openAt == nil {
				outcome.OrphanCloses++
				if i == 0 {
					e := event
					outcome.LeadingOrphanClose = &e
				}
				outcome.Anomalies = append(outcome.Anomalies,
					anomaly(AnomalyOrphanClose, event.Time,
						"%s at %s closed no open session", event.Type, event.Time.Format(time.RFC3339)))
				continue
			}
			sessions = append(sessions, r.capSession(session{start: *openAt, end: event.Time}, outcome))
			openAt = nil
		}
	}

	if openAt != nil {
		sessions, openAt = r.resolveDangling(sessions, *openAt, now, carryForwardEnd, outcome)
	}

	if len(sessions) == 0 && openAt == nil {
		// Nothing but noise; no row for this day
		r.logger.Debug("Day produced no sessions",
			zap.String("date", date),
			zap.Int("events", len(events)),
			zap.Int("orphan_closes", outcome.OrphanCloses),
		)
		return outcome
	}

	outcome.Record = r.buildRecord(date, sessions, openAt, outcome)
	return outcome
}

// capSession applies the max-duration bound to a closed session
func (r *Reconciler) capSession(s session, outcome *Outcome) session {
	if s.end.Sub(s.start) <= r.cfg.MaxSession {
		return s
	}
	truncated := s.start.Add(r.cfg.MaxSession)
	outcome.Anomalies = append(outcome.Anomalies,
		anomaly(AnomalyOverlongSession, s.start,
			"session from %s exceeded %s, clock-out truncated to %s",
			s.start.Format(time.RFC3339), r.cfg.MaxSession, truncated.Format(time.RFC3339)))
	s.end = truncated
	return s
}

// resolveDangling handles a session still open at scan end, in policy order:
// a carried-forward close from the next day wins, then the max-session bound
// (a missed checkout gets closed at the bound), otherwise the session stays
// open and the day is incomplete.
func (r *Reconciler) resolveDangling(sessions []session, openAt, now time.Time, carryForwardEnd *time.Time, outcome *Outcome) ([]session, *time.Time) {
	if carryForwardEnd != nil && carryForwardEnd.After(openAt) {
		outcome.Anomalies = append(outcome.Anomalies,
			anomaly(AnomalyCarriedOpen, openAt,
				"session carried past midnight, closed retroactively at %s",
				carryForwardEnd.UTC().Format(time.RFC3339)))
		return append(sessions, r.capSession(session{start: openAt, end: carryForwardEnd.UTC()}, outcome)), nil
	}
	if now.Sub(openAt) > r.cfg.MaxSession {
		closed := openAt.Add(r.cfg.MaxSession)
		outcome.Anomalies = append(outcome.Anomalies,
			anomaly(AnomalyOverlongSession, openAt,
				"open session from %s never closed, clock-out assumed at %s",
				openAt.Format(time.RFC3339), closed.Format(time.RFC3339)))
		return append(sessions, session{start: openAt, end: closed}), nil
	}
	outcome.DanglingOpen = &openAt
	return sessions, &openAt
}

// buildRecord merges sessions into the day's record: earliest open, latest
// close, gaps between sessions accumulated as break time
func (r *Reconciler) buildRecord(date string, sessions []session, openAt *time.Time, outcome *Outcome) *models.TimeRecord {
	record := &models.TimeRecord{Date: date}

	breakMinutes := 0
	for i := 1; i < len(sessions); i++ {
		gap := sessions[i].start.Sub(sessions[i-1].end)
		if gap <= 0 {
			continue
		}
		if gap > r.cfg.BreakThreshold {
			outcome.Anomalies = append(outcome.Anomalies,
				anomaly(AnomalyExcessiveGap, sessions[i-1].end,
					"gap of %dm after %s exceeds break threshold, probable missed punch",
					int(gap/time.Minute), sessions[i-1].end.Format(time.RFC3339)))
		}
		breakMinutes += int(gap / time.Minute)
	}
	record.BreakDuration = breakMinutes

	if openAt != nil {
		// Open tail: clock-in is known, clock-out is not. Completed
		// sessions still count toward the partial duration.
		clockIn := *openAt
		if len(sessions) > 0 {
			clockIn = sessions[0].start
			// Time between the last close and the re-open is a break in
			// progress; leave it out until the session closes.
			for _, s := range sessions {
				record.Duration += worktime.Minutes(s.start, s.end)
			}
		}
		record.ClockIn = &clockIn
		record.Status = models.StatusIncomplete
		record.Notes = notesFor(outcome.Anomalies)
		return record
	}

	clockIn := sessions[0].start
	clockOut := sessions[len(sessions)-1].end
	record.ClockIn = &clockIn
	record.ClockOut = &clockOut
	record.Duration, record.OvertimeDuration = worktime.Compute(
		clockIn, clockOut, breakMinutes, r.cfg.OvertimeThresholdMinutes)

	if len(outcome.Anomalies) == 0 {
		record.Status = models.StatusNormal
	} else {
		record.Status = models.StatusAbnormal
	}
	record.Notes = notesFor(outcome.Anomalies)
	return record
}
