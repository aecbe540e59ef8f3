// Package service orchestrates the engine: raw events flow through
// normalization into the event log, reconciliation folds them into per-day
// time records, and every record mutation invalidates the affected
// statistics periods.
package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"timetrace/worktime-agent/internal/dateutil"
	"timetrace/worktime-agent/internal/models"
	"timetrace/worktime-agent/internal/normalizer"
	"timetrace/worktime-agent/internal/reconciler"
	"timetrace/worktime-agent/internal/repository"
	"timetrace/worktime-agent/internal/stats"
	"timetrace/worktime-agent/internal/worktime"

	"go.uber.org/zap"
)

// Engine ties the normalizer, reconciler, stores and statistics cache
// together behind the engine's command/query surface
type Engine struct {
	events     *repository.SystemEventRepository
	records    *repository.TimeRecordRepository
	sweepState *repository.SweepStateRepository
	cache      *stats.Cache
	normalizer *normalizer.Normalizer
	reconciler *reconciler.Reconciler

	overtimeThresholdMinutes int
	loc                      *time.Location
	now                      func() time.Time
	logger                   *zap.Logger
	locks                    dateLocks
}

// NewEngine creates the engine
func NewEngine(
	events *repository.SystemEventRepository,
	records *repository.TimeRecordRepository,
	sweepState *repository.SweepStateRepository,
	cache *stats.Cache,
	norm *normalizer.Normalizer,
	rec *reconciler.Reconciler,
	overtimeThresholdMinutes int,
	loc *time.Location,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		events:                   events,
		records:                  records,
		sweepState:               sweepState,
		cache:                    cache,
		normalizer:               norm,
		reconciler:               rec,
		overtimeThresholdMinutes: overtimeThresholdMinutes,
		loc:                      loc,
		now:                      time.Now,
		logger:                   logger,
	}
}

// WithClock overrides the engine clock, for tests
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// HandleRawEvent ingests one raw event end to end: validate, append to the
// event log, reconcile the affected day(s). An invalid event is logged and
// dropped (nil error: redelivery cannot fix it); a storage failure is
// returned so the caller retries.
func (e *Engine) HandleRawEvent(raw models.RawEvent) error {
	event, err := e.normalizer.Normalize(raw)
	if err != nil {
		if errors.Is(err, normalizer.ErrInvalidEvent) {
			return nil
		}
		return err
	}

	inserted, err := e.events.Append(event)
	if err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}
	if inserted {
		e.logger.Info("Event ingested",
			zap.String("type", string(event.Type)),
			zap.Time("time", event.Time),
			zap.String("source", string(event.Source)),
		)
	}

	// Reconcile even for duplicates: a crash after the append but before
	// reconciliation leaves the log ahead of the ledger, and redelivery is
	// what catches it up
	date := dateutil.DayOf(event.Time, e.loc)
	outcome, err := e.reconcileDate(date, false)
	if err != nil {
		return err
	}

	// A day opening with a lone orphan close means the previous day's
	// session ran past midnight; re-derive the previous day so the
	// carry-forward close lands there
	if outcome != nil && outcome.LeadingOrphanClose != nil {
		prev, err := dateutil.AddDays(date, -1)
		if err != nil {
			return err
		}
		if _, err := e.reconcileDate(prev, false); err != nil {
			return err
		}
	}

	return nil
}

// ReconcileDate re-derives the record for a date from the event log.
// Manually-edited records are left untouched.
func (e *Engine) ReconcileDate(date string) (*models.TimeRecord, error) {
	outcome, err := e.reconcileDate(date, false)
	if err != nil {
		return nil, err
	}
	if outcome == nil || outcome.Record == nil {
		return nil, nil
	}
	return outcome.Record, nil
}

// reconcileDate runs one serialized reconciliation pass for a date. With
// force set the manual guard is bypassed (used by ResetToAutomatic). A nil
// outcome means the day was skipped as manual.
func (e *Engine) reconcileDate(date string, force bool) (*reconciler.Outcome, error) {
	if !dateutil.Valid(date) {
		return nil, fmt.Errorf("invalid date %q", date)
	}
	unlock := e.locks.lock(date)
	defer unlock()

	existing, err := e.records.GetByDate(date)
	if err != nil && !errors.Is(err, repository.ErrRecordNotFound) {
		return nil, err
	}
	if existing != nil && existing.Status == models.StatusManual && !force {
		e.logger.Debug("Skipping reconciliation of manual record", zap.String("date", date))
		return nil, nil
	}

	events, err := e.eventsForDay(date)
	if err != nil {
		return nil, err
	}

	carryEnd, err := e.carryForwardEnd(date)
	if err != nil {
		return nil, err
	}

	outcome := e.reconciler.ReconcileDay(date, events, e.now(), carryEnd)

	if outcome.Record == nil {
		if existing != nil {
			if err := e.records.Delete(date); err != nil {
				return nil, err
			}
			if err := e.cache.Invalidate(date); err != nil {
				return nil, err
			}
		}
		return outcome, nil
	}

	stored, err := e.records.Upsert(outcome.Record)
	if err != nil {
		return nil, err
	}
	outcome.Record = stored

	if err := e.cache.Invalidate(date); err != nil {
		return nil, err
	}

	e.logger.Info("Day reconciled",
		zap.String("date", date),
		zap.String("status", string(stored.Status)),
		zap.Int("duration", stored.Duration),
		zap.Int("break_duration", stored.BreakDuration),
		zap.Int("anomalies", len(outcome.Anomalies)),
	)
	return outcome, nil
}

// carryForwardEnd peeks at the next day's events; a lone orphan close there
// means this day's dangling session should be closed at this day's last
// second
func (e *Engine) carryForwardEnd(date string) (*time.Time, error) {
	next, err := dateutil.AddDays(date, 1)
	if err != nil {
		return nil, err
	}
	nextEvents, err := e.eventsForDay(next)
	if err != nil {
		return nil, err
	}
	if len(nextEvents) == 0 {
		return nil, nil
	}

	peek := e.reconciler.ReconcileDay(next, nextEvents, e.now(), nil)
	if peek.LeadingOrphanClose == nil || peek.OrphanCloses != 1 {
		return nil, nil
	}

	dayEnd, err := dateutil.DayEnd(date, e.loc)
	if err != nil {
		return nil, err
	}
	return &dayEnd, nil
}

func (e *Engine) eventsForDay(date string) ([]models.SystemEvent, error) {
	start, err := dateutil.DayStart(date, e.loc)
	if err != nil {
		return nil, err
	}
	next, err := dateutil.AddDays(date, 1)
	if err != nil {
		return nil, err
	}
	end, err := dateutil.DayStart(next, e.loc)
	if err != nil {
		return nil, err
	}
	return e.events.GetInRange(start, end)
}

// GetRecord returns the record for a date, or repository.ErrRecordNotFound
func (e *Engine) GetRecord(date string) (*models.TimeRecord, error) {
	if !dateutil.Valid(date) {
		return nil, fmt.Errorf("invalid date %q", date)
	}
	return e.records.GetByDate(date)
}

// QueryRecords returns a page of records plus the total match count
func (e *Engine) QueryRecords(query models.RecordQuery) ([]*models.TimeRecord, int, error) {
	return e.records.List(query)
}

// GetStatistics returns the aggregate of the given type for the period
// containing date
func (e *Engine) GetStatistics(statType models.StatType, date string) (json.RawMessage, error) {
	return e.cache.Get(statType, date)
}

// GetRangeStatistics returns a custom-range aggregate
func (e *Engine) GetRangeStatistics(startDate, endDate string) (*models.RangeStats, error) {
	return e.cache.GetRange(startDate, endDate)
}

// MarkManual applies a manual edit to a date's record and pins it: from now
// on automatic reconciliation leaves the date alone until ResetToAutomatic
func (e *Engine) MarkManual(date string, edit models.ManualEdit) (*models.TimeRecord, error) {
	if !dateutil.Valid(date) {
		return nil, fmt.Errorf("invalid date %q", date)
	}
	unlock := e.locks.lock(date)
	defer unlock()

	record, err := e.records.GetByDate(date)
	if errors.Is(err, repository.ErrRecordNotFound) {
		record = &models.TimeRecord{Date: date}
		err = nil
	}
	if err != nil {
		return nil, err
	}

	if edit.ClockIn != nil {
		t := edit.ClockIn.UTC()
		record.ClockIn = &t
	}
	if edit.ClockOut != nil {
		t := edit.ClockOut.UTC()
		record.ClockOut = &t
	}
	if edit.BreakDuration != nil {
		if *edit.BreakDuration < 0 {
			return nil, fmt.Errorf("break duration must not be negative, got %d", *edit.BreakDuration)
		}
		record.BreakDuration = *edit.BreakDuration
	}
	if edit.Notes != nil {
		record.Notes = edit.Notes
	}

	if record.ClockIn != nil && record.ClockOut != nil {
		if !record.ClockOut.After(*record.ClockIn) {
			return nil, fmt.Errorf("clock_out %s must be after clock_in %s",
				record.ClockOut.Format(time.RFC3339), record.ClockIn.Format(time.RFC3339))
		}
		record.Duration, record.OvertimeDuration = worktime.Compute(
			*record.ClockIn, *record.ClockOut, record.BreakDuration, e.overtimeThresholdMinutes)
	}
	record.Status = models.StatusManual

	stored, err := e.records.Upsert(record)
	if err != nil {
		return nil, err
	}
	if err := e.cache.Invalidate(date); err != nil {
		return nil, err
	}

	e.logger.Info("Record marked manual", zap.String("date", date))
	return stored, nil
}

// ResetToAutomatic lifts the manual pin for a date and re-derives its record
// from the event log. If the day's events yield no record, the manual record
// is removed.
func (e *Engine) ResetToAutomatic(date string) (*models.TimeRecord, error) {
	outcome, err := e.reconcileDate(date, true)
	if err != nil {
		return nil, err
	}
	if outcome == nil || outcome.Record == nil {
		e.logger.Info("Record reset to automatic, no derivable record", zap.String("date", date))
		return nil, nil
	}
	e.logger.Info("Record reset to automatic", zap.String("date", date))
	return outcome.Record, nil
}

// DeleteRecord removes a date's record explicitly
func (e *Engine) DeleteRecord(date string) error {
	if !dateutil.Valid(date) {
		return fmt.Errorf("invalid date %q", date)
	}
	unlock := e.locks.lock(date)
	defer unlock()

	if err := e.records.Delete(date); err != nil {
		return err
	}
	return e.cache.Invalidate(date)
}
