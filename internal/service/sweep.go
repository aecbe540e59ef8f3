package service

import (
	"sync"
	"time"

	"timetrace/worktime-agent/internal/dateutil"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sweeper periodically re-reconciles recent days to catch sessions left open
// by crashes, sleeps and missed shutdown events. Each run covers every date
// since the last successful sweep, so a machine waking up days late still
// catches up.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	logger   *zap.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewSweeper creates a sweeper over the engine
func NewSweeper(engine *Engine, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		engine:   engine,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the sweep loop, running one sweep immediately
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.loop()

	s.logger.Info("Sweeper started", zap.Duration("interval", s.interval))
}

// Stop stops the sweep loop
func (s *Sweeper) Stop() {
	select {
	case <-s.stopChan:
		return
	default:
		close(s.stopChan)
	}
	s.wg.Wait()
	s.logger.Info("Sweeper stopped")
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	if err := s.engine.Sweep(); err != nil {
		s.logger.Error("Sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.engine.Sweep(); err != nil {
				s.logger.Error("Sweep failed", zap.Error(err))
			}
		case <-s.stopChan:
			return
		}
	}
}

// Sweep reconciles every date from the day after the last successful sweep
// through yesterday, then advances the cursor. A first-ever sweep starts at
// the oldest logged event.
func (e *Engine) Sweep() error {
	runID := uuid.NewString()
	now := e.now()
	yesterday := dateutil.DayOf(now.AddDate(0, 0, -1), e.loc)

	start, err := e.sweepStartDate(yesterday)
	if err != nil {
		return err
	}
	if start == "" || start > yesterday {
		e.logger.Debug("Nothing to sweep", zap.String("run_id", runID))
		return nil
	}

	dates, err := dateutil.DatesBetween(start, yesterday)
	if err != nil {
		return err
	}

	e.logger.Info("Sweep started",
		zap.String("run_id", runID),
		zap.String("from", start),
		zap.String("through", yesterday),
		zap.Int("days", len(dates)),
	)

	// A day left with a session still open inside the bound is not settled:
	// the cursor stays behind it so later runs revisit until an event closes
	// it or the max-session truncation applies
	cursor := yesterday
	held := false
	for _, date := range dates {
		outcome, err := e.reconcileDate(date, false)
		if err != nil {
			// Leave the cursor behind this date so the next run retries it
			return err
		}
		if !held && outcome != nil && outcome.DanglingOpen != nil {
			cursor, err = dateutil.AddDays(date, -1)
			if err != nil {
				return err
			}
			held = true
			e.logger.Debug("Sweep cursor held at open day",
				zap.String("run_id", runID),
				zap.String("date", date),
			)
		}
	}

	if err := e.sweepState.SetLastSweptDate(cursor); err != nil {
		return err
	}
	if err := e.cache.PurgeExpired(); err != nil {
		e.logger.Warn("Failed to purge expired cache entries", zap.Error(err))
	}

	e.logger.Info("Sweep completed", zap.String("run_id", runID), zap.Int("days", len(dates)))
	return nil
}

func (e *Engine) sweepStartDate(yesterday string) (string, error) {
	lastSwept, ok, err := e.sweepState.LastSweptDate()
	if err != nil {
		return "", err
	}
	if ok {
		return dateutil.AddDays(lastSwept, 1)
	}

	earliest, ok, err := e.events.EarliestEventTime()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	first := dateutil.DayOf(earliest, e.loc)
	if first > yesterday {
		return yesterday, nil
	}
	return first, nil
}
