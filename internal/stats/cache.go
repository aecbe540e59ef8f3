// Package stats serves daily/weekly/monthly/yearly aggregates over the time
// record ledger, memoized in a TTL-bearing cache table. The cache is never
// the source of truth: any entry can be dropped and recomputed from records.
package stats

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"timetrace/worktime-agent/internal/dateutil"
	"timetrace/worktime-agent/internal/models"
	"timetrace/worktime-agent/internal/repository"

	"go.uber.org/zap"
)

// TTLs bound staleness per aggregate kind even when an invalidation is missed
type TTLs struct {
	Daily   time.Duration
	Weekly  time.Duration
	Monthly time.Duration
	Yearly  time.Duration
}

// Cache computes aggregates lazily and memoizes them
type Cache struct {
	records *repository.TimeRecordRepository
	store   *repository.StatsCacheRepository
	ttls    TTLs
	loc     *time.Location
	now     func() time.Time
	logger  *zap.Logger

	// versions arbitrates invalidations racing in-flight recomputes: a
	// recompute only stores its result if no invalidation for the key
	// happened since it started
	mu       sync.Mutex
	versions map[string]uint64

	// onComputed, when set, runs after a recompute finishes and before the
	// result is stored; tests use it to interleave invalidations
	onComputed func()
}

func NewCache(
	records *repository.TimeRecordRepository,
	store *repository.StatsCacheRepository,
	ttls TTLs,
	loc *time.Location,
	logger *zap.Logger,
) *Cache {
	return &Cache{
		records:  records,
		store:    store,
		ttls:     ttls,
		loc:      loc,
		now:      time.Now,
		logger:   logger,
		versions: make(map[string]uint64),
	}
}

// WithClock overrides the cache clock, for tests
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Get returns the aggregate for the period of the given type containing
// date, from cache when an unexpired entry exists, recomputing otherwise.
// The returned value is the JSON payload of the matching models stat struct.
func (c *Cache) Get(statType models.StatType, date string) (json.RawMessage, error) {
	keyDate, err := c.keyDate(statType, date)
	if err != nil {
		return nil, err
	}

	now := c.now()
	if cached, ok, err := c.store.Get(statType, keyDate, now); err != nil {
		return nil, err
	} else if ok {
		return json.RawMessage(cached), nil
	}

	version := c.version(statType, keyDate)

	payload, err := c.compute(statType, keyDate)
	if err != nil {
		return nil, err
	}
	if c.onComputed != nil {
		c.onComputed()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s stats: %w", statType, err)
	}

	// Invalidation is authoritative: only memoize if the key version is
	// unchanged since the recompute started
	c.mu.Lock()
	fresh := c.versions[versionKey(statType, keyDate)] == version
	c.mu.Unlock()
	if fresh {
		if err := c.store.Put(statType, keyDate, data, now, now.Add(c.ttl(statType))); err != nil {
			// Serving the computed value matters more than memoizing it
			c.logger.Warn("Failed to store statistics cache entry",
				zap.String("stat_type", string(statType)),
				zap.String("stat_date", keyDate),
				zap.Error(err),
			)
		}
	}

	return data, nil
}

// Invalidate drops every cached aggregate whose period contains date. Call
// it after any record mutation for that date.
func (c *Cache) Invalidate(date string) error {
	for _, statType := range []models.StatType{
		models.StatDaily, models.StatWeekly, models.StatMonthly, models.StatYearly,
	} {
		keyDate, err := c.keyDate(statType, date)
		if err != nil {
			return err
		}

		c.mu.Lock()
		c.versions[versionKey(statType, keyDate)]++
		c.mu.Unlock()

		if err := c.store.Delete(statType, keyDate); err != nil {
			return err
		}
	}
	c.logger.Debug("Statistics cache invalidated", zap.String("date", date))
	return nil
}

// GetRange computes a custom-range aggregate. Custom entries cannot be
// enumerated by Invalidate, so they are never memoized beyond the daily TTL.
func (c *Cache) GetRange(startDate, endDate string) (*models.RangeStats, error) {
	if !dateutil.Valid(startDate) || !dateutil.Valid(endDate) {
		return nil, fmt.Errorf("invalid range %s..%s", startDate, endDate)
	}
	records, err := c.records.GetInRange(startDate, endDate)
	if err != nil {
		return nil, err
	}

	result := &models.RangeStats{StartDate: startDate, EndDate: endDate}
	for _, record := range records {
		result.TotalWorkHours += float64(record.Duration) / 60
		result.TotalOvertimeHours += float64(record.OvertimeDuration) / 60
		result.TotalBreakHours += float64(record.BreakDuration) / 60
		result.WorkDays++
	}
	if result.WorkDays > 0 {
		result.AvgDailyHours = result.TotalWorkHours / float64(result.WorkDays)
	}
	return result, nil
}

// PurgeExpired drops stale rows; the sweep calls this opportunistically
func (c *Cache) PurgeExpired() error {
	purged, err := c.store.PurgeExpired(c.now())
	if err != nil {
		return err
	}
	if purged > 0 {
		c.logger.Debug("Purged expired statistics cache entries", zap.Int64("count", purged))
	}
	return nil
}

func (c *Cache) version(statType models.StatType, keyDate string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[versionKey(statType, keyDate)]
}

func versionKey(statType models.StatType, keyDate string) string {
	return string(statType) + ":" + keyDate
}

// keyDate canonicalizes a date to its period's cache key: the day itself,
// the week's Monday, the month's first day, or the year's first day
func (c *Cache) keyDate(statType models.StatType, date string) (string, error) {
	if !dateutil.Valid(date) {
		return "", fmt.Errorf("invalid date %q", date)
	}
	switch statType {
	case models.StatDaily:
		return date, nil
	case models.StatWeekly:
		start, _, err := dateutil.WeekRange(date)
		return start, err
	case models.StatMonthly:
		start, _, err := dateutil.MonthRange(date)
		return start, err
	case models.StatYearly:
		start, _, err := dateutil.YearRange(date)
		return start, err
	default:
		return "", fmt.Errorf("unsupported stat type %q", statType)
	}
}

func (c *Cache) ttl(statType models.StatType) time.Duration {
	switch statType {
	case models.StatDaily:
		return c.ttls.Daily
	case models.StatWeekly:
		return c.ttls.Weekly
	case models.StatMonthly:
		return c.ttls.Monthly
	default:
		return c.ttls.Yearly
	}
}

func (c *Cache) compute(statType models.StatType, keyDate string) (interface{}, error) {
	switch statType {
	case models.StatDaily:
		return c.computeDaily(keyDate)
	case models.StatWeekly:
		return c.computeWeekly(keyDate)
	case models.StatMonthly:
		return c.computeMonthly(keyDate)
	case models.StatYearly:
		return c.computeYearly(keyDate)
	default:
		return nil, fmt.Errorf("unsupported stat type %q", statType)
	}
}
