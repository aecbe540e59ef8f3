// Package normalizer turns untrusted raw events into canonical SystemEvent
// values. Anything that fails validation is rejected and logged, never
// clamped or silently dropped.
package normalizer

import (
	"errors"
	"fmt"
	"time"

	"timetrace/worktime-agent/internal/models"

	"go.uber.org/zap"
)

// ErrInvalidEvent marks an event that failed validation. Invalid events are
// never appended to the event log.
var ErrInvalidEvent = errors.New("invalid event")

// Normalizer validates raw events against the event taxonomy and a
// future-skew bound
type Normalizer struct {
	maxFutureSkew time.Duration
	now           func() time.Time
	logger        *zap.Logger
}

func New(maxFutureSkew time.Duration, logger *zap.Logger) *Normalizer {
	return &Normalizer{
		maxFutureSkew: maxFutureSkew,
		now:           time.Now,
		logger:        logger,
	}
}

// WithClock overrides the ingestion clock, for tests
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	n.now = now
	return n
}

// Normalize validates a raw event and returns its canonical form.
// The timestamp is converted to UTC; a missing source defaults to "system".
func (n *Normalizer) Normalize(raw models.RawEvent) (*models.SystemEvent, error) {
	eventType := models.EventType(raw.Type)
	if !models.ValidEventType(eventType) {
		return nil, n.reject(raw, fmt.Sprintf("unknown event type %q", raw.Type))
	}

	if raw.Time <= 0 {
		return nil, n.reject(raw, "missing or unparseable timestamp")
	}
	eventTime := time.UnixMilli(raw.Time).UTC()

	source := models.EventSource(raw.Source)
	if raw.Source == "" {
		source = models.SourceSystem
	} else if !models.ValidEventSource(source) {
		return nil, n.reject(raw, fmt.Sprintf("unknown event source %q", raw.Source))
	}

	if skew := eventTime.Sub(n.now()); skew > n.maxFutureSkew {
		return nil, n.reject(raw, fmt.Sprintf("timestamp %s ahead of ingestion time", skew))
	}

	return &models.SystemEvent{
		Type:    eventType,
		Time:    eventTime,
		Source:  source,
		Details: raw.Details,
	}, nil
}

func (n *Normalizer) reject(raw models.RawEvent, reason string) error {
	n.logger.Warn("Rejected event",
		zap.String("type", raw.Type),
		zap.Int64("time", raw.Time),
		zap.String("source", raw.Source),
		zap.String("reason", reason),
	)
	return fmt.Errorf("%w: %s", ErrInvalidEvent, reason)
}
