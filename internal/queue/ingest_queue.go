// Package queue is the durable hand-off between event sources and the
// engine. Raw events land here first; a row is only removed once the engine
// has accepted (or rejected) the event, so a crash mid-ingest redelivers.
package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"timetrace/worktime-agent/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IngestQueue manages the local queue of pending raw events, drained by a
// single worker so event processing stays sequential
type IngestQueue struct {
	db           *sql.DB
	pollInterval time.Duration
	maxRetries   int
	logger       *zap.Logger

	handler  func(models.RawEvent) error
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewIngestQueue creates a new ingest queue
func NewIngestQueue(db *sql.DB, pollInterval time.Duration, maxRetries int, logger *zap.Logger) *IngestQueue {
	return &IngestQueue{
		db:           db,
		pollInterval: pollInterval,
		maxRetries:   maxRetries,
		logger:       logger,
		stopChan:     make(chan struct{}),
	}
}

// Enqueue persists a raw event for processing. Duplicate deliveries are
// allowed here; the event log dedupes downstream.
func (q *IngestQueue) Enqueue(raw models.RawEvent) error {
	payload, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal raw event: %w", err)
	}

	deliveryID := uuid.NewString()
	if _, err := q.db.Exec(`
		INSERT INTO pending_raw_events (payload, delivery_id, retry_count)
		VALUES (?, ?, 0)
	`, string(payload), deliveryID); err != nil {
		return fmt.Errorf("failed to enqueue raw event: %w", err)
	}

	q.logger.Debug("Raw event enqueued",
		zap.String("delivery_id", deliveryID),
		zap.String("type", raw.Type),
	)
	return nil
}

// Start begins the single drain worker. The handler's error decides the
// row's fate: nil removes it, non-nil leaves it for retry.
func (q *IngestQueue) Start(handler func(models.RawEvent) error) {
	q.handler = handler

	q.wg.Add(1)
	go q.drainLoop()

	q.logger.Info("Ingest queue started",
		zap.Duration("poll_interval", q.pollInterval),
		zap.Int("max_retries", q.maxRetries),
	)
}

// Stop stops the drain worker after the in-flight batch finishes
func (q *IngestQueue) Stop() {
	select {
	case <-q.stopChan:
		return
	default:
		close(q.stopChan)
	}
	q.wg.Wait()
	q.logger.Info("Ingest queue stopped")
}

// Drain processes everything currently queued; exposed for tests and for a
// final flush on shutdown
func (q *IngestQueue) Drain() {
	for {
		processed, err := q.processBatch(50)
		if err != nil {
			q.logger.Error("Failed to process ingest batch", zap.Error(err))
			return
		}
		if processed == 0 {
			return
		}
	}
}

// PendingCount returns the number of queued raw events
func (q *IngestQueue) PendingCount() (int, error) {
	var count int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM pending_raw_events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending events: %w", err)
	}
	return count, nil
}

func (q *IngestQueue) drainLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			q.Drain()
		case <-q.stopChan:
			return
		}
	}
}

func (q *IngestQueue) processBatch(limit int) (int, error) {
	rows, err := q.db.Query(`
		SELECT id, payload, delivery_id, retry_count
		FROM pending_raw_events
		ORDER BY id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to query pending events: %w", err)
	}

	type pending struct {
		id         int64
		payload    string
		deliveryID string
		retryCount int
	}
	var batch []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.payload, &p.deliveryID, &p.retryCount); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan pending event: %w", err)
		}
		batch = append(batch, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating pending events: %w", err)
	}

	processed := 0
	for _, p := range batch {
		var raw models.RawEvent
		if err := json.Unmarshal([]byte(p.payload), &raw); err != nil {
			q.logger.Error("Dropping corrupted queue row",
				zap.Int64("id", p.id),
				zap.String("delivery_id", p.deliveryID),
				zap.Error(err),
			)
			q.remove(p.id)
			processed++
			continue
		}

		if err := q.handler(raw); err != nil {
			if p.retryCount+1 >= q.maxRetries {
				q.logger.Error("Dropping raw event after max retries",
					zap.String("delivery_id", p.deliveryID),
					zap.Int("retries", p.retryCount+1),
					zap.Error(err),
				)
				q.remove(p.id)
				processed++
				continue
			}
			q.logger.Warn("Raw event processing failed, will retry",
				zap.String("delivery_id", p.deliveryID),
				zap.Int("retry_count", p.retryCount+1),
				zap.Error(err),
			)
			if _, err := q.db.Exec(`
				UPDATE pending_raw_events
				SET retry_count = retry_count + 1, last_attempt = CURRENT_TIMESTAMP
				WHERE id = ?
			`, p.id); err != nil {
				q.logger.Error("Failed to increment retry count", zap.Error(err))
			}
			// Stop the batch here to preserve delivery order
			return processed, nil
		}

		q.remove(p.id)
		processed++
	}

	return processed, nil
}

func (q *IngestQueue) remove(id int64) {
	if _, err := q.db.Exec(`DELETE FROM pending_raw_events WHERE id = ?`, id); err != nil {
		q.logger.Error("Failed to remove queue row", zap.Int64("id", id), zap.Error(err))
	}
}
