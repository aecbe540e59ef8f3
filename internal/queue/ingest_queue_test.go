package queue

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"timetrace/worktime-agent/internal/database"
	"timetrace/worktime-agent/internal/models"
)

func newTestQueue(t *testing.T, maxRetries int) *IngestQueue {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewIngestQueue(db.DB, 50*time.Millisecond, maxRetries, zap.NewNop())
}

func TestEnqueueAndDrain(t *testing.T) {
	q := newTestQueue(t, 3)

	require.NoError(t, q.Enqueue(models.RawEvent{Type: "unlock", Time: 1709283600000}))
	require.NoError(t, q.Enqueue(models.RawEvent{Type: "lock", Time: 1709312400000}))

	count, err := q.PendingCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	var handled []models.RawEvent
	q.handler = func(raw models.RawEvent) error {
		handled = append(handled, raw)
		return nil
	}
	q.Drain()

	require.Len(t, handled, 2)
	assert.Equal(t, "unlock", handled[0].Type)
	assert.Equal(t, "lock", handled[1].Type)

	count, err = q.PendingCount()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestDrainRetriesOnFailureAndPreservesOrder(t *testing.T) {
	q := newTestQueue(t, 10)

	require.NoError(t, q.Enqueue(models.RawEvent{Type: "unlock", Time: 1709283600000}))
	require.NoError(t, q.Enqueue(models.RawEvent{Type: "lock", Time: 1709312400000}))

	failing := true
	var handled []string
	q.handler = func(raw models.RawEvent) error {
		if failing && raw.Type == "unlock" {
			return errors.New("storage unavailable")
		}
		handled = append(handled, raw.Type)
		return nil
	}

	// The failing head blocks the rest of the batch.
	q.Drain()
	assert.Empty(t, handled)
	count, err := q.PendingCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	failing = false
	q.Drain()
	assert.Equal(t, []string{"unlock", "lock"}, handled)
	count, err = q.PendingCount()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestDrainDropsAfterMaxRetries(t *testing.T) {
	q := newTestQueue(t, 2)

	require.NoError(t, q.Enqueue(models.RawEvent{Type: "unlock", Time: 1709283600000}))

	attempts := 0
	q.handler = func(models.RawEvent) error {
		attempts++
		return errors.New("permanently broken")
	}

	q.Drain() // attempt 1: retry_count -> 1
	q.Drain() // attempt 2: hits the cap, row dropped
	assert.Equal(t, 2, attempts)

	count, err := q.PendingCount()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestStartStopWorker(t *testing.T) {
	q := newTestQueue(t, 3)

	handled := make(chan models.RawEvent, 1)
	q.Start(func(raw models.RawEvent) error {
		select {
		case handled <- raw:
		default:
		}
		return nil
	})
	defer q.Stop()

	require.NoError(t, q.Enqueue(models.RawEvent{Type: "startup", Time: 1709283600000}))

	select {
	case raw := <-handled:
		assert.Equal(t, "startup", raw.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not drain the queue in time")
	}
}
