package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"timetrace/worktime-agent/internal/database"
	"timetrace/worktime-agent/internal/models"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func utcTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed.UTC()
}

func TestSystemEventAppendAndDedupe(t *testing.T) {
	db := newTestDB(t)
	repo := NewSystemEventRepository(db.DB, zap.NewNop())

	event := &models.SystemEvent{
		Type:   models.EventUnlock,
		Time:   utcTime(t, "2024-03-01T09:00:00Z"),
		Source: models.SourceSystem,
	}
	inserted, err := repo.Append(event)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotZero(t, event.ID)

	// Redelivery of the same fact is absorbed.
	duplicate := &models.SystemEvent{
		Type:   models.EventUnlock,
		Time:   utcTime(t, "2024-03-01T09:00:00Z"),
		Source: models.SourceSystem,
	}
	inserted, err = repo.Append(duplicate)
	require.NoError(t, err)
	assert.False(t, inserted)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Same instant from a different source is a distinct fact.
	other := &models.SystemEvent{
		Type:   models.EventUnlock,
		Time:   utcTime(t, "2024-03-01T09:00:00Z"),
		Source: models.SourceManual,
	}
	inserted, err = repo.Append(other)
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestSystemEventGetInRange(t *testing.T) {
	db := newTestDB(t)
	repo := NewSystemEventRepository(db.DB, zap.NewNop())

	// Inserted out of order to confirm the range scan sorts by time.
	times := []string{
		"2024-03-01T17:00:00Z",
		"2024-03-01T09:00:00Z",
		"2024-03-02T08:00:00Z",
		"2024-02-29T23:00:00Z",
	}
	for _, ts := range times {
		_, err := repo.Append(&models.SystemEvent{
			Type: models.EventLock, Time: utcTime(t, ts), Source: models.SourceSystem,
		})
		require.NoError(t, err)
	}

	events, err := repo.GetInRange(utcTime(t, "2024-03-01T00:00:00Z"), utcTime(t, "2024-03-02T00:00:00Z"))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, utcTime(t, "2024-03-01T09:00:00Z"), events[0].Time)
	assert.Equal(t, utcTime(t, "2024-03-01T17:00:00Z"), events[1].Time)

	earliest, ok, err := repo.EarliestEventTime()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, utcTime(t, "2024-02-29T23:00:00Z"), earliest)
}

func TestSystemEventEarliestOnEmptyLog(t *testing.T) {
	db := newTestDB(t)
	repo := NewSystemEventRepository(db.DB, zap.NewNop())

	_, ok, err := repo.EarliestEventTime()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTimeRecordUpsertKeepsOneRowPerDate(t *testing.T) {
	db := newTestDB(t)
	repo := NewTimeRecordRepository(db.DB)

	clockIn := utcTime(t, "2024-03-01T09:00:00Z")
	clockOut := utcTime(t, "2024-03-01T17:00:00Z")
	first, err := repo.Upsert(&models.TimeRecord{
		Date:     "2024-03-01",
		ClockIn:  &clockIn,
		ClockOut: &clockOut,
		Duration: 480,
		Status:   models.StatusNormal,
	})
	require.NoError(t, err)
	assert.Equal(t, 480, first.Duration)

	laterOut := utcTime(t, "2024-03-01T18:00:00Z")
	second, err := repo.Upsert(&models.TimeRecord{
		Date:             "2024-03-01",
		ClockIn:          &clockIn,
		ClockOut:         &laterOut,
		Duration:         540,
		OvertimeDuration: 60,
		Status:           models.StatusNormal,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 540, second.Duration)
	assert.Equal(t, laterOut, *second.ClockOut)

	records, err := repo.GetInRange("2024-03-01", "2024-03-01")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestTimeRecordGetByDateNotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewTimeRecordRepository(db.DB)

	_, err := repo.GetByDate("2024-03-01")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	err = repo.Delete("2024-03-01")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestTimeRecordNullableColumns(t *testing.T) {
	db := newTestDB(t)
	repo := NewTimeRecordRepository(db.DB)

	clockIn := utcTime(t, "2024-03-01T09:00:00Z")
	saved, err := repo.Upsert(&models.TimeRecord{
		Date:    "2024-03-01",
		ClockIn: &clockIn,
		Status:  models.StatusIncomplete,
	})
	require.NoError(t, err)
	require.NotNil(t, saved.ClockIn)
	assert.Nil(t, saved.ClockOut)
	assert.Nil(t, saved.Notes)
	assert.Equal(t, models.StatusIncomplete, saved.Status)
}

func TestTimeRecordList(t *testing.T) {
	db := newTestDB(t)
	repo := NewTimeRecordRepository(db.DB)

	for day := 1; day <= 5; day++ {
		status := models.StatusNormal
		if day%2 == 0 {
			status = models.StatusAbnormal
		}
		_, err := repo.Upsert(&models.TimeRecord{
			Date:     utcTime(t, "2024-03-01T00:00:00Z").AddDate(0, 0, day-1).Format("2006-01-02"),
			Duration: day * 100,
			Status:   status,
		})
		require.NoError(t, err)
	}

	abnormal := models.StatusAbnormal
	records, total, err := repo.List(models.RecordQuery{Status: &abnormal, Page: 1, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, records, 2)

	// Date-range filter plus pagination, newest first.
	records, total, err = repo.List(models.RecordQuery{
		StartDate: "2024-03-02", EndDate: "2024-03-05", Page: 1, Size: 2, OrderDesc: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, records, 2)
	assert.Equal(t, "2024-03-05", records[0].Date)
	assert.Equal(t, "2024-03-04", records[1].Date)

	records, _, err = repo.List(models.RecordQuery{
		StartDate: "2024-03-02", EndDate: "2024-03-05", Page: 2, Size: 2, OrderDesc: true,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "2024-03-03", records[0].Date)
}

func TestStatsCacheGetPutExpiry(t *testing.T) {
	db := newTestDB(t)
	repo := NewStatsCacheRepository(db.DB)

	now := utcTime(t, "2024-03-01T12:00:00Z")
	payload := []byte(`{"work_hours":8}`)
	require.NoError(t, repo.Put("daily", "2024-03-01", payload, now, now.Add(time.Hour)))

	data, ok, err := repo.Get("daily", "2024-03-01", now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, payload, data)

	// Expired rows read as absent.
	_, ok, err = repo.Get("daily", "2024-03-01", now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	// Re-put replaces the expired row.
	fresh := []byte(`{"work_hours":9}`)
	require.NoError(t, repo.Put("daily", "2024-03-01", fresh, now.Add(2*time.Hour), now.Add(3*time.Hour)))
	data, ok, err = repo.Get("daily", "2024-03-01", now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, fresh, data)
}

func TestStatsCacheDeleteAndPurge(t *testing.T) {
	db := newTestDB(t)
	repo := NewStatsCacheRepository(db.DB)

	now := utcTime(t, "2024-03-01T12:00:00Z")
	require.NoError(t, repo.Put("daily", "2024-03-01", []byte(`{}`), now, now.Add(time.Hour)))
	require.NoError(t, repo.Put("weekly", "2024-02-26", []byte(`{}`), now, now.Add(-time.Minute)))

	require.NoError(t, repo.Delete("daily", "2024-03-01"))
	_, ok, err := repo.Get("daily", "2024-03-01", now)
	require.NoError(t, err)
	assert.False(t, ok)

	purged, err := repo.PurgeExpired(now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
	_, ok, err = repo.Get("weekly", "2024-02-26", now.Add(-2*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSweepStateCursor(t *testing.T) {
	db := newTestDB(t)
	repo := NewSweepStateRepository(db.DB)

	_, ok, err := repo.LastSweptDate()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.SetLastSweptDate("2024-03-01"))
	date, ok, err := repo.LastSweptDate()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2024-03-01", date)

	require.NoError(t, repo.SetLastSweptDate("2024-03-02"))
	date, _, err = repo.LastSweptDate()
	require.NoError(t, err)
	assert.Equal(t, "2024-03-02", date)
}
