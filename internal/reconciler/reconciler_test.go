package reconciler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"timetrace/worktime-agent/internal/models"
)

func testConfig() Config {
	return Config{
		MaxSession:               16 * time.Hour,
		BreakThreshold:           120 * time.Minute,
		OvertimeThresholdMinutes: 480,
	}
}

func newTestReconciler() *Reconciler {
	return New(testConfig(), zap.NewNop())
}

func evt(t *testing.T, eventType models.EventType, value string) models.SystemEvent {
	t.Helper()
	at, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("bad timestamp %s: %v", value, err)
	}
	return models.SystemEvent{Type: eventType, Time: at.UTC(), Source: models.SourceSystem}
}

func utc(t *testing.T, value string) time.Time {
	t.Helper()
	at, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("bad timestamp %s: %v", value, err)
	}
	return at.UTC()
}

func kinds(anomalies []Anomaly) []AnomalyKind {
	out := make([]AnomalyKind, len(anomalies))
	for i, a := range anomalies {
		out[i] = a.Kind
	}
	return out
}

func TestReconcileEmptyDay(t *testing.T) {
	outcome := newTestReconciler().ReconcileDay("2024-03-01", nil, time.Now().UTC(), nil)
	assert.Nil(t, outcome.Record)
	assert.Empty(t, outcome.Anomalies)
}

func TestReconcileCleanDayWithLunchBreak(t *testing.T) {
	r := newTestReconciler()
	events := []models.SystemEvent{
		evt(t, models.EventUnlock, "2024-03-01T09:00:00Z"),
		evt(t, models.EventLock, "2024-03-01T12:30:00Z"),
		evt(t, models.EventUnlock, "2024-03-01T13:30:00Z"),
		evt(t, models.EventLock, "2024-03-01T18:20:00Z"),
	}
	outcome := r.ReconcileDay("2024-03-01", events, utc(t, "2024-03-02T01:00:00Z"), nil)

	require.NotNil(t, outcome.Record)
	record := outcome.Record
	assert.Equal(t, models.StatusNormal, record.Status)
	assert.Equal(t, utc(t, "2024-03-01T09:00:00Z"), *record.ClockIn)
	assert.Equal(t, utc(t, "2024-03-01T18:20:00Z"), *record.ClockOut)
	assert.Equal(t, 60, record.BreakDuration)
	assert.Equal(t, 500, record.Duration)
	assert.Equal(t, 20, record.OvertimeDuration)
	assert.Nil(t, record.Notes)
	assert.Empty(t, outcome.Anomalies)
}

func TestReconcileSingleSession(t *testing.T) {
	r := newTestReconciler()
	events := []models.SystemEvent{
		evt(t, models.EventStartup, "2024-03-01T08:30:00Z"),
		evt(t, models.EventShutdown, "2024-03-01T16:30:00Z"),
	}
	outcome := r.ReconcileDay("2024-03-01", events, utc(t, "2024-03-02T01:00:00Z"), nil)

	require.NotNil(t, outcome.Record)
	assert.Equal(t, models.StatusNormal, outcome.Record.Status)
	assert.Equal(t, 480, outcome.Record.Duration)
	assert.Equal(t, 0, outcome.Record.OvertimeDuration)
	assert.Equal(t, 0, outcome.Record.BreakDuration)
}

func TestReconcileSuspendResumeAreCloseOpen(t *testing.T) {
	r := newTestReconciler()
	events := []models.SystemEvent{
		evt(t, models.EventUnlock, "2024-03-01T09:00:00Z"),
		evt(t, models.EventSuspend, "2024-03-01T11:00:00Z"),
		evt(t, models.EventResume, "2024-03-01T11:30:00Z"),
		evt(t, models.EventLock, "2024-03-01T17:00:00Z"),
	}
	outcome := r.ReconcileDay("2024-03-01", events, utc(t, "2024-03-02T01:00:00Z"), nil)

	require.NotNil(t, outcome.Record)
	assert.Equal(t, models.StatusNormal, outcome.Record.Status)
	assert.Equal(t, 30, outcome.Record.BreakDuration)
	assert.Equal(t, 450, outcome.Record.Duration)
}

func TestReconcileDoubleOpenIsContinuation(t *testing.T) {
	r := newTestReconciler()
	events := []models.SystemEvent{
		evt(t, models.EventUnlock, "2024-03-01T09:00:00Z"),
		evt(t, models.EventUnlock, "2024-03-01T10:00:00Z"),
		evt(t, models.EventLock, "2024-03-01T17:00:00Z"),
	}
	outcome := r.ReconcileDay("2024-03-01", events, utc(t, "2024-03-02T01:00:00Z"), nil)

	require.NotNil(t, outcome.Record)
	record := outcome.Record
	// The first open wins; the redundant open only flags the day.
	assert.Equal(t, utc(t, "2024-03-01T09:00:00Z"), *record.ClockIn)
	assert.Equal(t, utc(t, "2024-03-01T17:00:00Z"), *record.ClockOut)
	assert.Equal(t, 480, record.Duration)
	assert.Equal(t, models.StatusAbnormal, record.Status)
	assert.Equal(t, []AnomalyKind{AnomalyDoubleOpen}, kinds(outcome.Anomalies))
	require.NotNil(t, record.Notes)
	assert.Contains(t, *record.Notes, "redundant")
}

func TestReconcileLoneOrphanCloseYieldsNoRecord(t *testing.T) {
	r := newTestReconciler()
	events := []models.SystemEvent{
		evt(t, models.EventLock, "2024-03-02T00:15:00Z"),
	}
	outcome := r.ReconcileDay("2024-03-02", events, utc(t, "2024-03-02T12:00:00Z"), nil)

	assert.Nil(t, outcome.Record)
	assert.Equal(t, 1, outcome.OrphanCloses)
	require.NotNil(t, outcome.LeadingOrphanClose)
	assert.Equal(t, utc(t, "2024-03-02T00:15:00Z"), outcome.LeadingOrphanClose.Time)
}

func TestReconcileOrphanCloseMidDay(t *testing.T) {
	r := newTestReconciler()
	events := []models.SystemEvent{
		evt(t, models.EventUnlock, "2024-03-01T09:00:00Z"),
		evt(t, models.EventLock, "2024-03-01T12:00:00Z"),
		evt(t, models.EventLock, "2024-03-01T12:05:00Z"),
		evt(t, models.EventUnlock, "2024-03-01T13:00:00Z"),
		evt(t, models.EventLock, "2024-03-01T17:00:00Z"),
	}
	outcome := r.ReconcileDay("2024-03-01", events, utc(t, "2024-03-02T01:00:00Z"), nil)

	require.NotNil(t, outcome.Record)
	assert.Equal(t, models.StatusAbnormal, outcome.Record.Status)
	assert.Equal(t, 1, outcome.OrphanCloses)
	// Not at index 0, so no carry-over signal for the prior day.
	assert.Nil(t, outcome.LeadingOrphanClose)
	assert.Equal(t, []AnomalyKind{AnomalyOrphanClose}, kinds(outcome.Anomalies))
}

func TestReconcileCarryForwardClosesAtDayEnd(t *testing.T) {
	r := newTestReconciler()
	events := []models.SystemEvent{
		evt(t, models.EventUnlock, "2024-03-01T22:00:00Z"),
	}
	dayEnd := utc(t, "2024-03-01T23:59:59Z")
	outcome := r.ReconcileDay("2024-03-01", events, utc(t, "2024-03-02T12:00:00Z"), &dayEnd)

	require.NotNil(t, outcome.Record)
	record := outcome.Record
	assert.Equal(t, models.StatusAbnormal, record.Status)
	assert.Equal(t, utc(t, "2024-03-01T22:00:00Z"), *record.ClockIn)
	require.NotNil(t, record.ClockOut)
	assert.Equal(t, dayEnd, *record.ClockOut)
	assert.Equal(t, 119, record.Duration)
	assert.Equal(t, []AnomalyKind{AnomalyCarriedOpen}, kinds(outcome.Anomalies))
	assert.Nil(t, outcome.DanglingOpen)
}

func TestReconcileDanglingOpenWithinBoundIsIncomplete(t *testing.T) {
	r := newTestReconciler()
	events := []models.SystemEvent{
		evt(t, models.EventUnlock, "2024-03-03T09:00:00Z"),
	}
	// Sweep at 01:00 the next day: 16h elapsed, within the bound.
	outcome := r.ReconcileDay("2024-03-03", events, utc(t, "2024-03-04T01:00:00Z"), nil)

	require.NotNil(t, outcome.Record)
	record := outcome.Record
	assert.Equal(t, models.StatusIncomplete, record.Status)
	assert.Equal(t, utc(t, "2024-03-03T09:00:00Z"), *record.ClockIn)
	assert.Nil(t, record.ClockOut)
	assert.Equal(t, 0, record.Duration)
	require.NotNil(t, outcome.DanglingOpen)
}

func TestReconcileDanglingOpenPastBoundAssumesClose(t *testing.T) {
	r := newTestReconciler()
	events := []models.SystemEvent{
		evt(t, models.EventUnlock, "2024-03-03T09:00:00Z"),
	}
	outcome := r.ReconcileDay("2024-03-03", events, utc(t, "2024-03-04T09:00:00Z"), nil)

	require.NotNil(t, outcome.Record)
	record := outcome.Record
	assert.Equal(t, models.StatusAbnormal, record.Status)
	require.NotNil(t, record.ClockOut)
	assert.Equal(t, utc(t, "2024-03-04T01:00:00Z"), *record.ClockOut)
	assert.Equal(t, 16*60, record.Duration)
	assert.Equal(t, []AnomalyKind{AnomalyOverlongSession}, kinds(outcome.Anomalies))
}

func TestReconcileIncompleteWithClosedSessions(t *testing.T) {
	r := newTestReconciler()
	events := []models.SystemEvent{
		evt(t, models.EventUnlock, "2024-03-01T09:00:00Z"),
		evt(t, models.EventLock, "2024-03-01T12:00:00Z"),
		evt(t, models.EventUnlock, "2024-03-01T13:00:00Z"),
	}
	outcome := r.ReconcileDay("2024-03-01", events, utc(t, "2024-03-01T14:00:00Z"), nil)

	require.NotNil(t, outcome.Record)
	record := outcome.Record
	assert.Equal(t, models.StatusIncomplete, record.Status)
	assert.Equal(t, utc(t, "2024-03-01T09:00:00Z"), *record.ClockIn)
	assert.Nil(t, record.ClockOut)
	// Closed sessions count toward the partial total; the open tail does not.
	assert.Equal(t, 180, record.Duration)
}

func TestReconcileOverlongClosedSessionTruncated(t *testing.T) {
	r := newTestReconciler()
	events := []models.SystemEvent{
		evt(t, models.EventStartup, "2024-03-01T06:00:00Z"),
		evt(t, models.EventShutdown, "2024-03-01T23:30:00Z"),
	}
	outcome := r.ReconcileDay("2024-03-01", events, utc(t, "2024-03-02T01:00:00Z"), nil)

	require.NotNil(t, outcome.Record)
	record := outcome.Record
	assert.Equal(t, models.StatusAbnormal, record.Status)
	assert.Equal(t, utc(t, "2024-03-01T22:00:00Z"), *record.ClockOut)
	assert.Equal(t, 16*60, record.Duration)
	assert.Equal(t, []AnomalyKind{AnomalyOverlongSession}, kinds(outcome.Anomalies))
}

func TestReconcileExcessiveGapStillCountsAsBreak(t *testing.T) {
	r := newTestReconciler()
	events := []models.SystemEvent{
		evt(t, models.EventUnlock, "2024-03-01T08:00:00Z"),
		evt(t, models.EventLock, "2024-03-01T10:00:00Z"),
		evt(t, models.EventUnlock, "2024-03-01T14:00:00Z"),
		evt(t, models.EventLock, "2024-03-01T18:00:00Z"),
	}
	outcome := r.ReconcileDay("2024-03-01", events, utc(t, "2024-03-02T01:00:00Z"), nil)

	require.NotNil(t, outcome.Record)
	record := outcome.Record
	assert.Equal(t, models.StatusAbnormal, record.Status)
	// The four-hour gap is flagged but still folded into break time.
	assert.Equal(t, 240, record.BreakDuration)
	assert.Equal(t, 360, record.Duration)
	assert.Equal(t, []AnomalyKind{AnomalyExcessiveGap}, kinds(outcome.Anomalies))
}

func TestReconcileIsIdempotent(t *testing.T) {
	r := newTestReconciler()
	events := []models.SystemEvent{
		evt(t, models.EventUnlock, "2024-03-01T09:00:00Z"),
		evt(t, models.EventUnlock, "2024-03-01T09:30:00Z"),
		evt(t, models.EventLock, "2024-03-01T12:00:00Z"),
		evt(t, models.EventLock, "2024-03-01T12:01:00Z"),
		evt(t, models.EventUnlock, "2024-03-01T13:00:00Z"),
		evt(t, models.EventLock, "2024-03-01T17:30:00Z"),
	}
	now := utc(t, "2024-03-02T01:00:00Z")

	first := r.ReconcileDay("2024-03-01", events, now, nil)
	second := r.ReconcileDay("2024-03-01", events, now, nil)

	require.NotNil(t, first.Record)
	require.NotNil(t, second.Record)
	assert.Equal(t, first.Record, second.Record)
	assert.Equal(t, kinds(first.Anomalies), kinds(second.Anomalies))
	require.NotNil(t, first.Record.Notes)
	assert.Equal(t, *first.Record.Notes, *second.Record.Notes)
}
