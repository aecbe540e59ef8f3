package reconciler

import (
	"fmt"
	"strings"
	"time"
)

// AnomalyKind classifies an event pattern that could not be resolved into a
// clean session without policy intervention
type AnomalyKind string

const (
	// AnomalyDoubleOpen is an open event arriving while a session is open
	AnomalyDoubleOpen AnomalyKind = "double_open"
	// AnomalyOrphanClose is a close event with no session open
	AnomalyOrphanClose AnomalyKind = "orphan_close"
	// AnomalyOverlongSession is a session exceeding the max-duration bound
	AnomalyOverlongSession AnomalyKind = "overlong_session"
	// AnomalyExcessiveGap is a between-session gap beyond the break threshold
	AnomalyExcessiveGap AnomalyKind = "excessive_gap"
	// AnomalyCarriedOpen is a prior-day session closed retroactively
	AnomalyCarriedOpen AnomalyKind = "carried_open"
)

// Anomaly records a detected irregularity and how it was resolved
type Anomaly struct {
	Kind AnomalyKind
	At   time.Time
	Note string
}

func anomaly(kind AnomalyKind, at time.Time, format string, args ...interface{}) Anomaly {
	return Anomaly{Kind: kind, At: at.UTC(), Note: fmt.Sprintf(format, args...)}
}

// notesFor renders anomalies into a deterministic record note, so re-running
// reconciliation over the same events reproduces the row byte for byte
func notesFor(anomalies []Anomaly) *string {
	if len(anomalies) == 0 {
		return nil
	}
	parts := make([]string, len(anomalies))
	for i, a := range anomalies {
		parts[i] = a.Note
	}
	note := strings.Join(parts, "; ")
	return &note
}
