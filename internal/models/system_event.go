package models

import "time"

// EventType identifies the kind of OS session event
type EventType string

const (
	EventLock     EventType = "lock"
	EventUnlock   EventType = "unlock"
	EventShutdown EventType = "shutdown"
	EventStartup  EventType = "startup"
	EventSuspend  EventType = "suspend"
	EventResume   EventType = "resume"
)

// ValidEventType reports whether t is one of the known event types
func ValidEventType(t EventType) bool {
	switch t {
	case EventLock, EventUnlock, EventShutdown, EventStartup, EventSuspend, EventResume:
		return true
	}
	return false
}

// Opens reports whether the event type opens a presence session
func (t EventType) Opens() bool {
	return t == EventUnlock || t == EventStartup || t == EventResume
}

// Closes reports whether the event type closes a presence session
func (t EventType) Closes() bool {
	return t == EventLock || t == EventShutdown || t == EventSuspend
}

// EventSource identifies where an event originated
type EventSource string

const (
	SourceSystem EventSource = "system"
	SourceManual EventSource = "manual"
	SourceAuto   EventSource = "auto"
)

// ValidEventSource reports whether s is one of the known event sources
func ValidEventSource(s EventSource) bool {
	switch s {
	case SourceSystem, SourceManual, SourceAuto:
		return true
	}
	return false
}

// RawEvent is an untrusted event as delivered by an event source.
// Time is a Unix timestamp in milliseconds, matching the wire format.
type RawEvent struct {
	Type    string  `json:"type"`
	Time    int64   `json:"time"`
	Source  string  `json:"source,omitempty"`
	Details *string `json:"details,omitempty"`
}

// SystemEvent is an immutable, validated fact in the append-only event log
type SystemEvent struct {
	ID        int64       `json:"id"`
	Type      EventType   `json:"type"`
	Time      time.Time   `json:"time"` // UTC
	Source    EventSource `json:"source"`
	Details   *string     `json:"details,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
