package gourdianfanout

import (
	"maps"
	"time"
)

// Event is a single leveled log entry. An Event is immutable once created:
// NewEvent copies the field map, and nothing in the pipeline mutates it.
type Event struct {
	Time    time.Time
	Level   Level
	Message string
	Fields  map[string]any
}

// NewEvent creates an Event stamped with the current time.
//
// The fields map is copied so later changes by the caller are not observed
// by the background writers.
func NewEvent(level Level, message string, fields map[string]any) Event {
	return Event{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Fields:  maps.Clone(fields),
	}
}
