package gourdianfanout

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is wrapped by every *ConfigError.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrDirectoryInUse is returned when another pipeline already owns the log directory.
	ErrDirectoryInUse = errors.New("log directory in use by another pipeline")
	// ErrQueueOverflow is reported when a sink queue is full and an event is dropped.
	ErrQueueOverflow = errors.New("sink queue overflow")
	// ErrShutdownDiscard is reported when queued events are discarded because
	// a drain outlived its grace period.
	ErrShutdownDiscard = errors.New("discarded after shutdown grace period")
	// ErrWriteFailure is wrapped by every *WriteError.
	ErrWriteFailure = errors.New("log write failure")
	// ErrClosed is returned by operations on a closed pipeline or writer.
	ErrClosed = errors.New("pipeline closed")
)

// ConfigError describes a configuration problem found at bootstrap.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid config: %v", e.Err)
	}
	return fmt.Sprintf("invalid config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() []error {
	return []error{ErrInvalidConfig, e.Err}
}

// WriteError describes an I/O failure while opening or appending to a segment.
type WriteError struct {
	Stream Stream
	Op     string // "open", "write", "close" or "retention"
	Path   string
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s stream: %s %s: %v", e.Stream, e.Op, e.Path, e.Err)
}

func (e *WriteError) Unwrap() []error {
	return []error{ErrWriteFailure, e.Err}
}
