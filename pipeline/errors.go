package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueTimeout is returned by TaskQueue.Get when nothing arrived within
	// the poll timeout. It is expected and only used to re-check cancellation.
	ErrQueueTimeout = errors.New("task queue: timeout")

	// ErrQueueClosed is returned by Put after Close, and by Get once the queue
	// is closed and fully drained.
	ErrQueueClosed = errors.New("task queue: closed")

	// ErrCountMismatch is matched by every *CountMismatchError.
	ErrCountMismatch = errors.New("result count mismatch")

	// ErrNoSources is returned when a fusion session is built without sources.
	ErrNoSources = errors.New("fusion: at least one source is required")

	// ErrInvalidConfig is matched by construction errors caused by missing or
	// out-of-range settings.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// SourceError reports a failed read from a fusion source. It is fatal to the
// whole session: the failing producer raises the stop signal and exits.
type SourceError struct {
	Index int
	Name  string
	Err   error
}

func (e *SourceError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("source %d (%s): %v", e.Index, e.Name, e.Err)
	}
	return fmt.Sprintf("source %d: %v", e.Index, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// TransformError reports a failed (or panicking) transform for one task.
type TransformError struct {
	Seq int64
	Err error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("task %d: %v", e.Seq, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// CountMismatchError is returned by Reassemble when the records do not
// account for every submitted task exactly once.
type CountMismatchError struct {
	Submitted int
	Received  int
	// Seq is the first sequence number found missing or duplicated, or -1
	// when only the counts differ.
	Seq int64
}

func (e *CountMismatchError) Error() string {
	if e.Seq >= 0 {
		return fmt.Sprintf("%v: submitted %d, received %d, sequence %d lost or duplicated",
			ErrCountMismatch, e.Submitted, e.Received, e.Seq)
	}
	return fmt.Sprintf("%v: submitted %d, received %d", ErrCountMismatch, e.Submitted, e.Received)
}

func (e *CountMismatchError) Unwrap() error { return ErrCountMismatch }
