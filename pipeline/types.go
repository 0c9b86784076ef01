package pipeline

import (
	"context"
	"io"
)

// Source is a data source polled by a producer goroutine. Get may block (a
// device read, a timed sensor) and should return promptly once ctx is done.
// Any error is treated as fatal for the session that owns the source.
type Source[T any] interface {
	Get(ctx context.Context) (T, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc[T any] func(ctx context.Context) (T, error)

// Get calls f(ctx).
func (f SourceFunc[T]) Get(ctx context.Context) (T, error) { return f(ctx) }

// ControlSignal is returned by a Sink to steer the pipeline that feeds it.
type ControlSignal int

const (
	// Continue keeps the pipeline running.
	Continue ControlSignal = iota
	// Quit asks the pipeline to stop (for example the user pressed 'q').
	Quit
)

func (c ControlSignal) String() string {
	switch c {
	case Continue:
		return "continue"
	case Quit:
		return "quit"
	default:
		return "unknown"
	}
}

// Sink consumes output units: one composed unit per fusion tick, or the
// whole ordered result slice once at the end of a batch run.
type Sink[U any] interface {
	Write(ctx context.Context, unit U) (ControlSignal, error)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc[U any] func(ctx context.Context, unit U) (ControlSignal, error)

// Write calls f(ctx, unit).
func (f SinkFunc[U]) Write(ctx context.Context, unit U) (ControlSignal, error) { return f(ctx, unit) }

// Latest is the last known value of one non-primary source as seen by the
// fusion loop. OK is false until the source has produced at least once.
type Latest[T any] struct {
	Index int
	Name  string
	Value T
	OK    bool
}

// Composer builds one output unit from the primary value and the last known
// values of the remaining sources, ordered by source index.
type Composer[T, U any] func(primary T, others []Latest[T]) U

// NamedSource attaches a display name to a Source. Names show up in logs,
// metrics labels and SourceError messages.
type NamedSource[T any] struct {
	Name   string
	Source Source[T]
}

// Task is one unit of work submitted to a WorkerPool. Seq starts at 0 and
// increases by one per submission.
type Task[T any] struct {
	Seq     int64
	Payload T
}

// ResultRecord is what a worker appends after running the transform on a
// Task. Err is a *TransformError when the transform failed.
type ResultRecord[R any] struct {
	Seq   int64
	Value R
	Err   error
}

// ProcessFunc transforms a task payload into a result.
//
// Type parameters:
//   - T: The payload type read by the producer
//   - R: The result type handed to the sink after reassembly
type ProcessFunc[T any, R any] func(ctx context.Context, payload T) (R, error)

// Reader yields payloads in submission order for a WorkerPool. It returns
// io.EOF once the input is exhausted.
type Reader[T any] interface {
	Next(ctx context.Context) (T, error)
}

// SliceReader reads payloads from a slice.
type SliceReader[T any] struct {
	items []T
	pos   int
}

// NewSliceReader returns a Reader over items.
func NewSliceReader[T any](items []T) *SliceReader[T] {
	return &SliceReader[T]{items: items}
}

// Next returns the next item or io.EOF.
func (r *SliceReader[T]) Next(context.Context) (T, error) {
	var zero T
	if r.pos >= len(r.items) {
		return zero, io.EOF
	}
	item := r.items[r.pos]
	r.pos++
	return item, nil
}
