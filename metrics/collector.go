// Package metrics defines the instrumentation hooks called by the pipeline
// package, with a no-op default and a Prometheus-backed implementation.
package metrics

import "time"

// Collector receives pipeline events. Implementations must be safe for
// concurrent use: producers, the fusion loop and every pool worker call in
// from their own goroutines.
type Collector interface {
	// SlotOverwrite records that an unread value in the named source's slot
	// was evicted by a newer one.
	SlotOverwrite(source string)

	// FusionTick records one pass of the fusion loop. emitted is false when
	// the tick was skipped because the primary source had not produced yet.
	FusionTick(emitted bool)

	// TaskCompleted records one worker-pool task and how long its transform ran.
	TaskCompleted(d time.Duration, err error)

	// QueueDepth reports the task queue length after a submission.
	QueueDepth(n int)
}

// NopMetrics discards every event.
type NopMetrics struct{}

var _ Collector = NopMetrics{}

// NewNop returns a collector that records nothing.
func NewNop() NopMetrics { return NopMetrics{} }

func (NopMetrics) SlotOverwrite(string)               {}
func (NopMetrics) FusionTick(bool)                    {}
func (NopMetrics) TaskCompleted(time.Duration, error) {}
func (NopMetrics) QueueDepth(int)                     {}
