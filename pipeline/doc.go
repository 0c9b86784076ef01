// Package pipeline provides two concurrent data-pipeline building blocks:
// a freshest-value fusion loop and an order-preserving worker pool.
//
// # Fusion
//
// Fusion merges live readings from several independent sources into one
// output unit per tick. Every source gets its own producer goroutine and a
// capacity-1 Slot: a new reading overwrites an unread one, so producers never
// block and the consumer always sees the newest value. Source 0 is the
// primary; nothing is emitted until it has produced once.
//
//	sources := []pipeline.NamedSource[sensor.Reading]{
//	    {Name: "camera", Source: cam},
//	    {Name: "fast", Source: sensor.NewCounter("fast", 10*time.Millisecond)},
//	}
//	f, err := pipeline.NewFusion(sources, compose, sink, pipeline.WithDisplayRate(30))
//	if err != nil {
//	    return err
//	}
//	err = f.Run(ctx) // returns a *SourceError if any source failed
//
// A failing source stops the whole session (fail-fast). Shutdown waits for
// every producer to return before closing sources and the sink.
//
// # Worker pool
//
// WorkerPool distributes an ordered stream of payloads across N workers
// through a bounded TaskQueue (capacity 3 × N by default; a full queue
// blocks the producer) and reassembles the results in submission order:
//
//	pool := pipeline.NewWorkerPool[string, string](pipeline.WithWorkerCount(4))
//	results, err := pool.Process(ctx, []string{"a", "b", "c"},
//	    func(ctx context.Context, s string) (string, error) {
//	        return strings.ToUpper(s), nil
//	    })
//	// results: ["A", "B", "C"] whatever order the workers finished in
//
// # Configuration Options
//
//   - WithWorkerCount(n): number of workers (default 4)
//   - WithQueueMultiplier(m): queue capacity m × workers (default 3)
//   - WithPollInterval(d): idle worker poll timeout (default 100ms)
//   - WithRetryPolicy(maxAttempts, initialDelay) and WithBackoff: retry failed transforms
//   - WithRateLimit(tasksPerSecond, burst): throttle transforms
//   - WithFailFast(): abort the run on the first failed transform
//   - WithWorkerAffinity(): pin workers to CPU cores (Linux)
//
// # Error Handling
//
// By default a failed or panicking transform is recorded as a
// *TransformError against its sequence number; the other tasks complete and
// the errors are joined into the returned error. Reassemble refuses to
// produce output when a task was lost or duplicated (*CountMismatchError).
package pipeline
