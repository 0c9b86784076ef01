package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/utkarsh5026/fusepipe/internal/backoff"
	"github.com/utkarsh5026/fusepipe/internal/cpu"
	"golang.org/x/sync/errgroup"
)

// WorkerPool runs a transform over an ordered stream of payloads on N
// workers and returns the results in submission order.
//
// One producer numbers the payloads and feeds them into a bounded TaskQueue
// (blocking when full). Workers poll the queue with a timeout, run the
// transform and append (seq, result) records to a shared collection in
// whatever order they finish. Once the queue is closed and drained and every
// worker has exited, Reassemble sorts the records back into order.
//
// Type parameters:
//   - T: The payload type
//   - R: The result type
type WorkerPool[T any, R any] struct {
	cfg     *workerPoolConfig
	backoff backoff.Strategy
}

// NewWorkerPool creates a pool with the given options.
// Defaults: 4 workers, queue capacity 3 × workers, 100ms poll interval,
// one attempt per task, per-task error reporting.
func NewWorkerPool[T any, R any](opts ...WorkerPoolOption) *WorkerPool[T, R] {
	cfg := defaultPoolConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return &WorkerPool[T, R]{
		cfg:     cfg,
		backoff: backoff.New(cfg.backoffType, cfg.initialDelay, cfg.maxDelay, cfg.jitter),
	}
}

// WorkerCount returns the number of workers started per run.
func (wp *WorkerPool[T, R]) WorkerCount() int { return wp.cfg.workerCount }

// QueueCapacity returns the task queue bound.
func (wp *WorkerPool[T, R]) QueueCapacity() int {
	return wp.cfg.queueMultiplier * wp.cfg.workerCount
}

// Process runs processFn over payloads and returns the results in the same
// order as the input.
//
// When a transform fails, the other tasks still complete: the results are
// returned with the failure joined into err as a *TransformError carrying
// the task's sequence number (its index). With WithFailFast the first
// failure cancels the run and is returned alone with nil results.
func (wp *WorkerPool[T, R]) Process(
	ctx context.Context,
	payloads []T,
	processFn ProcessFunc[T, R],
) ([]R, error) {
	return wp.ProcessReader(ctx, NewSliceReader(payloads), processFn)
}

// ProcessReader is Process for a stream read until io.EOF. Sequence numbers
// follow read order starting at 0.
func (wp *WorkerPool[T, R]) ProcessReader(
	ctx context.Context,
	r Reader[T],
	processFn ProcessFunc[T, R],
) ([]R, error) {
	records, submitted, err := wp.execute(ctx, r, processFn)
	if err != nil {
		return nil, err
	}
	return Reassemble(records, submitted)
}

// Run processes r and writes the ordered results to sink in one call. The
// sink only sees a complete batch: it is not called when the run aborted,
// reassembly detected a lost task or any transform failed. In the last case
// the joined *TransformError values name the failed sequence numbers.
func (wp *WorkerPool[T, R]) Run(
	ctx context.Context,
	r Reader[T],
	processFn ProcessFunc[T, R],
	sink Sink[[]R],
) error {
	results, err := wp.ProcessReader(ctx, r, processFn)
	if err != nil {
		return err
	}

	if _, err := sink.Write(ctx, results); err != nil {
		return fmt.Errorf("batch sink: %w", err)
	}
	return nil
}

// execute runs one producer and the workers until the input is exhausted
// and drained. It returns the records in completion order and the number of
// submitted tasks.
func (wp *WorkerPool[T, R]) execute(
	ctx context.Context,
	r Reader[T],
	processFn ProcessFunc[T, R],
) ([]ResultRecord[R], int, error) {
	runID := uuid.NewString()
	log := wp.cfg.logger
	started := time.Now()

	// stop only tells idle workers that submission is over; cancel aborts.
	stop := NewStopSignal()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	q := NewTaskQueue[T](wp.QueueCapacity())
	results := newResultSet[R](q.Cap())

	log.Debug("pool run starting", "run", runID, "workers", wp.cfg.workerCount, "queue", q.Cap())

	g, gctx := errgroup.WithContext(runCtx)
	for id := range wp.cfg.workerCount {
		g.Go(func() error {
			return wp.worker(gctx, id, q, stop, results, processFn)
		})
	}

	submitted, prodErr := wp.produce(gctx, r, q)
	q.Close()
	if prodErr == nil {
		prodErr = q.Join(gctx)
	}
	if prodErr != nil {
		cancel()
	}
	// Every submitted task is accounted for: workers may now leave.
	stop.Stop()

	werr := g.Wait()

	if err := firstCause(werr, prodErr); err != nil {
		log.Warn("pool run aborted", "run", runID, "error", err)
		return nil, submitted, err
	}

	log.Info("pool run finished", "run", runID, "tasks", submitted, "elapsed", time.Since(started))
	return results.Records(), submitted, nil
}

// firstCause picks the error that aborted a run. Whichever side failed first
// cancels the other, which then only reports context.Canceled.
func firstCause(workerErr, producerErr error) error {
	if workerErr != nil && (producerErr == nil || !errors.Is(workerErr, context.Canceled)) {
		return workerErr
	}
	return producerErr
}

// produce reads payloads in order and submits them with increasing
// sequence numbers, blocking while the queue is full.
func (wp *WorkerPool[T, R]) produce(ctx context.Context, r Reader[T], q *TaskQueue[T]) (int, error) {
	var seq int64
	for {
		payload, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			return int(seq), nil
		}
		if err != nil {
			return int(seq), fmt.Errorf("read task %d: %w", seq, err)
		}

		if err := q.Put(ctx, Task[T]{Seq: seq, Payload: payload}); err != nil {
			return int(seq), err
		}
		seq++
		wp.cfg.metrics.QueueDepth(q.Len())
	}
}

// worker drains q until it is closed and empty, or until stop is raised
// and the queue is observed empty.
func (wp *WorkerPool[T, R]) worker(
	ctx context.Context,
	id int,
	q *TaskQueue[T],
	stop *StopSignal,
	results *resultSet[R],
	processFn ProcessFunc[T, R],
) error {
	if wp.cfg.pinWorkers {
		release, core := cpu.PinWorker(id)
		defer release()
		debugLog("worker %d pinned to core %d", id, core)
	}

	for {
		task, err := q.Get(ctx, wp.cfg.pollInterval)
		switch {
		case err == nil:
		case errors.Is(err, ErrQueueTimeout):
			if stop.Stopped() && q.Len() == 0 {
				return nil
			}
			continue
		case errors.Is(err, ErrQueueClosed):
			return nil
		default:
			return err
		}

		rec := wp.runTask(ctx, task, processFn)
		results.Append(rec)
		q.Done()

		if rec.Err != nil {
			wp.cfg.logger.Warn("task failed", "seq", rec.Seq, "worker", id, "error", rec.Err)
			if wp.cfg.failFast {
				return rec.Err
			}
		}
	}
}

func (wp *WorkerPool[T, R]) runTask(ctx context.Context, task Task[T], processFn ProcessFunc[T, R]) ResultRecord[R] {
	rec := ResultRecord[R]{Seq: task.Seq}
	start := time.Now()

	var err error
	if wp.cfg.rateLimiter != nil {
		err = wp.cfg.rateLimiter.Wait(ctx)
	}
	if err == nil {
		rec.Value, err = wp.processWithRecovery(ctx, task.Payload, processFn)
	}
	if err != nil {
		rec.Err = &TransformError{Seq: task.Seq, Err: err}
	}

	wp.cfg.metrics.TaskCompleted(time.Since(start), rec.Err)
	if wp.cfg.onTaskEnd != nil {
		wp.cfg.onTaskEnd(task.Seq, rec.Err)
	}
	return rec
}

// processWithRecovery executes a task with panic recovery and retry logic.
// A panic is converted to an error so the worker survives it.
func (wp *WorkerPool[T, R]) processWithRecovery(
	ctx context.Context,
	payload T,
	processFn ProcessFunc[T, R],
) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err = fmt.Errorf("worker panic: %v\nstack trace:\n%s", r, buf[:n])
		}
	}()

	attempts := max(wp.cfg.maxAttempts, 1)
	for attempt := range attempts {
		if attempt > 0 {
			if d := wp.backoff.Delay(attempt - 1); d > 0 {
				t := time.NewTimer(d)
				select {
				case <-t.C:
				case <-ctx.Done():
					t.Stop()
					return result, ctx.Err()
				}
			}
		}

		result, err = processFn(ctx, payload)
		if err == nil {
			return result, nil
		}
	}

	return result, err
}
