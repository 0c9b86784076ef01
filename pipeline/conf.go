package pipeline

import (
	"time"

	"github.com/utkarsh5026/fusepipe/internal/backoff"
	"github.com/utkarsh5026/fusepipe/logging"
	"github.com/utkarsh5026/fusepipe/metrics"
	"golang.org/x/time/rate"
)

const (
	// DefaultWorkerCount is the pool size when WithWorkerCount is not given.
	DefaultWorkerCount = 4
	// DefaultQueueMultiplier sizes the task queue at 3× the worker count,
	// enough to absorb short bursts without unbounded memory growth.
	DefaultQueueMultiplier = 3
	// DefaultPollInterval is how long a worker waits on an empty queue
	// before re-checking the stop signal.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultDisplayRate is the fusion tick rate in frames per second.
	DefaultDisplayRate = 30
)

// BackoffType selects the delay algorithm used between transform retries.
type BackoffType = backoff.Kind

const (
	// BackoffExponential doubles the delay after every failed attempt.
	BackoffExponential = backoff.Exponential
	// BackoffJittered is exponential backoff randomised by the jitter factor.
	BackoffJittered = backoff.Jittered
	// BackoffDecorrelated picks each delay at random between the initial
	// delay and three times the previous one.
	BackoffDecorrelated = backoff.Decorrelated
)

// WorkerPoolOption is a functional option for configuring a WorkerPool.
type WorkerPoolOption func(*workerPoolConfig)

type workerPoolConfig struct {
	workerCount     int
	queueMultiplier int
	pollInterval    time.Duration

	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	backoffType  BackoffType
	jitter       float64

	rateLimiter *rate.Limiter
	failFast    bool
	pinWorkers  bool

	onTaskEnd func(seq int64, err error)
	logger    logging.Logger
	metrics   metrics.Collector
}

func defaultPoolConfig() *workerPoolConfig {
	return &workerPoolConfig{
		workerCount:     DefaultWorkerCount,
		queueMultiplier: DefaultQueueMultiplier,
		pollInterval:    DefaultPollInterval,
		maxAttempts:     1,
		maxDelay:        5 * time.Second,
		backoffType:     BackoffExponential,
		jitter:          0.1,
		logger:          logging.NewNop(),
		metrics:         metrics.NewNop(),
	}
}

// WithWorkerCount sets the number of concurrent workers (default 4).
func WithWorkerCount(count int) WorkerPoolOption {
	return func(cfg *workerPoolConfig) {
		if count > 0 {
			cfg.workerCount = count
		}
	}
}

// WithQueueMultiplier sizes the task queue at multiplier × worker count
// (default 3). A full queue blocks the producer.
func WithQueueMultiplier(multiplier int) WorkerPoolOption {
	return func(cfg *workerPoolConfig) {
		if multiplier > 0 {
			cfg.queueMultiplier = multiplier
		}
	}
}

// WithPollInterval sets how long an idle worker waits on the queue before
// re-checking the stop signal (default 100ms).
func WithPollInterval(d time.Duration) WorkerPoolOption {
	return func(cfg *workerPoolConfig) {
		if d > 0 {
			cfg.pollInterval = d
		}
	}
}

// WithRetryPolicy retries a failing transform up to maxAttempts times in
// total. initialDelay is the wait before the first retry; later retries
// follow the configured backoff (exponential unless WithBackoff says
// otherwise). Without it every task runs exactly once.
func WithRetryPolicy(maxAttempts int, initialDelay time.Duration) WorkerPoolOption {
	return func(cfg *workerPoolConfig) {
		if maxAttempts > 0 {
			cfg.maxAttempts = maxAttempts
		}
		if initialDelay > 0 {
			cfg.initialDelay = initialDelay
		}
	}
}

// WithBackoff selects the retry delay algorithm and its ceiling. jitter is
// only used by BackoffJittered (0.1 = ±10%).
func WithBackoff(kind BackoffType, maxDelay time.Duration, jitter float64) WorkerPoolOption {
	return func(cfg *workerPoolConfig) {
		cfg.backoffType = kind
		if maxDelay > 0 {
			cfg.maxDelay = maxDelay
		}
		if jitter >= 0 {
			cfg.jitter = jitter
		}
	}
}

// WithRateLimit caps how many transforms start per second across the pool.
//
// Example:
//
//	WithRateLimit(10, 5) // 10 tasks/sec with bursts of 5
func WithRateLimit(tasksPerSecond float64, burst int) WorkerPoolOption {
	return func(cfg *workerPoolConfig) {
		if tasksPerSecond > 0 && burst > 0 {
			cfg.rateLimiter = rate.NewLimiter(rate.Limit(tasksPerSecond), burst)
		}
	}
}

// WithFailFast makes the first transform error abort the whole run. By
// default a failure is recorded against its sequence number and the other
// tasks still complete.
func WithFailFast() WorkerPoolOption {
	return func(cfg *workerPoolConfig) {
		cfg.failFast = true
	}
}

// WithWorkerAffinity pins each worker goroutine to its own OS thread and,
// on Linux, to core workerID modulo the CPU count.
func WithWorkerAffinity() WorkerPoolOption {
	return func(cfg *workerPoolConfig) {
		cfg.pinWorkers = true
	}
}

// WithOnTaskEnd registers a hook called by the worker after every task,
// with the task's sequence number and the transform error if any.
func WithOnTaskEnd(fn func(seq int64, err error)) WorkerPoolOption {
	return func(cfg *workerPoolConfig) {
		cfg.onTaskEnd = fn
	}
}

// WithPoolLogger sets the logger used by the pool.
func WithPoolLogger(l logging.Logger) WorkerPoolOption {
	return func(cfg *workerPoolConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithPoolMetrics sets the metrics collector used by the pool.
func WithPoolMetrics(m metrics.Collector) WorkerPoolOption {
	return func(cfg *workerPoolConfig) {
		if m != nil {
			cfg.metrics = m
		}
	}
}

// FusionOption is a functional option for configuring a Fusion loop.
type FusionOption func(*fusionConfig)

type fusionConfig struct {
	displayRate float64
	logger      logging.Logger
	metrics     metrics.Collector
}

func defaultFusionConfig() *fusionConfig {
	return &fusionConfig{
		displayRate: DefaultDisplayRate,
		logger:      logging.NewNop(),
		metrics:     metrics.NewNop(),
	}
}

// WithDisplayRate sets the target tick rate in frames per second. A rate of
// zero or less ticks as fast as possible, yielding the processor between
// ticks.
func WithDisplayRate(fps float64) FusionOption {
	return func(cfg *fusionConfig) {
		cfg.displayRate = fps
	}
}

// WithFusionLogger sets the logger used by producers and the fusion loop.
func WithFusionLogger(l logging.Logger) FusionOption {
	return func(cfg *fusionConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithFusionMetrics sets the metrics collector used by the fusion session.
func WithFusionMetrics(m metrics.Collector) FusionOption {
	return func(cfg *fusionConfig) {
		if m != nil {
			cfg.metrics = m
		}
	}
}
