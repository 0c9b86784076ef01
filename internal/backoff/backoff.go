// Package backoff computes the delay between retries of a failed transform.
package backoff

import (
	"math/bits"
	"math/rand"
	"sync"
	"time"
)


// Kind selects the retry delay algorithm.
type Kind int

const (
	// Exponential doubles the delay on each retry (default).
	Exponential Kind = iota
	// Jittered randomises the exponential delay by ±jitter.
	Jittered
	// Decorrelated picks a delay between the base and three times the previous delay.
	Decorrelated
)

// Strategy yields the delay before retry number attempt (0 = first retry).
// Implementations are safe for concurrent use by all workers of a pool.
type Strategy interface {
	Delay(attempt int) time.Duration
}

// New builds the strategy for kind. A non-positive base yields a strategy
// that never waits.
func New(kind Kind, base, ceiling time.Duration, jitter float64) Strategy {
	if ceiling < base {
		ceiling = base
	}

	switch kind {
	case Jittered:
		return &jittered{base: base, ceiling: ceiling, jitter: clamp(jitter, 0, 1), rng: newRand()}
	case Decorrelated:
		return &decorrelated{base: base, ceiling: ceiling, rng: newRand()}
	default:
		return exponential{base: base, ceiling: ceiling}
	}
}

type exponential struct {
	base, ceiling time.Duration
}

func (e exponential) Delay(attempt int) time.Duration {
	return expDelay(attempt, e.base, e.ceiling)
}

// jittered spreads retries of tasks that failed together so they do not
// hit the same collaborator in lockstep.
type jittered struct {
	base, ceiling time.Duration
	jitter        float64

	mu  sync.Mutex
	rng *rand.Rand
}

func (j *jittered) Delay(attempt int) time.Duration {
	d := expDelay(attempt, j.base, j.ceiling)

	j.mu.Lock()
	factor := 1 + (j.rng.Float64()*2-1)*j.jitter
	j.mu.Unlock()

	return clamp(time.Duration(float64(d)*factor), 0, j.ceiling)
}

// decorrelated keeps the previous delay; the state is shared across tasks,
// which is what decorrelates workers retrying at the same moment.
type decorrelated struct {
	base, ceiling time.Duration

	mu   sync.Mutex
	prev time.Duration
	rng  *rand.Rand
}

func (d *decorrelated) Delay(attempt int) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	if attempt <= 0 || d.prev == 0 {
		d.prev = d.base
		return d.base
	}

	upper := min(3*d.prev, d.ceiling)
	span := upper - d.base
	if span <= 0 {
		d.prev = d.base
		return d.base
	}

	d.prev = d.base + time.Duration(d.rng.Int63n(int64(span)))
	return d.prev
}

func expDelay(attempt int, base, ceiling time.Duration) time.Duration {
	if attempt < 0 || base <= 0 {
		return 0
	}
	// base<<attempt must stay below 2^63.
	if attempt >= 63-bits.Len64(uint64(base)) {
		return ceiling
	}

	d := base << uint(attempt)
	if d > ceiling {
		return ceiling
	}
	return d
}

func newRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano())) // #nosec G404 -- jitter does not need crypto rand
}

func clamp[T int | float64 | time.Duration](v, lo, hi T) T {
	return max(lo, min(v, hi))
}
