package sensor

import (
	"context"
	"time"
)

// Counter is a synthetic sensor: every read waits delay and returns the
// next integer, starting at 1.
type Counter struct {
	name  string
	delay time.Duration
	n     uint64
}

// NewCounter returns a counter that ticks every delay.
func NewCounter(name string, delay time.Duration) *Counter {
	return &Counter{name: name, delay: delay}
}

// Name returns the sensor name.
func (c *Counter) Name() string { return c.name }

// Get waits for the next tick. It is not safe for concurrent use; a
// fusion session reads each source from a single producer.
func (c *Counter) Get(ctx context.Context) (Reading, error) {
	if c.delay > 0 {
		t := time.NewTimer(c.delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return Reading{}, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return Reading{}, err
	}

	c.n++
	return Reading{Sensor: c.name, Seq: c.n, At: time.Now(), Value: float64(c.n)}, nil
}
