package pipeline

import (
	"context"
	"fmt"

	"github.com/utkarsh5026/fusepipe/logging"
	"github.com/utkarsh5026/fusepipe/metrics"
)

// Producer pulls from one Source and overwrites its Slot until the stop
// signal is raised. It is the only writer of its slot.
type Producer[T any] struct {
	Index  int
	Name   string
	Source Source[T]
	Slot   *Slot[T]

	logger  logging.Logger
	metrics metrics.Collector
}

// NewProducer wires src to slot. index identifies the source in errors.
func NewProducer[T any](index int, name string, src Source[T], slot *Slot[T]) *Producer[T] {
	return &Producer[T]{
		Index:   index,
		Name:    name,
		Source:  src,
		Slot:    slot,
		logger:  logging.NewNop(),
		metrics: metrics.NewNop(),
	}
}

// Run loops until stop is raised or ctx is done. A failed read is fatal:
// the error is logged, stop is raised for every other goroutine in the
// session and a *SourceError is returned. A read that fails only because
// the session is already stopping is not reported.
func (p *Producer[T]) Run(ctx context.Context, stop *StopSignal) error {
	for !stop.Stopped() {
		v, err := p.Source.Get(ctx)
		if err != nil {
			if stop.Stopped() || ctx.Err() != nil {
				return nil
			}

			serr := &SourceError{Index: p.Index, Name: p.Name, Err: err}
			p.logger.Error("source read failed, stopping session", "source", p.label(), "error", err)
			stop.Stop()
			return serr
		}

		if _, evicted := p.Slot.Put(v); evicted {
			p.metrics.SlotOverwrite(p.label())
		}
	}

	debugLog("producer %s exiting", p.label())
	return nil
}

func (p *Producer[T]) label() string {
	if p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("source-%d", p.Index)
}
