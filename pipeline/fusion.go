package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"slices"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ErrAlreadyRun is returned when Run is called a second time on a Fusion.
var ErrAlreadyRun = errors.New("fusion: session already run")

// FusionStats is a snapshot of a fusion session's counters.
type FusionStats struct {
	Ticks      uint64   // loop iterations
	Emitted    uint64   // units handed to the sink
	Skipped    uint64   // ticks without a primary value yet
	Overwrites []uint64 // evicted unread values, per source index
}

// Fusion merges the freshest reading of several sources into one output
// unit per tick. Source 0 is the primary: nothing is emitted until it has
// produced at least once. The other sources annotate the primary with their
// last known value, which persists across ticks until a fresher one arrives.
// No attempt is made to correlate timestamps across sources.
type Fusion[T, U any] struct {
	sources   []NamedSource[T]
	slots     []*Slot[T]
	producers []*Producer[T]
	compose   Composer[T, U]
	sink      Sink[U]
	cfg       *fusionConfig

	ran     atomic.Bool
	ticks   atomic.Uint64
	emitted atomic.Uint64
	skipped atomic.Uint64
}

// NewFusion builds a session over sources. The composer must not retain or
// mutate the slice it receives.
func NewFusion[T, U any](
	sources []NamedSource[T],
	compose Composer[T, U],
	sink Sink[U],
	opts ...FusionOption,
) (*Fusion[T, U], error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	if compose == nil || sink == nil {
		return nil, fmt.Errorf("%w: fusion composer and sink are required", ErrInvalidConfig)
	}

	cfg := defaultFusionConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	f := &Fusion[T, U]{
		sources:   sources,
		slots:     make([]*Slot[T], len(sources)),
		producers: make([]*Producer[T], len(sources)),
		compose:   compose,
		sink:      sink,
		cfg:       cfg,
	}

	for i, src := range sources {
		f.slots[i] = NewSlot[T]()
		p := NewProducer(i, src.Name, src.Source, f.slots[i])
		p.logger = cfg.logger
		p.metrics = cfg.metrics
		f.producers[i] = p
	}

	return f, nil
}

// Slot returns the overwrite slot fed by source i.
func (f *Fusion[T, U]) Slot(i int) *Slot[T] {
	return f.slots[i]
}

// Run starts one producer goroutine per source, runs the fusion loop on the
// calling goroutine and shuts everything down when the loop exits.
//
// Shutdown raises the stop signal, waits for every producer to return and
// only then closes the sources and the sink that implement io.Closer, so no
// goroutine can touch a released device.
//
// Returns the first *SourceError if a source failed, the sink's error if it
// failed, ctx.Err() if ctx was cancelled, and nil after a user quit.
func (f *Fusion[T, U]) Run(ctx context.Context) error {
	if !f.ran.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}

	stop := NewStopSignal()
	runCtx, cancel := stop.Context(ctx)
	defer cancel()

	log := f.cfg.logger
	session := uuid.NewString()
	log.Info("fusion session starting",
		"session", session, "sources", len(f.sources), "display_rate", f.cfg.displayRate)

	var g errgroup.Group
	for _, p := range f.producers {
		g.Go(func() error {
			return p.Run(runCtx, stop)
		})
	}

	loopErr := f.RunLoop(runCtx, stop)
	stop.Stop()

	srcErr := g.Wait()
	releaseErr := f.release()

	stats := f.Stats()
	log.Info("fusion session stopped", "session", session,
		"ticks", stats.Ticks, "emitted", stats.Emitted, "skipped", stats.Skipped)

	switch {
	case srcErr != nil:
		return srcErr
	case loopErr != nil:
		return loopErr
	case ctx.Err() != nil:
		return ctx.Err()
	}
	return releaseErr
}

// RunLoop is the consumer side of the session: it ticks until stop is
// raised or ctx is done. Each tick drains every slot without blocking,
// updates the last known values and, once the primary has produced, composes
// a unit and writes it to the sink. A Quit from the sink or a sink error
// raises stop.
func (f *Fusion[T, U]) RunLoop(ctx context.Context, stop *StopSignal) error {
	var limiter *rate.Limiter
	if f.cfg.displayRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(f.cfg.displayRate), 1)
	}

	last := make([]Latest[T], len(f.slots))
	for i := range last {
		last[i].Index = i
		last[i].Name = f.sources[i].Name
	}

	for !stop.Stopped() && ctx.Err() == nil {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				// Either cancelled, or the next tick falls past the deadline.
				select {
				case <-ctx.Done():
				case <-stop.Done():
				}
				return nil
			}
		} else {
			runtime.Gosched()
		}

		if err := f.tick(ctx, stop, last); err != nil {
			return err
		}
	}

	return nil
}

func (f *Fusion[T, U]) tick(ctx context.Context, stop *StopSignal, last []Latest[T]) error {
	f.ticks.Add(1)

	for i, s := range f.slots {
		if v, ok := s.TryGet(); ok {
			last[i].Value = v
			last[i].OK = true
		}
	}

	if !last[0].OK {
		f.skipped.Add(1)
		f.cfg.metrics.FusionTick(false)
		return nil
	}

	unit := f.compose(last[0].Value, slices.Clone(last[1:]))
	f.emitted.Add(1)
	f.cfg.metrics.FusionTick(true)

	sig, err := f.sink.Write(ctx, unit)
	if err != nil {
		f.cfg.logger.Error("sink write failed, stopping session", "error", err)
		stop.Stop()
		return fmt.Errorf("fusion sink: %w", err)
	}

	if sig == Quit {
		f.cfg.logger.Info("quit requested by sink")
		stop.Stop()
	}
	return nil
}

// Stats returns a snapshot of the session counters.
func (f *Fusion[T, U]) Stats() FusionStats {
	overwrites := make([]uint64, len(f.slots))
	for i, s := range f.slots {
		overwrites[i] = s.Overwrites()
	}

	return FusionStats{
		Ticks:      f.ticks.Load(),
		Emitted:    f.emitted.Load(),
		Skipped:    f.skipped.Load(),
		Overwrites: overwrites,
	}
}

// release closes every source and the sink that own a resource. It must
// only run after all producers have returned.
func (f *Fusion[T, U]) release() error {
	var errs []error
	for _, src := range f.sources {
		if c, ok := src.Source.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close source %s: %w", src.Name, err))
			}
		}
	}
	if c, ok := f.sink.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sink: %w", err))
		}
	}
	return errors.Join(errs...)
}
