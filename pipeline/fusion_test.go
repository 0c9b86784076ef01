package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// tickingSource yields start+1, start+2, ... every interval.
func tickingSource(interval time.Duration, start int) SourceFunc[int] {
	n := start
	return func(ctx context.Context) (int, error) {
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
		n++
		return n, nil
	}
}

// closingSource records whether Get was called after Close.
type closingSource struct {
	Source[int]
	closed      atomic.Bool
	getAfterEnd atomic.Bool
}

func (c *closingSource) Get(ctx context.Context) (int, error) {
	if c.closed.Load() {
		c.getAfterEnd.Store(true)
	}
	return c.Source.Get(ctx)
}

func (c *closingSource) Close() error {
	c.closed.Store(true)
	return nil
}

type fused struct {
	Primary int
	Others  []Latest[int]
}

func composeUnit(primary int, others []Latest[int]) fused {
	return fused{Primary: primary, Others: others}
}

// recordingSink keeps every unit and quits after limit writes.
type recordingSink struct {
	mu     sync.Mutex
	units  []fused
	limit  int
	closed atomic.Bool
}

func (s *recordingSink) Write(_ context.Context, u fused) (ControlSignal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units = append(s.units, u)
	if s.limit > 0 && len(s.units) >= s.limit {
		return Quit, nil
	}
	return Continue, nil
}

func (s *recordingSink) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *recordingSink) snapshot() []fused {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]fused(nil), s.units...)
}

func idleSource() SourceFunc[int] {
	return func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}
}

func TestNewFusion_Validation(t *testing.T) {
	sink := &recordingSink{}

	if _, err := NewFusion[int, fused](nil, composeUnit, sink); !errors.Is(err, ErrNoSources) {
		t.Errorf("expected ErrNoSources, got %v", err)
	}

	sources := []NamedSource[int]{{Name: "a", Source: idleSource()}}
	if _, err := NewFusion[int, fused](sources, nil, sink); err == nil {
		t.Error("expected error for nil composer")
	}
	if _, err := NewFusion[int, fused](sources, composeUnit, nil); err == nil {
		t.Error("expected error for nil sink")
	}
}

func TestFusion_RunLoop_NothingEmittedBeforePrimary(t *testing.T) {
	sink := &recordingSink{limit: 1}
	sources := []NamedSource[int]{
		{Name: "camera", Source: idleSource()},
		{Name: "speed", Source: idleSource()},
		{Name: "count", Source: idleSource()},
	}

	f, err := NewFusion(sources, composeUnit, sink, WithDisplayRate(500))
	if err != nil {
		t.Fatal(err)
	}

	// Secondary sources report first.
	f.Slot(1).Put(7)
	f.Slot(2).Put(9)

	stop := NewStopSignal()
	done := make(chan error, 1)
	go func() { done <- f.RunLoop(context.Background(), stop) }()

	time.Sleep(40 * time.Millisecond)
	if n := len(sink.snapshot()); n != 0 {
		t.Fatalf("emitted %d units before the primary produced", n)
	}
	if f.Stats().Skipped == 0 {
		t.Error("expected skipped ticks while waiting for the primary")
	}

	f.Slot(0).Put(100)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("loop did not quit after the sink asked to")
	}

	want := []fused{{
		Primary: 100,
		Others: []Latest[int]{
			{Index: 1, Name: "speed", Value: 7, OK: true},
			{Index: 2, Name: "count", Value: 9, OK: true},
		},
	}}
	if diff := cmp.Diff(want, sink.snapshot()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if !stop.Stopped() {
		t.Error("Quit must raise the stop signal")
	}
}

func TestFusion_RunLoop_LastKnownValuesPersist(t *testing.T) {
	sink := &recordingSink{limit: 3}
	sources := []NamedSource[int]{
		{Name: "camera", Source: idleSource()},
		{Name: "speed", Source: idleSource()},
		{Name: "count", Source: idleSource()},
	}

	f, err := NewFusion(sources, composeUnit, sink, WithDisplayRate(0))
	if err != nil {
		t.Fatal(err)
	}

	f.Slot(0).Put(1)
	f.Slot(1).Put(42)

	if err := f.RunLoop(context.Background(), NewStopSignal()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	units := sink.snapshot()
	if len(units) != 3 {
		t.Fatalf("expected 3 units, got %d", len(units))
	}
	for i, u := range units {
		if u.Primary != 1 {
			t.Errorf("unit %d: primary should persist, got %d", i, u.Primary)
		}
		if !u.Others[0].OK || u.Others[0].Value != 42 {
			t.Errorf("unit %d: speed should persist, got %+v", i, u.Others[0])
		}
		if u.Others[1].OK {
			t.Errorf("unit %d: count never produced, got %+v", i, u.Others[1])
		}
	}
}

func TestFusion_RunLoop_ComposerGetsCopy(t *testing.T) {
	var seen [][]Latest[int]
	compose := func(primary int, others []Latest[int]) int {
		others[0].Value = -1 // must not leak into the next tick
		seen = append(seen, others)
		return primary
	}

	writes := 0
	sink := SinkFunc[int](func(context.Context, int) (ControlSignal, error) {
		writes++
		if writes == 2 {
			return Quit, nil
		}
		return Continue, nil
	})

	f, err := NewFusion([]NamedSource[int]{
		{Source: idleSource()},
		{Source: idleSource()},
	}, compose, sink, WithDisplayRate(0))
	if err != nil {
		t.Fatal(err)
	}

	f.Slot(0).Put(1)
	f.Slot(1).Put(5)
	if err := f.RunLoop(context.Background(), NewStopSignal()); err != nil {
		t.Fatal(err)
	}

	if len(seen) != 2 {
		t.Fatalf("expected 2 composes, got %d", len(seen))
	}
	if &seen[0][0] == &seen[1][0] {
		t.Error("composer must receive a fresh slice every tick")
	}
}

func TestFusion_RunLoop_SinkError(t *testing.T) {
	sinkErr := errors.New("window closed")
	sink := SinkFunc[fused](func(context.Context, fused) (ControlSignal, error) {
		return Continue, sinkErr
	})

	f, err := NewFusion([]NamedSource[int]{{Source: idleSource()}}, composeUnit, sink, WithDisplayRate(0))
	if err != nil {
		t.Fatal(err)
	}
	f.Slot(0).Put(1)

	stop := NewStopSignal()
	err = f.RunLoop(context.Background(), stop)
	if !errors.Is(err, sinkErr) {
		t.Fatalf("expected sink error, got %v", err)
	}
	if !stop.Stopped() {
		t.Error("a sink error must raise the stop signal")
	}
}

func TestFusion_RunLoop_ExitsOnStop(t *testing.T) {
	f, err := NewFusion([]NamedSource[int]{{Source: idleSource()}}, composeUnit, &recordingSink{}, WithDisplayRate(0))
	if err != nil {
		t.Fatal(err)
	}

	stop := NewStopSignal()
	time.AfterFunc(20*time.Millisecond, func() { stop.Stop() })

	done := make(chan error, 1)
	go func() { done <- f.RunLoop(context.Background(), stop) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("loop ignored the stop signal")
	}
}

func TestFusion_Run_AnyStartOrder(t *testing.T) {
	delays := [][]time.Duration{
		{40 * time.Millisecond, time.Millisecond, 5 * time.Millisecond},
		{time.Millisecond, 30 * time.Millisecond, 30 * time.Millisecond},
		{10 * time.Millisecond, 10 * time.Millisecond, time.Millisecond},
	}

	for i, d := range delays {
		t.Run(fmt.Sprintf("order_%d", i), func(t *testing.T) {
			sink := &recordingSink{limit: 5}
			sources := []NamedSource[int]{
				{Name: "frames", Source: tickingSource(d[0], 0)},
				{Name: "speed", Source: tickingSource(d[1], 1000)},
				{Name: "count", Source: tickingSource(d[2], 2000)},
			}

			f, err := NewFusion(sources, composeUnit, sink, WithDisplayRate(200))
			if err != nil {
				t.Fatal(err)
			}
			if err := f.Run(context.Background()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			units := sink.snapshot()
			if len(units) != 5 {
				t.Fatalf("expected 5 units, got %d", len(units))
			}
			for j, u := range units {
				if u.Primary <= 0 {
					t.Errorf("unit %d emitted without a primary value", j)
				}
				if j > 0 && u.Primary < units[j-1].Primary {
					t.Errorf("primary went backwards: %d after %d", u.Primary, units[j-1].Primary)
				}
			}
			if !sink.closed.Load() {
				t.Error("sink should be closed after the session")
			}
		})
	}
}

func TestFusion_Run_SourceErrorFailsFast(t *testing.T) {
	readErr := errors.New("serial timeout")
	calls := 0
	failing := SourceFunc[int](func(ctx context.Context) (int, error) {
		calls++
		if calls > 3 {
			return 0, readErr
		}
		time.Sleep(5 * time.Millisecond)
		return calls, nil
	})

	primary := &closingSource{Source: tickingSource(2*time.Millisecond, 0)}
	other := &closingSource{Source: failing}
	sink := &recordingSink{}

	f, err := NewFusion([]NamedSource[int]{
		{Name: "camera", Source: primary},
		{Name: "serial", Source: other},
	}, composeUnit, sink, WithDisplayRate(0))
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- f.Run(context.Background()) }()

	var runErr error
	select {
	case runErr = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop after a source failure")
	}

	var serr *SourceError
	if !errors.As(runErr, &serr) {
		t.Fatalf("expected *SourceError, got %v", runErr)
	}
	if serr.Index != 1 || serr.Name != "serial" || !errors.Is(runErr, readErr) {
		t.Errorf("unexpected source error: %v", serr)
	}

	if !primary.closed.Load() || !other.closed.Load() || !sink.closed.Load() {
		t.Error("every resource must be released on shutdown")
	}
	if primary.getAfterEnd.Load() || other.getAfterEnd.Load() {
		t.Error("a source was read after it was closed")
	}
}

func TestFusion_Run_ContextCancelled(t *testing.T) {
	f, err := NewFusion([]NamedSource[int]{
		{Name: "frames", Source: tickingSource(time.Millisecond, 0)},
	}, composeUnit, &recordingSink{}, WithDisplayRate(100))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := f.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestFusion_Run_OnlyOnce(t *testing.T) {
	f, err := NewFusion([]NamedSource[int]{
		{Source: tickingSource(time.Millisecond, 0)},
	}, composeUnit, &recordingSink{limit: 1})
	if err != nil {
		t.Fatal(err)
	}

	if err := f.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := f.Run(context.Background()); !errors.Is(err, ErrAlreadyRun) {
		t.Fatalf("expected ErrAlreadyRun, got %v", err)
	}
}

func TestFusion_Run_StatsAndMetrics(t *testing.T) {
	m := newCountingMetrics()
	sink := &recordingSink{limit: 4}

	f, err := NewFusion([]NamedSource[int]{
		{Name: "frames", Source: tickingSource(10*time.Millisecond, 0)},
		{Name: "fast", Source: tickingSource(100*time.Microsecond, 0)},
	}, composeUnit, sink, WithDisplayRate(100), WithFusionMetrics(m))
	if err != nil {
		t.Fatal(err)
	}

	if err := f.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats := f.Stats()
	if stats.Emitted != 4 {
		t.Errorf("expected 4 emitted units, got %d", stats.Emitted)
	}
	if stats.Ticks != stats.Emitted+stats.Skipped {
		t.Errorf("ticks %d != emitted %d + skipped %d", stats.Ticks, stats.Emitted, stats.Skipped)
	}
	if uint64(m.emitted.Load()) != stats.Emitted {
		t.Errorf("metrics saw %d emitted, stats %d", m.emitted.Load(), stats.Emitted)
	}

	// The fast source outpaces a 100 fps loop, so readings get dropped.
	if stats.Overwrites[1] == 0 {
		t.Error("expected overwrites on the fast source")
	}
	m.mu.Lock()
	fast := m.sourceNames["fast"]
	m.mu.Unlock()
	if uint64(fast) != stats.Overwrites[1] {
		t.Errorf("metrics saw %d overwrites, stats %d", fast, stats.Overwrites[1])
	}
}

func TestFusion_Run_TextComposer(t *testing.T) {
	compose := func(primary int, others []Latest[int]) string {
		parts := []string{fmt.Sprintf("frame %d", primary)}
		for _, o := range others {
			if o.OK {
				parts = append(parts, fmt.Sprintf("%s=%d", o.Name, o.Value))
			}
		}
		return strings.Join(parts, " ")
	}

	var lines []string
	sink := SinkFunc[string](func(_ context.Context, s string) (ControlSignal, error) {
		lines = append(lines, s)
		if len(lines) == 3 {
			return Quit, nil
		}
		return Continue, nil
	})

	f, err := NewFusion([]NamedSource[int]{
		{Name: "frames", Source: tickingSource(5*time.Millisecond, 0)},
		{Name: "speed", Source: tickingSource(time.Millisecond, 0)},
	}, compose, sink, WithDisplayRate(100))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	for _, l := range lines {
		if !strings.HasPrefix(l, "frame ") {
			t.Errorf("unexpected line %q", l)
		}
	}
}
