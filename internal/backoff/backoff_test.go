package backoff

import (
	"sync"
	"testing"
	"time"
)

func TestExponential_Delay(t *testing.T) {
	s := New(Exponential, 100*time.Millisecond, time.Second, 0)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, 0},
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{100, time.Second},
	}

	for _, tt := range tests {
		if got := s.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_LargeAttemptsHoldAtCeiling(t *testing.T) {
	ceiling := 1000 * time.Hour
	s := New(Exponential, time.Second, ceiling, 0)

	for _, attempt := range []int{30, 33, 34, 35, 40, 62, 63, 100} {
		if got := s.Delay(attempt); got != ceiling {
			t.Errorf("attempt %d: expected ceiling %v, got %v", attempt, ceiling, got)
		}
	}
}

func TestExponential_ZeroBaseNeverWaits(t *testing.T) {
	s := New(Exponential, 0, time.Second, 0)
	for attempt := range 5 {
		if got := s.Delay(attempt); got != 0 {
			t.Errorf("Delay(%d) = %v, want 0", attempt, got)
		}
	}
}

func TestJittered_StaysWithinBounds(t *testing.T) {
	s := New(Jittered, 100*time.Millisecond, 10*time.Second, 0.2)

	for range 200 {
		got := s.Delay(1)
		if got < 160*time.Millisecond || got > 240*time.Millisecond {
			t.Fatalf("Delay(1) = %v, want within ±20%% of 200ms", got)
		}
	}
}

func TestJittered_ClampsJitterFactor(t *testing.T) {
	s := New(Jittered, 100*time.Millisecond, time.Second, 5).(*jittered)
	if s.jitter != 1 {
		t.Errorf("expected jitter clamped to 1, got %v", s.jitter)
	}
}

func TestDecorrelated_Delay(t *testing.T) {
	tests := []struct {
		name    string
		base    time.Duration
		ceiling time.Duration
		attempt int
		wantMin time.Duration
		wantMax time.Duration
	}{
		{"first retry returns base", 100 * time.Millisecond, 10 * time.Second, 0, 100 * time.Millisecond, 100 * time.Millisecond},
		{"second retry within 3x", 100 * time.Millisecond, 10 * time.Second, 1, 100 * time.Millisecond, 300 * time.Millisecond},
		{"respects ceiling", time.Second, 2 * time.Second, 10, time.Second, 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Decorrelated, tt.base, tt.ceiling, 0)

			var got time.Duration
			for i := 0; i <= tt.attempt; i++ {
				got = s.Delay(i)
			}

			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("Delay() = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestDecorrelated_ConcurrentUse(t *testing.T) {
	s := New(Decorrelated, time.Millisecond, 50*time.Millisecond, 0)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for attempt := range 100 {
				if d := s.Delay(attempt); d < time.Millisecond || d > 50*time.Millisecond {
					t.Errorf("delay %v out of range", d)
					return
				}
			}
		}()
	}
	wg.Wait()
}
