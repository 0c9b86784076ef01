package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
)

// StopSignal is a cooperative cancellation flag shared by every goroutine of
// a pipeline. It moves from unset to set exactly once and never resets.
// Any goroutine may raise it; loops poll Stopped or select on Done.
type StopSignal struct {
	stopped atomic.Bool
	once    sync.Once
	done    chan struct{}
}

// NewStopSignal returns an unset signal.
func NewStopSignal() *StopSignal {
	return &StopSignal{done: make(chan struct{})}
}

// Stop raises the signal. It is safe to call from many goroutines and more
// than once; only the first call has an effect. Reports whether this call
// was the one that raised it.
func (s *StopSignal) Stop() bool {
	raised := false
	s.once.Do(func() {
		s.stopped.Store(true)
		close(s.done)
		raised = true
	})
	return raised
}

// Stopped reports whether the signal has been raised.
func (s *StopSignal) Stopped() bool {
	return s.stopped.Load()
}

// Done returns a channel that is closed when the signal is raised.
func (s *StopSignal) Done() <-chan struct{} {
	return s.done
}

// Context derives a context that is cancelled when either parent is done or
// the signal is raised. Cancellation of parent also raises the signal, so a
// caller aborting the context stops every loop polling it. The returned
// cancel func must be called to release the watcher.
func (s *StopSignal) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	unregister := context.AfterFunc(parent, func() { s.Stop() })

	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		unregister()
		cancel()
	}
}
