package pipeline

import "sync/atomic"

// Slot is a capacity-1 overwrite channel between one producer and one
// consumer. The newest value always wins: Put never blocks and evicts any
// unread value, TryGet never blocks and drains the slot.
//
// A stale reading is worth less than a dropped one in a live view, so the
// slot trades completeness for bounded staleness.
type Slot[T any] struct {
	v          atomic.Pointer[T]
	overwrites atomic.Uint64
}

// NewSlot returns an empty slot.
func NewSlot[T any]() *Slot[T] {
	return &Slot[T]{}
}

// Put stores v, returning the evicted unread value if there was one.
func (s *Slot[T]) Put(v T) (old T, evicted bool) {
	prev := s.v.Swap(&v)
	if prev == nil {
		return old, false
	}
	s.overwrites.Add(1)
	return *prev, true
}

// TryGet takes the buffered value, leaving the slot empty. It reports false
// when nothing was written since the previous TryGet.
func (s *Slot[T]) TryGet() (T, bool) {
	prev := s.v.Swap(nil)
	if prev == nil {
		var zero T
		return zero, false
	}
	return *prev, true
}

// Overwrites returns how many unread values were evicted so far.
func (s *Slot[T]) Overwrites() uint64 {
	return s.overwrites.Load()
}
