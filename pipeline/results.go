package pipeline

import (
	"cmp"
	"errors"
	"slices"
	"sync"
)

// resultSet is the shared append target of all pool workers.
type resultSet[R any] struct {
	mu      sync.Mutex
	records []ResultRecord[R]
}

func newResultSet[R any](capacity int) *resultSet[R] {
	return &resultSet[R]{records: make([]ResultRecord[R], 0, capacity)}
}

func (s *resultSet[R]) Append(rec ResultRecord[R]) {
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
}

func (s *resultSet[R]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Records returns the records in completion order.
func (s *resultSet[R]) Records() []ResultRecord[R] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.records)
}

// Reassemble restores submission order after out-of-order completion. It is
// called once, after the pool has drained and every worker has exited.
//
// records must hold exactly one record per submitted task: a different
// count, or a sequence number that is missing or repeated, yields a
// *CountMismatchError and no output rather than a truncated or misordered
// one. Otherwise the values are returned sorted by Seq, together with the
// joined per-task errors (nil when every transform succeeded). Values of
// failed tasks are left at whatever the transform returned.
func Reassemble[R any](records []ResultRecord[R], submitted int) ([]R, error) {
	if len(records) != submitted {
		return nil, &CountMismatchError{Submitted: submitted, Received: len(records), Seq: -1}
	}

	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b ResultRecord[R]) int {
		return cmp.Compare(a.Seq, b.Seq)
	})

	out := make([]R, len(sorted))
	var errs []error
	for i, rec := range sorted {
		if rec.Seq != int64(i) {
			seq := int64(i) // missing
			if rec.Seq < int64(i) {
				seq = rec.Seq // duplicated
			}
			return nil, &CountMismatchError{Submitted: submitted, Received: len(records), Seq: seq}
		}
		out[i] = rec.Value
		if rec.Err != nil {
			errs = append(errs, rec.Err)
		}
	}

	return out, errors.Join(errs...)
}
