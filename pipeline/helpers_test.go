package pipeline

import (
	"sync"
	"sync/atomic"
	"time"
)

// countingMetrics records the events the pipeline reports.
type countingMetrics struct {
	overwrites  atomic.Int64
	emitted     atomic.Int64
	skipped     atomic.Int64
	tasks       atomic.Int64
	taskErrors  atomic.Int64
	maxDepth    atomic.Int64
	mu          sync.Mutex
	sourceNames map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{sourceNames: make(map[string]int)}
}

func (m *countingMetrics) SlotOverwrite(source string) {
	m.overwrites.Add(1)
	m.mu.Lock()
	m.sourceNames[source]++
	m.mu.Unlock()
}

func (m *countingMetrics) FusionTick(emitted bool) {
	if emitted {
		m.emitted.Add(1)
	} else {
		m.skipped.Add(1)
	}
}

func (m *countingMetrics) TaskCompleted(_ time.Duration, err error) {
	m.tasks.Add(1)
	if err != nil {
		m.taskErrors.Add(1)
	}
}

func (m *countingMetrics) QueueDepth(n int) {
	for {
		cur := m.maxDepth.Load()
		if int64(n) <= cur || m.maxDepth.CompareAndSwap(cur, int64(n)) {
			return
		}
	}
}

// completionLog records the order in which tasks finished.
type completionLog struct {
	mu   sync.Mutex
	seqs []int64
}

func (c *completionLog) hook(seq int64, _ error) {
	c.mu.Lock()
	c.seqs = append(c.seqs, seq)
	c.mu.Unlock()
}

func (c *completionLog) order() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.seqs...)
}
