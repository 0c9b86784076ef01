package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements Collector backed by Prometheus.
//
// Metrics are created and registered lazily on the first event so that
// constructing a collector never panics on duplicate registration.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	slotOverwrites *prometheus.CounterVec
	fusionTicks    *prometheus.CounterVec
	taskResults    *prometheus.CounterVec
	taskLatency    prometheus.Histogram
	queueDepth     prometheus.Gauge
}

var _ Collector = (*PrometheusCollector)(nil)

// NewPrometheus creates a Prometheus-backed collector.
//
// Parameters:
//   - reg: registerer to use (prometheus.DefaultRegisterer if nil)
//   - namespace: metric namespace ("fusepipe" if empty)
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "fusepipe"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.slotOverwrites = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "fusion",
			Name:      "slot_overwrites_total",
			Help:      "Unread readings evicted by a newer reading, by source.",
		}, []string{"source"})

		p.fusionTicks = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "fusion",
			Name:      "ticks_total",
			Help:      "Fusion loop ticks by outcome (emitted, skipped).",
		}, []string{"outcome"})

		p.taskResults = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "pool",
			Name:      "tasks_total",
			Help:      "Worker pool tasks by result (success, failure).",
		}, []string{"result"})

		p.taskLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "pool",
			Name:      "task_duration_seconds",
			Help:      "Transform duration per task in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms .. ~4s
		})

		p.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "pool",
			Name:      "queue_depth",
			Help:      "Tasks waiting in the bounded task queue.",
		})

		p.reg.MustRegister(p.slotOverwrites)
		p.reg.MustRegister(p.fusionTicks)
		p.reg.MustRegister(p.taskResults)
		p.reg.MustRegister(p.taskLatency)
		p.reg.MustRegister(p.queueDepth)
	})
}

// SlotOverwrite increments the overwrite counter for source.
func (p *PrometheusCollector) SlotOverwrite(source string) {
	p.ensureRegistered()
	p.slotOverwrites.WithLabelValues(source).Inc()
}

// FusionTick counts a tick as emitted or skipped.
func (p *PrometheusCollector) FusionTick(emitted bool) {
	p.ensureRegistered()
	outcome := "skipped"
	if emitted {
		outcome = "emitted"
	}
	p.fusionTicks.WithLabelValues(outcome).Inc()
}

// TaskCompleted counts the task and observes its latency.
func (p *PrometheusCollector) TaskCompleted(d time.Duration, err error) {
	p.ensureRegistered()
	result := "success"
	if err != nil {
		result = "failure"
	}
	p.taskResults.WithLabelValues(result).Inc()
	p.taskLatency.Observe(d.Seconds())
}

// QueueDepth sets the queue depth gauge.
func (p *PrometheusCollector) QueueDepth(n int) {
	p.ensureRegistered()
	p.queueDepth.Set(float64(n))
}
