package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements Collector backed by Prometheus.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	assignments   *prometheus.CounterVec
	weight        prometheus.Histogram
	lockWait      prometheus.Histogram
	memberLoad    *prometheus.GaugeVec
	resets        prometheus.Counter
	conflictRetry prometheus.Counter
}

var _ Collector = (*PrometheusCollector)(nil)

// NewPrometheus creates a collector registering into reg (the default
// registerer when nil) under namespace ("case_distribution" when empty).
// Registration happens lazily on first use.
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "case_distribution"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.assignments = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "assignments_total",
			Help:      "Total Assign calls by outcome.",
		}, []string{"result"})

		p.weight = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "assignment_weight",
			Help:      "Weight charged per successful assignment.",
			Buckets:   []float64{0.5, 1, 1.5, 2, 3, 5, 8, 13},
		})

		p.lockWait = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the assignment critical section.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms .. ~1s
		})

		p.memberLoad = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "roster",
			Name:      "member_load",
			Help:      "Accumulated load per team member since the last reset.",
		}, []string{"member"})

		p.resets = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "load_resets_total",
			Help:      "Total administrative load resets.",
		})

		p.conflictRetry = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "conflict_retries_total",
			Help:      "Total assignment retries after a concurrent ledger write.",
		})

		p.reg.MustRegister(p.assignments)
		p.reg.MustRegister(p.weight)
		p.reg.MustRegister(p.lockWait)
		p.reg.MustRegister(p.memberLoad)
		p.reg.MustRegister(p.resets)
		p.reg.MustRegister(p.conflictRetry)
	})
}

func (p *PrometheusCollector) RecordAssignment(result string, weight float64) {
	p.ensureRegistered()
	p.assignments.WithLabelValues(result).Inc()
	if result == ResultSuccess {
		p.weight.Observe(weight)
	}
}

func (p *PrometheusCollector) RecordLockWait(seconds float64) {
	p.ensureRegistered()
	p.lockWait.Observe(seconds)
}

// RecordMemberLoads replaces every member gauge so removed members disappear.
func (p *PrometheusCollector) RecordMemberLoads(loads map[string]float64) {
	p.ensureRegistered()
	p.memberLoad.Reset()
	for member, load := range loads {
		p.memberLoad.WithLabelValues(member).Set(load)
	}
}

func (p *PrometheusCollector) RecordReset() {
	p.ensureRegistered()
	p.resets.Inc()
}

func (p *PrometheusCollector) RecordConflictRetry() {
	p.ensureRegistered()
	p.conflictRetry.Inc()
}
