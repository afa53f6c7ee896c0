package pool

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricsSet holds the Prometheus collectors shared by every pool created
// in this process, using promauto.With against a package-level registry.
type metricsSet struct {
	workers     *prometheus.GaugeVec
	queued      *prometheus.GaugeVec
	submitted   *prometheus.CounterVec
	completed   *prometheus.CounterVec
	failed      *prometheus.CounterVec
	callerRuns  *prometheus.CounterVec
	taskSeconds *prometheus.HistogramVec
}

var (
	defaultMetricsOnce sync.Once
	defaultMetrics      *metricsSet
)

func metricsFor(_ string) *metricsSet {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = newMetricsSet(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func newMetricsSet(reg prometheus.Registerer) *metricsSet {
	factory := promauto.With(reg)
	return &metricsSet{
		workers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "concurrentaspects",
			Subsystem: "pool",
			Name:      "workers",
			Help:      "Current number of live worker goroutines in a pool.",
		}, []string{"pool"}),
		queued: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "concurrentaspects",
			Subsystem: "pool",
			Name:      "queued_tasks",
			Help:      "Current number of tasks waiting for a worker in a pool.",
		}, []string{"pool"}),
		submitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concurrentaspects",
			Subsystem: "pool",
			Name:      "tasks_submitted_total",
			Help:      "Total number of tasks submitted to a pool.",
		}, []string{"pool"}),
		completed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concurrentaspects",
			Subsystem: "pool",
			Name:      "tasks_completed_total",
			Help:      "Total number of tasks that finished without error.",
		}, []string{"pool"}),
		failed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concurrentaspects",
			Subsystem: "pool",
			Name:      "tasks_failed_total",
			Help:      "Total number of tasks that finished with an error, including panics.",
		}, []string{"pool"}),
		callerRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concurrentaspects",
			Subsystem: "pool",
			Name:      "caller_runs_total",
			Help:      "Total number of tasks executed inline on the submitting goroutine due to saturation.",
		}, []string{"pool"}),
		taskSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "concurrentaspects",
			Subsystem: "pool",
			Name:      "task_duration_seconds",
			Help:      "Task execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"pool"}),
	}
}

func (m *metricsSet) setWorkers(pool string, n int) {
	if m == nil {
		return
	}
	m.workers.WithLabelValues(pool).Set(float64(n))
}

func (m *metricsSet) setQueued(pool string, n int) {
	if m == nil {
		return
	}
	m.queued.WithLabelValues(pool).Set(float64(n))
}

func (m *metricsSet) incCompleted(pool string) {
	if m == nil {
		return
	}
	m.completed.WithLabelValues(pool).Inc()
}

func (m *metricsSet) incFailed(pool string) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(pool).Inc()
}

func (m *metricsSet) incSubmitted(pool string) {
	if m == nil {
		return
	}
	m.submitted.WithLabelValues(pool).Inc()
}

func (m *metricsSet) incCallerRuns(pool string) {
	if m == nil {
		return
	}
	m.callerRuns.WithLabelValues(pool).Inc()
}

func (m *metricsSet) observeDuration(pool string, d time.Duration) {
	if m == nil {
		return
	}
	m.taskSeconds.WithLabelValues(pool).Observe(d.Seconds())
}
