package metricsbus

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus mirrors of the event-sourced aggregate, grounded on the
// teacher's pkg/metrics: package-level collectors registered once at
// init(), with a promhttp handler exposed by the daemon's debug mux.
var (
	TasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "core_tasks_total",
			Help: "Total number of async runtime task events by kind and domain.",
		},
		[]string{"kind", "domain"},
	)

	TasksRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "core_tasks_running",
			Help: "Number of tasks currently in the Running state.",
		},
	)

	TaskExecutionSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "core_task_execution_seconds",
			Help:    "Observed task execution durations.",
			Buckets: prometheus.DefBuckets,
		},
	)

	ThreadPoolSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "core_thread_pool_current_size",
			Help: "Current width of the adaptive thread pool.",
		},
	)

	ThreadPoolLoad = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "core_thread_pool_load",
			Help: "active/current worker ratio, basis for adaptive scaling.",
		},
	)

	PipelinesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "core_pipelines_total",
			Help: "Total pipelines by terminal status.",
		},
		[]string{"status"},
	)

	ContainerLifecycleTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "core_container_lifecycle_total",
			Help: "Total container lifecycle transitions by operation and result.",
		},
		[]string{"operation", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		TasksTotal,
		TasksRunning,
		TaskExecutionSeconds,
		ThreadPoolSize,
		ThreadPoolLoad,
		PipelinesTotal,
		ContainerLifecycleTotal,
	)
}

// Handler returns the Prometheus scrape handler for the daemon's debug mux.
func Handler() http.Handler {
	return promhttp.Handler()
}

func mirrorToPrometheus(ev Event, priority string) {
	_ = priority
	TasksTotal.WithLabelValues(string(ev.Kind), ev.Domain).Inc()

	switch ev.Kind {
	case TaskStarted:
		TasksRunning.Inc()
	case TaskCompleted, TaskFailed, TaskCancelled, TaskTimedOut:
		TasksRunning.Dec()
		if dur, ok := ev.Values["duration_seconds"]; ok {
			TaskExecutionSeconds.Observe(dur)
		}
	case ThreadPoolAdjusted:
		if size, ok := ev.Values["current_size"]; ok {
			ThreadPoolSize.Set(size)
		}
		if load, ok := ev.Values["load"]; ok {
			ThreadPoolLoad.Set(load)
		}
	}
}

// Timer is a small helper for timing an operation and observing the result
// into a histogram, grounded on the teacher's metrics.Timer.
type Timer struct{ start time.Time }

// NewTimer starts a timer.
func NewTimer() Timer { return Timer{start: time.Now()} }

// ObserveDuration records the elapsed time into histogram.
func (t Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Elapsed returns the elapsed duration since the timer started.
func (t Timer) Elapsed() time.Duration { return time.Since(t.start) }
