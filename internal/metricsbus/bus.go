// Package metricsbus is the core's event-sourced metrics and statistics
// bus (spec.md §4.1). Task transitions of the async runtime, thread-pool
// resizes, and pipeline status changes from the pipeline manager are
// recorded here as Events (the container lifecycle records none); the bus
// deterministically folds each event into one shared Aggregate and retains
// a bounded ring of recent events for diagnostics.
//
// Reporter is a cloneable handle onto that one shared Aggregate. Per
// spec.md §9's resolution of the MetricsReporter::clone defect: Clone never
// forks state, it only copies the handle.
package metricsbus

import (
	"sync"
	"time"
)

// Kind enumerates the event kinds the bus understands.
type Kind string

const (
	TaskCreated        Kind = "task_created"
	TaskStarted        Kind = "task_started"
	TaskCompleted       Kind = "task_completed"
	TaskFailed          Kind = "task_failed"
	TaskCancelled       Kind = "task_cancelled"
	TaskTimedOut        Kind = "task_timed_out"
	ThreadPoolAdjusted  Kind = "thread_pool_adjusted"
	MemoryUsageChanged  Kind = "memory_usage_changed"
	CPUUsageChanged     Kind = "cpu_usage_changed"
	Custom              Kind = "custom"
)

// Event is one record sunk into the bus. Domain and TaskID are optional;
// Values and Labels are opaque payload the aggregate and ring both keep.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	Domain    string
	TaskID    string
	Name      string // set when Kind == Custom
	Values    map[string]float64
	Labels    map[string]string
}

const defaultRingSize = 100

// emaAlpha is the exponential-moving-average smoothing factor for task
// execution time, fixed at 0.1 per spec.md §4.1.
const emaAlpha = 0.1

// aggregate is the bus's single shared, mutex-guarded state. Readers never
// see a torn update: every mutation happens inside Record's critical
// section, and Snapshot clones the whole struct under the same lock.
type aggregate struct {
	mu sync.Mutex

	countsByKind     map[Kind]uint64
	countsByDomain   map[string]uint64
	countsByPriority map[string]uint64

	runningTasks int64

	avgExecSeconds float64
	haveAvgExec    bool

	utilization float64
	memoryBytes float64
	cpuPercent  float64

	ring    []Event
	ringCap int
}

func newAggregate(ringCap int) *aggregate {
	if ringCap <= 0 {
		ringCap = defaultRingSize
	}
	return &aggregate{
		countsByKind:     make(map[Kind]uint64),
		countsByDomain:   make(map[string]uint64),
		countsByPriority: make(map[string]uint64),
		ring:             make([]Event, 0, ringCap),
		ringCap:          ringCap,
	}
}

// Bus owns the shared aggregate and hands out Reporter handles to it.
type Bus struct {
	agg *aggregate
}

// New creates a bus with the default ring size (100). Pass ringSize > 0 to
// override the default, per spec.md §4.1 "default 100; configurable".
func New(ringSize int) *Bus {
	return &Bus{agg: newAggregate(ringSize)}
}

// Reporter returns a handle onto this bus's shared aggregate.
func (b *Bus) Reporter() *Reporter {
	return &Reporter{agg: b.agg}
}

// Snapshot is a point-in-time, torn-read-free copy of the aggregate.
type Snapshot struct {
	CountsByKind     map[Kind]uint64
	CountsByDomain   map[string]uint64
	CountsByPriority map[string]uint64
	RunningTasks     int64
	AvgExecSeconds   float64
	Utilization      float64
	MemoryBytes      float64
	CPUPercent       float64
	RecentEvents     []Event
}

func (a *aggregate) record(ev Event, priority string) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.countsByKind[ev.Kind]++
	if ev.Domain != "" {
		a.countsByDomain[ev.Domain]++
	}
	if priority != "" {
		a.countsByPriority[priority]++
	}

	switch ev.Kind {
	case TaskCreated:
		// no gauge change: a created task is not yet running
	case TaskStarted:
		a.runningTasks++
	case TaskCompleted, TaskFailed, TaskCancelled, TaskTimedOut:
		if a.runningTasks > 0 {
			a.runningTasks--
		}
		if dur, ok := ev.Values["duration_seconds"]; ok {
			if !a.haveAvgExec {
				a.avgExecSeconds = dur
				a.haveAvgExec = true
			} else {
				a.avgExecSeconds = emaAlpha*dur + (1-emaAlpha)*a.avgExecSeconds
			}
		}
	case MemoryUsageChanged:
		if v, ok := ev.Values["bytes"]; ok {
			a.memoryBytes = v
		}
	case CPUUsageChanged:
		if v, ok := ev.Values["percent"]; ok {
			a.cpuPercent = v
		}
	}
	if v, ok := ev.Values["utilization"]; ok {
		a.utilization = v
	}

	if len(a.ring) >= a.ringCap {
		// Evict oldest (ring[0]) by shifting; ringCap is small (default
		// 100) so this is cheap and keeps the slice contiguous for Snapshot.
		copy(a.ring, a.ring[1:])
		a.ring = a.ring[:len(a.ring)-1]
	}
	a.ring = append(a.ring, ev)
}

func (a *aggregate) snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Snapshot{
		CountsByKind:     make(map[Kind]uint64, len(a.countsByKind)),
		CountsByDomain:   make(map[string]uint64, len(a.countsByDomain)),
		CountsByPriority: make(map[string]uint64, len(a.countsByPriority)),
		RunningTasks:     a.runningTasks,
		AvgExecSeconds:   a.avgExecSeconds,
		Utilization:      a.utilization,
		MemoryBytes:      a.memoryBytes,
		CPUPercent:        a.cpuPercent,
		RecentEvents:     make([]Event, len(a.ring)),
	}
	for k, v := range a.countsByKind {
		s.CountsByKind[k] = v
	}
	for k, v := range a.countsByDomain {
		s.CountsByDomain[k] = v
	}
	for k, v := range a.countsByPriority {
		s.CountsByPriority[k] = v
	}
	copy(s.RecentEvents, a.ring)
	return s
}
