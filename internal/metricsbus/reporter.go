package metricsbus

// Reporter is the handle callers use to write to and read from a Bus's
// shared aggregate. It also mirrors the event onto the process-wide
// Prometheus collectors declared in prometheus.go, so the same Record call
// feeds both the in-process ring/aggregate and /metrics.
type Reporter struct {
	agg *aggregate
}

// Record folds ev into the shared aggregate and mirrors it to Prometheus.
// Non-blocking from the caller's perspective: the critical section inside
// aggregate.record is a short mutex hold, never a suspension point.
func (r *Reporter) Record(ev Event) {
	r.RecordWithPriority(ev, "")
}

// RecordWithPriority is Record plus a priority label for the per-priority
// counters spec.md §4.1 calls for.
func (r *Reporter) RecordWithPriority(ev Event, priority string) {
	r.agg.record(ev, priority)
	mirrorToPrometheus(ev, priority)
}

// Snapshot returns a torn-read-free copy of the current aggregate state.
func (r *Reporter) Snapshot() Snapshot {
	return r.agg.snapshot()
}

// Clone returns another handle to the SAME underlying aggregate and ring,
// never a fork. See spec.md §9's note on the MetricsReporter::clone defect
// in the source this module replaces: a clone must observe every event any
// other handle records, both before and after the clone is taken.
func (r *Reporter) Clone() *Reporter {
	return &Reporter{agg: r.agg}
}
