// Package asyncexec implements the core's async task runtime (spec.md
// §4.3): parallel worker threads with cooperative task suspension, per-
// domain concurrency admission acquired before a worker permit, cancellation,
// timeouts, and an adaptive thread-pool scaling loop driven off the worker
// pool's own Load().
package asyncexec

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexuscore/core/internal/corelog"
	"github.com/nexuscore/core/internal/errtag"
	"github.com/nexuscore/core/internal/metricsbus"
	"github.com/nexuscore/core/internal/pool"
)

// DefaultShutdownGracePeriod is how long a graceful shutdown waits before
// hard-cancelling remaining tasks (spec.md §4.3, §5).
const DefaultShutdownGracePeriod = 10 * time.Second

// DefaultMetricsInterval is the adaptive-scaling sampling interval.
const DefaultMetricsInterval = 5 * time.Second

// Config configures a Runtime.
type Config struct {
	DomainLimits        map[Domain]int
	Pool                pool.Config
	MaxBlockingThreads  int
	ShutdownOnPanic     bool
	ShutdownGracePeriod time.Duration
	MetricsInterval     time.Duration
}

func (c Config) withDefaults() Config {
	if c.ShutdownGracePeriod <= 0 {
		c.ShutdownGracePeriod = DefaultShutdownGracePeriod
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = DefaultMetricsInterval
	}
	if c.MaxBlockingThreads <= 0 {
		c.MaxBlockingThreads = 16
	}
	return c
}

// Runtime is the async task runtime: domain admission + worker pool +
// cancellation/timeout plumbing + adaptive scaling.
type Runtime struct {
	cfg      Config
	domains  *domainRegistry
	workers  *pool.Pool
	blocking *pool.Pool
	reporter *metricsbus.Reporter

	mu      sync.Mutex
	running map[string]*handle
	rootCtx context.Context
	rootCancel context.CancelFunc

	shutdownOnce sync.Once
	highLoadStreak int
}

type handle struct {
	task       *Task
	cancel     context.CancelFunc
	cancelled  atomic.Bool // Cancel() or the Parent watch fired, distinguishes TimedOut vs Cancelled
	stopParentWatch func() bool
}

// New creates a Runtime. reporter may be nil (metrics are then a no-op).
func New(cfg Config, reporter *metricsbus.Reporter) *Runtime {
	cfg = cfg.withDefaults()
	rootCtx, rootCancel := context.WithCancel(context.Background())
	rt := &Runtime{
		cfg:        cfg,
		domains:    newDomainRegistry(cfg.DomainLimits),
		workers:    pool.New(cfg.Pool, reporter),
		blocking:   pool.New(pool.Config{Initial: cfg.MaxBlockingThreads, Min: 1, Max: cfg.MaxBlockingThreads, Strategy: pool.Fixed}, reporter),
		reporter:   reporter,
		running:    make(map[string]*handle),
		rootCtx:    rootCtx,
		rootCancel: rootCancel,
	}
	return rt
}

// Spawn admits task into its domain's queue, then runs body once a worker
// permit is available. Returns the task ID immediately; body runs
// asynchronously.
func (rt *Runtime) Spawn(domain Domain, priority Priority, body Body, opts Options) string {
	task := newTask(domain, priority, opts)
	ctx, cancel := context.WithCancel(rt.rootCtx)
	if task.Deadline != nil {
		ctx, cancel = context.WithDeadline(ctx, *task.Deadline)
	}

	h := &handle{task: task, cancel: cancel}
	if opts.Parent != nil {
		// Covers the already-done case too: AfterFunc runs f immediately,
		// in its own goroutine, if ctx is already done at registration.
		h.stopParentWatch = context.AfterFunc(opts.Parent, func() {
			h.cancelled.Store(true)
			cancel()
		})
	}
	rt.mu.Lock()
	rt.running[task.ID] = h
	rt.mu.Unlock()

	if rt.reporter != nil {
		rt.reporter.RecordWithPriority(metricsbus.Event{
			Kind: metricsbus.TaskCreated, Domain: string(domain), TaskID: task.ID,
		}, string(priority))
	}

	go rt.run(ctx, h, body, opts.Blocking)
	return task.ID
}

// SpawnBlocking routes body to the dedicated blocking worker set
// (spec.md §4.3 spawn_blocking), sized by Config.MaxBlockingThreads.
func (rt *Runtime) SpawnBlocking(domain Domain, priority Priority, body Body, opts Options) string {
	opts.Blocking = true
	return rt.Spawn(domain, priority, body, opts)
}

func (rt *Runtime) run(ctx context.Context, h *handle, body Body, blocking bool) {
	task := h.task

	if err := rt.domains.gate(task.Domain).acquire(ctx, task.Priority); err != nil {
		rt.finish(h, classify(ctx, h, err), time.Time{})
		return
	}
	defer rt.domains.gate(task.Domain).release()

	workerPool := rt.workers
	if blocking {
		workerPool = rt.blocking
	}
	guard, err := workerPool.AcquireWorker(ctx)
	if err != nil {
		rt.finish(h, classify(ctx, h, err), time.Time{})
		return
	}
	defer guard.Release()

	task.setState(Running)
	if rt.reporter != nil {
		rt.reporter.Record(metricsbus.Event{Kind: metricsbus.TaskStarted, Domain: string(task.Domain), TaskID: task.ID})
	}
	started := time.Now()

	outcome := rt.invoke(ctx, body)
	rt.finish(h, rt.resolveOutcome(ctx, h, outcome), started)
}

// invoke runs body with panic recovery: a panicking task becomes Failed,
// and the runtime itself never panics out (spec.md §4.3, §7).
func (rt *Runtime) invoke(ctx context.Context, body Body) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errtag.Newf(errtag.Internal, errtag.Critical, "task panicked: %v", r)
			if rt.cfg.ShutdownOnPanic {
				rt.initiateShutdown()
			}
		}
	}()
	return body(ctx)
}

func (rt *Runtime) resolveOutcome(ctx context.Context, h *handle, err error) State {
	if err == nil {
		return Completed
	}
	return classify(ctx, h, err)
}

// classify distinguishes Cancelled from TimedOut: Cancel() and the Parent
// watch set handle.cancelled before cancelling the context, so a Canceled
// error with that flag set is Cancelled; an expired deadline is TimedOut; a
// Canceled error without the flag (runtime shutdown) is also Cancelled;
// anything else is Failed.
func classify(ctx context.Context, h *handle, err error) State {
	if errors.Is(err, context.Canceled) && h.cancelled.Load() {
		return Cancelled
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return TimedOut
	}
	if errors.Is(err, context.Canceled) {
		// Context cancelled without an explicit Cancel() call: this only
		// happens on runtime shutdown, which we also surface as Cancelled.
		return Cancelled
	}
	return Failed
}

func (rt *Runtime) finish(h *handle, state State, started time.Time) {
	h.task.setState(state)
	if h.stopParentWatch != nil {
		h.stopParentWatch()
	}

	if rt.reporter == nil {
		return
	}
	values := map[string]float64{}
	if !started.IsZero() {
		values["duration_seconds"] = time.Since(started).Seconds()
	}
	kind := metricsbus.TaskCompleted
	switch state {
	case Failed:
		kind = metricsbus.TaskFailed
	case Cancelled:
		kind = metricsbus.TaskCancelled
	case TimedOut:
		kind = metricsbus.TaskTimedOut
	}
	rt.reporter.Record(metricsbus.Event{Kind: kind, Domain: string(h.task.Domain), TaskID: h.task.ID, Values: values})
}

// Cancel requests cooperative cancellation of taskID. Idempotent:
// cancelling an already-terminal or already-cancelled task is a no-op
// success (spec.md §4.3).
func (rt *Runtime) Cancel(taskID string) error {
	rt.mu.Lock()
	h, ok := rt.running[taskID]
	rt.mu.Unlock()
	if !ok {
		return nil // terminal or unknown: treated as already-done, idempotent no-op
	}
	if h.task.State().Terminal() {
		return nil
	}
	h.cancelled.Store(true)
	h.cancel()
	return nil
}

// TaskState returns the current state of taskID, or ("", false) if unknown.
func (rt *Runtime) TaskState(taskID string) (State, bool) {
	rt.mu.Lock()
	h, ok := rt.running[taskID]
	rt.mu.Unlock()
	if !ok {
		return "", false
	}
	return h.task.State(), true
}

// ActiveInDomain reports the in-flight task count for a domain, for
// spec.md invariant 2 (active_tasks(D) <= concurrency_limit(D)).
func (rt *Runtime) ActiveInDomain(d Domain) int {
	return rt.domains.Active(d)
}

// Pool exposes the runtime's compute worker pool for adaptive-scaling
// callers and tests.
func (rt *Runtime) Pool() *pool.Pool { return rt.workers }

// initiateShutdown implements spec.md §4.3's shutdown_on_panic: a panic
// starts a graceful shutdown with a grace period, after which remaining
// tasks are hard-cancelled.
func (rt *Runtime) initiateShutdown() {
	rt.shutdownOnce.Do(func() {
		go func() {
			logger := corelog.WithComponent("asyncexec")
			logger.Warn().Msg("shutdown initiated after task panic")
			timer := time.NewTimer(rt.cfg.ShutdownGracePeriod)
			defer timer.Stop()
			<-timer.C
			rt.rootCancel()
		}()
	})
}

// Shutdown cancels the runtime's root context, cooperatively cancelling
// every still-running task.
func (rt *Runtime) Shutdown() {
	rt.rootCancel()
}

// RunAdaptiveLoop samples Pool().Load() every MetricsInterval and requests
// ScaleUp/ScaleDown per spec.md §4.3: two consecutive samples above 0.8
// triggers ScaleUp; a sample below 0.3 triggers ScaleDown. Blocks until ctx
// is done; run it in a goroutine.
func (rt *Runtime) RunAdaptiveLoop(ctx context.Context) {
	ticker := time.NewTicker(rt.cfg.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			load := rt.workers.Load()
			if load > 0.8 {
				rt.highLoadStreak++
				if rt.highLoadStreak >= 2 {
					rt.workers.ScaleUp()
					rt.highLoadStreak = 0
				}
			} else {
				rt.highLoadStreak = 0
				if load < 0.3 {
					rt.workers.ScaleDown()
				}
			}
		}
	}
}
