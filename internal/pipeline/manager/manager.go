// Package manager implements the pipeline manager (spec.md §4.7): one
// concurrent PipelineId -> entry map whose entries hold each pipeline's
// plan, status and, once it is terminal, its result, with a per-pipeline
// status publisher, grounded on the teacher's pkg/manager.Manager (narrow
// per-entity mutexes over concurrent maps) and pkg/events.Broker
// (subscribe/unsubscribe/broadcast with per-subscriber buffered channels).
package manager

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nexuscore/core/internal/corelog"
	"github.com/nexuscore/core/internal/errtag"
	"github.com/nexuscore/core/internal/metricsbus"
	"github.com/nexuscore/core/internal/pipeline/planner"
	"github.com/nexuscore/core/internal/pipeline/scheduler"
	"github.com/nexuscore/core/internal/pipeline/types"
)

// entry is one pipeline's in-flight state. The lifecycle's writer is
// always the manager itself; transitions are serialized per pipeline by
// mu, matching spec.md §5's "the lifecycle serializes transitions per
// container" shared-resource policy generalized to pipelines.
type entry struct {
	mu     sync.Mutex
	id     string
	plan   *types.Plan
	status types.Status
	result *types.Result
	broker *statusBroker
	cancel context.CancelFunc
}

// Manager is the pipeline manager.
type Manager struct {
	planner   *planner.Planner
	scheduler *scheduler.Scheduler
	reporter  *metricsbus.Reporter

	mu        sync.RWMutex
	pipelines map[string]*entry
}

// New creates a Manager. reporter may be nil (metrics become a no-op).
func New(pl *planner.Planner, sched *scheduler.Scheduler, reporter *metricsbus.Reporter) *Manager {
	return &Manager{
		planner:   pl,
		scheduler: sched,
		reporter:  reporter,
		pipelines: make(map[string]*entry),
	}
}

// CreatePipeline plans commandLine and registers it Ready for execution
// (spec.md §4.7: "planner invoked; status: Creating -> Ready").
func (m *Manager) CreatePipeline(commandLine string, cachePlan bool) (string, error) {
	id := uuid.NewString()
	e := &entry{id: id, status: types.Creating, broker: newStatusBroker()}

	m.mu.Lock()
	m.pipelines[id] = e
	m.mu.Unlock()

	plan, err := m.planner.CreatePlan(commandLine, cachePlan)
	if err != nil {
		m.setStatus(e, types.Failed)
		return "", err
	}
	e.mu.Lock()
	e.plan = plan
	e.mu.Unlock()
	m.setStatus(e, types.Ready)
	return id, nil
}

// ExecutePipeline transitions id from Ready to Running and drives it to
// completion asynchronously; callers observe the outcome via
// WaitForPipeline or SubscribeStatus.
func (m *Manager) ExecutePipeline(id string) error {
	e, ok := m.lookup(id)
	if !ok {
		return errtag.Newf(errtag.NotFound, errtag.Medium, "unknown pipeline %q", id)
	}

	e.mu.Lock()
	if e.status != types.Ready {
		status := e.status
		e.mu.Unlock()
		return errtag.Newf(errtag.InvalidState, errtag.Medium, "cannot execute pipeline %q from status %q", id, status)
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	plan := e.plan
	e.mu.Unlock()

	m.setStatus(e, types.Running)

	go func() {
		logger := corelog.WithComponent("pipeline-manager")
		result, err := m.scheduler.Run(ctx, plan)
		if err != nil {
			logger.Error().Err(err).Str("pipeline_id", id).Msg("scheduler run failed")
		}

		e.mu.Lock()
		e.result = &result
		e.mu.Unlock()

		final := types.Completed
		if !result.Success {
			final = types.Failed
		}
		if ctx.Err() == context.Canceled {
			final = types.Cancelled
		}
		m.setStatus(e, final)

		if m.reporter != nil {
			kind := metricsbus.Kind("pipeline_" + string(final))
			m.reporter.Record(metricsbus.Event{Kind: kind, TaskID: id})
		}
	}()
	return nil
}

// CancelPipeline requests cancellation of any non-terminal pipeline
// (spec.md §4.7); idempotent on an already-terminal or unknown pipeline.
func (m *Manager) CancelPipeline(id string) error {
	e, ok := m.lookup(id)
	if !ok {
		return nil
	}
	e.mu.Lock()
	if e.status.Terminal() {
		e.mu.Unlock()
		return nil
	}
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	} else {
		// Never started: go straight to Cancelled.
		m.setStatus(e, types.Cancelled)
	}
	return nil
}

// WaitForPipeline suspends until id reaches a terminal status or ctx is
// done. On timeout, it cancels the pipeline and returns TimedOut.
func (m *Manager) WaitForPipeline(ctx context.Context, id string, timeout time.Duration) (types.Status, error) {
	e, ok := m.lookup(id)
	if !ok {
		return "", errtag.Newf(errtag.NotFound, errtag.Medium, "unknown pipeline %q", id)
	}

	sub := e.broker.subscribe()
	defer e.broker.unsubscribe(sub)

	// Re-check after subscribing: if the pipeline already reached a
	// terminal state (and therefore already closed every subscriber that
	// existed at that time), our fresh subscription would never be
	// notified since no further transition will ever occur.
	if s := m.statusOf(e); s.Terminal() {
		return s, nil
	}

	waitCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return m.statusOf(e), nil
			}
			if ev.Status.Terminal() {
				return ev.Status, nil
			}
		case <-waitCtx.Done():
			_ = m.CancelPipeline(id)
			return types.TimedOut, nil
		}
	}
}

// SubscribeStatus returns a watcher receiving every status transition for
// id (spec.md §4.7 subscribe_status).
func (m *Manager) SubscribeStatus(id string) (StatusSubscriber, error) {
	e, ok := m.lookup(id)
	if !ok {
		return nil, errtag.Newf(errtag.NotFound, errtag.Medium, "unknown pipeline %q", id)
	}
	return e.broker.subscribe(), nil
}

// UnsubscribeStatus releases a watcher obtained from SubscribeStatus.
func (m *Manager) UnsubscribeStatus(id string, sub StatusSubscriber) {
	if e, ok := m.lookup(id); ok {
		e.broker.unsubscribe(sub)
	}
}

// Result returns the terminal result for id, if it has finished.
func (m *Manager) Result(id string) (types.Result, bool) {
	e, ok := m.lookup(id)
	if !ok {
		return types.Result{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return types.Result{}, false
	}
	return *e.result, true
}

// Status returns the current status of id.
func (m *Manager) Status(id string) (types.Status, bool) {
	e, ok := m.lookup(id)
	if !ok {
		return "", false
	}
	return m.statusOf(e), true
}

func (m *Manager) statusOf(e *entry) types.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (m *Manager) lookup(id string) (*entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.pipelines[id]
	return e, ok
}

func (m *Manager) setStatus(e *entry, status types.Status) {
	e.mu.Lock()
	e.status = status
	e.mu.Unlock()
	e.broker.publish(StatusEvent{PipelineID: e.id, Status: status})
	if status.Terminal() {
		e.broker.closeAll()
	}
}
