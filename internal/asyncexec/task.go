package asyncexec

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is a task's lifecycle state (spec.md §3). Immutable once terminal.
type State string

const (
	Pending   State = "pending"
	Running   State = "running"
	Completed State = "completed"
	Failed    State = "failed"
	Cancelled State = "cancelled"
	TimedOut  State = "timed_out"
)

func (s State) Terminal() bool {
	switch s {
	case Completed, Failed, Cancelled, TimedOut:
		return true
	default:
		return false
	}
}

// Body is the work a task runs. It must observe ctx.Done() at its
// suspension points to support cooperative cancellation.
type Body func(ctx context.Context) error

// Options configures one Spawn call.
type Options struct {
	Name     string
	Deadline *time.Time
	Blocking bool // routes to the blocking worker pool (spec.md §4.3 spawn_blocking)

	// Parent, if set, is watched for cancellation: when Parent is done, the
	// task's own context is cancelled too, so a caller holding a wider
	// cancellation scope (a whole pipeline, a whole stage DAG) can actually
	// tear the task down instead of merely giving up on waiting for it.
	Parent context.Context
}

// Task is one unit of work's identity and observable lifecycle.
type Task struct {
	ID         string
	Priority   Priority
	Domain     Domain
	Name       string
	SubmittedAt time.Time
	Deadline   *time.Time

	state atomic.Value // State
}

func newTask(domain Domain, priority Priority, opts Options) *Task {
	t := &Task{
		ID:          uuid.NewString(),
		Priority:    priority,
		Domain:      domain,
		Name:        opts.Name,
		SubmittedAt: time.Now(),
		Deadline:    opts.Deadline,
	}
	t.setState(Pending)
	return t
}

func (t *Task) setState(s State) { t.state.Store(s) }

// State returns the task's current lifecycle state.
func (t *Task) State() State {
	if v, ok := t.state.Load().(State); ok {
		return v
	}
	return Pending
}
