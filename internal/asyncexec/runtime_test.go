package asyncexec

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nexuscore/core/internal/metricsbus"
	"github.com/nexuscore/core/internal/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRuntime(t *testing.T, domainLimits map[Domain]int) (*Runtime, *metricsbus.Bus) {
	t.Helper()
	bus := metricsbus.New(100)
	rt := New(Config{
		DomainLimits: domainLimits,
		Pool:         pool.Config{Initial: 8, Min: 1, Max: 32},
	}, bus.Reporter())
	return rt, bus
}

// Scenario D — Domain admission: 100 Compute tasks, limit 4, 50ms each.
// At no sampled instant does active_tasks(Compute) exceed 4; total wall
// time >= ceil(100/4)*50ms; all 100 complete.
func TestDomainAdmissionBound(t *testing.T) {
	rt, _ := newTestRuntime(t, map[Domain]int{Compute: 4})

	var maxObserved int64
	var completed int64
	var wg sync.WaitGroup

	start := time.Now()
	for i := 0; i < 100; i++ {
		wg.Add(1)
		rt.Spawn(Compute, Normal, func(ctx context.Context) error {
			defer wg.Done()
			if cur := int64(rt.ActiveInDomain(Compute)); cur > atomic.LoadInt64(&maxObserved) {
				atomic.StoreInt64(&maxObserved, cur)
			}
			time.Sleep(50 * time.Millisecond)
			atomic.AddInt64(&completed, 1)
			return nil
		}, Options{})
	}
	wg.Wait()
	elapsed := time.Since(start)

	assert.LessOrEqual(t, atomic.LoadInt64(&maxObserved), int64(4))
	assert.GreaterOrEqual(t, elapsed, 1250*time.Millisecond-50*time.Millisecond) // tolerance
	assert.EqualValues(t, 100, atomic.LoadInt64(&completed))
}

// Scenario C — Timeout: a single sleep(10s) stage with a 100ms deadline is
// TimedOut within 250ms.
func TestSpawnTimeout(t *testing.T) {
	rt, bus := newTestRuntime(t, nil)

	deadline := time.Now().Add(100 * time.Millisecond)
	done := make(chan struct{})

	id := rt.Spawn(Compute, Normal, func(ctx context.Context) error {
		select {
		case <-time.After(10 * time.Second):
			return nil
		case <-ctx.Done():
			close(done)
			return ctx.Err()
		}
	}, Options{Deadline: &deadline})

	select {
	case <-done:
	case <-time.After(250 * time.Millisecond):
		t.Fatal("task did not observe cancellation within 250ms")
	}

	require.Eventually(t, func() bool {
		state, ok := rt.TaskState(id)
		return ok && state.Terminal()
	}, 250*time.Millisecond, 5*time.Millisecond)

	state, _ := rt.TaskState(id)
	assert.Equal(t, TimedOut, state)
	assert.EqualValues(t, 1, bus.Reporter().Snapshot().CountsByKind[metricsbus.TaskTimedOut])
}

func TestCancelIsIdempotent(t *testing.T) {
	rt, _ := newTestRuntime(t, nil)

	blockCh := make(chan struct{})
	id := rt.Spawn(Compute, Normal, func(ctx context.Context) error {
		<-ctx.Done()
		close(blockCh)
		return ctx.Err()
	}, Options{})

	require.NoError(t, rt.Cancel(id))
	<-blockCh

	require.Eventually(t, func() bool {
		s, ok := rt.TaskState(id)
		return ok && s == Cancelled
	}, time.Second, 5*time.Millisecond)

	// Cancelling again, and cancelling an unknown task, are no-ops.
	assert.NoError(t, rt.Cancel(id))
	assert.NoError(t, rt.Cancel("no-such-task"))
}

// A parent context's cancellation must actually tear down the task's own
// context, not just let a caller stop waiting on it -- otherwise a
// pipeline-level cancel/abort/timeout leaves the underlying work (an
// os/exec.CommandContext, in the scheduler's case) running in the
// background.
func TestSpawnParentCancellationPropagatesToTask(t *testing.T) {
	rt, _ := newTestRuntime(t, nil)

	parentCtx, parentCancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	id := rt.Spawn(Compute, Normal, func(ctx context.Context) error {
		select {
		case <-time.After(10 * time.Second):
			return nil
		case <-ctx.Done():
			close(done)
			return ctx.Err()
		}
	}, Options{Parent: parentCtx})

	parentCancel()

	select {
	case <-done:
	case <-time.After(250 * time.Millisecond):
		t.Fatal("cancelling Parent did not cancel the task's own context within 250ms")
	}

	require.Eventually(t, func() bool {
		state, ok := rt.TaskState(id)
		return ok && state.Terminal()
	}, 250*time.Millisecond, 5*time.Millisecond)

	state, _ := rt.TaskState(id)
	assert.Equal(t, Cancelled, state)
}

func TestPriorityOrderingWithinDomain(t *testing.T) {
	rt, _ := newTestRuntime(t, map[Domain]int{Compute: 1})

	// Occupy the single slot so subsequent spawns queue.
	holdRelease := make(chan struct{})
	started := make(chan struct{})
	rt.Spawn(Compute, Normal, func(ctx context.Context) error {
		close(started)
		<-holdRelease
		return nil
	}, Options{})
	<-started

	var order []string
	var mu sync.Mutex
	var wg sync.WaitGroup

	wg.Add(1)
	rt.Spawn(Compute, Low, func(ctx context.Context) error {
		defer wg.Done()
		mu.Lock()
		order = append(order, "low")
		mu.Unlock()
		return nil
	}, Options{})

	wg.Add(1)
	rt.Spawn(Compute, Highest, func(ctx context.Context) error {
		defer wg.Done()
		mu.Lock()
		order = append(order, "highest")
		mu.Unlock()
		return nil
	}, Options{})

	time.Sleep(20 * time.Millisecond) // let both queue up behind the held slot
	close(holdRelease)
	wg.Wait()

	require.Len(t, order, 2)
	assert.Equal(t, "highest", order[0], "higher priority waiter must be admitted first")
}
