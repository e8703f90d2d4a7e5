package metricsbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporterCloneSharesAggregate(t *testing.T) {
	bus := New(10)
	r1 := bus.Reporter()
	r2 := r1.Clone()

	r1.Record(Event{Kind: TaskCreated, Domain: "compute"})
	r2.Record(Event{Kind: TaskCreated, Domain: "compute"})

	snap := r1.Snapshot()
	assert.Equal(t, uint64(2), snap.CountsByKind[TaskCreated])

	snap2 := r2.Snapshot()
	assert.Equal(t, snap.CountsByKind[TaskCreated], snap2.CountsByKind[TaskCreated])
}

func TestRunningTaskGauge(t *testing.T) {
	bus := New(10)
	r := bus.Reporter()

	r.Record(Event{Kind: TaskCreated})
	r.Record(Event{Kind: TaskStarted})
	require.EqualValues(t, 1, r.Snapshot().RunningTasks)

	r.Record(Event{Kind: TaskCompleted, Values: map[string]float64{"duration_seconds": 0.2}})
	require.EqualValues(t, 0, r.Snapshot().RunningTasks)
}

func TestExecutionTimeEMA(t *testing.T) {
	bus := New(10)
	r := bus.Reporter()

	r.Record(Event{Kind: TaskStarted})
	r.Record(Event{Kind: TaskCompleted, Values: map[string]float64{"duration_seconds": 1.0}})
	first := r.Snapshot().AvgExecSeconds
	assert.InDelta(t, 1.0, first, 1e-9)

	r.Record(Event{Kind: TaskStarted})
	r.Record(Event{Kind: TaskCompleted, Values: map[string]float64{"duration_seconds": 0.0}})
	second := r.Snapshot().AvgExecSeconds
	assert.InDelta(t, 0.9, second, 1e-9) // 0.1*0 + 0.9*1.0
}

func TestRingEvictsOldest(t *testing.T) {
	bus := New(3)
	r := bus.Reporter()

	for i := 0; i < 5; i++ {
		r.Record(Event{Kind: Custom, Name: string(rune('a' + i))})
	}
	snap := r.Snapshot()
	require.Len(t, snap.RecentEvents, 3)
	assert.Equal(t, "c", snap.RecentEvents[0].Name)
	assert.Equal(t, "e", snap.RecentEvents[2].Name)
}

func TestRecordIsSafeUnderConcurrentWriters(t *testing.T) {
	bus := New(100)
	r := bus.Reporter()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Record(Event{Kind: TaskCreated, Timestamp: time.Now()})
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 50, r.Snapshot().CountsByKind[TaskCreated])
}
