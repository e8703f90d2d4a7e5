package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nexuscore/core/internal/asyncexec"
	"github.com/nexuscore/core/internal/metricsbus"
	"github.com/nexuscore/core/internal/pipe"
	"github.com/nexuscore/core/internal/pool"
	"github.com/nexuscore/core/internal/pipeline/planner"
	"github.com/nexuscore/core/internal/pipeline/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRuntime() *asyncexec.Runtime {
	bus := metricsbus.New(100)
	return asyncexec.New(asyncexec.Config{Pool: pool.Config{Initial: 8, Min: 1, Max: 32}}, bus.Reporter())
}

// echoExecutor is a minimal StageExecutor for tests: a stage of any kind
// forwards the concatenated text it receives on in to out, or sends its own
// expression text when it has no input pipe; a stage named in fail closes
// out and exits 1 without reading its input.
type echoExecutor struct {
	fail map[string]bool
}

func (e echoExecutor) Execute(ctx context.Context, stage *types.StagePlan, in *pipe.Pipe, out *pipe.Pipe) types.StageResult {
	if e.fail[stage.Name] {
		if out != nil {
			_ = out.Close()
		}
		return types.StageResult{StageName: stage.Name, ExitCode: 1, Stderr: []byte(stage.Name + " failed\n")}
	}

	var text string
	if in != nil {
		for {
			data, ok, err := in.Receive(ctx)
			if err != nil || !ok {
				break
			}
			text += data.Text
		}
	} else {
		text = stage.Expr
	}

	if out != nil {
		_ = out.Send(ctx, pipe.Data{Kind: pipe.Text, Text: text})
	}
	return types.StageResult{StageName: stage.Name, ExitCode: 0, Stdout: []byte(text)}
}

// Scenario A — linear pipeline: three stages complete successfully.
func TestSchedulerRunsLinearPipeline(t *testing.T) {
	pl := planner.New()
	plan, err := pl.CreatePlan("echo a | echo b | echo c", false)
	require.NoError(t, err)

	rt := newTestRuntime()
	sched := New(Config{Strategy: Pipelined}, rt, echoExecutor{})

	result, err := sched.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.Stages, 3)
}

// Scenario B — failing middle stage with abort_on_error cancels the
// downstream stage.
func TestSchedulerAbortOnErrorCancelsDownstream(t *testing.T) {
	pl := planner.New()
	plan, err := pl.CreatePlan("echo foo | false | echo bar", false)
	require.NoError(t, err)

	rt := newTestRuntime()
	sched := New(Config{Strategy: Pipelined, AbortOnError: true}, rt, echoExecutor{fail: map[string]bool{"stage-1": true}})

	result, err := sched.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, strings.Join(stageNames(result), ","), "stage-1")
}

// blockingExecutor simulates a long-running process (like the os/exec
// command the real Executor drives) that only stops when its ctx is
// cancelled, so tests can prove abort/cancel actually tears a stage's
// underlying work down instead of merely giving up on waiting for it.
type blockingExecutor struct {
	observed chan string
}

func (e blockingExecutor) Execute(ctx context.Context, stage *types.StagePlan, in *pipe.Pipe, out *pipe.Pipe) types.StageResult {
	if stage.Name == "stage-0" {
		return types.StageResult{StageName: stage.Name, ExitCode: 1, Stderr: []byte("stage-0 failed\n")}
	}
	select {
	case <-time.After(10 * time.Second):
		e.observed <- "ran-to-completion"
		return types.StageResult{StageName: stage.Name, ExitCode: 0}
	case <-ctx.Done():
		e.observed <- "cancelled"
		return types.StageResult{StageName: stage.Name, Err: ctx.Err()}
	}
}

// Scenario B / C — abort_on_error must not just stop *waiting* on a
// downstream stage, it must cancel the stage's own task context so any
// real work it's doing (an os/exec child process, in production) is
// actually torn down.
func TestSchedulerAbortOnErrorCancelsRunningDownstreamTask(t *testing.T) {
	pl := planner.New()
	plan, err := pl.CreatePlan("false | sleep10", false)
	require.NoError(t, err)

	rt := newTestRuntime()
	observed := make(chan string, 1)
	sched := New(Config{Strategy: Pipelined, AbortOnError: true}, rt, blockingExecutor{observed: observed})

	start := time.Now()
	result, err := sched.Run(context.Background(), plan)
	require.NoError(t, err)
	assert.False(t, result.Success)

	select {
	case outcome := <-observed:
		assert.Equal(t, "cancelled", outcome, "downstream stage's task must be cancelled, not left running")
	case <-time.After(time.Second):
		t.Fatal("downstream stage never observed cancellation")
	}
	assert.Less(t, time.Since(start), 2*time.Second, "abort must not wait out the downstream stage's full runtime")
}

func stageNames(r types.Result) []string {
	names := make([]string, len(r.Stages))
	for i, s := range r.Stages {
		names[i] = s.StageName
	}
	return names
}

func TestOptimizeFusesAdjacentFilterMapStages(t *testing.T) {
	plan := &types.Plan{ID: "p1"}
	a := types.NewStagePlan("stage-0", types.StageFilter, "f1")
	b := types.NewStagePlan("stage-1", types.StageMap, "m1").WithDependency("stage-0")
	plan.Stages = []*types.StagePlan{a, b}

	Optimize(plan, nil)
	require.Len(t, plan.Stages, 1)
	assert.Equal(t, "f1 && m1", plan.Stages[0].Expr)
}

func TestOptimizeDropsSingleStageSubshell(t *testing.T) {
	plan := &types.Plan{ID: "p1"}
	sub := types.NewStagePlan("stage-0", types.StageSubshell, "")
	sub.Config["substage_0_name"] = "inner"
	sub.Config["substage_0_type"] = string(types.StageCommand)
	plan.Stages = []*types.StagePlan{sub}

	Optimize(plan, nil)
	assert.Equal(t, types.StageCommand, plan.Stages[0].Kind)
}

func TestOptimizeReordersFiltersBySelectivity(t *testing.T) {
	plan := &types.Plan{ID: "p1"}
	a := types.NewStagePlan("stage-0", types.StageFilter, "loose")
	b := types.NewStagePlan("stage-1", types.StageFilter, "tight").WithDependency("stage-0")
	plan.Stages = []*types.StagePlan{a, b}

	costs := CostTable{
		"loose": {Selectivity: 0.9, Cost: 1},
		"tight": {Selectivity: 0.1, Cost: 1},
	}
	Optimize(plan, costs)

	// tight (lower selectivity, more restrictive) should now run first.
	assert.Equal(t, "tight", plan.Stages[0].Expr)
	assert.Equal(t, "loose", plan.Stages[1].Expr)
	assert.Equal(t, []string{plan.Stages[0].Name}, plan.Stages[1].Dependencies)
}

func TestAcyclicCheckDoesNotFalsePositiveOnDiamond(t *testing.T) {
	// stage-2 depends on both stage-0 and stage-1 (not produced by the
	// planner today, but the checker must tolerate it).
	plan := &types.Plan{ID: "p1"}
	s0 := types.NewStagePlan("stage-0", types.StageCommand, "a")
	s1 := types.NewStagePlan("stage-1", types.StageCommand, "b").WithDependency("stage-0")
	s2 := types.NewStagePlan("stage-2", types.StageCommand, "c").WithDependency("stage-0").WithDependency("stage-1")
	plan.Stages = []*types.StagePlan{s0, s1, s2}

	order := topoOrder(plan)
	require.Len(t, order, 3)
	assert.Equal(t, "stage-0", order[0].Name)
}
