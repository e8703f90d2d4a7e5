// Package scheduler walks a pipeline plan's stage DAG and drives it to
// completion through the async runtime (spec.md §4.6), wiring stages
// together with the pipe fabric and applying retry/abort policy.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/nexuscore/core/internal/asyncexec"
	"github.com/nexuscore/core/internal/corelog"
	"github.com/nexuscore/core/internal/errtag"
	"github.com/nexuscore/core/internal/pipe"
	"github.com/nexuscore/core/internal/pipeline/types"
)

// Strategy is the scheduler's stage-dispatch discipline (spec.md §4.6).
type Strategy string

const (
	Sequential Strategy = "sequential"
	Pipelined  Strategy = "pipelined"
	Parallel   Strategy = "parallel"
)

// DefaultPipeCapacity is the bounded capacity of the pipe wiring two
// directly-dependent stages.
const DefaultPipeCapacity = 16

// StageExecutor runs one stage's actual work (spec.md §6's builtin
// command boundary is one implementation of this; Command/Filter/Map/
// Redirect/Custom kinds are all dispatched through the same interface).
// in is nil for a stage with no dependency; out is nil for a stage with no
// dependents (after optimization, a terminal stage).
type StageExecutor interface {
	Execute(ctx context.Context, stage *types.StagePlan, in *pipe.Pipe, out *pipe.Pipe) types.StageResult
}

// Config configures a Scheduler.
type Config struct {
	MaxParallelStages int
	Strategy          Strategy
	AbortOnError      bool
	RetryCount        int
	RetryIntervalMs   int
	PipeCapacity      int
	CostTable         CostTable
}

func (c Config) withDefaults() Config {
	if c.MaxParallelStages <= 0 {
		c.MaxParallelStages = 8
	}
	if c.Strategy == "" {
		c.Strategy = Pipelined
	}
	if c.PipeCapacity <= 0 {
		c.PipeCapacity = DefaultPipeCapacity
	}
	return c
}

// Scheduler dispatches a plan's stages to the async runtime.
type Scheduler struct {
	cfg      Config
	runtime  *asyncexec.Runtime
	executor StageExecutor
}

// New creates a Scheduler bound to runtime and executor.
func New(cfg Config, runtime *asyncexec.Runtime, executor StageExecutor) *Scheduler {
	return &Scheduler{cfg: cfg.withDefaults(), runtime: runtime, executor: executor}
}

// stageDomain maps a stage kind to its execution domain (spec.md §4.6:
// "Command→Compute or IO, Redirect→IO, Filter/Map→Compute, Subshell→same
// as contents"). Commands are assumed Compute by default; a caller
// wanting IO-bound commands should tag them via Config on the StagePlan
// (left to the executor, which sees the full StagePlan).
func stageDomain(kind types.StageKind) asyncexec.Domain {
	switch kind {
	case types.StageRedirect:
		return asyncexec.IO
	case types.StageCommand, types.StageFilter, types.StageMap, types.StageSubshell, types.StageCustom:
		return asyncexec.Compute
	default:
		return asyncexec.Compute
	}
}

// Run executes plan (optimized in place first) to completion and returns
// the pipeline-level result. ctx cancellation cancels every still-running
// stage.
func (s *Scheduler) Run(ctx context.Context, plan *types.Plan) (types.Result, error) {
	Optimize(plan, s.cfg.CostTable)

	logger := corelog.WithComponent("scheduler")
	started := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wiring := s.wirePipes(plan)

	results := make(map[string]types.StageResult, len(plan.Stages))
	var mu sync.Mutex
	var wg sync.WaitGroup
	var aborted bool
	var abortOnce sync.Once

	sem := make(chan struct{}, s.cfg.MaxParallelStages)

	runStage := func(stage *types.StagePlan) {
		defer wg.Done()
		sem <- struct{}{}
		defer func() { <-sem }()

		res := s.runWithRetry(ctx, stage, wiring)

		mu.Lock()
		results[stage.Name] = res
		failed := res.Err != nil || res.ExitCode != 0
		mu.Unlock()

		if w, ok := wiring[stage.Name]; ok && w.out != nil {
			_ = w.out.Close()
		}

		if failed && stage.Kind != types.StageRedirect && s.cfg.AbortOnError {
			abortOnce.Do(func() {
				aborted = true
				logger.Warn().Str("stage", stage.Name).Msg("aborting pipeline: stage failed with abort_on_error")
				cancel()
			})
		}
	}

	switch s.cfg.Strategy {
	case Sequential:
		for _, stage := range topoOrder(plan) {
			wg.Add(1)
			runStage(stage)
			mu.Lock()
			r := results[stage.Name]
			mu.Unlock()
			if (r.Err != nil || r.ExitCode != 0) && s.cfg.AbortOnError {
				break
			}
		}
	default: // Pipelined and Parallel both dispatch every stage concurrently;
		// dependency ordering is enforced by the pipe wiring itself (a
		// consumer's Receive suspends until its producer writes or closes).
		for _, stage := range plan.Stages {
			wg.Add(1)
			go runStage(stage)
		}
		wg.Wait()
	}

	mu.Lock()
	ordered := make([]types.StageResult, 0, len(plan.Stages))
	for _, stage := range plan.Stages {
		if r, ok := results[stage.Name]; ok {
			ordered = append(ordered, r)
		}
	}
	mu.Unlock()

	result := types.BuildResult(plan.ID, ordered, started, time.Now())
	if aborted {
		result.Success = false
	}
	return result, nil
}

type pipeWiring struct {
	in  *pipe.Pipe
	out *pipe.Pipe
}

// wirePipes creates one plain pipe per producer stage, keyed by the
// downstream stage's name for "in" and the upstream stage's name for "out".
// Only a stage's first dependency is wired; further dependencies get no
// pipe. A producer with several dependents hands the same single-consumer
// pipe to each of them, so each value reaches only one of them; the
// planner only emits linear dependency chains, where every producer has
// one dependent.
func (s *Scheduler) wirePipes(plan *types.Plan) map[string]*pipeWiring {
	wiring := make(map[string]*pipeWiring, len(plan.Stages))
	producerOut := make(map[string]*pipe.Pipe)

	for _, stage := range plan.Stages {
		if len(stage.Dependencies) == 0 {
			continue
		}
		producer := stage.Dependencies[0]
		out, ok := producerOut[producer]
		if !ok {
			out = pipe.New(s.cfg.PipeCapacity)
			producerOut[producer] = out
			w := wiring[producer]
			if w == nil {
				w = &pipeWiring{}
				wiring[producer] = w
			}
			w.out = out
		}
		w := wiring[stage.Name]
		if w == nil {
			w = &pipeWiring{}
			wiring[stage.Name] = w
		}
		w.in = out
	}
	return wiring
}

func topoOrder(plan *types.Plan) []*types.StagePlan {
	visited := make(map[string]bool, len(plan.Stages))
	var order []*types.StagePlan
	var visit func(s *types.StagePlan)
	visit = func(s *types.StagePlan) {
		if visited[s.Name] {
			return
		}
		visited[s.Name] = true
		for _, dep := range s.Dependencies {
			if d, ok := plan.StageByName(dep); ok {
				visit(d)
			}
		}
		order = append(order, s)
	}
	for _, s := range plan.Stages {
		visit(s)
	}
	return order
}

// runWithRetry runs one stage via the async runtime, retrying per
// Config.RetryCount/RetryIntervalMs on failure. Redirect stages are never
// retried (spec.md §4.6).
func (s *Scheduler) runWithRetry(ctx context.Context, stage *types.StagePlan, wiring map[string]*pipeWiring) types.StageResult {
	w := wiring[stage.Name]
	var in, out *pipe.Pipe
	if w != nil {
		in, out = w.in, w.out
	}

	attempts := 1
	if stage.Kind != types.StageRedirect && s.cfg.RetryCount > 0 {
		attempts += s.cfg.RetryCount
	}

	var last types.StageResult
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(s.cfg.RetryIntervalMs) * time.Millisecond):
			case <-ctx.Done():
				return types.StageResult{StageName: stage.Name, Err: errtag.New(errtag.Cancelled, errtag.Low, ctx.Err())}
			}
		}

		resultCh := make(chan types.StageResult, 1)
		// Parent: ctx ties this stage's task to the pipeline/abort-on-error
		// context the caller is holding, so cancelling ctx actually tears
		// the task (and any process it owns) down instead of merely
		// releasing the outer select below.
		s.runtime.Spawn(stageDomain(stage.Kind), asyncexec.Normal, func(taskCtx context.Context) error {
			resultCh <- s.executor.Execute(taskCtx, stage, in, out)
			return nil
		}, asyncexec.Options{Name: stage.Name, Parent: ctx})

		select {
		case last = <-resultCh:
		case <-ctx.Done():
			return types.StageResult{StageName: stage.Name, Err: errtag.New(errtag.Cancelled, errtag.Low, ctx.Err())}
		}

		if last.Err == nil && last.ExitCode == 0 {
			return last
		}
	}
	return last
}
