// Package planner compiles a command line into a types.Plan (spec.md
// §4.5): a DAG of stage plans linked by default linear-pipe dependencies,
// with Subshell flattening and an optional in-memory plan cache.
package planner

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nexuscore/core/internal/errtag"
	"github.com/nexuscore/core/internal/pipeline/types"
)

// Planner turns command lines into plans.
type Planner struct {
	parser types.Parser

	mu    sync.Mutex
	cache map[string]*types.Plan
}

// Option configures a Planner.
type Option func(*Planner)

// WithParser overrides the default SplitParser.
func WithParser(p types.Parser) Option {
	return func(pl *Planner) { pl.parser = p }
}

// New creates a Planner. Without WithParser, the default SplitParser is
// used (spec.md §4.5 step 1: "Otherwise wrap the whole line as a single
// Simple stage" only applies when no parser is configured at all; here we
// always have at least the fallback split parser, which degenerates to a
// single stage for pipe-free input).
func New(opts ...Option) *Planner {
	pl := &Planner{parser: SplitParser{}, cache: make(map[string]*types.Plan)}
	for _, opt := range opts {
		opt(pl)
	}
	return pl
}

// CreatePlan compiles commandLine into a Plan. cachePlan opts into reading
// and writing the in-memory plan cache keyed by commandLine (spec.md §4.5
// point 5; §9's open question on cross-run persistence is resolved as
// in-memory only, matching §6's explicit persisted-state contract).
func (pl *Planner) CreatePlan(commandLine string, cachePlan bool) (*types.Plan, error) {
	if cachePlan {
		pl.mu.Lock()
		cached, ok := pl.cache[commandLine]
		pl.mu.Unlock()
		if ok {
			return cached, nil
		}
	}

	tokens, err := pl.parser.Parse(commandLine)
	if err != nil {
		return nil, errtag.New(errtag.Syntax, errtag.Medium, err)
	}

	plan := &types.Plan{
		ID:          uuid.NewString(),
		Name:        commandLine,
		CreatedAt:   time.Now(),
		CommandLine: commandLine,
	}
	if err := pl.buildFromTokens(plan, tokens); err != nil {
		return nil, err
	}

	if cachePlan {
		pl.mu.Lock()
		pl.cache[commandLine] = plan
		pl.mu.Unlock()
	}
	return plan, nil
}

// ClearCache empties the plan cache.
func (pl *Planner) ClearCache() {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.cache = make(map[string]*types.Plan)
}

func (pl *Planner) buildFromTokens(plan *types.Plan, tokens []types.ParsedCommand) error {
	if len(tokens) == 0 {
		return errtag.Newf(errtag.Build, errtag.Medium, "empty command line produced no stages")
	}

	var prevName string
	stageIdx := 0
	for _, tok := range tokens {
		if tok.Kind == types.ParsedPipe {
			continue // a bare Pipe token only informs linear linking, no stage of its own
		}

		name := fmt.Sprintf("stage-%d", stageIdx)
		stageIdx++

		stage, err := stagePlanFor(pl, name, tok)
		if err != nil {
			return err
		}
		if prevName != "" {
			stage.WithDependency(prevName)
		}
		plan.Stages = append(plan.Stages, stage)
		prevName = name
	}

	if len(plan.Stages) == 0 {
		return errtag.Newf(errtag.Build, errtag.Medium, "command line produced no stages")
	}
	if err := checkAcyclic(plan); err != nil {
		return err
	}
	return nil
}

func stagePlanFor(pl *Planner, name string, tok types.ParsedCommand) (*types.StagePlan, error) {
	switch tok.Kind {
	case types.ParsedSimple:
		return types.NewStagePlan(name, types.StageCommand, tok.Text), nil

	case types.ParsedRedirect:
		stage := types.NewStagePlan(name, types.StageRedirect, tok.Text)
		stage.Config["target"] = tok.Target
		return stage, nil

	case types.ParsedCustom:
		stage := types.NewStagePlan(name, types.StageCustom, tok.Name)
		for i, arg := range tok.Args {
			stage.Config[fmt.Sprintf("arg_%d", i)] = arg
		}
		return stage, nil

	case types.ParsedSubshell:
		sub := &types.Plan{ID: "subplan-" + name}
		if err := pl.buildFromTokens(sub, tok.SubTokens); err != nil {
			return nil, err
		}
		stage := types.NewStagePlan(name, types.StageSubshell, "")
		for i, substage := range sub.Stages {
			stage.Config[fmt.Sprintf("substage_%d_name", i)] = substage.Name
			stage.Config[fmt.Sprintf("substage_%d_type", i)] = string(substage.Kind)
		}
		return stage, nil

	default:
		return nil, errtag.Newf(errtag.Syntax, errtag.Medium, "unrecognized parsed command kind %q", tok.Kind)
	}
}

// checkAcyclic verifies the stage dependency graph is a DAG and that every
// dependency references a defined stage (spec.md §4.5 invariants).
func checkAcyclic(plan *types.Plan) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(plan.Stages))
	for _, s := range plan.Stages {
		color[s.Name] = white
	}

	var visit func(name string) error
	visit = func(name string) error {
		stage, ok := plan.StageByName(name)
		if !ok {
			return errtag.Newf(errtag.Build, errtag.Medium, "stage %q depends on undefined stage", name)
		}
		color[name] = gray
		for _, dep := range stage.Dependencies {
			switch color[dep] {
			case gray:
				return errtag.Newf(errtag.Build, errtag.High, "cyclic dependency involving stage %q", dep)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[name] = black
		return nil
	}

	for _, s := range plan.Stages {
		if color[s.Name] == white {
			if err := visit(s.Name); err != nil {
				return err
			}
		}
	}
	return nil
}
