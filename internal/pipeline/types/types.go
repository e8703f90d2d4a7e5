// Package types is the pipeline execution engine's shared data model
// (spec.md §3): plans, stages, status, and results. A plan keeps its stages
// in one slice and each stage names its dependencies by stage name rather
// than by pointer, so the stage graph has no reference cycles.
package types

import "time"

// StageKind is the closed set of stage kinds a plan can contain.
type StageKind string

const (
	StageCommand  StageKind = "command"
	StagePipe     StageKind = "pipe"
	StageFilter   StageKind = "filter"
	StageMap      StageKind = "map"
	StageRedirect StageKind = "redirect"
	StageSubshell StageKind = "subshell"
	StageCustom   StageKind = "custom"
)

// StagePlan is one node of a pipeline's stage DAG.
type StagePlan struct {
	Name         string
	Kind         StageKind
	Expr         string // command text, filter/map expression, custom name
	Config       map[string]string
	Dependencies []string
}

// NewStagePlan builds a StagePlan with empty config/dependencies.
func NewStagePlan(name string, kind StageKind, expr string) *StagePlan {
	return &StagePlan{
		Name:   name,
		Kind:   kind,
		Expr:   expr,
		Config: make(map[string]string),
	}
}

// WithDependency appends a dependency stage name.
func (s *StagePlan) WithDependency(name string) *StagePlan {
	s.Dependencies = append(s.Dependencies, name)
	return s
}

// Plan is a compiled, validated representation of a pipeline ready for
// scheduling (spec.md §4.5's PipelinePlan).
type Plan struct {
	ID          string
	Name        string
	Stages      []*StagePlan
	CreatedAt   time.Time
	CommandLine string
}

// StageByName looks up a stage plan by name.
func (p *Plan) StageByName(name string) (*StagePlan, bool) {
	for _, s := range p.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Status is a pipeline's observable lifecycle state (spec.md §3).
type Status string

const (
	Creating Status = "creating"
	Ready    Status = "ready"
	Running  Status = "running"
	Paused   Status = "paused"
	Completed Status = "completed"
	Failed    Status = "failed"
	Cancelled Status = "cancelled"
	TimedOut  Status = "timed_out"
)

// Terminal reports whether s is an absorbing state.
func (s Status) Terminal() bool {
	switch s {
	case Completed, Failed, Cancelled, TimedOut:
		return true
	default:
		return false
	}
}

// StageResult is one stage's outcome.
type StageResult struct {
	StageName string
	ExitCode  int
	Stdout    []byte
	Stderr    []byte
	Err       error
	Elapsed   time.Duration
}

// Result is a pipeline's terminal outcome (spec.md §4.7's PipelineResult).
type Result struct {
	PipelineID string
	Success    bool
	ExitCode   int
	Stdout     []byte
	Stderr     []byte
	Stages     []StageResult
	StartedAt  time.Time
	EndedAt    time.Time
}

// Elapsed returns the pipeline's wall-clock execution time.
func (r Result) Elapsed() time.Duration { return r.EndedAt.Sub(r.StartedAt) }

// BuildResult folds per-stage results into a Result per spec.md §4.7:
// success iff every stage succeeded; exit code is the last stage's; stderr
// is the concatenation of every non-empty stage stderr.
func BuildResult(pipelineID string, stages []StageResult, started, ended time.Time) Result {
	res := Result{
		PipelineID: pipelineID,
		Success:    true,
		Stages:     stages,
		StartedAt:  started,
		EndedAt:    ended,
	}
	var stderr []byte
	for _, s := range stages {
		if s.Err != nil || s.ExitCode != 0 {
			res.Success = false
		}
		if len(s.Stderr) > 0 {
			stderr = append(stderr, s.Stderr...)
		}
	}
	res.Stderr = stderr
	if len(stages) > 0 {
		last := stages[len(stages)-1]
		res.ExitCode = last.ExitCode
		res.Stdout = last.Stdout
	}
	return res
}

// ParsedKind is the token kind produced by a parser at the planner
// boundary (spec.md §4.5/§6).
type ParsedKind string

const (
	ParsedSimple   ParsedKind = "simple"
	ParsedPipe     ParsedKind = "pipe"
	ParsedRedirect ParsedKind = "redirect"
	ParsedSubshell ParsedKind = "subshell"
	ParsedCustom   ParsedKind = "custom"
)

// ParsedCommand is one token from the parser boundary.
type ParsedCommand struct {
	Kind         ParsedKind
	Text         string   // Simple command text, or Redirect kind tag
	Target       string   // Redirect target path
	Name         string   // Custom command name
	Args         []string // Custom command args
	SubTokens    []ParsedCommand
}

// Parser is the pluggable pipeline-planner boundary (spec.md §6): the
// default fallback (pipe-split) must behave identically for command lines
// with no quoting or subshells.
type Parser interface {
	Parse(commandLine string) ([]ParsedCommand, error)
}
