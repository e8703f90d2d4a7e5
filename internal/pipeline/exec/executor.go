// Package exec implements the scheduler.StageExecutor boundary (spec.md
// §4.6/§6): it dispatches a stage plan to an OS process, a registered
// builtin, or an in-pipe filter/map/redirect, reading upstream data from
// the stage's input pipe and writing its output to the stage's output
// pipe, grounded on the teacher's exec-based health checker
// (pkg/health/exec.go) generalized from a health probe to a full stage
// runner.
package exec

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/nexuscore/core/internal/builtin"
	"github.com/nexuscore/core/internal/errtag"
	"github.com/nexuscore/core/internal/pipe"
	"github.com/nexuscore/core/internal/pipeline/types"
)

// Executor dispatches stages to OS processes or registered builtins.
type Executor struct {
	builtins *builtin.Registry
}

// New creates an Executor. registry may be nil, in which case
// builtin.NewDefaultRegistry() is used.
func New(registry *builtin.Registry) *Executor {
	if registry == nil {
		registry = builtin.NewDefaultRegistry()
	}
	return &Executor{builtins: registry}
}

// Execute runs stage, reading any input from in (nil for a stage with no
// dependency) and writing its output to out (nil for a terminal stage).
func (e *Executor) Execute(ctx context.Context, stage *types.StagePlan, in *pipe.Pipe, out *pipe.Pipe) types.StageResult {
	start := time.Now()
	var res types.StageResult
	res.StageName = stage.Name

	switch stage.Kind {
	case types.StageCommand:
		res = e.runCommand(ctx, stage, in)
	case types.StageCustom:
		res = e.runBuiltin(stage, in)
	case types.StageFilter:
		res = e.runFilter(ctx, stage, in, out)
	case types.StageMap:
		res = e.runMap(ctx, stage, in, out)
	case types.StageRedirect:
		res = e.runRedirect(ctx, stage, in)
	case types.StageSubshell:
		res = types.StageResult{StageName: stage.Name, ExitCode: 0}
	case types.StagePipe:
		res = types.StageResult{StageName: stage.Name, ExitCode: 0}
	default:
		res = types.StageResult{StageName: stage.Name, ExitCode: 1, Err: errtag.Newf(errtag.UnsupportedFeature, errtag.Medium, "unsupported stage kind %q", stage.Kind)}
	}
	res.Elapsed = time.Since(start)

	if out != nil && stage.Kind != types.StageFilter && stage.Kind != types.StageMap {
		_ = out.Send(ctx, pipe.Data{Kind: pipe.Bytes, Bytes: res.Stdout})
	}
	return res
}

// runCommand executes stage.Expr as an OS command, feeding it the
// concatenation of any buffered input pipe data as stdin.
func (e *Executor) runCommand(ctx context.Context, stage *types.StagePlan, in *pipe.Pipe) types.StageResult {
	fields := strings.Fields(stage.Expr)
	if len(fields) == 0 {
		return types.StageResult{StageName: stage.Name, ExitCode: 1, Err: errtag.Newf(errtag.Build, errtag.Medium, "empty command in stage %q", stage.Name)}
	}

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Env = os.Environ()
	cmd.Stdin = drainToReader(ctx, in)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return types.StageResult{StageName: stage.Name, ExitCode: 127, Stderr: stderr.Bytes(), Err: errtag.New(errtag.Execution, errtag.High, err)}
		}
	}
	return types.StageResult{StageName: stage.Name, ExitCode: exitCode, Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
}

// runBuiltin dispatches stage.Expr (the builtin name) through the
// registry, per spec.md §6's builtin command boundary.
func (e *Executor) runBuiltin(stage *types.StagePlan, in *pipe.Pipe) types.StageResult {
	cmd, ok := e.builtins.Lookup(stage.Expr)
	if !ok {
		return types.StageResult{StageName: stage.Name, ExitCode: 127, Err: errtag.Newf(errtag.NotFound, errtag.Medium, "no such builtin %q", stage.Expr)}
	}

	var argv []string
	for i := 0; ; i++ {
		arg, ok := stage.Config[argKey(i)]
		if !ok {
			break
		}
		argv = append(argv, arg)
	}

	result, _ := cmd.Execute(argv, os.Environ())
	return types.StageResult{StageName: stage.Name, ExitCode: result.ExitCode, Stdout: result.Stdout, Stderr: result.Stderr}
}

func argKey(i int) string { return "arg_" + strconv.Itoa(i) }

// runFilter applies stage's predicate config (a non-empty "expr" Config
// entry matched via substring containment, standing in for the pluggable
// predicate language spec.md §4.4 leaves to the implementer) to every
// value read from in, forwarding matches to out. Dropped values do not
// count against throughput, matching pipe.Pipe's own filter semantics.
func (e *Executor) runFilter(ctx context.Context, stage *types.StagePlan, in *pipe.Pipe, out *pipe.Pipe) types.StageResult {
	if in == nil || out == nil {
		return types.StageResult{StageName: stage.Name, ExitCode: 0}
	}
	needle := stage.Expr
	count := 0
	for {
		data, ok, err := in.Receive(ctx)
		if err != nil {
			return types.StageResult{StageName: stage.Name, ExitCode: 1, Err: err}
		}
		if !ok {
			break
		}
		if needle == "" || strings.Contains(dataText(data), needle) {
			if err := out.Send(ctx, data); err != nil {
				return types.StageResult{StageName: stage.Name, ExitCode: 1, Err: err}
			}
			count++
		}
	}
	return types.StageResult{StageName: stage.Name, ExitCode: 0}
}

// runMap applies stage's transform (append Expr as a suffix, standing in
// for the pluggable map language) to every value read from in, forwarding
// the transformed value to out.
func (e *Executor) runMap(ctx context.Context, stage *types.StagePlan, in *pipe.Pipe, out *pipe.Pipe) types.StageResult {
	if in == nil || out == nil {
		return types.StageResult{StageName: stage.Name, ExitCode: 0}
	}
	for {
		data, ok, err := in.Receive(ctx)
		if err != nil {
			return types.StageResult{StageName: stage.Name, ExitCode: 1, Err: err}
		}
		if !ok {
			break
		}
		mapped := pipe.Data{Kind: pipe.Text, Text: dataText(data) + stage.Expr}
		if err := out.Send(ctx, mapped); err != nil {
			return types.StageResult{StageName: stage.Name, ExitCode: 1, Err: err}
		}
	}
	return types.StageResult{StageName: stage.Name, ExitCode: 0}
}

// runRedirect writes every value read from in to stage.Config["target"].
func (e *Executor) runRedirect(ctx context.Context, stage *types.StagePlan, in *pipe.Pipe) types.StageResult {
	target := stage.Config["target"]
	if target == "" {
		return types.StageResult{StageName: stage.Name, ExitCode: 1, Err: errtag.Newf(errtag.Configuration, errtag.Medium, "redirect stage %q has no target", stage.Name)}
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return types.StageResult{StageName: stage.Name, ExitCode: 1, Err: errtag.New(errtag.IO, errtag.Medium, err)}
	}
	defer f.Close()

	if in != nil {
		for {
			data, ok, err := in.Receive(ctx)
			if err != nil {
				return types.StageResult{StageName: stage.Name, ExitCode: 1, Err: err}
			}
			if !ok {
				break
			}
			if _, err := f.WriteString(dataText(data)); err != nil {
				return types.StageResult{StageName: stage.Name, ExitCode: 1, Err: errtag.New(errtag.IO, errtag.Medium, err)}
			}
		}
	}
	return types.StageResult{StageName: stage.Name, ExitCode: 0}
}

func dataText(d pipe.Data) string {
	switch d.Kind {
	case pipe.Text:
		return d.Text
	case pipe.Bytes:
		return string(d.Bytes)
	default:
		return ""
	}
}

// drainToReader collects every value buffered on in (if any) into a
// bytes.Reader suitable for an exec.Cmd's Stdin. A nil in yields an empty
// reader.
func drainToReader(ctx context.Context, in *pipe.Pipe) *bytes.Reader {
	var buf bytes.Buffer
	if in != nil {
		for {
			data, ok, err := in.Receive(ctx)
			if err != nil || !ok {
				break
			}
			buf.WriteString(dataText(data))
		}
	}
	return bytes.NewReader(buf.Bytes())
}
