package exec

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nexuscore/core/internal/builtin"
	"github.com/nexuscore/core/internal/pipe"
	"github.com/nexuscore/core/internal/pipeline/types"
)

func TestExecuteCommandStageCapturesStdout(t *testing.T) {
	e := New(nil)
	stage := types.NewStagePlan("stage-0", types.StageCommand, "echo hello")

	res := e.Execute(context.Background(), stage, nil, nil)
	if res.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d: %v", res.ExitCode, res.Err)
	}
	if string(res.Stdout) != "hello\n" {
		t.Errorf("unexpected stdout: %q", res.Stdout)
	}
}

func TestExecuteCommandStageNonZeroExit(t *testing.T) {
	e := New(nil)
	stage := types.NewStagePlan("stage-0", types.StageCommand, "false")

	res := e.Execute(context.Background(), stage, nil, nil)
	if res.ExitCode == 0 {
		t.Fatal("expected a non-zero exit code")
	}
}

func TestExecuteCustomStageDispatchesThroughBuiltinRegistry(t *testing.T) {
	e := New(builtin.NewDefaultRegistry())
	stage := types.NewStagePlan("stage-0", types.StageCustom, "echo")
	stage.Config["arg_0"] = "hi"

	res := e.Execute(context.Background(), stage, nil, nil)
	if res.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", res.ExitCode)
	}
	if string(res.Stdout) != "hi\n" {
		t.Errorf("unexpected stdout: %q", res.Stdout)
	}
}

func TestExecuteCustomStageUnknownBuiltinReturnsNotFound(t *testing.T) {
	e := New(builtin.NewDefaultRegistry())
	stage := types.NewStagePlan("stage-0", types.StageCustom, "nonexistent")

	res := e.Execute(context.Background(), stage, nil, nil)
	if res.ExitCode != 127 {
		t.Fatalf("expected exit code 127, got %d", res.ExitCode)
	}
	if res.Err == nil {
		t.Fatal("expected an error for an unknown builtin")
	}
}

func TestExecuteFilterStageDropsNonMatchingValues(t *testing.T) {
	e := New(nil)
	stage := types.NewStagePlan("stage-1", types.StageFilter, "keep")

	in := pipe.New(4)
	out := pipe.New(4)
	ctx := context.Background()
	_ = in.Send(ctx, pipe.Data{Kind: pipe.Text, Text: "keep me"})
	_ = in.Send(ctx, pipe.Data{Kind: pipe.Text, Text: "drop me"})
	in.Close()

	res := e.Execute(ctx, stage, in, out)
	if res.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d: %v", res.ExitCode, res.Err)
	}

	data, ok, err := out.Receive(ctx)
	if err != nil || !ok {
		t.Fatalf("expected one forwarded value, got ok=%v err=%v", ok, err)
	}
	if data.Text != "keep me" {
		t.Errorf("unexpected forwarded value: %q", data.Text)
	}

	if _, ok, _ := out.Receive(ctx); ok {
		t.Error("expected no further values after the filtered one")
	}
}

func TestExecuteMapStageAppendsSuffix(t *testing.T) {
	e := New(nil)
	stage := types.NewStagePlan("stage-1", types.StageMap, "!")

	in := pipe.New(2)
	out := pipe.New(2)
	ctx := context.Background()
	_ = in.Send(ctx, pipe.Data{Kind: pipe.Text, Text: "hi"})
	in.Close()

	res := e.Execute(ctx, stage, in, out)
	if res.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d: %v", res.ExitCode, res.Err)
	}

	data, ok, err := out.Receive(ctx)
	if err != nil || !ok {
		t.Fatalf("expected a mapped value, got ok=%v err=%v", ok, err)
	}
	if data.Text != "hi!" {
		t.Errorf("unexpected mapped value: %q", data.Text)
	}
}

func TestExecuteRedirectStageWritesInputToTarget(t *testing.T) {
	e := New(nil)
	target := filepath.Join(t.TempDir(), "out.txt")
	stage := types.NewStagePlan("stage-1", types.StageRedirect, "")
	stage.Config["target"] = target

	in := pipe.New(2)
	ctx := context.Background()
	_ = in.Send(ctx, pipe.Data{Kind: pipe.Text, Text: "line one"})
	in.Close()

	res := e.Execute(ctx, stage, in, nil)
	if res.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d: %v", res.ExitCode, res.Err)
	}

	content, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(content) != "line one" {
		t.Errorf("unexpected file contents: %q", content)
	}
}

func TestExecuteRedirectStageMissingTargetIsConfigurationError(t *testing.T) {
	e := New(nil)
	stage := types.NewStagePlan("stage-1", types.StageRedirect, "")

	res := e.Execute(context.Background(), stage, nil, nil)
	if res.Err == nil {
		t.Fatal("expected an error for a redirect stage with no target")
	}
}
