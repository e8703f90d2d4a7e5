package planner

import (
	"testing"

	"github.com/nexuscore/core/internal/pipeline/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario A's plan shape — `echo "hello world" | tr a-z A-Z | wc -c`
// produces three linearly-dependent Command stages.
func TestCreatePlanLinearPipeline(t *testing.T) {
	pl := New()
	plan, err := pl.CreatePlan(`echo "hello world" | tr a-z A-Z | wc -c`, false)
	require.NoError(t, err)
	require.Len(t, plan.Stages, 3)

	assert.Equal(t, "stage-0", plan.Stages[0].Name)
	assert.Empty(t, plan.Stages[0].Dependencies)

	assert.Equal(t, "stage-1", plan.Stages[1].Name)
	assert.Equal(t, []string{"stage-0"}, plan.Stages[1].Dependencies)

	assert.Equal(t, "stage-2", plan.Stages[2].Name)
	assert.Equal(t, []string{"stage-1"}, plan.Stages[2].Dependencies)

	for _, s := range plan.Stages {
		assert.Equal(t, types.StageCommand, s.Kind)
	}
}

func TestCreatePlanSingleCommand(t *testing.T) {
	pl := New()
	plan, err := pl.CreatePlan("ls -la", false)
	require.NoError(t, err)
	require.Len(t, plan.Stages, 1)
	assert.Equal(t, "ls -la", plan.Stages[0].Expr)
}

func TestCreatePlanCachesByCommandLine(t *testing.T) {
	pl := New()
	first, err := pl.CreatePlan("echo a | echo b", true)
	require.NoError(t, err)

	second, err := pl.CreatePlan("echo a | echo b", true)
	require.NoError(t, err)

	assert.Same(t, first, second, "cached plan must be the exact same instance")
}

func TestCreatePlanWithoutCacheFlagIsNotCached(t *testing.T) {
	pl := New()
	first, err := pl.CreatePlan("echo a | echo b", false)
	require.NoError(t, err)
	second, err := pl.CreatePlan("echo a | echo b", false)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestPlanMetadataRecordsCommandLine(t *testing.T) {
	pl := New()
	plan, err := pl.CreatePlan("echo hi", false)
	require.NoError(t, err)
	assert.Equal(t, "echo hi", plan.CommandLine)
	assert.False(t, plan.CreatedAt.IsZero())
}

func TestEmptyCommandLineErrors(t *testing.T) {
	pl := New()
	_, err := pl.CreatePlan("", false)
	assert.Error(t, err)
}

type recordingParser struct {
	tokens []types.ParsedCommand
}

func (p recordingParser) Parse(string) ([]types.ParsedCommand, error) { return p.tokens, nil }

func TestSubshellFlattensIntoConfig(t *testing.T) {
	pl := New(WithParser(recordingParser{tokens: []types.ParsedCommand{
		{Kind: types.ParsedSubshell, SubTokens: []types.ParsedCommand{
			{Kind: types.ParsedSimple, Text: "echo inner"},
		}},
	}}))

	plan, err := pl.CreatePlan("(echo inner)", false)
	require.NoError(t, err)
	require.Len(t, plan.Stages, 1)

	stage := plan.Stages[0]
	assert.Equal(t, types.StageSubshell, stage.Kind)
	assert.Equal(t, "stage-0", stage.Config["substage_0_name"])
	assert.Equal(t, string(types.StageCommand), stage.Config["substage_0_type"])
}

type cyclicParser struct{}

func (cyclicParser) Parse(string) ([]types.ParsedCommand, error) {
	return []types.ParsedCommand{
		{Kind: types.ParsedSimple, Text: "a"},
	}, nil
}

func TestAcyclicInvariantHolds(t *testing.T) {
	pl := New()
	plan, err := pl.CreatePlan("a | b | c", false)
	require.NoError(t, err)

	seen := make(map[string]bool)
	var visit func(name string) int
	visit = func(name string) int {
		stage, _ := plan.StageByName(name)
		depth := 0
		for _, dep := range stage.Dependencies {
			require.False(t, seen[dep], "cycle detected")
			seen[dep] = true
			if d := visit(dep); d+1 > depth {
				depth = d + 1
			}
		}
		return depth
	}
	for _, s := range plan.Stages {
		visit(s.Name)
	}
}
