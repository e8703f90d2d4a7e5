package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nexuscore/core/internal/rpc"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Manage pipelines",
}

var pipelineRunCmd = &cobra.Command{
	Use:   "run [command line]",
	Short: "Plan, execute, and wait for a pipeline built from a command line",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPipelineRun,
}

var pipelineCancelCmd = &cobra.Command{
	Use:   "cancel [pipeline-id]",
	Short: "Cancel a running pipeline",
	Args:  cobra.ExactArgs(1),
	RunE:  runPipelineCancel,
}

var pipelineStatusCmd = &cobra.Command{
	Use:   "status [pipeline-id]",
	Short: "Show a pipeline's current status",
	Args:  cobra.ExactArgs(1),
	RunE:  runPipelineStatus,
}

var (
	cachePlan  bool
	waitTimeout time.Duration
)

func init() {
	pipelineRunCmd.Flags().BoolVar(&cachePlan, "cache-plan", false, "Reuse a cached plan for an identical command line")
	pipelineRunCmd.Flags().DurationVar(&waitTimeout, "timeout", 0, "Abort and cancel the pipeline if it hasn't finished after this long (0 = no timeout)")
}

func runPipelineRun(cmd *cobra.Command, args []string) error {
	commandLine := joinArgs(args)

	client, err := dial()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx := context.Background()
	created, err := client.CreatePipeline(ctx, &rpc.CreatePipelineRequest{CommandLine: commandLine, CachePlan: cachePlan})
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	fmt.Printf("pipeline %s created\n", created.PipelineID)

	if _, err := client.ExecutePipeline(ctx, &rpc.ExecutePipelineRequest{PipelineID: created.PipelineID}); err != nil {
		return fmt.Errorf("execute pipeline: %w", err)
	}

	waited, err := client.WaitForPipeline(ctx, &rpc.WaitForPipelineRequest{
		PipelineID: created.PipelineID,
		TimeoutMs:  waitTimeout.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("wait for pipeline: %w", err)
	}
	fmt.Printf("pipeline %s finished: %s\n", created.PipelineID, waited.Status)

	result, err := client.PipelineResult(ctx, &rpc.PipelineResultRequest{PipelineID: created.PipelineID})
	if err != nil {
		return fmt.Errorf("fetch pipeline result: %w", err)
	}
	if result.Found {
		fmt.Print(string(result.Stdout))
		if len(result.Stderr) > 0 {
			fmt.Print(string(result.Stderr))
		}
		if !result.Success {
			return fmt.Errorf("pipeline exited with code %d", result.ExitCode)
		}
	}
	return nil
}

func runPipelineCancel(cmd *cobra.Command, args []string) error {
	client, err := dial()
	if err != nil {
		return err
	}
	defer client.Close()

	if _, err := client.CancelPipeline(context.Background(), &rpc.CancelPipelineRequest{PipelineID: args[0]}); err != nil {
		return fmt.Errorf("cancel pipeline: %w", err)
	}
	fmt.Printf("pipeline %s cancelled\n", args[0])
	return nil
}

func runPipelineStatus(cmd *cobra.Command, args []string) error {
	client, err := dial()
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.PipelineStatus(context.Background(), &rpc.PipelineStatusRequest{PipelineID: args[0]})
	if err != nil {
		return fmt.Errorf("pipeline status: %w", err)
	}
	if !resp.Found {
		return fmt.Errorf("unknown pipeline %q", args[0])
	}
	fmt.Println(resp.Status)
	return nil
}

func joinArgs(args []string) string {
	out := args[0]
	for _, a := range args[1:] {
		out += " " + a
	}
	return out
}
