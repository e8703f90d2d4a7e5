package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nexuscore/core/internal/rpc"
)

var containerCmd = &cobra.Command{
	Use:   "container",
	Short: "Manage containers",
}

var containerCreateCmd = &cobra.Command{
	Use:   "create [bundle-path]",
	Short: "Create a container from an OCI bundle",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(ctx context.Context, c *rpc.Client, args []string) error {
		resp, err := c.ContainerCreate(ctx, &rpc.ContainerCreateRequest{BundlePath: args[0]})
		if err != nil {
			return err
		}
		fmt.Println(resp.ContainerID)
		return nil
	}),
}

var containerStartCmd = &cobra.Command{
	Use:   "start [container-id]",
	Short: "Start a created container",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(ctx context.Context, c *rpc.Client, args []string) error {
		_, err := c.ContainerStart(ctx, &rpc.ContainerStartRequest{ContainerID: args[0]})
		return err
	}),
}

var stopTimeout time.Duration

var containerStopCmd = &cobra.Command{
	Use:   "stop [container-id]",
	Short: "Gracefully stop a running container",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(ctx context.Context, c *rpc.Client, args []string) error {
		_, err := c.ContainerStop(ctx, &rpc.ContainerStopRequest{ContainerID: args[0], TimeoutMs: stopTimeout.Milliseconds()})
		return err
	}),
}

var (
	removeForce   bool
	removeVolumes bool
)

var containerRemoveCmd = &cobra.Command{
	Use:   "rm [container-id]",
	Short: "Remove a container's persisted state",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(ctx context.Context, c *rpc.Client, args []string) error {
		_, err := c.ContainerRemove(ctx, &rpc.ContainerRemoveRequest{ContainerID: args[0], Force: removeForce, RemoveVolumes: removeVolumes})
		return err
	}),
}

var containerInspectCmd = &cobra.Command{
	Use:   "inspect [container-id]",
	Short: "Show a container's current state",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(ctx context.Context, c *rpc.Client, args []string) error {
		resp, err := c.ContainerInspect(ctx, &rpc.ContainerInspectRequest{ContainerID: args[0]})
		if err != nil {
			return err
		}
		if !resp.Found {
			return fmt.Errorf("unknown container %q", args[0])
		}
		fmt.Printf("id:         %s\n", resp.ContainerID)
		fmt.Printf("state:      %s\n", resp.State)
		fmt.Printf("pid:        %d\n", resp.PID)
		fmt.Printf("exit code:  %d\n", resp.ExitCode)
		fmt.Printf("entrypoint: %v\n", resp.Entrypoint)
		return nil
	}),
}

var (
	logsTail  int
	logsSince time.Duration
)

var containerLogsCmd = &cobra.Command{
	Use:   "logs [container-id]",
	Short: "Show a container's buffered log lines",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(ctx context.Context, c *rpc.Client, args []string) error {
		var sinceMs int64
		if logsSince > 0 {
			sinceMs = time.Now().Add(-logsSince).UnixMilli()
		}
		resp, err := c.ContainerLogs(ctx, &rpc.ContainerLogsRequest{ContainerID: args[0], SinceUnixMs: sinceMs, Tail: logsTail})
		if err != nil {
			return err
		}
		for _, e := range resp.Entries {
			fmt.Printf("[%s] %s\n", e.Stream, e.Line)
		}
		return nil
	}),
}

var containerStatsCmd = &cobra.Command{
	Use:   "stats [container-id]",
	Short: "Show a container's cgroup statistics",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(ctx context.Context, c *rpc.Client, args []string) error {
		resp, err := c.ContainerStats(ctx, &rpc.ContainerStatsRequest{ContainerID: args[0]})
		if err != nil {
			return err
		}
		fmt.Printf("memory usage: %d bytes\n", resp.MemoryUsage)
		fmt.Printf("pids current: %d\n", resp.PidsCurrent)
		for k, v := range resp.CPU {
			fmt.Printf("cpu.%s: %d\n", k, v)
		}
		return nil
	}),
}

var (
	execEnv     []string
	execWorkdir string
)

var containerExecCmd = &cobra.Command{
	Use:   "exec [container-id] -- [command...]",
	Short: "Run a command inside a running container",
	Args:  cobra.MinimumNArgs(2),
	RunE: withClient(func(ctx context.Context, c *rpc.Client, args []string) error {
		resp, err := c.ContainerExec(ctx, &rpc.ContainerExecRequest{
			ContainerID: args[0],
			Command:     args[1:],
			Env:         execEnv,
			Workdir:     execWorkdir,
		})
		if err != nil {
			return err
		}
		fmt.Println(resp.ExecID)
		return nil
	}),
}

func init() {
	containerStopCmd.Flags().DurationVar(&stopTimeout, "timeout", 10*time.Second, "Grace period before escalating to SIGKILL")
	containerRemoveCmd.Flags().BoolVar(&removeForce, "force", false, "Stop the container first if it is running")
	containerRemoveCmd.Flags().BoolVar(&removeVolumes, "volumes", false, "Also remove the container's volumes")
	containerLogsCmd.Flags().IntVar(&logsTail, "tail", 0, "Only return the last N lines (0 = all)")
	containerLogsCmd.Flags().DurationVar(&logsSince, "since", 0, "Only return lines newer than this long ago")
	containerExecCmd.Flags().StringArrayVarP(&execEnv, "env", "e", nil, "Environment variables, KEY=VALUE")
	containerExecCmd.Flags().StringVarP(&execWorkdir, "workdir", "w", "", "Working directory for the exec'd process")
}

// withClient dials cored, runs fn with a fresh context, and always closes
// the connection afterward.
func withClient(fn func(ctx context.Context, c *rpc.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		client, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()
		return fn(context.Background(), client, args)
	}
}
