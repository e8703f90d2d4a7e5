package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nexuscore/core/internal/rpc"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var socketPath string

var rootCmd = &cobra.Command{
	Use:   "corectl",
	Short: "corectl is the CLI client for cored's pipeline and container control surface",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "/var/run/cored.sock", "cored's Unix socket path")

	rootCmd.AddCommand(pipelineCmd)
	pipelineCmd.AddCommand(pipelineRunCmd, pipelineCancelCmd, pipelineStatusCmd)

	rootCmd.AddCommand(containerCmd)
	containerCmd.AddCommand(
		containerCreateCmd, containerStartCmd, containerStopCmd, containerRemoveCmd,
		containerInspectCmd, containerLogsCmd, containerStatsCmd, containerExecCmd,
	)
}

func dial() (*rpc.Client, error) {
	client, err := rpc.Dial(context.Background(), socketPath)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", socketPath, err)
	}
	return client, nil
}
