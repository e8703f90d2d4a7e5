package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nexuscore/core/internal/asyncexec"
	"github.com/nexuscore/core/internal/container"
	"github.com/nexuscore/core/internal/corelog"
	"github.com/nexuscore/core/internal/metricsbus"
	"github.com/nexuscore/core/internal/pipeline/exec"
	"github.com/nexuscore/core/internal/pipeline/manager"
	"github.com/nexuscore/core/internal/pipeline/planner"
	"github.com/nexuscore/core/internal/pipeline/scheduler"
	"github.com/nexuscore/core/internal/rpc"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "cored",
	Short:   "cored runs the pipeline manager and container lifecycle as a local daemon",
	Version: Version,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the daemon: gRPC control surface plus a Prometheus metrics endpoint",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	initLogging(cfg)
	logger := corelog.WithComponent("cored")

	bus := metricsbus.New(0)
	reporter := bus.Reporter()

	rt := asyncexec.New(asyncexec.Config{}, reporter)
	defer rt.Shutdown()

	sched := scheduler.New(scheduler.Config{
		MaxParallelStages: cfg.Scheduler.MaxParallelStages,
		Strategy:          scheduler.Strategy(cfg.Scheduler.Strategy),
		AbortOnError:      cfg.Scheduler.AbortOnError,
		RetryCount:        cfg.Scheduler.RetryCount,
		RetryIntervalMs:   cfg.Scheduler.RetryIntervalMs,
	}, rt, exec.New(nil))

	pipelines := manager.New(planner.New(), sched, reporter)

	if err := os.MkdirAll(cfg.DataRoot, 0o755); err != nil {
		return fmt.Errorf("create data root %s: %w", cfg.DataRoot, err)
	}
	runtime, err := container.NewContainerdRuntime(cfg.Containerd.SocketPath)
	if err != nil {
		return fmt.Errorf("connect to containerd: %w", err)
	}
	defer runtime.Close()

	lifecycle, err := container.NewLifecycle(cfg.DataRoot, runtime)
	if err != nil {
		return fmt.Errorf("load container lifecycle: %w", err)
	}

	server, err := rpc.NewServer(cfg.SocketPath, pipelines, lifecycle)
	if err != nil {
		return fmt.Errorf("start rpc server on %s: %w", cfg.SocketPath, err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("socket", cfg.SocketPath).Msg("rpc server listening")
		if err := server.Serve(); err != nil {
			errCh <- err
		}
	}()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsbus.Handler())
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("daemon subsystem failed")
	}

	server.Stop()
	return nil
}
