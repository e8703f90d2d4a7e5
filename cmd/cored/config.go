package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nexuscore/core/internal/corelog"
)

// Config is cored's on-disk configuration, grounded on the teacher's
// cmd/warren apply.go YAML handling (gopkg.in/yaml.v3, struct tags),
// generalized from an apply-a-resource document to a daemon startup
// config.
type Config struct {
	SocketPath  string `yaml:"socket_path"`
	DataRoot    string `yaml:"data_root"`
	MetricsAddr string `yaml:"metrics_addr"`

	Containerd struct {
		SocketPath string `yaml:"socket_path"`
		Namespace  string `yaml:"namespace"`
	} `yaml:"containerd"`

	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`

	Scheduler struct {
		MaxParallelStages int    `yaml:"max_parallel_stages"`
		Strategy          string `yaml:"strategy"`
		AbortOnError      bool   `yaml:"abort_on_error"`
		RetryCount        int    `yaml:"retry_count"`
		RetryIntervalMs   int    `yaml:"retry_interval_ms"`
	} `yaml:"scheduler"`
}

func defaultConfig() Config {
	cfg := Config{
		SocketPath:  "/var/run/cored.sock",
		DataRoot:    "/var/lib/cored",
		MetricsAddr: ":9090",
	}
	cfg.Containerd.Namespace = "nexuscore"
	cfg.Log.Level = "info"
	cfg.Scheduler.MaxParallelStages = 8
	cfg.Scheduler.Strategy = "pipelined"
	return cfg
}

// loadConfig reads path, merging it over defaultConfig(). A missing file
// is not an error: cored runs with defaults out of the box.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func initLogging(cfg Config) {
	corelog.Init(corelog.Config{
		Level:      corelog.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
}
