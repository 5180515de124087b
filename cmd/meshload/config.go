package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/meshload"
)

// fileConfig mirrors the YAML config file. Zero values defer to the
// library defaults, so a partial file is fine.
type fileConfig struct {
	Workers         int           `yaml:"workers"`
	HostBudgetBytes int64         `yaml:"host_budget_bytes"`
	MaxChunkBytes   int64         `yaml:"max_chunk_bytes"`
	GPUTimeout      time.Duration `yaml:"gpu_timeout"`
	StallTimeout    time.Duration `yaml:"stall_timeout"`
	DisableGPU      bool          `yaml:"disable_gpu"`
}

// loadConfig reads the config file into Options. A missing default file
// is not an error; a missing explicit --config file is.
func loadConfig() (meshload.Options, error) {
	var opts meshload.Options

	path := cfgFile
	explicit := path != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err != nil {
			return opts, nil
		}
		path = filepath.Join(home, ".meshload.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return opts, nil
		}
		return opts, fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return opts, fmt.Errorf("parse config %s: %w", path, err)
	}

	opts.Workers = fc.Workers
	opts.HostBudgetBytes = fc.HostBudgetBytes
	opts.MaxChunkBytes = fc.MaxChunkBytes
	opts.GPUTimeout = fc.GPUTimeout
	opts.StallTimeout = fc.StallTimeout
	opts.DisableGPU = fc.DisableGPU
	return opts, nil
}
