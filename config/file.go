package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the optional on-disk configuration. Zero values mean "use the default".
type File struct {
	Network        string        `yaml:"network"`
	BaseURL        string        `yaml:"base_url"`
	Database       string        `yaml:"database"`
	Table          string        `yaml:"table"`
	CacheDir       string        `yaml:"cache_dir"`
	Concurrency    int           `yaml:"concurrency"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     uint          `yaml:"max_retries"`
	RefreshTime    time.Duration `yaml:"refresh_time"`
	MemoryMaxRows  int64         `yaml:"memory_max_rows"`

	// SlowThresholdMs pins the slow propagation threshold. Zero keeps the per-batch p75.
	SlowThresholdMs float64 `yaml:"slow_threshold_ms"`
}

func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &f, nil
}

func (f *File) Validate() error {
	if f.Network != "" {
		if _, err := NetworkConfigFor(f.Network); err != nil {
			return err
		}
	}
	if f.Concurrency < 0 {
		return fmt.Errorf("concurrency must be >= 0")
	}
	if f.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must be >= 0")
	}
	if f.SlowThresholdMs < 0 {
		return fmt.Errorf("slow_threshold_ms must be >= 0")
	}
	if f.MemoryMaxRows < 0 {
		return fmt.Errorf("memory_max_rows must be >= 0")
	}
	return nil
}
