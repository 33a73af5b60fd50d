// Package config loads the energybench configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings of a run. Zero values mean "use the default".
type Config struct {
	LogLevel   string        `yaml:"log_level"`
	SysfsCPU   string        `yaml:"sysfs_cpu"`  // topology root
	MSRPath    string        `yaml:"msr_path"`   // register file pattern, %d is the cpu
	SensorDir  string        `yaml:"sensor_dir"` // scanned for sensor modules
	Iterations int           `yaml:"iterations"`
	Interval   time.Duration `yaml:"interval"`
	Samples    int           `yaml:"samples"` // 0 runs until interrupted
}

func _defaultConfig() *Config {
	return &Config{
		LogLevel:   "info",
		SysfsCPU:   "/sys/devices/system/cpu",
		MSRPath:    "/dev/cpu/%d/msr",
		SensorDir:  "./sensors",
		Iterations: 1,
		Interval:   time.Second,
		Samples:    0,
	}
}

// Default returns the built-in configuration.
func Default() *Config { return _defaultConfig() }

// Merge returns the defaults overridden by the set fields of cfg.
// Negative counts and durations are treated as unset.
func Merge(cfg *Config) *Config {
	merged := _defaultConfig()
	if cfg == nil {
		return merged
	}

	if cfg.LogLevel != "" {
		merged.LogLevel = strings.ToLower(cfg.LogLevel)
	}
	if cfg.SysfsCPU != "" {
		merged.SysfsCPU = cfg.SysfsCPU
	}
	if cfg.MSRPath != "" {
		merged.MSRPath = cfg.MSRPath
	}
	if cfg.SensorDir != "" {
		merged.SensorDir = cfg.SensorDir
	}
	if cfg.Iterations > 0 {
		merged.Iterations = cfg.Iterations
	}
	if cfg.Interval > 0 {
		merged.Interval = cfg.Interval
	}
	if cfg.Samples > 0 {
		merged.Samples = cfg.Samples
	}
	return merged
}

// Load reads a YAML file and merges it over the defaults. Unknown keys are
// rejected. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	merged := Merge(&cfg)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

// Validate checks the fields that have no safe fallback.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Iterations <= 0 {
		return fmt.Errorf("%w: %d", ErrIterations, c.Iterations)
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrLogLevel, s)
	}
}
