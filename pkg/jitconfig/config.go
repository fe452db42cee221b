// Package jitconfig loads the small set of process-wide knobs the
// dispatcher needs (spec §6's set_threshold/get_threshold, plus the
// specialization node cap and whether the dispatcher installs itself by
// default), following the teacher's embed-and-validate pattern
// (pkg/config/logger.go's yaml-tagged struct with a Validate method).
package jitconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the YAML-loadable set of process-wide dispatcher knobs.
type Config struct {
	// Threshold is the default invocation count before a code object (or
	// argument shape) is compiled.
	Threshold int64 `yaml:"Threshold"`
	// NodeCap bounds the specialization list per code object.
	NodeCap int `yaml:"NodeCap"`
	// EnabledByDefault controls whether New installs the dispatcher
	// immediately or leaves it disabled until Enable() is called.
	EnabledByDefault bool `yaml:"EnabledByDefault"`
	// LogLevel is a zapcore.Level name ("debug", "info", "warn", "error").
	LogLevel string `yaml:"LogLevel"`
}

// Default returns the out-of-the-box configuration.
func Default() Config {
	return Config{
		Threshold:        1000,
		NodeCap:          5,
		EnabledByDefault: true,
		LogLevel:         "info",
	}
}

// Validate returns an error if the configuration is not usable.
func (c Config) Validate() error {
	if c.Threshold <= 0 {
		return fmt.Errorf("jitconfig: Threshold must be positive, got %d", c.Threshold)
	}
	if c.NodeCap <= 0 {
		return fmt.Errorf("jitconfig: NodeCap must be positive, got %d", c.NodeCap)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("jitconfig: invalid LogLevel: %s", c.LogLevel)
	}
	return nil
}

// Load reads and validates a Config from path, starting from Default() so
// a partial YAML document only overrides the fields it names.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("jitconfig: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("jitconfig: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
