// Package config handles exporter configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all exporter settings.
type Config struct {
	Export  ExportConfig  `yaml:"export"`
	Logging LoggingConfig `yaml:"logging"`
}

// ExportConfig holds mesh export settings.
type ExportConfig struct {
	OutputDir       string `yaml:"output_dir"`       // Root directory mesh paths are written under
	Library         string `yaml:"library"`          // Overrides the library name derived from the source file
	Workers         int    `yaml:"workers"`          // Objects exported in parallel
	ApplyTransforms bool   `yaml:"apply_transforms"` // Bake node transforms into geometry
	SmoothGLTF      bool   `yaml:"smooth_gltf"`      // Treat glTF faces as smooth
	StopOnError     bool   `yaml:"stop_on_error"`    // Stop after the first failed object
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Export: ExportConfig{
			OutputDir:  "export",
			Workers:    runtime.NumCPU(),
			SmoothGLTF: true,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate checks settings that cannot be used as given.
func (c *Config) Validate() error {
	if c.Export.OutputDir == "" {
		return fmt.Errorf("%w: export.output_dir is empty", ErrInvalidConfig)
	}
	if c.Export.Workers < 0 {
		return fmt.Errorf("%w: export.workers is %d", ErrInvalidConfig, c.Export.Workers)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Logging.Level)
	}
	return nil
}
