package config

import "flag"

// Flags holds command-line overrides for a Config.
type Flags struct {
	Config          string
	Debug           bool
	OutputDir       string
	Library         string
	Workers         int
	ApplyTransforms bool
	FlatGLTF        bool
	StopOnError     bool
	LogFile         string
}

// RegisterFlags defines the config flags on fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.Config, "config", "", "Path to config file")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.StringVar(&f.OutputDir, "out", "", "Output directory")
	fs.StringVar(&f.Library, "library", "", "Library name (default: source file name)")
	fs.IntVar(&f.Workers, "workers", 0, "Objects exported in parallel")
	fs.BoolVar(&f.ApplyTransforms, "apply-transforms", false, "Bake node transforms into geometry")
	fs.BoolVar(&f.FlatGLTF, "flat-gltf", false, "Export glTF faces flat")
	fs.BoolVar(&f.StopOnError, "stop-on-error", false, "Stop after the first failed object")
	fs.StringVar(&f.LogFile, "log-file", "", "Write logs to this file")
	return f
}

// apply applies flag overrides to the config.
func (f *Flags) apply(cfg *Config) {
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.OutputDir != "" {
		cfg.Export.OutputDir = f.OutputDir
	}
	if f.Library != "" {
		cfg.Export.Library = f.Library
	}
	if f.Workers > 0 {
		cfg.Export.Workers = f.Workers
	}
	if f.ApplyTransforms {
		cfg.Export.ApplyTransforms = true
	}
	if f.FlatGLTF {
		cfg.Export.SmoothGLTF = false
	}
	if f.StopOnError {
		cfg.Export.StopOnError = true
	}
	if f.LogFile != "" {
		cfg.Logging.LogFile = f.LogFile
	}
}
