package config

import (
	"flag"
	"strings"
)

// Flags holds command-line overrides. Each subcommand registers them on its
// own FlagSet; zero values leave the loaded config untouched.
type Flags struct {
	Config   string
	Debug    bool
	LogFile  string
	FPS      float64
	Frames   int
	Shot     string
	Targets  string
	Parallel bool
}

// Register adds the common flags to fs.
func (f *Flags) Register(fs *flag.FlagSet) {
	fs.StringVar(&f.Config, "config", "", "Path to config file")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.StringVar(&f.LogFile, "log-file", "", "Also write logs to this file (rotated)")
}

// RegisterConversion adds the conversion flags to fs.
func (f *Flags) RegisterConversion(fs *flag.FlagSet) {
	f.Register(fs)
	fs.Float64Var(&f.FPS, "fps", 0, "Frame rate (default from config, 24)")
	fs.IntVar(&f.Frames, "frames", 0, "Frame count (0 = detect from source)")
	fs.StringVar(&f.Shot, "shot", "", "Shot name (default: input file name)")
	fs.StringVar(&f.Targets, "targets", "", "Comma-separated targets: ae,usd,maya,fbx,gltf")
	fs.BoolVar(&f.Parallel, "parallel", false, "Run exporters concurrently")
}

// ConfigPath returns the explicit config path if provided via --config flag.
func (f *Flags) ConfigPath() string {
	if f == nil {
		return ""
	}
	return f.Config
}

// apply applies CLI flag overrides to the config.
func (f *Flags) apply(cfg *Config) {
	if f == nil {
		return
	}
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.LogFile != "" {
		cfg.Logging.LogFile = f.LogFile
	}
	if f.FPS > 0 {
		cfg.Conversion.FPS = f.FPS
	}
	if f.Frames > 0 {
		cfg.Conversion.FrameCount = f.Frames
	}
	if f.Shot != "" {
		cfg.Conversion.ShotName = f.Shot
	}
	if f.Targets != "" {
		cfg.Conversion.Targets = strings.Split(f.Targets, ",")
	}
	if f.Parallel {
		cfg.Conversion.Parallel = true
	}
}
