// Package config handles converter configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/Faultbox/a2j/internal/classify"
	"github.com/Faultbox/a2j/internal/export"
	"github.com/Faultbox/a2j/internal/logger"
	"github.com/Faultbox/a2j/internal/reader"
)

// Config holds all converter settings.
type Config struct {
	Conversion   ConversionConfig   `yaml:"conversion" toml:"conversion"`
	Classifier   ClassifierConfig   `yaml:"classifier" toml:"classifier"`
	AfterEffects AfterEffectsConfig `yaml:"after_effects" toml:"after_effects"`
	Tools        ToolsConfig        `yaml:"tools" toml:"tools"`
	Watch        WatchConfig        `yaml:"watch" toml:"watch"`
	Logging      LoggingConfig      `yaml:"logging" toml:"logging"`
}

// ConversionConfig holds the per-shot conversion settings.
type ConversionConfig struct {
	FPS        float64  `yaml:"fps" toml:"fps"`
	FrameCount int      `yaml:"frame_count" toml:"frame_count"` // 0 = detect from source
	ShotName   string   `yaml:"shot_name" toml:"shot_name"`     // empty = input file name
	OutputDir  string   `yaml:"output_dir" toml:"output_dir"`
	Targets    []string `yaml:"targets" toml:"targets"`
	Parallel   bool     `yaml:"parallel" toml:"parallel"`
}

// ClassifierConfig tunes animation detection.
type ClassifierConfig struct {
	Tolerance     float64 `yaml:"tolerance" toml:"tolerance"`
	MinStride     int     `yaml:"min_stride" toml:"min_stride"`
	StrideDivisor int     `yaml:"stride_divisor" toml:"stride_divisor"`
}

// AfterEffectsConfig holds the After Effects coordinate mapping.
type AfterEffectsConfig struct {
	PositionScale     float64 `yaml:"position_scale" toml:"position_scale"`
	ScaleCompensation float64 `yaml:"scale_compensation" toml:"scale_compensation"`
}

// ToolsConfig locates external tools.
type ToolsConfig struct {
	Usdcat          string   `yaml:"usdcat" toml:"usdcat"`
	UsdcatTimeout   Duration `yaml:"usdcat_timeout" toml:"usdcat_timeout"`
	FallbackCharset string   `yaml:"fallback_charset" toml:"fallback_charset"`
}

// WatchConfig holds watch mode settings.
type WatchConfig struct {
	Debounce Duration `yaml:"debounce" toml:"debounce"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level" toml:"level"`
	LogFile string `yaml:"log_file" toml:"log_file"`
}

// Duration is a time.Duration written as "2m30s" in both YAML and TOML.
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Conversion: ConversionConfig{
			FPS:        24,
			FrameCount: 0,
			Targets:    defaultTargets(),
		},
		Classifier: ClassifierConfig{
			Tolerance:     classify.DefaultTolerance,
			MinStride:     classify.DefaultMinStride,
			StrideDivisor: classify.DefaultStrideDivisor,
		},
		AfterEffects: AfterEffectsConfig{
			PositionScale:     export.DefaultPositionScale,
			ScaleCompensation: export.DefaultScaleCompensation,
		},
		Tools: ToolsConfig{
			Usdcat:        "usdcat",
			UsdcatTimeout: Duration(reader.DefaultUsdcatTimeout),
		},
		Watch: WatchConfig{
			Debounce: Duration(500 * time.Millisecond),
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

func defaultTargets() []string {
	tags := make([]string, len(export.DefaultFormats))
	for i, f := range export.DefaultFormats {
		tags[i] = f.Tag()
	}
	return tags
}

// Validate reports settings no conversion can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Conversion.FPS <= 0 {
		errs = append(errs, fmt.Errorf("conversion.fps must be positive, got %v", c.Conversion.FPS))
	}
	if c.Conversion.FrameCount < 0 {
		errs = append(errs, fmt.Errorf("conversion.frame_count must not be negative, got %d", c.Conversion.FrameCount))
	}
	if fs, err := c.Formats(); err != nil {
		errs = append(errs, fmt.Errorf("conversion.targets: %w", err))
	} else if len(fs) == 0 {
		errs = append(errs, errors.New("conversion.targets is empty"))
	}
	if c.Classifier.Tolerance < 0 {
		errs = append(errs, fmt.Errorf("classifier.tolerance must not be negative, got %v", c.Classifier.Tolerance))
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	return errors.Join(errs...)
}

// Formats resolves the configured target tags.
func (c *Config) Formats() ([]export.Format, error) {
	return export.ParseFormats(c.Conversion.Targets)
}

// ClassifierOptions converts the classifier section.
func (c *Config) ClassifierOptions() classify.Options {
	return classify.Options{
		Tolerance:     c.Classifier.Tolerance,
		MinStride:     c.Classifier.MinStride,
		StrideDivisor: c.Classifier.StrideDivisor,
	}
}

// AEOptions converts the After Effects section.
func (c *Config) AEOptions() export.AEOptions {
	return export.AEOptions{
		PositionScale:     c.AfterEffects.PositionScale,
		ScaleCompensation: c.AfterEffects.ScaleCompensation,
	}
}

// ReaderOptions converts the tools section.
func (c *Config) ReaderOptions() reader.Options {
	return reader.Options{
		UsdcatPath:      c.Tools.Usdcat,
		UsdcatTimeout:   time.Duration(c.Tools.UsdcatTimeout),
		FallbackCharset: c.Tools.FallbackCharset,
	}
}
