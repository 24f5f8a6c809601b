// Package config loads pipeline settings from TOML files and the
// environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/videopipeline/filter"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "VPIPE_"

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full pipeline configuration.
type Config struct {
	Render  RenderConfig   `toml:"render"`
	Capture CaptureConfig  `toml:"capture"`
	Export  ExportConfig   `toml:"export"`
	Logging LoggingConfig  `toml:"logging"`
	Filters []FilterConfig `toml:"filters"`
}

// RenderConfig sizes the render pipeline.
type RenderConfig struct {
	Width     int     `toml:"width"`
	Height    int     `toml:"height"`
	FrameRate float64 `toml:"frame_rate"`
}

// CaptureConfig controls recording.
type CaptureConfig struct {
	AudioEnabled     bool   `toml:"audio_enabled"`
	ManageAudioRoute bool   `toml:"manage_audio_route"`
	OutputDir        string `toml:"output_dir"`
}

// ExportConfig controls encoding.
type ExportConfig struct {
	// Quality is the JPEG quality of video samples, 1-100.
	Quality int `toml:"quality"`
}

// LoggingConfig sets the log level.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// FilterConfig names one filter of the chain.
type FilterConfig struct {
	Name   string             `toml:"name"`
	Params map[string]float64 `toml:"params,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Render: RenderConfig{
			Width:     1920,
			Height:    1080,
			FrameRate: 30,
		},
		Capture: CaptureConfig{
			AudioEnabled:     true,
			ManageAudioRoute: true,
			OutputDir:        os.TempDir(),
		},
		Export:  ExportConfig{Quality: 85},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path over the defaults and applies environment overrides.
// Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config %s: %w", path, err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "config.Load",
		"path":     path,
		"filters":  len(cfg.Filters),
	}).Debug("Loaded configuration")

	return cfg, cfg.Validate()
}

// Save writes c to path as TOML.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overrides settings from VPIPE_* variables read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPrefix + "LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := lookup(EnvPrefix + "OUTPUT_DIR"); ok {
		c.Capture.OutputDir = v
	}
	if v, ok := lookup(EnvPrefix + "QUALITY"); ok {
		q, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sQUALITY=%q", ErrInvalidConfig, EnvPrefix, v)
		}
		c.Export.Quality = q
	}
	if v, ok := lookup(EnvPrefix + "AUDIO_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %sAUDIO_ENABLED=%q", ErrInvalidConfig, EnvPrefix, v)
		}
		c.Capture.AudioEnabled = b
	}
	return nil
}

// Validate checks sizes, rates and filter names.
func (c *Config) Validate() error {
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return fmt.Errorf("%w: render size %dx%d", ErrInvalidConfig, c.Render.Width, c.Render.Height)
	}
	if c.Render.FrameRate <= 0 {
		return fmt.Errorf("%w: frame rate %g", ErrInvalidConfig, c.Render.FrameRate)
	}
	if c.Export.Quality < 1 || c.Export.Quality > 100 {
		return fmt.Errorf("%w: quality %d", ErrInvalidConfig, c.Export.Quality)
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	for i, f := range c.Filters {
		if f.Name == "" {
			return fmt.Errorf("%w: filter %d has no name", ErrInvalidConfig, i)
		}
	}
	return nil
}

// RenderSize returns the render size as a point.
func (c *Config) RenderSize() image.Point {
	return image.Pt(c.Render.Width, c.Render.Height)
}

// BuildFilters constructs the configured filter chain in order.
func (c *Config) BuildFilters() ([]filter.Filter, error) {
	filters := make([]filter.Filter, 0, len(c.Filters))
	for _, fc := range c.Filters {
		f, err := filter.New(fc.Name, filter.Params(fc.Params))
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, nil
}
