// Package config provides configuration loading and management for lstqc.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"lstqc/pkg/layout"
	"lstqc/pkg/visualization"
)

// Iteration modes for walking the roster
const (
	// IterationPaired visits each distinct (subject, session) pair of the roster once
	IterationPaired = "paired"

	// IterationCross visits every roster session id for every roster subject id
	IterationCross = "cross"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Naming holds the file naming convention of the pipeline outputs
	Naming layout.Naming `yaml:"naming"`

	// Rendering parameters
	Render struct {
		// Cuts is the number of slices per axis in each mosaic
		Cuts int `yaml:"cuts"`

		// TileSize is the pixel height of a mosaic tile
		TileSize int `yaml:"tileSize"`

		// LowerPercentile and UpperPercentile bound the intensity window
		LowerPercentile float64 `yaml:"lowerPercentile"`
		UpperPercentile float64 `yaml:"upperPercentile"`

		// Colormap is applied to the lesion mask overlay
		Colormap string `yaml:"colormap"`

		// Threshold hides mask values at or below it
		Threshold float64 `yaml:"threshold"`

		// Alpha is the overlay opacity
		Alpha float64 `yaml:"alpha"`
	} `yaml:"render"`

	// Batch parameters
	Batch struct {
		// Iteration selects how roster entries are turned into sessions
		Iteration string `yaml:"iteration"`
	} `yaml:"batch"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// LogFormat is "text" or "json"
		LogFormat string `yaml:"logFormat"`

		// Summary prints a table of all outcomes at the end of a run
		Summary bool `yaml:"summary"`

		// Manifest is the path of the YAML artifact manifest, empty to disable
		Manifest string `yaml:"manifest"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Naming = layout.DefaultNaming()

	// Set default rendering parameters
	mosaic := visualization.DefaultMosaicOptions()
	overlay := visualization.DefaultOverlayOptions()
	cfg.Render.Cuts = mosaic.Cuts
	cfg.Render.TileSize = mosaic.TileSize
	cfg.Render.LowerPercentile = mosaic.LowerPercentile
	cfg.Render.UpperPercentile = mosaic.UpperPercentile
	cfg.Render.Colormap = overlay.Colormap
	cfg.Render.Threshold = overlay.Threshold
	cfg.Render.Alpha = overlay.Alpha

	cfg.Batch.Iteration = IterationPaired

	// Set default output parameters
	cfg.Output.Verbose = false
	cfg.Output.LogFormat = "text"
	cfg.Output.Summary = true

	return cfg
}

// Validate checks that every setting is usable
func (c *Config) Validate() error {
	if err := c.Naming.Validate(); err != nil {
		return err
	}
	if c.Render.Cuts <= 0 {
		return fmt.Errorf("render.cuts must be positive, got %d", c.Render.Cuts)
	}
	if c.Render.TileSize <= 0 {
		return fmt.Errorf("render.tileSize must be positive, got %d", c.Render.TileSize)
	}
	if c.Render.LowerPercentile < 0 || c.Render.UpperPercentile > 100 ||
		c.Render.LowerPercentile >= c.Render.UpperPercentile {
		return fmt.Errorf("render percentiles must satisfy 0 <= lower < upper <= 100, got %g and %g",
			c.Render.LowerPercentile, c.Render.UpperPercentile)
	}
	if _, err := visualization.LookupColormap(c.Render.Colormap); err != nil {
		return fmt.Errorf("render.colormap: %w", err)
	}
	if c.Render.Alpha < 0 || c.Render.Alpha > 1 {
		return fmt.Errorf("render.alpha must be within [0, 1], got %g", c.Render.Alpha)
	}
	switch c.Batch.Iteration {
	case IterationPaired, IterationCross:
	default:
		return fmt.Errorf("batch.iteration must be %q or %q, got %q", IterationPaired, IterationCross, c.Batch.Iteration)
	}
	switch c.Output.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("output.logFormat must be \"text\" or \"json\", got %q", c.Output.LogFormat)
	}
	return nil
}

// MosaicOptions returns the mosaic settings for a screenshot with title
func (c *Config) MosaicOptions(title string) visualization.MosaicOptions {
	return visualization.MosaicOptions{
		Cuts:            c.Render.Cuts,
		TileSize:        c.Render.TileSize,
		LowerPercentile: c.Render.LowerPercentile,
		UpperPercentile: c.Render.UpperPercentile,
		Title:           title,
	}
}

// OverlayOptions returns the lesion mask overlay settings
func (c *Config) OverlayOptions() visualization.OverlayOptions {
	return visualization.OverlayOptions{
		Colormap:  c.Render.Colormap,
		Threshold: c.Render.Threshold,
		Alpha:     c.Render.Alpha,
	}
}

// LoadConfig reads the YAML file at configPath over the defaults and
// validates the result. A missing file is an error wrapping fs.ErrNotExist.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig validates cfg and writes it as YAML, creating parent directories
func SaveConfig(cfg *Config, configPath string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// WriteDefault writes the default configuration to configPath as a starting
// point for --config
func WriteDefault(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
