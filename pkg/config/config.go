// Package config provides configuration loading and management for czi2ims.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/georgkislinger/CZI-to-TIF-or-Imaris-GUI/internal/models"
)

// Output formats understood by the converter
const (
	FormatOMETIFF = "ometiff"
	FormatImaris  = "ims"
)

// UI modes
const (
	UIModeTUI     = "tui"
	UIModeConsole = "console"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Conversion parameters
	Conversion struct {
		// ScaleFactor is passed to every mosaic read; 1.0 keeps full resolution
		ScaleFactor float64 `yaml:"scaleFactor"`

		// DefaultFormat is preselected when Imaris output is available
		DefaultFormat string `yaml:"defaultFormat"`
	} `yaml:"conversion"`

	// Imaris writer parameters
	Imaris struct {
		// Enabled allows Imaris export when the HDF5 backend passes its start-up probe
		Enabled bool `yaml:"enabled"`

		// ApplicationName and ApplicationVersion are stored in the .ims file
		ApplicationName    string `yaml:"applicationName"`
		ApplicationVersion string `yaml:"applicationVersion"`

		// DefaultVoxelSize is offered in the voxel size prompts
		DefaultVoxelSize models.VoxelSize `yaml:"defaultVoxelSize"`

		// ProgressStep is the minimum progress increase, in percent, between reports
		ProgressStep int `yaml:"progressStep"`

		// AdjustColorRange derives each channel's display range from its data
		AdjustColorRange bool `yaml:"adjustColorRange"`
	} `yaml:"imaris"`

	// OME-TIFF writer parameters
	OMETIFF struct {
		// Software is written to the TIFF Software tag
		Software string `yaml:"software"`

		// ForceBigTIFF writes 64-bit offsets even for small files
		ForceBigTIFF bool `yaml:"forceBigTIFF"`
	} `yaml:"ometiff"`

	// Output parameters
	Output struct {
		// LogLevel is a logrus level name
		LogLevel string `yaml:"logLevel"`

		// PreviewDir receives per-channel projection previews when set
		PreviewDir string `yaml:"previewDir"`

		// PreviewMaxSize bounds the longest preview edge in pixels
		PreviewMaxSize int `yaml:"previewMaxSize"`

		// Verify re-reads a written OME-TIFF and checks its shape
		Verify bool `yaml:"verify"`
	} `yaml:"output"`

	// UI parameters
	UI struct {
		// Mode selects the dialog implementation
		Mode string `yaml:"mode"`
	} `yaml:"ui"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default conversion parameters
	cfg.Conversion.ScaleFactor = 1.0
	cfg.Conversion.DefaultFormat = FormatImaris

	// Set default Imaris parameters
	cfg.Imaris.Enabled = true
	cfg.Imaris.ApplicationName = "CZI2IMS"
	cfg.Imaris.ApplicationVersion = "1.0"
	cfg.Imaris.DefaultVoxelSize = models.VoxelSize{X: 1.0, Y: 1.0, Z: 1.0}
	cfg.Imaris.ProgressStep = 5
	cfg.Imaris.AdjustColorRange = true

	// Set default OME-TIFF parameters
	cfg.OMETIFF.Software = "czi2ims"

	// Set default output parameters
	cfg.Output.LogLevel = "info"
	cfg.Output.PreviewMaxSize = 512

	cfg.UI.Mode = UIModeTUI

	return cfg
}

// Validate checks value ranges and enumerations
func (c *Config) Validate() error {
	if !(c.Conversion.ScaleFactor > 0) || c.Conversion.ScaleFactor > 1 {
		return errors.Errorf("conversion.scaleFactor must be in (0, 1], got %g", c.Conversion.ScaleFactor)
	}
	if c.Conversion.DefaultFormat != FormatOMETIFF && c.Conversion.DefaultFormat != FormatImaris {
		return errors.Errorf("conversion.defaultFormat must be %q or %q, got %q",
			FormatOMETIFF, FormatImaris, c.Conversion.DefaultFormat)
	}
	if err := c.Imaris.DefaultVoxelSize.Validate(); err != nil {
		return errors.Wrap(err, "imaris.defaultVoxelSize")
	}
	if c.Imaris.ProgressStep < 1 || c.Imaris.ProgressStep > 100 {
		return errors.Errorf("imaris.progressStep must be in [1, 100], got %d", c.Imaris.ProgressStep)
	}
	if c.Output.PreviewMaxSize < 1 {
		return errors.Errorf("output.previewMaxSize must be positive, got %d", c.Output.PreviewMaxSize)
	}
	if c.UI.Mode != UIModeTUI && c.UI.Mode != UIModeConsole {
		return errors.Errorf("ui.mode must be %q or %q, got %q", UIModeTUI, UIModeConsole, c.UI.Mode)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing config file")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config file")
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "error creating config directory")
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "error marshaling config")
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(err, "error writing config file")
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
