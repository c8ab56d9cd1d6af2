// Package config loads upscaler settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port        string `yaml:"port"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`
}

// Config holds every tunable of the CLI and the server.
type Config struct {
	LogLevel           string       `yaml:"log_level"`
	LogFormat          string       `yaml:"log_format"`
	OnnxRuntimeLibrary string       `yaml:"onnxruntime_library"`
	ModelPath          string       `yaml:"model_path"`
	TileSize           int          `yaml:"tile_size"`
	ScaleFactor        int          `yaml:"scale_factor"`
	Workers            int          `yaml:"workers"`
	InferenceThreads   int          `yaml:"inference_threads"`
	JPEGQuality        int          `yaml:"jpeg_quality"`
	Server             ServerConfig `yaml:"server"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		LogLevel:    "info",
		LogFormat:   "text",
		TileSize:    128,
		ScaleFactor: 2,
		JPEGQuality: 95,
		Server: ServerConfig{
			Port:        "8080",
			MaxUploadMB: 10,
		},
	}
}

// Load starts from Default, overlays the YAML file at path (if path is not
// empty), applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("UPSCALER_ORT_LIBRARY"); v != "" {
		c.OnnxRuntimeLibrary = v
	}
	if v := os.Getenv("UPSCALER_MODEL"); v != "" {
		c.ModelPath = v
	}
	if v := os.Getenv("UPSCALER_TILE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid UPSCALER_TILE_SIZE %q: %w", v, err)
		}
		c.TileSize = n
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	return nil
}

var (
	logLevels  = []string{"trace", "debug", "info", "warn", "warning", "error", "fatal", "panic"}
	logFormats = []string{"text", "json"}
)

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if !lo.Contains(logLevels, c.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level %q must be one of %v", c.LogLevel, logLevels))
	}
	if !lo.Contains(logFormats, c.LogFormat) {
		errs = append(errs, fmt.Errorf("log_format %q must be one of %v", c.LogFormat, logFormats))
	}
	if c.TileSize <= 0 {
		errs = append(errs, fmt.Errorf("tile_size must be positive, got %d", c.TileSize))
	}
	if c.ScaleFactor < 1 {
		errs = append(errs, fmt.Errorf("scale_factor must be at least 1, got %d", c.ScaleFactor))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if c.InferenceThreads < 0 {
		errs = append(errs, fmt.Errorf("inference_threads must not be negative, got %d", c.InferenceThreads))
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("jpeg_quality must be 1-100, got %d", c.JPEGQuality))
	}
	if c.Server.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_mb must be positive, got %d", c.Server.MaxUploadMB))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
