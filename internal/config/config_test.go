package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{"UPSCALER_ORT_LIBRARY", "UPSCALER_MODEL", "UPSCALER_TILE_SIZE", "PORT"} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upscaler.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 128, cfg.TileSize)
	assert.Equal(t, 2, cfg.ScaleFactor)
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
log_level: debug
log_format: json
model_path: /models/sr.onnx
tile_size: 256
workers: 4
server:
  port: "9090"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "/models/sr.onnx", cfg.ModelPath)
	assert.Equal(t, 256, cfg.TileSize)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "9090", cfg.Server.Port)
	// untouched keys keep their defaults
	assert.Equal(t, 95, cfg.JPEGQuality)
	assert.Equal(t, int64(10), cfg.Server.MaxUploadMB)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("UPSCALER_ORT_LIBRARY", "/opt/onnxruntime.so")
	t.Setenv("UPSCALER_MODEL", "env.onnx")
	t.Setenv("UPSCALER_TILE_SIZE", "64")
	t.Setenv("PORT", "7000")

	cfg, err := Load(writeConfig(t, "model_path: file.onnx\n"))
	require.NoError(t, err)
	assert.Equal(t, "/opt/onnxruntime.so", cfg.OnnxRuntimeLibrary)
	assert.Equal(t, "env.onnx", cfg.ModelPath)
	assert.Equal(t, 64, cfg.TileSize)
	assert.Equal(t, "7000", cfg.Server.Port)
}

func TestLoadBadEnv(t *testing.T) {
	t.Setenv("UPSCALER_TILE_SIZE", "big")
	_, err := Load("")
	assert.ErrorContains(t, err, "UPSCALER_TILE_SIZE")
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config")

	_, err = Load(writeConfig(t, "tile_size: [1, 2\n"))
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"tile", func(c *Config) { c.TileSize = 0 }, "tile_size"},
		{"scale", func(c *Config) { c.ScaleFactor = 0 }, "scale_factor"},
		{"workers", func(c *Config) { c.Workers = -1 }, "workers"},
		{"threads", func(c *Config) { c.InferenceThreads = -2 }, "inference_threads"},
		{"jpeg", func(c *Config) { c.JPEGQuality = 101 }, "jpeg_quality"},
		{"upload", func(c *Config) { c.Server.MaxUploadMB = 0 }, "max_upload_mb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	assert.NoError(t, Default().Validate())
}
