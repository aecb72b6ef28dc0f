package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "http://localhost:8000", cfg.Backend.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, "real", cfg.Gateway.InitialMode)
	assert.True(t, cfg.Gateway.AutoFallback)
	assert.False(t, cfg.Gateway.FallbackOnEmptySearch)
	assert.Equal(t, 300*time.Millisecond, cfg.Simulator.MinDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Simulator.MaxDelay)
	assert.Equal(t, "tests", cfg.Storage.OutputDir)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.Equal(t, int32(4), cfg.Database.MaxConns)
	assert.Equal(t, 5*time.Second, cfg.Database.ConnectTimeout)
	assert.Equal(t, "8080", cfg.Server.Port)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing base url", func(c *Config) { c.Backend.BaseURL = "" }, "backend.base_url"},
		{"zero timeout", func(c *Config) { c.Backend.Timeout = 0 }, "backend.timeout"},
		{"negative rps", func(c *Config) { c.Backend.RequestsPerSecond = -1 }, "requests_per_second"},
		{"bad mode", func(c *Config) { c.Gateway.InitialMode = "auto" }, "gateway.initial_mode"},
		{"inverted delays", func(c *Config) { c.Simulator.MaxDelay = time.Millisecond }, "simulator delays"},
		{"error rate above one", func(c *Config) { c.Simulator.ErrorRate = 1.5 }, "error_rate"},
		{"negative max conns", func(c *Config) { c.Database.MaxConns = -1 }, "database.max_conns"},
		{"bad log format", func(c *Config) { c.Logger.Format = "xml" }, "logger.format"},
		{"missing port", func(c *Config) { c.Server.Port = "" }, "server.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("mock mode accepted", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Gateway.InitialMode = "mock"
		assert.NoError(t, cfg.Validate())
	})
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "testpilot.yaml")
	content := `
backend:
  base_url: http://ai.internal:9000
  timeout: 10s
gateway:
  auto_fallback: false
simulator:
  error_injection: true
  error_rate: 0.25
  seed: 99
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://ai.internal:9000", cfg.Backend.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Backend.Timeout)
	assert.False(t, cfg.Gateway.AutoFallback)
	assert.True(t, cfg.Simulator.ErrorInjection)
	assert.Equal(t, 0.25, cfg.Simulator.ErrorRate)
	assert.Equal(t, uint64(99), cfg.Simulator.Seed)
	assert.Equal(t, "tests", cfg.Storage.OutputDir, "unset keys keep defaults")
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "testpilot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("simulator:\n  error_rate: 3\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TESTPILOT_BACKEND_BASE_URL", "http://from-env:8000")
	t.Setenv("TESTPILOT_GATEWAY_INITIAL_MODE", "mock")

	v := New("")
	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "http://from-env:8000", cfg.Backend.BaseURL)
	assert.Equal(t, "mock", cfg.Gateway.InitialMode)
}

func TestNewConfigFromViperOverrides(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("server.port", "9090")

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
}

func TestRenderOmitsDatabaseURL(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Database.URL = "postgres://user:secret@db/testpilot"

	out, err := cfg.Render()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "secret")

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Contains(t, decoded, "backend")
	assert.Contains(t, decoded, "simulator")
}
