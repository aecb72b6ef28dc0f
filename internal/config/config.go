// Package config loads testpilot settings from defaults, an optional YAML
// file and TESTPILOT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g.
// TESTPILOT_BACKEND_BASE_URL.
const EnvPrefix = "TESTPILOT"

// Config is the effective configuration.
type Config struct {
	Backend     BackendConfig     `mapstructure:"backend" yaml:"backend"`
	Gateway     GatewayConfig     `mapstructure:"gateway" yaml:"gateway"`
	Simulator   SimulatorConfig   `mapstructure:"simulator" yaml:"simulator"`
	Storage     StorageConfig     `mapstructure:"storage" yaml:"storage"`
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	PageContext PageContextConfig `mapstructure:"page_context" yaml:"page_context"`
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
}

// BackendConfig points at the real AI service.
type BackendConfig struct {
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	HealthTimeout     time.Duration `mapstructure:"health_timeout" yaml:"health_timeout"`
}

// GatewayConfig controls backend selection.
type GatewayConfig struct {
	InitialMode           string        `mapstructure:"initial_mode" yaml:"initial_mode"`
	AutoFallback          bool          `mapstructure:"auto_fallback" yaml:"auto_fallback"`
	FallbackOnEmptySearch bool          `mapstructure:"fallback_on_empty_search" yaml:"fallback_on_empty_search"`
	HealthInterval        time.Duration `mapstructure:"health_interval" yaml:"health_interval"`
}

// SimulatorConfig tunes the offline backend.
type SimulatorConfig struct {
	MinDelay       time.Duration `mapstructure:"min_delay" yaml:"min_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	ErrorInjection bool          `mapstructure:"error_injection" yaml:"error_injection"`
	ErrorRate      float64       `mapstructure:"error_rate" yaml:"error_rate"`
	Seed           uint64        `mapstructure:"seed" yaml:"seed"`
}

// StorageConfig controls where tests are written.
type StorageConfig struct {
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
}

// DatabaseConfig holds the saved-test index connection. Empty disables it.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url" yaml:"-"`
	MaxConns       int32         `mapstructure:"max_conns" yaml:"max_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

// PageContextConfig controls live page snapshots for generation requests.
type PageContextConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// ServerConfig configures the gateway HTTP server.
type ServerConfig struct {
	Port         string        `mapstructure:"port" yaml:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", "http://localhost:8000")
	v.SetDefault("backend.timeout", 60*time.Second)
	v.SetDefault("backend.requests_per_second", 5.0)
	v.SetDefault("backend.health_timeout", 5*time.Second)

	v.SetDefault("gateway.initial_mode", "real")
	v.SetDefault("gateway.auto_fallback", true)
	v.SetDefault("gateway.fallback_on_empty_search", false)
	v.SetDefault("gateway.health_interval", 30*time.Second)

	v.SetDefault("simulator.min_delay", 300*time.Millisecond)
	v.SetDefault("simulator.max_delay", 500*time.Millisecond)
	v.SetDefault("simulator.error_injection", false)
	v.SetDefault("simulator.error_rate", 0.1)
	v.SetDefault("simulator.seed", 0)

	v.SetDefault("storage.output_dir", "tests")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.connect_timeout", 5*time.Second)

	v.SetDefault("page_context.enabled", false)
	v.SetDefault("page_context.timeout", 30*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "testpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
}

// NewDefaultConfig returns the configuration built from defaults alone.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// New creates a viper instance wired for testpilot: defaults, environment
// overrides and the config file search path. An explicit file wins over
// the search path.
func New(file string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		return v
	}
	v.SetConfigName("testpilot")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".testpilot"))
	}
	return v
}

// Load reads the configuration. A missing config file is not an error
// unless it was named explicitly.
func Load(file string) (*Config, error) {
	v := New(file)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return NewConfigFromViper(v)
}

// NewConfigFromViper decodes and validates the settings held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be a positive duration")
	}
	if c.Backend.RequestsPerSecond < 0 {
		return fmt.Errorf("backend.requests_per_second must not be negative")
	}
	switch strings.ToLower(c.Gateway.InitialMode) {
	case "", "real", "simulated", "simulator", "mock":
	default:
		return fmt.Errorf("gateway.initial_mode must be real or mock, got %q", c.Gateway.InitialMode)
	}
	if c.Gateway.HealthInterval < 0 {
		return fmt.Errorf("gateway.health_interval must not be negative")
	}
	if c.Simulator.MinDelay < 0 || c.Simulator.MaxDelay < c.Simulator.MinDelay {
		return fmt.Errorf("simulator delays must satisfy 0 <= min_delay <= max_delay")
	}
	if c.Simulator.ErrorRate < 0 || c.Simulator.ErrorRate > 1 {
		return fmt.Errorf("simulator.error_rate must be between 0.0 and 1.0")
	}
	if c.Database.MaxConns < 0 {
		return fmt.Errorf("database.max_conns must not be negative")
	}
	switch c.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be console or json, got %q", c.Logger.Format)
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	return nil
}

// Render returns the configuration as YAML. Secrets are omitted.
func (c *Config) Render() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	return out, nil
}
