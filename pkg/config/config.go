package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/marmos91/webio/pkg/alloc"
)

// Config represents the complete webio configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (WEBIO_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// Backend Configuration Pattern:
// Each backend type defines its own option struct. A BackendConfig carries
// the type name and a free-form option map that the matching factory
// decodes with mapstructure.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Allocator selects the object allocation discipline
	Allocator AllocatorConfig `mapstructure:"allocator" yaml:"allocator"`

	// Session contains session manager settings
	Session SessionConfig `mapstructure:"session" yaml:"session"`

	// Backends lists storage backends in priority order
	Backends []BackendConfig `mapstructure:"backends" yaml:"backends" validate:"dive"`

	// Auth holds the credentials guarding embedded entries flagged AUTH
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`

	// Metrics controls Prometheus metrics collection
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// AllocatorConfig selects how sessions, files, buffers and forms are stored.
type AllocatorConfig struct {
	// Strategy is the allocation discipline for every object kind
	// Valid values: heap, pool
	Strategy string `mapstructure:"strategy" yaml:"strategy" validate:"required,oneof=heap pool"`

	// Limits sizes each pool when Strategy is pool
	Limits alloc.Limits `mapstructure:"limits" yaml:"limits"`
}

// SessionConfig contains session manager settings.
type SessionConfig struct {
	// IdleTimeout closes persistent connections idle for longer
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"required,gt=0"`

	// TrapMode decides what an invariant violation does
	// Valid values: panic (abort the caller), error (return it)
	TrapMode string `mapstructure:"trap_mode" yaml:"trap_mode" validate:"required,oneof=panic error"`
}

// BackendConfig defines one storage backend.
type BackendConfig struct {
	// Name identifies the backend in logs and metrics
	Name string `mapstructure:"name" yaml:"name" validate:"required"`

	// Type selects the implementation
	// Valid values: embedded, native, s3, kv
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=embedded native s3 kv"`

	// Options holds type-specific settings
	Options map[string]any `mapstructure:"options" yaml:"options,omitempty"`
}

// AuthConfig holds the credentials checked for protected embedded entries.
type AuthConfig struct {
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
}

// MetricsConfig controls metrics collection.
type MetricsConfig struct {
	// Enabled turns on Prometheus collection
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Listen is the address the metrics endpoint binds to
	Listen string `mapstructure:"listen" yaml:"listen" validate:"required"`
}

// Load loads configuration from file, environment, and defaults.
//
// An empty configPath searches the default location. A missing file is
// not an error: defaults are used.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: WEBIO_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("WEBIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	// Default location: $XDG_CONFIG_HOME/webio/config.yaml
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns $XDG_CONFIG_HOME/webio, else ~/.config/webio, else
// the current directory.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "webio")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "webio")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
