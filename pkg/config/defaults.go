package config

import (
	"strings"

	"github.com/marmos91/webio/pkg/alloc"
	"github.com/marmos91/webio/pkg/metrics"
	"github.com/marmos91/webio/pkg/session"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced; explicit values are preserved. Backend option
// defaults are applied by the backend factories.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyAllocatorDefaults(&cfg.Allocator)
	applySessionDefaults(&cfg.Session)

	if len(cfg.Backends) == 0 {
		cfg.Backends = []BackendConfig{{Name: "rom", Type: "embedded"}}
	}
	for i := range cfg.Backends {
		if cfg.Backends[i].Options == nil {
			cfg.Backends[i].Options = make(map[string]any)
		}
	}

	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = metrics.DefaultListen
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyAllocatorDefaults(cfg *AllocatorConfig) {
	if cfg.Strategy == "" {
		cfg.Strategy = string(alloc.StrategyHeap)
	}
	cfg.Strategy = strings.ToLower(cfg.Strategy)

	def := alloc.DefaultLimits()
	if cfg.Limits.Sessions == 0 {
		cfg.Limits.Sessions = def.Sessions
	}
	if cfg.Limits.Files == 0 {
		cfg.Limits.Files = def.Files
	}
	if cfg.Limits.Buffers == 0 {
		cfg.Limits.Buffers = def.Buffers
	}
	if cfg.Limits.Forms == 0 {
		cfg.Limits.Forms = def.Forms
	}
	if cfg.Limits.EmbeddedFiles == 0 {
		cfg.Limits.EmbeddedFiles = def.EmbeddedFiles
	}
}

func applySessionDefaults(cfg *SessionConfig) {
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = session.DefaultIdleTimeout
	}
	if cfg.TrapMode == "" {
		cfg.TrapMode = "panic"
	}
	cfg.TrapMode = strings.ToLower(cfg.TrapMode)
}

// GetDefaultConfig returns a Config with all default values applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
