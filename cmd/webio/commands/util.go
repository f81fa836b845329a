package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/marmos91/webio/internal/logger"
	"github.com/marmos91/webio/pkg/config"
)

// loadConfig loads the configuration selected by --config and applies the
// --log-level override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// setupLogging installs the configured logger. The returned closer releases
// the log file, if any.
func setupLogging(cfg *config.Config) (io.Closer, error) {
	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	return logger.Open(cfg.Logging.Output)
}

// start loads configuration, configures logging and builds the runtime.
// The returned function tears everything down.
func start(ctx context.Context) (*config.Config, *config.Runtime, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	logs, err := setupLogging(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	rt, err := config.Build(ctx, cfg, Site())
	if err != nil {
		_ = logs.Close()
		return nil, nil, nil, fmt.Errorf("failed to build runtime: %w", err)
	}
	rt.BindMemoryStats(MemoryStatsEntry)

	stop := func() {
		if err := rt.Close(); err != nil {
			logger.Error("Shutdown: %v", err)
		}
		_ = logs.Close()
	}
	return cfg, rt, stop, nil
}
