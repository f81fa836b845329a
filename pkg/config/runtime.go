package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/webio/internal/logger"
	"github.com/marmos91/webio/pkg/alloc"
	"github.com/marmos91/webio/pkg/fault"
	"github.com/marmos91/webio/pkg/fsys"
	"github.com/marmos91/webio/pkg/fsys/embedded"
	"github.com/marmos91/webio/pkg/metrics"
	"github.com/marmos91/webio/pkg/session"
)

// Runtime holds every component built from a Config.
type Runtime struct {
	// Registry is the frozen backend list
	Registry *fsys.Registry

	// Manager owns sessions, open files, transmit buffers and forms
	Manager *session.Manager

	// Embedded indexes embedded backends by name, for routine binding
	Embedded map[string]*embedded.Backend

	// MetricsServer exposes Prometheus metrics (nil if disabled)
	MetricsServer *metrics.Server

	shutdowns []func() error
}

// Build creates the backends, registry and session manager described by cfg.
//
// The trap mode is applied process-wide. When metrics are enabled the
// global registry is initialized before any collector is created. On error
// every backend already created is shut down.
func Build(ctx context.Context, cfg *Config, builtin embedded.Table) (*Runtime, error) {
	mode, err := fault.ParseMode(cfg.Session.TrapMode)
	if err != nil {
		return nil, err
	}
	fault.SetMode(mode)

	rt := &Runtime{
		Registry: fsys.NewRegistry(),
		Embedded: make(map[string]*embedded.Backend),
	}

	for _, b := range cfg.Backends {
		backend, err := CreateBackend(ctx, b, cfg, builtin)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("backend %q: %w", b.Name, err)
		}
		if s, ok := backend.(interface{ Shutdown() error }); ok {
			rt.shutdowns = append(rt.shutdowns, s.Shutdown)
		}
		if e, ok := backend.(*embedded.Backend); ok {
			rt.Embedded[b.Name] = e
		}
		if err := rt.Registry.Register(b.Name, backend); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}
	rt.Registry.Freeze()

	var sessionMetrics metrics.SessionMetrics
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		rt.MetricsServer = metrics.NewServer(metrics.ServerConfig{Listen: cfg.Metrics.Listen})
		sessionMetrics = metrics.NewSessionMetrics()
	}

	rt.Manager = session.New(rt.Registry, session.Config{
		Strategy:    alloc.Strategy(cfg.Allocator.Strategy),
		Limits:      cfg.Allocator.Limits,
		IdleTimeout: cfg.Session.IdleTimeout,
		Metrics:     sessionMetrics,
	})

	if err := metrics.RegisterAllocStats(rt.Manager); err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("register allocator metrics: %w", err)
	}

	logger.Info("Runtime ready: backends=%d, strategy=%s, trap_mode=%s",
		len(cfg.Backends), cfg.Allocator.Strategy, mode)
	return rt, nil
}

// BindMemoryStats binds the allocator statistics routine to the named
// entry of every embedded backend that serves it. It returns the number of
// entries bound.
func (rt *Runtime) BindMemoryStats(entry string) int {
	bound := 0
	for name, b := range rt.Embedded {
		if _, ok := b.Lookup(entry); !ok {
			continue
		}
		if err := b.Table().Bind(entry, session.MemoryStatsRoutine(rt.Manager)); err == nil {
			logger.Debug("Bound memory statistics to %s/%s", name, entry)
			bound++
		}
	}
	return bound
}

// Close ends every session and shuts down backends that hold resources.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Manager != nil {
		if err := rt.Manager.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, shutdown := range rt.shutdowns {
		if err := shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	rt.shutdowns = nil
	return errors.Join(errs...)
}
