// Package metrics provides Prometheus metrics collection for webio.
//
// All metrics are optional. If InitRegistry has not been called every
// constructor returns nil and the components fall back to no-op behaviour,
// so webio runs with or without metrics collection enabled.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Create metrics instances for components
//	sm := metrics.NewSessionMetrics()
//	mgr := session.New(registry, session.Config{Metrics: sm})
//
//	// Expose allocator usage on scrape
//	_ = metrics.RegisterAllocStats(mgr)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "webio"

var (
	// registry is written once by InitRegistry and read many times.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// This must be called before creating any metrics instances. It's safe to
// call multiple times; subsequent calls are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global Prometheus registry, or nil when metrics
// are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
