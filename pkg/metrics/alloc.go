package metrics

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/webio/pkg/alloc"
)

// allocCollector reads allocator statistics at scrape time, so the
// allocators themselves never touch Prometheus.
type allocCollector struct {
	reporter alloc.StatsReporter

	blocks      *prometheus.Desc
	bytes       *prometheus.Desc
	maxBytes    *prometheus.Desc
	totalBlocks *prometheus.Desc
	capacity    *prometheus.Desc
}

// NewAllocCollector returns a collector exporting the statistics of
// every allocator kind known to reporter.
func NewAllocCollector(reporter alloc.StatsReporter) prometheus.Collector {
	labels := []string{"kind"}
	return &allocCollector{
		reporter: reporter,
		blocks: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "alloc", "blocks"),
			"Live objects held by the allocator",
			labels, nil,
		),
		bytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "alloc", "bytes"),
			"Payload bytes of live objects",
			labels, nil,
		),
		maxBytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "alloc", "max_bytes"),
			"High-water mark of payload bytes",
			labels, nil,
		),
		totalBlocks: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "alloc", "acquired_total"),
			"Total number of successful acquisitions",
			labels, nil,
		),
		capacity: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "alloc", "capacity"),
			"Fixed slot count of pool allocators (0 for heap)",
			labels, nil,
		),
	}
}

// RegisterAllocStats registers an allocator collector with the global
// registry. It is a no-op when metrics are disabled.
func RegisterAllocStats(reporter alloc.StatsReporter) error {
	if !IsEnabled() {
		return nil
	}
	return GetRegistry().Register(NewAllocCollector(reporter))
}

func (c *allocCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.blocks
	ch <- c.bytes
	ch <- c.maxBytes
	ch <- c.totalBlocks
	ch <- c.capacity
}

func (c *allocCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.reporter.AllocStats()

	kinds := make([]string, 0, len(stats))
	for k := range stats {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	for _, kind := range kinds {
		s := stats[kind]
		ch <- prometheus.MustNewConstMetric(c.blocks, prometheus.GaugeValue, float64(s.Blocks), kind)
		ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, float64(s.Bytes), kind)
		ch <- prometheus.MustNewConstMetric(c.maxBytes, prometheus.GaugeValue, float64(s.MaxBytes), kind)
		ch <- prometheus.MustNewConstMetric(c.totalBlocks, prometheus.CounterValue, float64(s.TotalBlocks), kind)
		ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.Capacity), kind)
	}
}
