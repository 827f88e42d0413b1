package heapprof

import "github.com/prometheus/client_golang/prometheus"

// Stats is a point-in-time summary of the profiler counters. Alloc numbers
// cover every allocation seen since Start, not only the sampled ones; the
// in-use numbers are derived from the sampled entries and are only
// meaningful when free tracking is on.
type Stats struct {
	AllocBytes   int64
	AllocObjects int64
	InuseBytes   int64
	InuseObjects int64
	Samples      int64
}

// ReadStats reads the current counters under the profiler read lock. It is
// safe to call at any time and never touches the allocation hot path.
func ReadStats() Stats {
	state := profiler.state.Load()
	profiler.mu.RLock()
	defer profiler.mu.RUnlock()

	s := Stats{
		AllocBytes:   state.allocatedBytes.Load(),
		AllocObjects: state.allocatedObjects.Load(),
		Samples:      state.collector.samples,
	}
	state.collector.forEach(func(_ *stackRecord, rec *profileRecord) {
		s.InuseBytes += rec.inUseBytes()
		s.InuseObjects += rec.inUseObjects()
	})
	return s
}

type statsCollector struct {
	allocBytes   *prometheus.Desc
	allocObjects *prometheus.Desc
	inuseBytes   *prometheus.Desc
	samples      *prometheus.Desc
}

// NewStatsCollector returns a prometheus.Collector exposing the profiler
// counters, for processes that already run a metrics endpoint.
func NewStatsCollector() prometheus.Collector {
	return &statsCollector{
		allocBytes: prometheus.NewDesc("heapprof_alloc_bytes_total",
			"Bytes allocated through the heap hooks since the profiler started.", nil, nil),
		allocObjects: prometheus.NewDesc("heapprof_alloc_objects_total",
			"Objects allocated through the heap hooks since the profiler started.", nil, nil),
		inuseBytes: prometheus.NewDesc("heapprof_inuse_bytes",
			"Sampled bytes allocated and not yet freed. Requires free tracking.", nil, nil),
		samples: prometheus.NewDesc("heapprof_samples_total",
			"Allocation samples recorded by the collector.", nil, nil),
	}
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.allocBytes
	ch <- c.allocObjects
	ch <- c.inuseBytes
	ch <- c.samples
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	s := ReadStats()
	ch <- prometheus.MustNewConstMetric(c.allocBytes, prometheus.CounterValue, float64(s.AllocBytes))
	ch <- prometheus.MustNewConstMetric(c.allocObjects, prometheus.CounterValue, float64(s.AllocObjects))
	ch <- prometheus.MustNewConstMetric(c.inuseBytes, prometheus.GaugeValue, float64(s.InuseBytes))
	ch <- prometheus.MustNewConstMetric(c.samples, prometheus.CounterValue, float64(s.Samples))
}
