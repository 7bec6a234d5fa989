package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Exporter exposes a Collector's snapshot as prometheus metrics. It
// implements prometheus.Collector and owns its own Registry, so scraping
// never touches the default registry.
type Exporter struct {
	collector *Collector
	registry  *prometheus.Registry

	strategyCalls    *prometheus.Desc
	strategyNonRead  *prometheus.Desc
	strategyBypassed *prometheus.Desc
	strategyBlocked  *prometheus.Desc
	extentLookups    *prometheus.Desc
	extentHits       *prometheus.Desc
	hitBlkMissing    *prometheus.Desc
	requestedBlocks  *prometheus.Desc
	hitBlocks        *prometheus.Desc
	readBlocks       *prometheus.Desc
	readErrors       *prometheus.Desc
	errorDiscards    *prometheus.Desc
	writeDiscards    *prometheus.Desc
	initiatedReads   *prometheus.Desc
	waitSeconds      *prometheus.Desc
	totalExtents     *prometheus.Desc
	historyClusters  *prometheus.Desc
}

// NewExporter creates an exporter over c under the given metric namespace
// and registers it with a fresh registry.
func NewExporter(c *Collector, namespace string) *Exporter {
	if namespace == "" {
		namespace = "bootcache"
	}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}

	e := &Exporter{
		collector: c,
		registry:  prometheus.NewRegistry(),

		strategyCalls:    desc("strategy_calls_total", "Inbound I/O requests intercepted."),
		strategyNonRead:  desc("strategy_nonread_total", "Intercepted requests that were not reads."),
		strategyBypassed: desc("strategy_bypassed_total", "Requests bypassed straight to the device."),
		strategyBlocked:  desc("strategy_blocked_total", "Requests that blocked waiting for blocks."),
		extentLookups:    desc("extent_lookups_total", "Extent index lookups."),
		extentHits:       desc("extent_hits_total", "Extent index lookups that matched."),
		hitBlkMissing:    desc("hit_blkmissing_total", "Hits degraded because blocks were not resident."),
		requestedBlocks:  desc("requested_blocks_total", "Blocks requested by intercepted reads."),
		hitBlocks:        desc("hit_blocks_total", "Blocks served from the cache."),
		readBlocks:       desc("read_blocks_total", "Blocks read from the device by prefetch."),
		readErrors:       desc("read_errors_total", "Device read errors during prefetch."),
		errorDiscards:    desc("error_discards_total", "Blocks discarded due to read errors."),
		writeDiscards:    desc("write_discards_total", "Blocks discarded due to overwrites."),
		initiatedReads:   desc("initiated_reads_total", "Device reads initiated by prefetch."),
		waitSeconds:      desc("wait_seconds_total", "Total time interception threads spent blocked."),
		totalExtents:     desc("extents", "Extents currently in the cache index."),
		historyClusters:  desc("history_clusters", "Allocated history clusters."),
	}
	e.registry.MustRegister(e)
	return e
}

// Registry returns the exporter's registry, suitable for promhttp.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range e.descs() {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	s := e.collector.Snapshot()

	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(e.strategyCalls, s.StrategyCalls)
	counter(e.strategyNonRead, s.StrategyNonRead)
	counter(e.strategyBypassed, s.StrategyBypassed+s.StrategyBypassActive)
	counter(e.strategyBlocked, s.StrategyBlocked)
	counter(e.extentLookups, s.ExtentLookups)
	counter(e.extentHits, s.ExtentHits)
	counter(e.hitBlkMissing, s.HitBlkMissing)
	counter(e.requestedBlocks, s.RequestedBlocks)
	counter(e.hitBlocks, s.HitBlocks)
	counter(e.readBlocks, s.ReadBlocks)
	counter(e.readErrors, s.ReadErrors)
	counter(e.errorDiscards, s.ErrorDiscards)
	counter(e.writeDiscards, s.WriteDiscards)
	counter(e.initiatedReads, s.InitiatedReads)

	ch <- prometheus.MustNewConstMetric(e.waitSeconds, prometheus.CounterValue, s.WaitTime.Seconds())
	ch <- prometheus.MustNewConstMetric(e.totalExtents, prometheus.GaugeValue, float64(s.TotalExtents))
	ch <- prometheus.MustNewConstMetric(e.historyClusters, prometheus.GaugeValue, float64(s.HistoryClusters))
}

func (e *Exporter) descs() []*prometheus.Desc {
	return []*prometheus.Desc{
		e.strategyCalls, e.strategyNonRead, e.strategyBypassed, e.strategyBlocked,
		e.extentLookups, e.extentHits, e.hitBlkMissing,
		e.requestedBlocks, e.hitBlocks, e.readBlocks,
		e.readErrors, e.errorDiscards, e.writeDiscards,
		e.initiatedReads, e.waitSeconds, e.totalExtents, e.historyClusters,
	}
}
