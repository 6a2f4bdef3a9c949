// Package metrics exposes the module's prometheus instrumentation: a
// handful of counters/histograms, registered on the Registry's own
// prometheus registry, that any caller can increment directly, plus a lvmcache-backed Collector grounded on
// siebenmann-zfs_exporter's custom prometheus.Collector (a collector
// that derives its samples from live state on every scrape instead of
// tracking running counters itself).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lvm2go/lvm2core/internal/label"
)

const namespace = "lvm2core"

// Registry bundles a private prometheus.Registerer with the metrics
// this module updates, so a toolcontext can wire it into an HTTP
// handler (promhttp.HandlerFor) without reaching into package-level
// globals — mirrors how the rest of this module threads every piece of
// shared state through an explicit struct rather than init()-time
// globals.
type Registry struct {
	reg *prometheus.Registry

	DevCacheScans           prometheus.Counter
	LabelScansTotal         prometheus.Counter
	LabelScanFailuresTotal  prometheus.Counter
	LabelScanDuration       prometheus.Histogram
	AllocationFailuresTotal prometheus.Counter
	VGCommitsTotal          prometheus.Counter
	VGCommitFailuresTotal   prometheus.Counter
}

// New builds a Registry with every counter/histogram pre-registered.
// Passing a non-nil cache additionally registers a Collector that
// reports lvmcache_vginfo_count on every scrape.
func New(cache *label.Cache) *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		DevCacheScans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "devcache_scans_total",
			Help:      "Number of times the device cache has performed a full directory scan.",
		}),
		LabelScansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "label_scans_total",
			Help:      "Number of devices a label scan has read the leading window of.",
		}),
		LabelScanFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "label_scan_failures_total",
			Help:      "Number of devices whose label window could not be read or resolved to a vg.",
		}),
		LabelScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "label_scan_duration_seconds",
			Help:      "Wall-clock time spent scanning all devices once.",
			Buckets:   prometheus.DefBuckets,
		}),
		AllocationFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocation_failures_total",
			Help:      "Number of extent allocation requests that ended in out-of-space or policy failure.",
		}),
		VGCommitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vg_commits_total",
			Help:      "Number of successful volume group metadata commits.",
		}),
		VGCommitFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vg_commit_failures_total",
			Help:      "Number of volume group metadata commits that failed or were reverted.",
		}),
	}

	reg.MustRegister(
		r.DevCacheScans,
		r.LabelScansTotal,
		r.LabelScanFailuresTotal,
		r.LabelScanDuration,
		r.AllocationFailuresTotal,
		r.VGCommitsTotal,
		r.VGCommitFailuresTotal,
	)
	if cache != nil {
		reg.MustRegister(&cacheCollector{cache: cache})
	}
	return r
}

// Gatherer exposes the underlying registry for promhttp.HandlerFor.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Registerer exposes the underlying registry so a toolcontext can
// register additional collectors (e.g. a process collector) without
// this package needing to know about them.
func (r *Registry) Registerer() prometheus.Registerer { return r.reg }

var vgInfoCountDesc = prometheus.NewDesc(
	namespace+"_lvmcache_vginfo_count",
	"Number of volume groups currently indexed in the label cache.",
	nil, nil,
)

// cacheCollector reports live lvmcache state rather than a running
// counter: every Collect call re-reads cache.VGNames(), matching
// zfsCollector's pattern of deriving prometheus.Metric values straight
// from the subsystem being observed at scrape time.
type cacheCollector struct {
	cache *label.Cache
}

func (c *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- vgInfoCountDesc
}

func (c *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(vgInfoCountDesc, prometheus.GaugeValue, float64(len(c.cache.VGNames())))
}

var _ prometheus.Collector = (*cacheCollector)(nil)
