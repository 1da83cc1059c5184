package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheEntriesDesc = prometheus.NewDesc(namespace+"_cache_entries", "Files held by the cache.", nil, nil)
	cacheMaxDesc     = prometheus.NewDesc(namespace+"_cache_max_entries", "Cache capacity in files.", nil, nil)
	cacheBytesDesc   = prometheus.NewDesc(namespace+"_cache_bytes", "Content bytes held by the cache.", nil, nil)
	cacheHitsDesc    = prometheus.NewDesc(namespace+"_cache_hits_total", "Cache lookups served from memory.", nil, nil)
	cacheMissesDesc  = prometheus.NewDesc(namespace+"_cache_misses_total", "Cache lookups that read from disk.", nil, nil)
	cacheRemovedDesc = prometheus.NewDesc(namespace+"_cache_removed_total", "Entries dropped, by reason.", []string{"reason"}, nil)
)

// cacheCollector reads the observed file cache at scrape time.
type cacheCollector struct {
	registry *Registry
}

// Describe implements prometheus.Collector.
func (c *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- cacheEntriesDesc
	ch <- cacheMaxDesc
	ch <- cacheBytesDesc
	ch <- cacheHitsDesc
	ch <- cacheMissesDesc
	ch <- cacheRemovedDesc
}

// Collect implements prometheus.Collector.
func (c *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	cache := c.registry.observedCache()
	if cache == nil {
		return
	}
	s := cache.Stats()

	ch <- prometheus.MustNewConstMetric(cacheEntriesDesc, prometheus.GaugeValue, float64(s.Size))
	ch <- prometheus.MustNewConstMetric(cacheMaxDesc, prometheus.GaugeValue, float64(s.MaxSize))
	ch <- prometheus.MustNewConstMetric(cacheBytesDesc, prometheus.GaugeValue, float64(s.Bytes))
	ch <- prometheus.MustNewConstMetric(cacheHitsDesc, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(cacheMissesDesc, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(cacheRemovedDesc, prometheus.CounterValue, float64(s.Evictions), "evicted")
	ch <- prometheus.MustNewConstMetric(cacheRemovedDesc, prometheus.CounterValue, float64(s.Expirations), "expired")
	ch <- prometheus.MustNewConstMetric(cacheRemovedDesc, prometheus.CounterValue, float64(s.Invalidations), "invalidated")
}
