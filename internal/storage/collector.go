package storage

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports pebble metrics of a Store to prometheus.
type Collector struct {
	store *Store

	compactionCount *prometheus.Desc
	compactionDebt  *prometheus.Desc
	memtableSize    *prometheus.Desc
	memtableCount   *prometheus.Desc
	walSize         *prometheus.Desc
	diskUsage       *prometheus.Desc
	tableCount      *prometheus.Desc
}

// NewCollector creates a collector for s.
func NewCollector(s *Store) *Collector {
	return &Collector{
		store: s,
		compactionCount: prometheus.NewDesc(
			"obaidx_pebble_compaction_count_total",
			"Total number of compactions performed",
			nil, nil,
		),
		compactionDebt: prometheus.NewDesc(
			"obaidx_pebble_compaction_estimated_debt_bytes",
			"Estimated number of bytes that need to be compacted to reach a stable state",
			nil, nil,
		),
		memtableSize: prometheus.NewDesc(
			"obaidx_pebble_memtable_size_bytes",
			"Current size of the memtable in bytes",
			nil, nil,
		),
		memtableCount: prometheus.NewDesc(
			"obaidx_pebble_memtable_count",
			"Current count of memtables",
			nil, nil,
		),
		walSize: prometheus.NewDesc(
			"obaidx_pebble_wal_size_bytes",
			"Size of the live WAL data in bytes",
			nil, nil,
		),
		diskUsage: prometheus.NewDesc(
			"obaidx_pebble_disk_usage_bytes",
			"Total disk space used by the store",
			nil, nil,
		),
		tableCount: prometheus.NewDesc(
			"obaidx_storage_tables",
			"Number of tables opened in the store",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.compactionCount
	ch <- c.compactionDebt
	ch <- c.memtableSize
	ch <- c.memtableCount
	ch <- c.walSize
	ch <- c.diskUsage
	ch <- c.tableCount
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.store.closed.Load() {
		return
	}
	m := c.store.db.Metrics()

	ch <- prometheus.MustNewConstMetric(c.compactionCount, prometheus.CounterValue, float64(m.Compact.Count))
	ch <- prometheus.MustNewConstMetric(c.compactionDebt, prometheus.GaugeValue, float64(m.Compact.EstimatedDebt))
	ch <- prometheus.MustNewConstMetric(c.memtableSize, prometheus.GaugeValue, float64(m.MemTable.Size))
	ch <- prometheus.MustNewConstMetric(c.memtableCount, prometheus.GaugeValue, float64(m.MemTable.Count))
	ch <- prometheus.MustNewConstMetric(c.walSize, prometheus.GaugeValue, float64(m.WAL.Size))
	ch <- prometheus.MustNewConstMetric(c.diskUsage, prometheus.GaugeValue, float64(m.DiskSpaceUsage()))

	c.store.mu.Lock()
	n := len(c.store.tables)
	c.store.mu.Unlock()
	ch <- prometheus.MustNewConstMetric(c.tableCount, prometheus.GaugeValue, float64(n))
}
