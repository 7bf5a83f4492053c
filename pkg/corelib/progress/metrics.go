package progress

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metricsCollector exports the Broadcaster's snapshots as Prometheus
// gauges, behind an opt-in /metrics handler.
type metricsCollector struct {
	b *Broadcaster

	downloadedBytes *prometheus.Desc
	bytesPerSecond  *prometheus.Desc
}

// NewCollector wraps b as a prometheus.Collector exposing
// gridfetch_task_downloaded_bytes and gridfetch_task_bytes_per_second,
// labeled by task id.
func NewCollector(b *Broadcaster) prometheus.Collector {
	return &metricsCollector{
		b: b,
		downloadedBytes: prometheus.NewDesc(
			"gridfetch_task_downloaded_bytes",
			"Bytes downloaded so far for a task.",
			[]string{"task_id"}, nil,
		),
		bytesPerSecond: prometheus.NewDesc(
			"gridfetch_task_bytes_per_second",
			"Instantaneous download rate for a task.",
			[]string{"task_id"}, nil,
		),
	}
}

func (c *metricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.downloadedBytes
	ch <- c.bytesPerSecond
}

func (c *metricsCollector) Collect(ch chan<- prometheus.Metric) {
	for taskID, snap := range c.b.All() {
		ch <- prometheus.MustNewConstMetric(c.downloadedBytes, prometheus.GaugeValue, float64(snap.DownloadedBytes), string(taskID))
		ch <- prometheus.MustNewConstMetric(c.bytesPerSecond, prometheus.GaugeValue, snap.BytesPerSecond, string(taskID))
	}
}
