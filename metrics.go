package gourdianfanout

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "gourdianfanout"

// Drop reasons reported on the events_dropped_total counter.
const (
	DropReasonOverflow = "overflow"
	DropReasonClosed   = "closed"
	DropReasonShutdown = "shutdown"
)

// collector exports pipeline counters as Prometheus metrics. Values are read
// from Stats at scrape time, so the ingest path carries no metric cost.
type collector struct {
	p *Pipeline

	accepted   *prometheus.Desc
	written    *prometheus.Desc
	dropped    *prometheus.Desc
	failures   *prometheus.Desc
	rotations  *prometheus.Desc
	queueLen   *prometheus.Desc
	queueCap   *prometheus.Desc
	suppressed *prometheus.Desc
}

// NewCollector returns a prometheus.Collector reporting per-stream counters
// of p.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(gourdianfanout.NewCollector(p))
func NewCollector(p *Pipeline) prometheus.Collector {
	streamLabel := []string{"stream"}
	return &collector{
		p: p,
		accepted: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "events_accepted_total"),
			"Events enqueued by a sink.", streamLabel, nil),
		written: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "events_written_total"),
			"Events persisted to a segment file.", streamLabel, nil),
		dropped: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "events_dropped_total"),
			"Events dropped before being written, by reason.", []string{"stream", "reason"}, nil),
		failures: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "write_failures_total"),
			"Events lost to segment open or write errors.", streamLabel, nil),
		rotations: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "rotations_total"),
			"Segment rollovers on date change or size.", streamLabel, nil),
		queueLen: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "queue_length"),
			"Events currently queued.", streamLabel, nil),
		queueCap: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "queue_capacity"),
			"Queue capacity.", streamLabel, nil),
		suppressed: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "events_suppressed_total"),
			"Events below the minimum severity.", nil, nil),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.accepted
	ch <- c.written
	ch <- c.dropped
	ch <- c.failures
	ch <- c.rotations
	ch <- c.queueLen
	ch <- c.queueCap
	ch <- c.suppressed
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.p.Stats()
	for _, s := range stats.Streams {
		name := s.Stream.String()
		ch <- prometheus.MustNewConstMetric(c.accepted, prometheus.CounterValue, float64(s.Accepted), name)
		ch <- prometheus.MustNewConstMetric(c.written, prometheus.CounterValue, float64(s.Written), name)
		ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(s.DroppedOverflow), name, DropReasonOverflow)
		ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(s.DroppedClosed), name, DropReasonClosed)
		ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(s.DroppedShutdown), name, DropReasonShutdown)
		ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(s.WriteFailures), name)
		ch <- prometheus.MustNewConstMetric(c.rotations, prometheus.CounterValue, float64(s.Rotations), name)
		ch <- prometheus.MustNewConstMetric(c.queueLen, prometheus.GaugeValue, float64(s.QueueLength), name)
		ch <- prometheus.MustNewConstMetric(c.queueCap, prometheus.GaugeValue, float64(s.QueueCapacity), name)
	}
	ch <- prometheus.MustNewConstMetric(c.suppressed, prometheus.CounterValue, float64(stats.Suppressed))
}

// MetricsHandler serves the pipeline metrics from a dedicated registry so
// they never collide with the default one.
func MetricsHandler(p *Pipeline) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(p))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
