// Package metrics exposes aggregator health and relay-host decisions to
// Prometheus.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"feederconsole/app/internal/aggstatus"
	"feederconsole/app/internal/selector"
)

const namespace = "feederconsole"

// Source returns the current snapshots. Collect asks for cached values
// and only probes aggregators whose cache has expired.
type Source interface {
	CheckAll(ctx context.Context, force bool) []aggstatus.Snapshot
}

// Collector is a prometheus.Collector over a Source plus counters fed by
// the serve loop.
type Collector struct {
	src     Source
	timeout time.Duration

	status *prometheus.Desc
	good   *prometheus.Desc

	decisions *prometheus.CounterVec
	probes    *prometheus.CounterVec
}

// New returns a collector reading from src.
func New(src Source) *Collector {
	return &Collector{
		src:     src,
		timeout: 10 * time.Second,
		status: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "aggregator", "status"),
			"Current feed status; the series with value 1 carries the status label.",
			[]string{"aggregator", "feed", "status"}, nil,
		),
		good: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "aggregator", "good"),
			"Whether the aggregator feed is healthy.",
			[]string{"aggregator"}, nil,
		),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_decisions_total",
			Help:      "Relay host decisions by reason.",
		}, []string{"reason"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregator_probes_total",
			Help:      "Fresh aggregator probes by aggregator.",
		}, []string{"aggregator"}),
	}
}

// ObserveDecision counts one selector decision.
func (c *Collector) ObserveDecision(d selector.Decision) {
	c.decisions.WithLabelValues(string(d.Reason)).Inc()
}

// ObserveSnapshot counts one fresh probe.
func (c *Collector) ObserveSnapshot(s aggstatus.Snapshot) {
	c.probes.WithLabelValues(s.Aggregator).Inc()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.status
	ch <- c.good
	c.decisions.Describe(ch)
	c.probes.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	for _, s := range c.src.CheckAll(ctx, false) {
		ch <- prometheus.MustNewConstMetric(c.status, prometheus.GaugeValue, 1, s.Aggregator, "beast", s.Beast.String())
		ch <- prometheus.MustNewConstMetric(c.status, prometheus.GaugeValue, 1, s.Aggregator, "mlat", s.Mlat.String())
		good := 0.0
		if s.IsGood() {
			good = 1
		}
		ch <- prometheus.MustNewConstMetric(c.good, prometheus.GaugeValue, good, s.Aggregator)
	}
	c.decisions.Collect(ch)
	c.probes.Collect(ch)
}
