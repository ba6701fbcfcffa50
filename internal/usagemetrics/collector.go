// Package usagemetrics exposes buffer usage snapshots as Prometheus
// metrics, for hosting processes that want a scrape endpoint rather than
// (or alongside) the log-line buffer.LogSink.
package usagemetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/obsrouter/routercore/internal/buffer"
)

// Collector is a buffer.Sink: it mirrors every stage's cumulative usage
// snapshot into stage-labelled Prometheus gauges every report tick. Gauges,
// not counters, are used deliberately — each field is already a cumulative
// total tracked by the stage itself (buffer.counters), so ReportUsage only
// needs to publish "current value", not accumulate a delta.
type Collector struct {
	receivedEvents *prometheus.GaugeVec
	receivedBytes  *prometheus.GaugeVec
	sentEvents     *prometheus.GaugeVec
	sentBytes      *prometheus.GaugeVec
	droppedIntent  *prometheus.GaugeVec
	droppedUnwant  *prometheus.GaugeVec
	maxSizeBytes   *prometheus.GaugeVec
	maxSizeEvents  *prometheus.GaugeVec
}

// NewCollector builds and registers the gauge vectors against registerer.
// A nil registerer registers against prometheus.DefaultRegisterer.
func NewCollector(registerer prometheus.Registerer) *Collector {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	vec := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: name,
			Help: help,
		}, []string{"stage"})
	}

	c := &Collector{
		receivedEvents: vec("router_buffer_received_events", "Cumulative events received by a buffer stage."),
		receivedBytes:  vec("router_buffer_received_bytes", "Cumulative bytes received by a buffer stage."),
		sentEvents:     vec("router_buffer_sent_events", "Cumulative events sent out of a buffer stage."),
		sentBytes:      vec("router_buffer_sent_bytes", "Cumulative bytes sent out of a buffer stage."),
		droppedIntent:  vec("router_buffer_dropped_events_intentional", "Cumulative events dropped by policy (e.g. drop_newest)."),
		droppedUnwant:  vec("router_buffer_dropped_events_unwanted", "Cumulative events dropped for an unintended reason (e.g. I/O failure)."),
		maxSizeBytes:   vec("router_buffer_max_size_bytes", "High-water mark of a buffer stage's size in bytes."),
		maxSizeEvents:  vec("router_buffer_max_size_events", "High-water mark of a buffer stage's size in events."),
	}

	registerer.MustRegister(
		c.receivedEvents, c.receivedBytes,
		c.sentEvents, c.sentBytes,
		c.droppedIntent, c.droppedUnwant,
		c.maxSizeBytes, c.maxSizeEvents,
	)
	return c
}

// ReportUsage implements buffer.Sink.
func (c *Collector) ReportUsage(stageName string, u buffer.Usage) {
	c.receivedEvents.WithLabelValues(stageName).Set(float64(u.ReceivedEvents))
	c.receivedBytes.WithLabelValues(stageName).Set(float64(u.ReceivedBytes))
	c.sentEvents.WithLabelValues(stageName).Set(float64(u.SentEvents))
	c.sentBytes.WithLabelValues(stageName).Set(float64(u.SentBytes))
	c.droppedIntent.WithLabelValues(stageName).Set(float64(u.DroppedEventsIntent))
	c.droppedUnwant.WithLabelValues(stageName).Set(float64(u.DroppedEventsUnwant))
	c.maxSizeBytes.WithLabelValues(stageName).Set(float64(u.MaxSizeBytes))
	c.maxSizeEvents.WithLabelValues(stageName).Set(float64(u.MaxSizeEvents))
}
