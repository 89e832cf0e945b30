// Package metrics exposes azrelay's Prometheus instrumentation.
//
// Metrics:
//   - azrelay_requests_total: requests by route and response status
//   - azrelay_request_duration_seconds: request latency, split by streaming
//   - azrelay_upstream_failures_total: failed upstream calls by status
//   - azrelay_stream_frames_total: frames written to callers by stream mode
//   - azrelay_stream_lines_dropped_total: upstream lines skipped in compat mode
//   - azrelay_stream_filtered_total: streams stopped by the content filter check
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "azrelay"

// Collector owns a private registry and the azrelay metrics registered in it.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	upstreamFailures *prometheus.CounterVec
	streamFrames     *prometheus.CounterVec
	linesDropped     prometheus.Counter
	streamsFiltered  prometheus.Counter
}

// NewCollector creates a Collector. Go runtime and process collectors are
// registered alongside the azrelay metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of requests handled",
			},
			[]string{"route", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of requests in seconds, streamed bodies excluded",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"streaming"},
		),

		upstreamFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_failures_total",
				Help:      "Total number of failed upstream calls",
			},
			[]string{"status"},
		),

		streamFrames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_frames_total",
				Help:      "Total number of stream frames written to callers",
			},
			[]string{"mode"},
		),

		linesDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_lines_dropped_total",
				Help:      "Total number of upstream lines skipped while normalizing",
			},
		),

		streamsFiltered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_filtered_total",
				Help:      "Total number of streams stopped by the content filter check",
			},
		),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.requestsTotal,
		c.requestDuration,
		c.upstreamFailures,
		c.streamFrames,
		c.linesDropped,
		c.streamsFiltered,
	)

	return c
}

// Registry returns the private registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns the exposition handler for the private registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// RecordRequest records one handled request.
func (c *Collector) RecordRequest(route string, status int, streaming bool, duration time.Duration) {
	c.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(strconv.FormatBool(streaming)).Observe(duration.Seconds())
}

// RecordUpstreamFailure records a failed upstream call.
func (c *Collector) RecordUpstreamFailure(status int) {
	c.upstreamFailures.WithLabelValues(strconv.Itoa(status)).Inc()
}

// RecordStream records the outcome of one normalized stream.
func (c *Collector) RecordStream(mode string, frames, dropped int) {
	c.streamFrames.WithLabelValues(mode).Add(float64(frames))
	c.linesDropped.Add(float64(dropped))
}

// RecordFiltered records a stream stopped by the content filter check.
func (c *Collector) RecordFiltered() {
	c.streamsFiltered.Inc()
}
