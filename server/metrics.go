// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	malformedTotal    prometheus.Counter
	internalErrors    prometheus.Counter
	activeConnections prometheus.Gauge
	taskRunsTotal     *prometheus.CounterVec
}

// NewMetrics registers the server collectors with registry. Use a
// fresh prometheus.NewRegistry() per server in tests.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		gatherer: registry,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fingerd_requests_total",
			Help: "Finger queries answered, by kind.",
		}, []string{"kind"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fingerd_request_duration_seconds",
			Help:    "Time from accepting a connection to writing its answer.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		malformedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "fingerd_malformed_queries_total",
			Help: "Query lines that could not be decoded.",
		}),
		internalErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "fingerd_internal_errors_total",
			Help: "Queries whose handling failed or panicked.",
		}),
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fingerd_active_connections",
			Help: "Connections currently being answered.",
		}),
		taskRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fingerd_periodic_task_runs_total",
			Help: "Periodic task iterations, by task and result.",
		}, []string{"task", "result"}),
	}
}

// Handler serves the collected metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) observeRequest(kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(kind).Inc()
	m.requestDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (m *Metrics) malformedQuery() {
	if m != nil {
		m.malformedTotal.Inc()
	}
}

func (m *Metrics) internalError() {
	if m != nil {
		m.internalErrors.Inc()
	}
}

func (m *Metrics) connectionOpened() {
	if m != nil {
		m.activeConnections.Inc()
	}
}

func (m *Metrics) connectionClosed() {
	if m != nil {
		m.activeConnections.Dec()
	}
}

func (m *Metrics) taskRun(task, result string) {
	if m != nil {
		m.taskRunsTotal.WithLabelValues(task, result).Inc()
	}
}
