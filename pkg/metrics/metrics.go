// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package metrics holds the Prometheus collectors exported on /metrics.
// All recording methods are safe on a nil *Metrics so components can run
// without instrumentation in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mcp_gateway"

// Metrics groups every collector the gateway records.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	ToolCalls         *prometheus.CounterVec
	UpstreamConnected prometheus.Gauge
	AvailableTools    prometheus.Gauge
	ConnectAttempts   *prometheus.CounterVec
	HealthChecks      *prometheus.CounterVec
	StaleTransitions  prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates and registers all collectors with reg. When reg is also a
// Gatherer (as *prometheus.Registry is) Handler serves it.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests handled, by route and status code",
			},
			[]string{"route", "code"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		ToolCalls: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Tool invocations by outcome",
			},
			[]string{"outcome"}, // ok, tool_error, not_found, unavailable, failed
		),
		UpstreamConnected: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "upstream_connected",
				Help:      "1 when the upstream session is live, 0 otherwise",
			},
		),
		AvailableTools: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "upstream_tools",
				Help:      "Tools in the current snapshot",
			},
		),
		ConnectAttempts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_connect_attempts_total",
				Help:      "Upstream connect attempts by result",
			},
			[]string{"result"},
		),
		HealthChecks: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_health_checks_total",
				Help:      "Keepalive probes by result",
			},
			[]string{"result"},
		),
		StaleTransitions: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_stale_total",
				Help:      "Times the live session was marked stale",
			},
		),
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveToolCall records the outcome of one invocation.
func (m *Metrics) ObserveToolCall(outcome string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(outcome).Inc()
}

// SetUpstream publishes the session state and snapshot size.
func (m *Metrics) SetUpstream(live bool, tools int) {
	if m == nil {
		return
	}
	if live {
		m.UpstreamConnected.Set(1)
	} else {
		m.UpstreamConnected.Set(0)
	}
	m.AvailableTools.Set(float64(tools))
}

// ObserveConnect records a connect attempt.
func (m *Metrics) ObserveConnect(err error) {
	if m == nil {
		return
	}
	m.ConnectAttempts.WithLabelValues(result(err == nil)).Inc()
}

// ObserveHealthCheck records a keepalive probe.
func (m *Metrics) ObserveHealthCheck(ok bool) {
	if m == nil {
		return
	}
	m.HealthChecks.WithLabelValues(result(ok)).Inc()
}

// ObserveStale records a live to stale transition.
func (m *Metrics) ObserveStale() {
	if m == nil {
		return
	}
	m.StaleTransitions.Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
