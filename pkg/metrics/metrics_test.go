// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecording(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRequest("/tools", 200, 10*time.Millisecond)
	m.ObserveRequest("/tools", 200, 20*time.Millisecond)
	m.ObserveToolCall("ok")
	m.ObserveConnect(nil)
	m.ObserveConnect(errors.New("refused"))
	m.ObserveHealthCheck(false)
	m.ObserveStale()
	m.SetUpstream(true, 4)

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/tools", "200")); got != 2 {
		t.Errorf("requests_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ToolCalls.WithLabelValues("ok")); got != 1 {
		t.Errorf("tool_calls_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ConnectAttempts.WithLabelValues("failure")); got != 1 {
		t.Errorf("connect failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.HealthChecks.WithLabelValues("failure")); got != 1 {
		t.Errorf("health check failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.StaleTransitions); got != 1 {
		t.Errorf("stale transitions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.UpstreamConnected); got != 1 {
		t.Errorf("upstream_connected = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.AvailableTools); got != 4 {
		t.Errorf("upstream_tools = %v, want 4", got)
	}

	m.SetUpstream(false, 4)
	if got := testutil.ToFloat64(m.UpstreamConnected); got != 0 {
		t.Errorf("upstream_connected = %v, want 0", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("/health", 200, time.Millisecond)
	m.ObserveToolCall("ok")
	m.ObserveConnect(nil)
	m.ObserveHealthCheck(true)
	m.ObserveStale()
	m.SetUpstream(true, 1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 from nil metrics handler, got %d", rec.Code)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SetUpstream(true, 2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "mcp_gateway_upstream_tools 2") {
		t.Fatalf("missing gauge in exposition:\n%s", body)
	}
}
