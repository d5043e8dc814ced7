package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/AaronLay10/curaflow/internal/engine"
	"github.com/AaronLay10/curaflow/internal/version"
)

// Metrics counts run outcomes. It is an engine.Sink; hand it to the service
// so every run passes through it.
type Metrics struct {
	startTime time.Time

	runsTotal      atomic.Uint64
	runsWithErrors atomic.Uint64
	nodesCompleted atomic.Uint64
	nodesFailed    atomic.Uint64
	nodesSkipped   atomic.Uint64
}

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) Emit(_ string, e engine.Event) {
	if e.IsSummary() {
		m.runsTotal.Add(1)
		if e.Failed > 0 {
			m.runsWithErrors.Add(1)
		}
		return
	}
	switch e.Status {
	case engine.StatusComplete:
		m.nodesCompleted.Add(1)
	case engine.StatusError:
		m.nodesFailed.Add(1)
	case engine.StatusSkipped:
		m.nodesSkipped.Add(1)
	}
}

// Readiness tracks the optional backends. A backend that is not enabled
// never blocks readiness.
type Readiness struct {
	MQTTEnabled     bool
	PostgresEnabled bool

	mqtt     atomic.Bool
	postgres atomic.Bool
}

func (r *Readiness) SetMQTTConnected(v bool)     { r.mqtt.Store(v) }
func (r *Readiness) SetPostgresConnected(v bool) { r.postgres.Store(v) }
func (r *Readiness) MQTTConnected() bool         { return r.mqtt.Load() }
func (r *Readiness) PostgresConnected() bool     { return r.postgres.Load() }

// Ready reports whether every enabled backend is connected.
func (r *Readiness) Ready() bool {
	if r.MQTTEnabled && !r.MQTTConnected() {
		return false
	}
	if r.PostgresEnabled && !r.PostgresConnected() {
		return false
	}
	return true
}

func boolGauge(v bool) int {
	if v {
		return 1
	}
	return 0
}

// metricsHandler returns Prometheus-compatible metrics in text format.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	s.writeMetrics(w)
}

func (s *Server) writeMetrics(w io.Writer) {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	labels := fmt.Sprintf(`service=%q,instance=%q,version=%q`, s.name, hostname, version.Version)

	writeMetric := func(name, mtype, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
	}

	m := s.metrics
	writeMetric("curaflow_uptime_seconds", "gauge",
		"Number of seconds since the service started", time.Since(m.startTime).Seconds())
	writeMetric("curaflow_runs_total", "counter",
		"Runs finished since startup", m.runsTotal.Load())
	writeMetric("curaflow_runs_with_errors_total", "counter",
		"Runs that finished with at least one failed node", m.runsWithErrors.Load())
	writeMetric("curaflow_nodes_completed_total", "counter",
		"Nodes that completed", m.nodesCompleted.Load())
	writeMetric("curaflow_nodes_failed_total", "counter",
		"Nodes that failed", m.nodesFailed.Load())
	writeMetric("curaflow_nodes_skipped_total", "counter",
		"Nodes that were skipped", m.nodesSkipped.Load())
	writeMetric("curaflow_runs_active", "gauge",
		"Runs currently executing", len(s.svc.ActiveRuns()))
	writeMetric("curaflow_events_total", "counter",
		"Total number of events emitted since startup", s.svc.Bus().Total())
	writeMetric("curaflow_ws_clients", "gauge",
		"Number of active WebSocket client connections", s.svc.Bus().SubscriberCount())
	writeMetric("curaflow_mqtt_connected", "gauge",
		"Whether the MQTT broker is connected (1) or not (0)", boolGauge(s.ready.MQTTConnected()))
	writeMetric("curaflow_postgres_connected", "gauge",
		"Whether PostgreSQL is connected (1) or not (0)", boolGauge(s.ready.PostgresConnected()))
}
