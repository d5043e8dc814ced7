package api

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/curaflow/internal/engine"
)

func TestMetricsCountsRunOutcomes(t *testing.T) {
	m := NewMetrics()
	m.Emit("r", engine.Event{NodeID: "a", Status: engine.StatusRunning})
	m.Emit("r", engine.Event{NodeID: "a", Status: engine.StatusComplete})
	m.Emit("r", engine.Event{NodeID: "b", Status: engine.StatusError})
	m.Emit("r", engine.Event{NodeID: "c", Status: engine.StatusSkipped})
	m.Emit("r", engine.Event{Status: engine.StatusComplete, Summary: &engine.Summary{Total: 3, Completed: 1, Failed: 1, Skipped: 1}})
	m.Emit("r2", engine.Event{Status: engine.StatusComplete, Summary: &engine.Summary{Total: 1, Completed: 1}})

	assert.Equal(t, uint64(2), m.runsTotal.Load())
	assert.Equal(t, uint64(1), m.runsWithErrors.Load())
	assert.Equal(t, uint64(1), m.nodesCompleted.Load())
	assert.Equal(t, uint64(1), m.nodesFailed.Load())
	assert.Equal(t, uint64(1), m.nodesSkipped.Load())
}

func TestMetricsEndpoint(t *testing.T) {
	ready := &Readiness{MQTTEnabled: true}
	ready.SetMQTTConnected(true)
	f := newFixture(t, WithName("lab"), WithReadiness(ready))

	resp := f.do(t, http.MethodPost, "/graphs/execute", pipeline)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, _ = io.ReadAll(resp.Body)

	resp = f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)

	assert.Contains(t, body, "# TYPE curaflow_runs_total counter")
	assert.Contains(t, body, `service="lab"`)
	assert.Regexp(t, `curaflow_runs_total\{[^}]*\} 1\n`, body)
	assert.Regexp(t, `curaflow_nodes_completed_total\{[^}]*\} 3\n`, body)
	assert.Regexp(t, `curaflow_mqtt_connected\{[^}]*\} 1\n`, body)
	assert.Regexp(t, `curaflow_postgres_connected\{[^}]*\} 0\n`, body)

	resp = f.do(t, http.MethodPost, "/metrics", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
