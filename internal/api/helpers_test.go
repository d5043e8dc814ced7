package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/curaflow/internal/dataset"
	"github.com/AaronLay10/curaflow/internal/engine"
	"github.com/AaronLay10/curaflow/internal/logging"
	"github.com/AaronLay10/curaflow/internal/service"
)

const pipeline = `{
	"id": "g1",
	"name": "confident",
	"nodes": [
		{"id": "src", "type": "source/dataset", "params": {}},
		{"id": "hi", "type": "view_stage/match", "params": {"expression": "F(\"score\") > 0.5"}},
		{"id": "n", "type": "aggregation/count", "params": {}}
	],
	"edges": [
		{"id": "e1", "source": "src", "target": "hi"},
		{"id": "e2", "source": "hi", "target": "n"}
	]
}`

type fixture struct {
	srv     *Server
	svc     *service.Service
	metrics *Metrics
	http    *httptest.Server
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ds := dataset.New("animals", []dataset.Sample{
		{ID: "a", Tags: []string{"train"}, Fields: map[string]any{"label": "cat", "score": 0.9}},
		{ID: "b", Tags: []string{"train"}, Fields: map[string]any{"label": "dog", "score": 0.4}},
		{ID: "c", Tags: []string{"test"}, Fields: map[string]any{"label": "cat", "score": 0.7}},
	})
	metrics := NewMetrics()
	svc, err := service.New(service.Options{
		Session: dataset.NewSession(ds),
		Logger:  logging.Discard(),
		Sinks:   []engine.Sink{metrics},
	})
	require.NoError(t, err)

	opts = append([]Option{WithMetrics(metrics), WithLogger(logging.Discard())}, opts...)
	srv := New(svc, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{srv: srv, svc: svc, metrics: metrics, http: ts}
}

func (f *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, f.http.URL+path, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}
