package graph

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGraph = `{
  "id": "g1",
  "name": "Confident cats",
  "nodes": [
    {"id": "S", "type": "source/dataset", "position": {"x": 10, "y": 20}},
    {"id": "M", "type": "view_stage/match", "params": {"expression": "F('x') > 0"}},
    {"id": "C", "type": "aggregation/count"}
  ],
  "edges": [
    {"id": "e1", "source": "S", "target": "M", "sourceHandle": "view"},
    {"id": "e2", "source": "M", "target": "C"}
  ]
}`

func TestParseKeepsDeclarationOrder(t *testing.T) {
	g, err := Parse([]byte(sampleGraph))
	require.NoError(t, err)

	assert.Equal(t, "g1", g.ID)
	assert.Equal(t, "Confident cats", g.Name)
	require.Len(t, g.Nodes, 3)
	assert.Equal(t, []string{"S", "M", "C"}, []string{g.Nodes[0].ID, g.Nodes[1].ID, g.Nodes[2].ID})
	assert.Equal(t, 10.0, g.Nodes[0].Position.X)
	assert.Equal(t, "F('x') > 0", g.Nodes[1].Params["expression"])
	assert.Equal(t, "view", g.Edges[0].SourceHandle)
}

func TestParseFillsDefaults(t *testing.T) {
	g, err := Parse([]byte(`{"nodes":[{"id":"a","type":"source/dataset"}],"edges":[]}`))
	require.NoError(t, err)

	assert.NotEmpty(t, g.ID)
	assert.Equal(t, DefaultName, g.Name)
	assert.NotEmpty(t, g.CreatedAt)
	assert.NotEmpty(t, g.UpdatedAt)
	assert.NotNil(t, g.Nodes[0].Params)
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{"nodes": [`))
	assert.Error(t, err)
}

func TestParseLenientRepairs(t *testing.T) {
	g, repaired, err := ParseLenient([]byte(`{"nodes": [{"id": "a", "type": "source/dataset",}], "edges": []}`))
	require.NoError(t, err)
	assert.True(t, repaired)
	require.Len(t, g.Nodes, 1)
	assert.Equal(t, "a", g.Nodes[0].ID)
}

func TestParseLenientMatchesStrictParse(t *testing.T) {
	want, err := Parse([]byte(sampleGraph))
	require.NoError(t, err)

	// Trailing comma and a dropped closing brace.
	broken := strings.Replace(sampleGraph, `"target": "C"}`, `"target": "C"},`, 1)
	broken = strings.TrimSuffix(broken, "}")

	got, repaired, err := ParseLenient([]byte(broken))
	require.NoError(t, err)
	assert.True(t, repaired)

	ignoreStamps := cmpopts.IgnoreFields(Graph{}, "CreatedAt", "UpdatedAt")
	if diff := cmp.Diff(want, got, ignoreStamps); diff != "" {
		t.Errorf("repaired graph mismatch (-want +got):\n%s", diff)
	}
}

func TestParseLenientValidJSONNotRepaired(t *testing.T) {
	_, repaired, err := ParseLenient([]byte(sampleGraph))
	require.NoError(t, err)
	assert.False(t, repaired)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleGraph), 0o644))

	g, err := Load(path, false)
	require.NoError(t, err)
	assert.Equal(t, "g1", g.ID)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"), false)
	assert.Error(t, err)
}

func TestParentsAndChildren(t *testing.T) {
	g, err := Parse([]byte(sampleGraph))
	require.NoError(t, err)

	assert.Equal(t, []string{"S"}, g.Parents("M"))
	assert.Equal(t, []string{"C"}, g.Children("M"))
	assert.Empty(t, g.Parents("S"))
	assert.Nil(t, g.Node("nope"))
	assert.Equal(t, "view_stage/match", g.Node("M").Type)
	assert.Equal(t, map[string]int{"S": 0, "M": 1, "C": 2}, g.Index())
}

func TestValidationErrorJSON(t *testing.T) {
	b, err := json.Marshal(ValidationError{Message: "Graph has no nodes"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"Graph has no nodes"}`, string(b))

	b, err = json.Marshal(ValidationError{NodeID: "M", Message: "'Expression' is required", Field: "expression"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"node_id":"M","message":"'Expression' is required","field":"expression"}`, string(b))
}

func TestEdgeHandlesOmittedWhenEmpty(t *testing.T) {
	b, err := json.Marshal(Edge{ID: "e", Source: "a", Target: "b"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"e","source":"a","target":"b"}`, string(b))
}
