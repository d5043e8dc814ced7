package nodes

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/curaflow/internal/dataset"
	"github.com/AaronLay10/curaflow/internal/registry"
)

func fixture() (*registry.Registry, *dataset.Session, registry.ExecContext) {
	ds := dataset.New("animals", []dataset.Sample{
		{ID: "a", Tags: []string{"train"}, Fields: map[string]any{"label": "cat", "score": 0.9}},
		{ID: "b", Tags: []string{"train"}, Fields: map[string]any{"label": "dog", "score": 0.4}},
		{ID: "c", Tags: []string{"test"}, Fields: map[string]any{"label": "cat", "score": 0.7}},
	})
	s := dataset.NewSession(ds)
	return NewRegistry(), s, registry.StaticContext{Ctx: context.Background(), Host: s}
}

func run(t *testing.T, r *registry.Registry, typ string, in registry.Artifact, params map[string]any, ec registry.ExecContext) registry.Artifact {
	t.Helper()
	h, err := r.Lookup(typ)
	require.NoError(t, err)
	out, err := h.Execute(in, registry.NewParams(params, h.Descriptor().Params), ec)
	require.NoError(t, err, typ)
	return out
}

func TestRegistryContents(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, 15, r.Len())

	sources := 0
	for _, d := range r.Catalog() {
		if d.IsSource() {
			sources++
			assert.Empty(t, d.Inputs, d.Type)
		}
		if d.Category == CategoryAggregation || d.Category == CategoryOutput {
			assert.True(t, d.IsTerminal(), d.Type)
		}
	}
	assert.Equal(t, 2, sources)

	h, err := r.Lookup("output/set_view")
	require.NoError(t, err)
	assert.True(t, h.Descriptor().Singleton)
}

func TestSourceMatchCountPipeline(t *testing.T) {
	r, _, ec := fixture()
	src := run(t, r, "source/dataset", registry.Artifact{}, nil, ec)
	require.True(t, src.IsView())
	assert.Equal(t, 3, src.View().Count())

	matched := run(t, r, "view_stage/match", src, map[string]any{"expression": `F("score") > 0.5`}, ec)
	assert.Equal(t, 2, matched.View().Count())

	count := run(t, r, "aggregation/count", matched, nil, ec)
	require.True(t, count.IsTerminal())
	assert.Equal(t, map[string]any{"type": "count", "value": 2}, count.Payload())
}

func TestViewStages(t *testing.T) {
	r, _, ec := fixture()
	src := run(t, r, "source/dataset", registry.Artifact{}, nil, ec)

	tags := run(t, r, "view_stage/match_tags", src, map[string]any{"tags": []any{"test"}}, ec)
	assert.Equal(t, []string{"c"}, tags.View().(*dataset.View).IDs())

	sorted := run(t, r, "view_stage/sort_by", src, map[string]any{"field": "score", "reverse": true}, ec)
	assert.Equal(t, []string{"a", "c", "b"}, sorted.View().(*dataset.View).IDs())

	limited := run(t, r, "view_stage/limit", sorted, map[string]any{"count": 1.0}, ec)
	assert.Equal(t, []string{"a"}, limited.View().(*dataset.View).IDs())

	exists := run(t, r, "view_stage/exists", src, map[string]any{"field": "score", "bool": false}, ec)
	assert.Equal(t, 0, exists.View().Count())

	taken := run(t, r, "view_stage/take", src, map[string]any{"count": 2.0, "seed": 7.0}, ec)
	again := run(t, r, "view_stage/take", src, map[string]any{"count": 2.0, "seed": 7.0}, ec)
	assert.Equal(t, taken.View().(*dataset.View).IDs(), again.View().(*dataset.View).IDs())
}

func TestAggregations(t *testing.T) {
	r, _, ec := fixture()
	src := run(t, r, "source/dataset", registry.Artifact{}, nil, ec)

	cv := run(t, r, "aggregation/count_values", src, map[string]any{"field": "label"}, ec)
	assert.Equal(t, map[string]int{"cat": 2, "dog": 1}, cv.Payload().(map[string]any)["values"])

	distinct := run(t, r, "aggregation/distinct", src, map[string]any{"field": "label"}, ec)
	assert.Equal(t, []any{"cat", "dog"}, distinct.Payload().(map[string]any)["values"])

	bounds := run(t, r, "aggregation/bounds", src, map[string]any{"field": "score"}, ec)
	payload := bounds.Payload().(map[string]any)
	assert.Equal(t, 0.4, payload["min"])
	assert.Equal(t, 0.9, payload["max"])
}

func TestOutputs(t *testing.T) {
	r, session, ec := fixture()
	src := run(t, r, "source/dataset", registry.Artifact{}, nil, ec)
	limited := run(t, r, "view_stage/limit", src, map[string]any{"count": 2.0}, ec)

	out := run(t, r, "output/set_view", limited, nil, ec)
	assert.Equal(t, map[string]any{"type": "set_view", "count": 2}, out.Payload())
	assert.Equal(t, 2, session.CurrentView().Count())

	saved := run(t, r, "output/save_view", limited, map[string]any{"name": "top2"}, ec)
	assert.Equal(t, "top2", saved.Payload().(map[string]any)["name"])

	loaded := run(t, r, "source/saved_view", registry.Artifact{}, map[string]any{"view_name": "top2"}, ec)
	assert.Equal(t, 2, loaded.View().Count())

	h, err := r.Lookup("output/save_view")
	require.NoError(t, err)
	_, err = h.Execute(limited, registry.NewParams(map[string]any{"name": "top2"}, h.Descriptor().Params), ec)
	assert.True(t, errors.Is(err, dataset.ErrViewExists))
}

func TestExecuteRejectsTerminalInput(t *testing.T) {
	r, _, ec := fixture()
	h, err := r.Lookup("view_stage/limit")
	require.NoError(t, err)
	_, err = h.Execute(registry.TerminalArtifact(3), registry.NewParams(nil, h.Descriptor().Params), ec)
	assert.Error(t, err)
}

func TestExecuteWithoutHost(t *testing.T) {
	r := NewRegistry()
	h, err := r.Lookup("source/dataset")
	require.NoError(t, err)
	_, err = h.Execute(registry.Artifact{}, registry.Params{}, registry.StaticContext{})
	assert.True(t, errors.Is(err, ErrNoHost))
}

func TestMatchValidatesExpression(t *testing.T) {
	r := NewRegistry()
	h, err := r.Lookup("view_stage/match")
	require.NoError(t, err)

	issues := h.Validate(map[string]any{"expression": `F("score") >`})
	require.Len(t, issues, 1)
	assert.Equal(t, "expression", issues[0].Field)

	issues = h.Validate(map[string]any{})
	require.Len(t, issues, 1)
	assert.Equal(t, "'Expression' is required", issues[0].Message)

	assert.Empty(t, h.Validate(map[string]any{"expression": `F("score") > 1`}))
}

func TestDynamicOptions(t *testing.T) {
	r, session, ec := fixture()
	require.NoError(t, session.Dataset().SaveView("all", "", session.Dataset().View(), false))

	h, err := r.Lookup("view_stage/sort_by")
	require.NoError(t, err)
	d := registry.ResolveOptions(h, ec)
	assert.Equal(t, []any{"filepath", "id", "label", "score", "tags"}, d.Params["field"].Values)

	h, err = r.Lookup("source/saved_view")
	require.NoError(t, err)
	d = registry.ResolveOptions(h, ec)
	assert.Equal(t, []any{"all"}, d.Params["view_name"].Values)

	// Without a host, dynamic fields resolve to no options.
	d = registry.ResolveOptions(h, registry.StaticContext{})
	assert.Equal(t, []any{}, d.Params["view_name"].Values)
}

func TestFilterLabels(t *testing.T) {
	ds := dataset.New("boxes", []dataset.Sample{
		{ID: "a", Fields: map[string]any{"ground_truth": map[string]any{"detections": []any{
			map[string]any{"label": "cat", "confidence": 0.9},
			map[string]any{"label": "dog", "confidence": 0.3},
		}}}},
		{ID: "b", Fields: map[string]any{"ground_truth": map[string]any{"detections": []any{
			map[string]any{"label": "dog", "confidence": 0.2},
		}}}},
	})
	s := dataset.NewSession(ds)
	r := NewRegistry()
	ec := registry.StaticContext{Ctx: context.Background(), Host: s}
	src := run(t, r, "source/dataset", registry.Artifact{}, nil, ec)

	out := run(t, r, "view_stage/filter_labels", src,
		map[string]any{"field": "ground_truth", "expression": `F("confidence") > 0.5`}, ec)
	v := out.View().(*dataset.View)
	assert.Equal(t, []string{"a"}, v.IDs())
	dets, _ := v.Samples()[0].Get("ground_truth.detections")
	assert.Len(t, dets, 1)

	all := run(t, r, "view_stage/filter_labels", src,
		map[string]any{"field": "ground_truth", "expression": `F("confidence") > 0.5`, "only_matches": false}, ec)
	assert.Equal(t, 2, all.View().Count())

	h, err := r.Lookup("view_stage/filter_labels")
	require.NoError(t, err)
	assert.Equal(t, []any{"ground_truth"}, registry.ResolveOptions(h, ec).Params["field"].Values)

	issues := h.Validate(map[string]any{"field": "ground_truth", "expression": `F("confidence") >`})
	require.Len(t, issues, 1)
	assert.Equal(t, "expression", issues[0].Field)

	issues = h.Validate(map[string]any{})
	require.Len(t, issues, 2)
	assert.Empty(t, h.Validate(map[string]any{"field": "ground_truth", "expression": `F("label") == "cat"`}))
}
