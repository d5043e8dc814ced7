package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/AaronLay10/curaflow/internal/graph"
	"github.com/AaronLay10/curaflow/internal/registry"
)

type fakeView int

func (v fakeView) Count() int { return int(v) }

// recorder tracks which nodes had their handler invoked.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, id)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type execFunc func(in registry.Artifact, ec registry.ExecContext) (registry.Artifact, error)

type testHandler struct {
	registry.Base
	rec *recorder
	fn  execFunc
}

func (h testHandler) Execute(in registry.Artifact, _ registry.Params, ec registry.ExecContext) (registry.Artifact, error) {
	h.rec.add(ec.NodeID())
	return h.fn(in, ec)
}

func handler(rec *recorder, typ, category string, inputs, outputs []string, fn execFunc) testHandler {
	return testHandler{
		Base: registry.Base{Desc: registry.Descriptor{
			Type:     typ,
			Label:    typ,
			Category: category,
			Inputs:   inputs,
			Outputs:  outputs,
			Params:   map[string]registry.ParamSpec{},
		}},
		rec: rec,
		fn:  fn,
	}
}

var (
	viewTags  = []string{"view"}
	errBoom   = errors.New("boom")
	passThru  = func(in registry.Artifact, _ registry.ExecContext) (registry.Artifact, error) { return in, nil }
	alwaysErr = func(registry.Artifact, registry.ExecContext) (registry.Artifact, error) { return registry.Artifact{}, errBoom }
)

// testRegistry builds a frozen registry of stub handlers plus extra.
func testRegistry(rec *recorder, extra ...registry.Handler) *registry.Registry {
	r := registry.New()
	r.Register(handler(rec, "source/test", registry.CategorySource, []string{}, viewTags,
		func(registry.Artifact, registry.ExecContext) (registry.Artifact, error) {
			return registry.ViewArtifact(fakeView(10)), nil
		}))
	r.Register(handler(rec, "source/fail", registry.CategorySource, []string{}, viewTags, alwaysErr))
	r.Register(handler(rec, "stage/pass", "view_stage", viewTags, viewTags, passThru))
	r.Register(handler(rec, "stage/fail", "view_stage", viewTags, viewTags, alwaysErr))
	r.Register(handler(rec, "stage/none", "view_stage", viewTags, viewTags,
		func(registry.Artifact, registry.ExecContext) (registry.Artifact, error) {
			return registry.Artifact{}, nil
		}))
	r.Register(handler(rec, "stage/panic", "view_stage", viewTags, viewTags,
		func(registry.Artifact, registry.ExecContext) (registry.Artifact, error) {
			panic("kaboom")
		}))
	r.Register(handler(rec, "stage/progress", "view_stage", viewTags, viewTags,
		func(in registry.Artifact, ec registry.ExecContext) (registry.Artifact, error) {
			ec.ReportProgress(0.5)
			return in, nil
		}))
	r.Register(handler(rec, "stage/image", "view_stage", []string{"image"}, []string{"image"}, passThru))
	r.Register(handler(rec, "agg/count", "aggregation", viewTags, []string{},
		func(in registry.Artifact, _ registry.ExecContext) (registry.Artifact, error) {
			return registry.TerminalArtifact(map[string]any{"type": "count", "value": in.View().Count()}), nil
		}))

	apply := handler(rec, "out/apply", "output", viewTags, []string{},
		func(registry.Artifact, registry.ExecContext) (registry.Artifact, error) {
			return registry.TerminalArtifact(map[string]any{"type": "applied"}), nil
		})
	apply.Desc.Singleton = true
	r.Register(apply)

	needs := handler(rec, "stage/needs", "view_stage", viewTags, viewTags, passThru)
	needs.Desc.Params = map[string]registry.ParamSpec{
		"n": {Type: registry.ParamInt, Label: "N", Required: true},
	}
	r.Register(needs)

	for _, h := range extra {
		r.Register(h)
	}
	r.Freeze()
	return r
}

type tn struct{ id, typ string }

// build assembles a graph from nodes and "source->target" edge pairs.
func build(nodes []tn, edges ...[2]string) *graph.Graph {
	g := &graph.Graph{ID: "g1", Name: "test"}
	for _, nd := range nodes {
		g.Nodes = append(g.Nodes, graph.Node{ID: nd.id, Type: nd.typ, Params: map[string]any{}})
	}
	for i, e := range edges {
		g.Edges = append(g.Edges, graph.Edge{ID: fmt.Sprintf("e%d", i+1), Source: e[0], Target: e[1]})
	}
	return g
}

// collect drains a run and returns its events.
func collect(r *Run) []Event {
	var out []Event
	for ev := range r.Events() {
		out = append(out, ev)
	}
	return out
}

// trace renders node events as "id:status" for order assertions.
func trace(events []Event) []string {
	var out []string
	for _, ev := range events {
		if ev.IsSummary() {
			out = append(out, "summary")
			continue
		}
		out = append(out, ev.NodeID+":"+string(ev.Status))
	}
	return out
}

func startRun(e *Engine, g *graph.Graph) (*Run, error) {
	return e.Start(context.Background(), g, nil)
}
