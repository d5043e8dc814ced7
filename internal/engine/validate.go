package engine

import (
	"errors"
	"fmt"

	"github.com/AaronLay10/curaflow/internal/graph"
	"github.com/AaronLay10/curaflow/internal/registry"
)

// Validate runs every structural and parameter check against g and returns
// all violations, in check order. A nil result means the graph is valid.
// Validate has no side effects and is deterministic.
func Validate(g *graph.Graph, reg *registry.Registry) []graph.ValidationError {
	errs := Check(g, reg)
	if len(errs) == 0 {
		return nil
	}
	out := make([]graph.ValidationError, len(errs))
	for i, err := range errs {
		out[i] = toValidationError(err)
	}
	return out
}

// Check is Validate returning the typed errors: *StructuralError,
// *ParamError and *NodeTypeError.
func Check(g *graph.Graph, reg *registry.Registry) []error {
	c := &checker{g: g, reg: reg, handlers: make(map[string]registry.Handler)}
	for _, n := range g.Nodes {
		if h, err := reg.Lookup(n.Type); err == nil {
			c.handlers[n.Type] = h
		}
	}
	c.checkNonEmpty()
	c.checkIntegrity()
	c.checkSources()
	c.checkConnectivity()
	c.checkAcyclic()
	c.checkCompatibility()
	c.checkParams()
	return c.errs
}

type checker struct {
	g        *graph.Graph
	reg      *registry.Registry
	handlers map[string]registry.Handler // by node type, known types only
	errs     []error
}

func (c *checker) structural(kind StructuralKind, nodeID, format string, args ...any) {
	c.errs = append(c.errs, &StructuralError{Kind: kind, NodeID: nodeID, Msg: fmt.Sprintf(format, args...)})
}

func (c *checker) descriptor(nodeType string) (registry.Descriptor, bool) {
	h, ok := c.handlers[nodeType]
	if !ok {
		return registry.Descriptor{}, false
	}
	return h.Descriptor(), true
}

func (c *checker) isSource(n graph.Node) bool {
	d, ok := c.descriptor(n.Type)
	return ok && d.IsSource()
}

func (c *checker) checkNonEmpty() {
	if len(c.g.Nodes) == 0 {
		c.structural(KindEmpty, "", "Graph has no nodes")
	}
}

func (c *checker) checkIntegrity() {
	seen := make(map[string]bool, len(c.g.Nodes))
	for _, n := range c.g.Nodes {
		if seen[n.ID] {
			c.structural(KindDuplicateID, n.ID, "Duplicate node id '%s'", n.ID)
			continue
		}
		seen[n.ID] = true
	}
	for _, e := range c.g.Edges {
		for _, end := range []string{e.Source, e.Target} {
			if !seen[end] {
				c.structural(KindDanglingEdge, "", "Edge '%s' references unknown node '%s'", e.ID, end)
			}
		}
	}
}

func (c *checker) checkSources() {
	count := 0
	for _, n := range c.g.Nodes {
		if !c.isSource(n) {
			continue
		}
		count++
		if count > 1 {
			c.structural(KindSource, n.ID, "Graph must have exactly one source node, found multiple")
		}
	}
	if count == 0 {
		c.structural(KindSource, "", "Graph must have at least one source node (Dataset or Saved View)")
	}
}

func (c *checker) checkConnectivity() {
	targets := make(map[string]bool, len(c.g.Edges))
	for _, e := range c.g.Edges {
		targets[e.Target] = true
	}
	for _, n := range c.g.Nodes {
		if c.isSource(n) || targets[n.ID] {
			continue
		}
		c.structural(KindDisconnected, n.ID, "Node '%s' has no incoming connection", n.ID)
	}
}

func (c *checker) checkAcyclic() {
	if _, ok := buildAdjacency(c.g).kahn(); !ok {
		c.structural(KindCycle, "", cycleMessage)
	}
}

func (c *checker) checkCompatibility() {
	for _, e := range c.g.Edges {
		src, tgt := c.g.Node(e.Source), c.g.Node(e.Target)
		if src == nil || tgt == nil {
			continue
		}
		sd, sok := c.descriptor(src.Type)
		td, tok := c.descriptor(tgt.Type)
		if !sok || !tok {
			continue
		}
		if len(sd.Outputs) > 0 && len(td.Inputs) > 0 && !intersects(sd.Outputs, td.Inputs) {
			c.structural(KindIncompatible, tgt.ID,
				"Incompatible connection: '%s' outputs %v but '%s' expects %v",
				sd.Label, sd.Outputs, td.Label, td.Inputs)
		}
		if sd.IsTerminal() && len(td.Inputs) > 0 {
			c.structural(KindTerminalFeed, tgt.ID,
				"'%s' is a terminal node and cannot feed into '%s'", sd.Label, td.Label)
		}
	}
}

func (c *checker) checkParams() {
	for _, n := range c.g.Nodes {
		h, err := c.reg.Lookup(n.Type)
		if err != nil {
			var unknown *registry.UnknownNodeTypeError
			if errors.As(err, &unknown) {
				c.errs = append(c.errs, &NodeTypeError{NodeID: n.ID, Err: unknown})
			}
			continue
		}
		params := n.Params
		if params == nil {
			params = map[string]any{}
		}
		for _, issue := range h.Validate(params) {
			c.errs = append(c.errs, &ParamError{NodeID: n.ID, Field: issue.Field, Msg: issue.Message})
		}
	}
}

func intersects(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; ok {
			return true
		}
	}
	return false
}
