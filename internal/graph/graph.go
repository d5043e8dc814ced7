package graph

// Graph is the top-level workflow container exchanged with the canvas.
// Node order is significant: it is the declaration order used for
// deterministic scheduling.
type Graph struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	Nodes       []Node `json:"nodes"`
	Edges       []Edge `json:"edges"`
}

// Position is canvas layout only; the engine ignores it.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a single typed operation in the graph.
// Type names a registered handler, e.g. "source/dataset" or "view_stage/match".
type Node struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type"`
	Position Position               `json:"position"`
	Params   map[string]interface{} `json:"params"`
}

// Edge means "Target consumes Source's output".
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// ValidationError is a single violation found in a graph.
// An empty NodeID marks a graph-level error.
type ValidationError struct {
	NodeID  string `json:"node_id,omitempty"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e ValidationError) Error() string {
	if e.NodeID == "" {
		return e.Message
	}
	return e.NodeID + ": " + e.Message
}

// Node returns the first node with the given ID, or nil.
func (g *Graph) Node(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// Index returns the declaration index of every node ID. For duplicate IDs
// the first declaration wins.
func (g *Graph) Index() map[string]int {
	idx := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		if _, ok := idx[n.ID]; !ok {
			idx[n.ID] = i
		}
	}
	return idx
}

// Parents returns the source IDs of edges pointing at nodeID, in edge
// declaration order.
func (g *Graph) Parents(nodeID string) []string {
	var out []string
	for _, e := range g.Edges {
		if e.Target == nodeID {
			out = append(out, e.Source)
		}
	}
	return out
}

// Children returns the target IDs of edges leaving nodeID, in edge
// declaration order.
func (g *Graph) Children(nodeID string) []string {
	var out []string
	for _, e := range g.Edges {
		if e.Source == nodeID {
			out = append(out, e.Target)
		}
	}
	return out
}
