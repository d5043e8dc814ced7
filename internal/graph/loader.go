package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"
)

// DefaultName is given to graphs submitted without a name.
const DefaultName = "Untitled Workflow"

// Parse decodes a serialized graph and fills in the defaults the canvas may
// leave out (id, name, timestamps, params map).
func Parse(data []byte) (*Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to parse graph JSON: %w", err)
	}
	applyDefaults(&g)
	return &g, nil
}

// ParseLenient is Parse for hand-edited files: when the JSON is malformed
// it is repaired once and parsed again.
func ParseLenient(data []byte) (*Graph, bool, error) {
	g, err := Parse(data)
	if err == nil {
		return g, false, nil
	}
	repaired, repairErr := jsonrepair.JSONRepair(string(data))
	if repairErr != nil {
		return nil, false, err
	}
	g, err = Parse([]byte(repaired))
	if err != nil {
		return nil, false, err
	}
	return g, true, nil
}

// Load reads and parses a graph file. With repair set, malformed JSON is
// passed through ParseLenient.
func Load(path string, repair bool) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph file: %w", err)
	}
	if repair {
		g, _, err := ParseLenient(data)
		return g, err
	}
	return Parse(data)
}

// Marshal encodes a graph in its wire form.
func Marshal(g *Graph) ([]byte, error) {
	return json.Marshal(g)
}

func applyDefaults(g *Graph) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.Name == "" {
		g.Name = DefaultName
	}
	if g.CreatedAt == "" {
		g.CreatedAt = now
	}
	if g.UpdatedAt == "" {
		g.UpdatedAt = now
	}
	for i := range g.Nodes {
		if g.Nodes[i].Params == nil {
			g.Nodes[i].Params = map[string]interface{}{}
		}
	}
}
