package registry

import "context"

// Descriptor is a handler's static capability metadata.
// A handler with no Outputs is terminal: it produces a result payload and
// must not feed another node.
type Descriptor struct {
	Type        string               `json:"type"`
	Label       string               `json:"label"`
	Category    string               `json:"category"`
	Description string               `json:"description,omitempty"`
	Color       string               `json:"color,omitempty"`
	Inputs      []string             `json:"inputs"`
	Outputs     []string             `json:"outputs"`
	Params      map[string]ParamSpec `json:"params_schema"`
	// Singleton marks handlers whose effect is an app-wide side effect
	// (e.g. replacing the current view); only one may apply per run.
	Singleton bool `json:"singleton,omitempty"`
}

// CategorySource is the category of graph entry nodes.
const CategorySource = "source"

// IsSource reports whether the descriptor is a graph entry point.
func (d Descriptor) IsSource() bool { return d.Category == CategorySource }

// IsTerminal reports whether the handler produces no chainable output.
func (d Descriptor) IsTerminal() bool { return len(d.Outputs) == 0 }

// ExecContext is what a handler sees of the run and the host while executing.
type ExecContext interface {
	Context() context.Context
	NodeID() string
	// Env is the host collaborator: the data collection and its side
	// effects. Handlers assert it to the interface they need.
	Env() any
	// ReportProgress publishes a completion fraction in [0, 1].
	ReportProgress(fraction float64)
}

// Handler is the pluggable implementation behind one node type.
type Handler interface {
	Descriptor() Descriptor
	// Validate checks params without I/O.
	Validate(params map[string]any) []Issue
	Execute(in Artifact, params Params, ec ExecContext) (Artifact, error)
	// DynamicOptions returns live values for a dynamic parameter; ok is
	// false for static parameters.
	DynamicOptions(param string, ec ExecContext) (options []any, ok bool)
}

// Base supplies the schema-driven parts of Handler. Concrete handlers embed
// it and implement Execute, overriding Validate or DynamicOptions as needed.
type Base struct {
	Desc Descriptor
}

func (b Base) Descriptor() Descriptor { return b.Desc }

func (b Base) Validate(params map[string]any) []Issue {
	return ValidateSchema(b.Desc.Params, params)
}

func (b Base) DynamicOptions(string, ExecContext) ([]any, bool) {
	return nil, false
}

// StaticContext is an ExecContext with no running node, used when the
// host resolves dynamic options outside a run.
type StaticContext struct {
	Ctx      context.Context
	Host     any
	Progress func(float64)
}

func (s StaticContext) Context() context.Context {
	if s.Ctx == nil {
		return context.Background()
	}
	return s.Ctx
}

func (s StaticContext) NodeID() string { return "" }

func (s StaticContext) Env() any { return s.Host }

func (s StaticContext) ReportProgress(f float64) {
	if s.Progress != nil {
		s.Progress(f)
	}
}
