package registry

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownNodeType matches every UnknownNodeTypeError.
var ErrUnknownNodeType = errors.New("unknown node type")

// UnknownNodeTypeError reports a type string with no registered handler.
type UnknownNodeTypeError struct {
	Type string
}

func (e *UnknownNodeTypeError) Error() string {
	return fmt.Sprintf("Unknown node type: '%s'", e.Type)
}

func (e *UnknownNodeTypeError) Is(target error) bool {
	return target == ErrUnknownNodeType
}

// Module registers a group of handlers.
type Module interface {
	Register(r *Registry)
}

// Registry maps node type identifiers to handlers. It is filled once at
// startup and frozen; after Freeze it is a read-only lookup safe for
// concurrent runs.
type Registry struct {
	handlers map[string]Handler
	frozen   bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Build creates a registry from modules and freezes it.
func Build(modules ...Module) *Registry {
	r := New()
	for _, m := range modules {
		m.Register(r)
	}
	r.Freeze()
	return r
}

// Register adds a handler. Registering twice, registering an empty type
// or registering after Freeze is a programmer error and panics.
func (r *Registry) Register(h Handler) {
	if r.frozen {
		panic("registry: Register called after Freeze")
	}
	t := h.Descriptor().Type
	if t == "" {
		panic("registry: handler with empty type")
	}
	if _, exists := r.handlers[t]; exists {
		panic(fmt.Sprintf("registry: handler for node type '%s' already registered", t))
	}
	r.handlers[t] = h
}

// Freeze ends the registration phase.
func (r *Registry) Freeze() { r.frozen = true }

// Lookup resolves a node type to its handler.
func (r *Registry) Lookup(nodeType string) (Handler, error) {
	h, ok := r.handlers[nodeType]
	if !ok {
		return nil, &UnknownNodeTypeError{Type: nodeType}
	}
	return h, nil
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int { return len(r.handlers) }

// Catalog returns every descriptor, sorted by category then type.
func (r *Registry) Catalog() []Descriptor {
	out := make([]Descriptor, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h.Descriptor())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// ResolveOptions returns a copy of d whose dynamic parameters carry the
// handler's live option values.
func ResolveOptions(h Handler, ec ExecContext) Descriptor {
	d := h.Descriptor()
	if len(d.Params) == 0 {
		return d
	}
	params := make(map[string]ParamSpec, len(d.Params))
	for name, spec := range d.Params {
		if spec.Dynamic {
			if opts, ok := h.DynamicOptions(name, ec); ok {
				spec.Values = opts
			}
		}
		params[name] = spec
	}
	d.Params = params
	return d
}

func sortedKeys(m map[string]ParamSpec) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
