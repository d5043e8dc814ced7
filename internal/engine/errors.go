package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AaronLay10/curaflow/internal/graph"
	"github.com/AaronLay10/curaflow/internal/registry"
)

var (
	// ErrCycle matches the structural error raised for cyclic graphs.
	ErrCycle = errors.New("graph contains a cycle")
	// ErrNoUsableInput is raised when a non-source node has no parent output.
	ErrNoUsableInput = errors.New("no usable input")
	// ErrTerminalInput is raised when a node's first parent output is terminal.
	ErrTerminalInput = errors.New("cannot consume a terminal node's output")
)

// StructuralKind classifies a StructuralError.
type StructuralKind string

const (
	KindEmpty        StructuralKind = "empty"
	KindDuplicateID  StructuralKind = "duplicate_id"
	KindDanglingEdge StructuralKind = "dangling_edge"
	KindSource       StructuralKind = "source"
	KindDisconnected StructuralKind = "disconnected"
	KindCycle        StructuralKind = "cycle"
	KindIncompatible StructuralKind = "incompatible"
	KindTerminalFeed StructuralKind = "terminal_feed"
)

// StructuralError is a graph shape problem found before execution.
// An empty NodeID marks a graph-level error.
type StructuralError struct {
	Kind   StructuralKind
	NodeID string
	Msg    string
}

func (e *StructuralError) Error() string { return e.Msg }

func (e *StructuralError) Is(target error) bool {
	return e.Kind == KindCycle && target == ErrCycle
}

// ParamError is a parameter problem reported by a handler's Validate.
type ParamError struct {
	NodeID string
	Field  string
	Msg    string
}

func (e *ParamError) Error() string { return e.Msg }

// NodeTypeError attaches a node to an unknown-type lookup failure.
type NodeTypeError struct {
	NodeID string
	Err    *registry.UnknownNodeTypeError
}

func (e *NodeTypeError) Error() string { return e.Err.Error() }

func (e *NodeTypeError) Unwrap() error { return e.Err }

// ExecutionError is a failure of one node during a run. It never aborts
// the run; it is recorded against the node.
type ExecutionError struct {
	NodeID string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("node %s: %v", e.NodeID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ValidationFailedError is returned by Engine.Start for an invalid graph.
// No handler has been invoked.
type ValidationFailedError struct {
	Errors []graph.ValidationError
}

func (e *ValidationFailedError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ve := range e.Errors {
		msgs = append(msgs, ve.Error())
	}
	return fmt.Sprintf("graph validation failed: %s", strings.Join(msgs, "; "))
}

// toValidationError renders a checker error in the wire shape.
func toValidationError(err error) graph.ValidationError {
	var (
		se *StructuralError
		pe *ParamError
		te *NodeTypeError
	)
	switch {
	case errors.As(err, &se):
		return graph.ValidationError{NodeID: se.NodeID, Message: se.Msg}
	case errors.As(err, &pe):
		return graph.ValidationError{NodeID: pe.NodeID, Message: pe.Msg, Field: pe.Field}
	case errors.As(err, &te):
		return graph.ValidationError{NodeID: te.NodeID, Message: te.Error()}
	}
	return graph.ValidationError{Message: err.Error()}
}
