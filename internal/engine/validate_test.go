package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/curaflow/internal/graph"
	"github.com/AaronLay10/curaflow/internal/registry"
)

func kinds(errs []error) []string {
	var out []string
	for _, err := range errs {
		var (
			se *StructuralError
			pe *ParamError
			te *NodeTypeError
		)
		switch {
		case errors.As(err, &se):
			out = append(out, string(se.Kind))
		case errors.As(err, &pe):
			out = append(out, "param")
		case errors.As(err, &te):
			out = append(out, "unknown_type")
		default:
			out = append(out, "other")
		}
	}
	return out
}

func TestValidateValidGraph(t *testing.T) {
	reg := testRegistry(&recorder{})
	g := build([]tn{{"s", "source/test"}, {"m", "stage/pass"}, {"c", "agg/count"}},
		[2]string{"s", "m"}, [2]string{"m", "c"})
	assert.Nil(t, Validate(g, reg))
}

func TestValidateEmptyGraph(t *testing.T) {
	reg := testRegistry(&recorder{})
	errs := Validate(&graph.Graph{}, reg)
	require.Len(t, errs, 2)
	assert.Equal(t, "Graph has no nodes", errs[0].Message)
	assert.Empty(t, errs[0].NodeID)
	assert.Equal(t, "Graph must have at least one source node (Dataset or Saved View)", errs[1].Message)
}

func TestValidateCycleYieldsOneErrorAndNoExecution(t *testing.T) {
	rec := &recorder{}
	reg := testRegistry(rec)
	g := build([]tn{{"a", "source/test"}, {"b", "stage/pass"}, {"c", "stage/pass"}},
		[2]string{"a", "b"}, [2]string{"b", "c"}, [2]string{"c", "a"})

	errs := Check(g, reg)
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], ErrCycle))
	assert.Equal(t, []string{"cycle"}, kinds(errs))

	_, err := New(reg).Start(context.Background(), g, nil)
	var failed *ValidationFailedError
	require.True(t, errors.As(err, &failed))
	require.Len(t, failed.Errors, 1)
	assert.Empty(t, failed.Errors[0].NodeID)
	assert.Empty(t, rec.list())
}

func TestValidateAccumulatesEveryViolation(t *testing.T) {
	reg := testRegistry(&recorder{})
	g := build([]tn{
		{"x", "stage/pass"},
		{"y", "agg/count"},
		{"z", "stage/pass"},
		{"w", "nope"},
		{"i", "stage/image"},
		{"n", "stage/needs"},
		{"x", "stage/pass"},
	},
		[2]string{"x", "y"},
		[2]string{"y", "z"},
		[2]string{"z", "i"},
		[2]string{"q", "n"},
	)

	errs := Check(g, reg)
	assert.Equal(t, []string{
		"duplicate_id",
		"dangling_edge",
		"source",
		"disconnected", "disconnected", "disconnected",
		"terminal_feed",
		"incompatible",
		"unknown_type",
		"param",
	}, kinds(errs))

	ves := Validate(g, reg)
	require.Len(t, ves, len(errs))
	assert.Equal(t, graph.ValidationError{NodeID: "x", Message: "Duplicate node id 'x'"}, ves[0])
	assert.Equal(t, "Edge 'e4' references unknown node 'q'", ves[1].Message)
	assert.Equal(t, "w", ves[4].NodeID)
	assert.Equal(t, graph.ValidationError{NodeID: "z", Message: "'agg/count' is a terminal node and cannot feed into 'stage/pass'"}, ves[6])
	assert.Equal(t, "i", ves[7].NodeID)
	assert.Contains(t, ves[7].Message, "Incompatible connection")
	assert.Equal(t, graph.ValidationError{NodeID: "w", Message: "Unknown node type: 'nope'"}, ves[8])
	assert.Equal(t, graph.ValidationError{NodeID: "n", Message: "'N' is required", Field: "n"}, ves[9])

	assert.True(t, errors.Is(errs[8], registry.ErrUnknownNodeType))
}

func TestValidateMultipleSourcesFlagsLaterOnes(t *testing.T) {
	reg := testRegistry(&recorder{})
	g := build([]tn{{"s1", "source/test"}, {"s2", "source/test"}, {"s3", "source/test"}})
	errs := Validate(g, reg)
	require.Len(t, errs, 2)
	assert.Equal(t, "s2", errs[0].NodeID)
	assert.Equal(t, "s3", errs[1].NodeID)
}

func TestValidateIsIdempotent(t *testing.T) {
	reg := testRegistry(&recorder{})
	g := build([]tn{{"a", "stage/pass"}, {"b", "nope"}, {"c", "stage/needs"}},
		[2]string{"a", "b"}, [2]string{"b", "a"})
	first := Validate(g, reg)
	require.NotEmpty(t, first)
	assert.Equal(t, first, Validate(g, reg))
}

func TestValidateTerminalChainingRejected(t *testing.T) {
	reg := testRegistry(&recorder{})
	g := build([]tn{{"s", "source/test"}, {"c", "agg/count"}, {"p", "stage/pass"}},
		[2]string{"s", "c"}, [2]string{"c", "p"})
	errs := Check(g, reg)
	assert.Equal(t, []string{"terminal_feed"}, kinds(errs))
}

func TestValidationFailedErrorMessage(t *testing.T) {
	err := &ValidationFailedError{Errors: []graph.ValidationError{
		{Message: "Graph has no nodes"},
		{NodeID: "m", Message: "'Expression' is required"},
	}}
	assert.Equal(t, "graph validation failed: Graph has no nodes; m: 'Expression' is required", err.Error())
}
