// Package engine validates node graphs and executes them.
//
// Validate accumulates every structural and parameter violation of a graph
// in one pass. Schedule orders the nodes topologically, breaking ties by
// declaration order so the same graph always runs the same way. An Engine
// runs a validated graph: each node moves pending -> running ->
// complete|error, or pending -> skipped when an ancestor failed, and every
// transition is reported on the run's event stream, which ends with a
// Summary.
//
// By default nodes run one at a time in schedule order. WithParallelism
// lets independent branches overlap; the goroutine consuming Events still
// owns all run state and handler calls are the only work done elsewhere.
package engine
