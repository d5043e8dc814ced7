// Package graph holds the in-memory workflow graph exchanged with the
// canvas: nodes, edges and the validation error record, plus their JSON
// decoding. A Graph is built right before validation or execution and is
// never mutated by the engine.
package graph
