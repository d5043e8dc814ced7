// Package nodes holds the built-in node handlers: dataset sources, view
// stages, aggregations and the output nodes that write back to the host.
//
// Handlers reach the dataset through ExecContext.Env, which must implement
// Host; dataset.Session does.
package nodes
