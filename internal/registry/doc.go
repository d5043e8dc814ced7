// Package registry is the node-type plugin registry.
//
// Each node type is backed by a Handler carrying static capability metadata
// (category, input and output capability tags, parameter schema) and the
// validate/execute/dynamic-options operations. The Registry is constructed
// explicitly at startup, filled by one Register call per node type and
// frozen; from then on it is only read, by the validator and by every
// execution run.
package registry
