// Package service ties the node registry, the execution engine, the graph
// store, the dataset session and the event bus together. The HTTP API, the
// MQTT command topic and the CLI all go through it.
package service
