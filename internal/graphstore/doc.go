// Package graphstore saves, lists, loads and deletes workflow graphs per
// dataset on top of a namespaced key/value store. Each dataset gets its own
// namespace holding one key per graph plus an index of summaries.
package graphstore
