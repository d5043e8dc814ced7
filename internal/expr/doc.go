// Package expr implements the filter expression language used by match
// stages: F("score") > 0.5 & F("tags").contains("cat").
//
// Expressions are tokenized, parsed into a small AST by recursive descent
// and evaluated against a Record. Numbers are float64 throughout; a field
// that does not exist evaluates to nil.
package expr
