// Package cli implements the curaflow command: it parses arguments, runs
// validate, run and catalog against local graph and dataset files, and maps
// failures to process exit codes.
package cli
