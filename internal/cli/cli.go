package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/AaronLay10/curaflow/internal/dataset"
	"github.com/AaronLay10/curaflow/internal/engine"
	"github.com/AaronLay10/curaflow/internal/graph"
	"github.com/AaronLay10/curaflow/internal/logging"
	"github.com/AaronLay10/curaflow/internal/nodes"
	"github.com/AaronLay10/curaflow/internal/service"
	"github.com/AaronLay10/curaflow/internal/version"
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

const usage = `
curaflow - run dataset curation workflows from the command line.

Usage:
  curaflow validate [options] GRAPH_FILE
  curaflow run      [options] GRAPH_FILE
  curaflow catalog  [options]
  curaflow version

Run "curaflow COMMAND -h" for the options of a command.
`

// Run executes one command. Results go to stdout, logs to stderr.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, usage)
		return nil
	}
	switch args[0] {
	case "validate":
		return validateCmd(ctx, args[1:], stdout, stderr)
	case "run":
		return runCmd(ctx, args[1:], stdout, stderr)
	case "catalog":
		return catalogCmd(ctx, args[1:], stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, version.Version)
		return nil
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		return &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q", args[0])}
	}
}

type common struct {
	datasetPath string
	repair      bool
	parallelism int
	logLevel    string
	logFormat   string
}

func newFlagSet(name string, stderr io.Writer, c *common) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&c.datasetPath, "dataset", "", "Path to a JSON or YAML dataset file.")
	fs.BoolVar(&c.repair, "repair", false, "Repair malformed graph JSON before parsing.")
	fs.IntVar(&c.parallelism, "parallelism", 1, "Maximum number of nodes executing at once.")
	fs.StringVar(&c.logLevel, "log-level", "warn", "Logging level: 'debug', 'info', 'warn' or 'error'.")
	fs.StringVar(&c.logFormat, "log-format", "text", "Log output format: 'text' or 'json'.")
	return fs
}

// parse returns done=true when help was requested.
func parse(fs *flag.FlagSet, args []string, c *common) (done bool, err error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return true, nil
		}
		return false, &ExitError{Code: 2, Message: err.Error()}
	}
	switch strings.ToLower(c.logFormat) {
	case "text", "json":
	default:
		return false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	switch strings.ToLower(c.logLevel) {
	case "debug", "info", "warn", "error":
	default:
		return false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	return false, nil
}

func graphArg(fs *flag.FlagSet) (string, error) {
	if fs.NArg() != 1 {
		return "", &ExitError{Code: 2, Message: fs.Name() + ": expected exactly one GRAPH_FILE"}
	}
	return fs.Arg(0), nil
}

// newService builds a service over the dataset file, or over an empty
// dataset when no file was given.
func newService(c *common, stderr io.Writer) (*service.Service, error) {
	var ds *dataset.Dataset
	if c.datasetPath == "" {
		ds = dataset.New("default", nil)
	} else {
		var err error
		ds, err = dataset.Load(c.datasetPath)
		if err != nil {
			return nil, &ExitError{Code: 1, Message: err.Error()}
		}
	}
	return service.New(service.Options{
		Session:     dataset.NewSession(ds),
		Registry:    nodes.NewRegistry(),
		Logger:      logging.New(c.logLevel, c.logFormat, stderr),
		Parallelism: c.parallelism,
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func validateCmd(_ context.Context, args []string, stdout, stderr io.Writer) error {
	var c common
	fs := newFlagSet("validate", stderr, &c)
	if done, err := parse(fs, args, &c); done || err != nil {
		return err
	}
	path, err := graphArg(fs)
	if err != nil {
		return err
	}
	g, err := graph.Load(path, c.repair)
	if err != nil {
		return &ExitError{Code: 1, Message: err.Error()}
	}
	svc, err := newService(&c, stderr)
	if err != nil {
		return err
	}

	res := svc.Validate(g)
	if err := writeJSON(stdout, res); err != nil {
		return err
	}
	if !res.Valid {
		return &ExitError{Code: 1, Message: fmt.Sprintf("graph is invalid: %d error(s)", len(res.Errors))}
	}
	return nil
}

func runCmd(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var c common
	fs := newFlagSet("run", stderr, &c)
	if done, err := parse(fs, args, &c); done || err != nil {
		return err
	}
	path, err := graphArg(fs)
	if err != nil {
		return err
	}
	g, err := graph.Load(path, c.repair)
	if err != nil {
		return &ExitError{Code: 1, Message: err.Error()}
	}
	svc, err := newService(&c, stderr)
	if err != nil {
		return err
	}

	run, err := svc.Execute(ctx, g)
	if err != nil {
		var failed *engine.ValidationFailedError
		if errors.As(err, &failed) {
			_ = writeJSON(stdout, service.ValidateResult{Errors: failed.Errors})
		}
		return &ExitError{Code: 1, Message: err.Error()}
	}

	enc := json.NewEncoder(stdout)
	var summary engine.Summary
	for ev := range run.Events() {
		if err := enc.Encode(ev); err != nil {
			return err
		}
		if ev.IsSummary() {
			summary = *ev.Summary
		}
	}
	if summary.Failed > 0 {
		return &ExitError{Code: 1, Message: fmt.Sprintf("%d of %d node(s) failed", summary.Failed, summary.Total)}
	}
	return nil
}

func catalogCmd(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var c common
	fs := newFlagSet("catalog", stderr, &c)
	if done, err := parse(fs, args, &c); done || err != nil {
		return err
	}
	svc, err := newService(&c, stderr)
	if err != nil {
		return err
	}
	return writeJSON(stdout, svc.Catalog(ctx))
}
