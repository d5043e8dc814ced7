package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/AaronLay10/curaflow/internal/dataset"
	"github.com/AaronLay10/curaflow/internal/engine"
	"github.com/AaronLay10/curaflow/internal/events"
	"github.com/AaronLay10/curaflow/internal/graph"
	"github.com/AaronLay10/curaflow/internal/graphstore"
	"github.com/AaronLay10/curaflow/internal/nodes"
	"github.com/AaronLay10/curaflow/internal/registry"
)

// Options configures a Service. Only Session is required.
type Options struct {
	Session     *dataset.Session
	Registry    *registry.Registry
	Store       *graphstore.Store
	Bus         *events.Bus
	Logger      *slog.Logger
	Parallelism int
	// Sinks receive every run event in addition to the bus.
	Sinks []engine.Sink
}

// Service is the application layer shared by the HTTP API, the MQTT command
// topic and the CLI.
type Service struct {
	reg     *registry.Registry
	engine  *engine.Engine
	store   *graphstore.Store
	session *dataset.Session
	bus     *events.Bus
	logger  *slog.Logger

	mu   sync.Mutex
	runs map[string]*engine.Run
}

var ErrNoSession = errors.New("service: a dataset session is required")

func New(opts Options) (*Service, error) {
	if opts.Session == nil {
		return nil, ErrNoSession
	}
	s := &Service{
		reg:     opts.Registry,
		store:   opts.Store,
		session: opts.Session,
		bus:     opts.Bus,
		logger:  opts.Logger,
		runs:    make(map[string]*engine.Run),
	}
	if s.reg == nil {
		s.reg = nodes.NewRegistry()
	}
	if s.store == nil {
		s.store = graphstore.New(graphstore.NewMemory(), opts.Session.Dataset().Name())
	}
	if s.bus == nil {
		s.bus = events.NewBus()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	engOpts := []engine.Option{
		engine.WithLogger(s.logger),
		engine.WithParallelism(opts.Parallelism),
		engine.WithSink(events.EngineSink(s.bus)),
	}
	for _, sink := range opts.Sinks {
		engOpts = append(engOpts, engine.WithSink(sink))
	}
	s.engine = engine.New(s.reg, engOpts...)
	return s, nil
}

func (s *Service) Registry() *registry.Registry { return s.reg }
func (s *Service) Bus() *events.Bus             { return s.bus }
func (s *Service) Session() *dataset.Session    { return s.session }
func (s *Service) Store() *graphstore.Store     { return s.store }

// ValidateResult is the answer to a validation request.
type ValidateResult struct {
	Valid  bool                     `json:"valid"`
	Errors []graph.ValidationError `json:"errors"`
}

// Validate checks g without executing anything.
func (s *Service) Validate(g *graph.Graph) ValidateResult {
	errs := s.engine.Validate(g)
	if errs == nil {
		errs = []graph.ValidationError{}
	}
	return ValidateResult{Valid: len(errs) == 0, Errors: errs}
}

// ValidateJSON parses and validates a serialized graph.
func (s *Service) ValidateJSON(raw []byte) (ValidateResult, error) {
	g, err := graph.Parse(raw)
	if err != nil {
		return ValidateResult{}, err
	}
	return s.Validate(g), nil
}

// Execute validates g and starts a run against the session. The caller must
// consume the run's events (or Wait) for it to make progress.
func (s *Service) Execute(ctx context.Context, g *graph.Graph) (*engine.Run, error) {
	run, err := s.engine.Start(ctx, g, s.session)
	if err != nil {
		var failed *engine.ValidationFailedError
		if errors.As(err, &failed) {
			s.emit(events.LevelWarn, "run.rejected", "graph failed validation", map[string]any{
				"graph_id": g.ID,
				"errors":   len(failed.Errors),
			})
		}
		return nil, err
	}

	s.mu.Lock()
	s.runs[run.ID()] = run
	s.mu.Unlock()
	go func() {
		<-run.Done()
		s.mu.Lock()
		delete(s.runs, run.ID())
		s.mu.Unlock()
	}()

	s.emit(events.LevelInfo, "run.started", "", map[string]any{
		"run_id":   run.ID(),
		"graph_id": g.ID,
		"nodes":    len(g.Nodes),
	})
	return run, nil
}

// ExecuteJSON parses raw and calls Execute.
func (s *Service) ExecuteJSON(ctx context.Context, raw []byte) (*engine.Run, error) {
	g, err := graph.Parse(raw)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, g)
}

// ExecuteDetached starts a run and drives it in the background. Its events
// reach the bus and the configured sinks only.
func (s *Service) ExecuteDetached(ctx context.Context, raw []byte) (string, error) {
	run, err := s.ExecuteJSON(ctx, raw)
	if err != nil {
		return "", err
	}
	go run.Wait()
	return run.ID(), nil
}

// Cancel stops an active run. It reports whether the run was found.
func (s *Service) Cancel(runID string) bool {
	s.mu.Lock()
	run, ok := s.runs[runID]
	s.mu.Unlock()
	if ok {
		run.Cancel()
	}
	return ok
}

// ActiveRuns returns the ids of runs that have not finished, sorted.
func (s *Service) ActiveRuns() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Service) staticContext(ctx context.Context) registry.ExecContext {
	return registry.StaticContext{Ctx: ctx, Host: s.session}
}

// Catalog returns every node descriptor with dynamic options resolved
// against the current dataset.
func (s *Service) Catalog(ctx context.Context) []registry.Descriptor {
	ec := s.staticContext(ctx)
	catalog := s.reg.Catalog()
	for i, d := range catalog {
		h, err := s.reg.Lookup(d.Type)
		if err != nil {
			continue
		}
		catalog[i] = registry.ResolveOptions(h, ec)
	}
	return catalog
}

// NodeDefaults returns one node descriptor with dynamic options resolved.
func (s *Service) NodeDefaults(ctx context.Context, nodeType string) (registry.Descriptor, error) {
	if nodeType == "" {
		return registry.Descriptor{}, fmt.Errorf("node_type is required")
	}
	h, err := s.reg.Lookup(nodeType)
	if err != nil {
		return registry.Descriptor{}, err
	}
	return registry.ResolveOptions(h, s.staticContext(ctx)), nil
}

// SaveGraph stores g and returns its id.
func (s *Service) SaveGraph(ctx context.Context, g *graph.Graph) (string, error) {
	id, err := s.store.Save(ctx, g)
	if err != nil {
		return "", err
	}
	s.emit(events.LevelInfo, "graph.saved", "", map[string]any{"graph_id": id, "name": g.Name})
	return id, nil
}

func (s *Service) ListGraphs(ctx context.Context) ([]graphstore.Entry, error) {
	return s.store.List(ctx)
}

func (s *Service) LoadGraph(ctx context.Context, id string) (*graph.Graph, error) {
	return s.store.Load(ctx, id)
}

func (s *Service) DeleteGraph(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.emit(events.LevelInfo, "graph.deleted", "", map[string]any{"graph_id": id})
	return nil
}

func (s *Service) emit(level, name, msg string, fields map[string]any) {
	if _, err := s.bus.Emit(level, name, msg, fields); err != nil {
		s.logger.Error("event rejected", "event", name, "err", err)
	}
}
