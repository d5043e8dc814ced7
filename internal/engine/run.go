package engine

import (
	"container/heap"
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/curaflow/internal/graph"
	"github.com/AaronLay10/curaflow/internal/logging"
	"github.com/AaronLay10/curaflow/internal/registry"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Without it the logger is taken from
// the run's context.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithParallelism lets up to n structurally independent nodes run at once.
// n <= 1 is the sequential baseline.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}
		e.parallelism = n
	}
}

// WithSink adds a sink that observes every event.
func WithSink(s Sink) Option {
	return func(e *Engine) { e.sinks = append(e.sinks, s) }
}

// WithClock replaces time.Now for timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine validates and runs graphs against a frozen registry. One Engine
// serves any number of concurrent runs.
type Engine struct {
	reg         *registry.Registry
	logger      *slog.Logger
	parallelism int
	sinks       []Sink
	now         func() time.Time
}

// New creates an engine.
func New(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{reg: reg, parallelism: 1, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the engine's handler registry.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// Validate checks g against the engine's registry.
func (e *Engine) Validate(g *graph.Graph) []graph.ValidationError {
	return Validate(g, e.reg)
}

// Start validates g and prepares a run. An invalid graph returns a
// *ValidationFailedError and no handler is ever invoked. The run does not
// advance until its events are consumed (Events or Wait).
func (e *Engine) Start(ctx context.Context, g *graph.Graph, env any) (*Run, error) {
	if errs := Validate(g, e.reg); len(errs) > 0 {
		return nil, &ValidationFailedError{Errors: errs}
	}
	return e.start(ctx, g, env)
}

// start prepares a run without validation.
func (e *Engine) start(ctx context.Context, g *graph.Graph, env any) (*Run, error) {
	adj := buildAdjacency(g)
	order, ok := adj.kahn()
	if !ok {
		return nil, &StructuralError{Kind: KindCycle, Msg: cycleMessage}
	}

	logger := e.logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}
	runCtx, cancel := context.WithCancel(ctx)
	r := &Run{
		id:        uuid.NewString(),
		eng:       e,
		ctx:       runCtx,
		cancel:    cancel,
		env:       env,
		adj:       adj,
		order:     order,
		rank:      make([]int, len(adj.ids)),
		nodes:     make([]*graph.Node, len(adj.ids)),
		states:    make([]State, len(adj.ids)),
		outputs:   make(map[int]registry.Artifact),
		errs:      make(map[int]error),
		startedAt: make([]time.Time, len(adj.ids)),
		remaining: append([]int(nil), adj.indegree...),
		ready:     &indexHeap{},
		msgs:      make(chan workerMsg),
		done:      make(chan struct{}),
	}
	r.log = logger.With("run_id", r.id)
	for i := range g.Nodes {
		pos := adj.index[g.Nodes[i].ID]
		if r.nodes[pos] == nil {
			r.nodes[pos] = &g.Nodes[i]
		}
	}
	for rank, pos := range order {
		r.rank[pos] = rank
		r.states[pos] = StatePending
	}
	return r, nil
}

// Run is one execution of a graph. Its state is owned by the goroutine
// consuming Events; the accessors may be called from any goroutine.
type Run struct {
	id     string
	eng    *Engine
	ctx    context.Context
	cancel context.CancelFunc
	env    any
	log    *slog.Logger

	adj   *adjacency
	order []int // adjacency positions in execution order
	rank  []int // adjacency position -> index in order
	nodes []*graph.Node

	mu        sync.Mutex
	states    []State
	outputs   map[int]registry.Artifact
	errs      map[int]error
	summary   Summary
	startedAt []time.Time

	// coordinator-only
	remaining []int // parents not yet complete, per edge
	ready     *indexHeap
	inflight  int
	msgs      chan workerMsg
	yield     func(Event) bool
	stopped   bool

	started atomic.Bool
	done    chan struct{}
}

type workerMsg struct {
	pos      int
	progress *float64
	out      registry.Artifact
	err      error
}

// ID returns the run id.
func (r *Run) ID() string { return r.id }

// Order returns the node ids in execution order.
func (r *Run) Order() []string {
	ids := make([]string, len(r.order))
	for i, pos := range r.order {
		ids[i] = r.adj.ids[pos]
	}
	return ids
}

// State returns a node's current state, or "" for an unknown id.
func (r *Run) State(nodeID string) State {
	pos, ok := r.adj.index[nodeID]
	if !ok {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[pos]
}

// States returns a snapshot of every node's state.
func (r *Run) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]State, len(r.states))
	for pos, s := range r.states {
		out[r.adj.ids[pos]] = s
	}
	return out
}

// Results returns the artifacts produced by completed nodes.
func (r *Run) Results() map[string]registry.Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]registry.Artifact, len(r.outputs))
	for pos, a := range r.outputs {
		out[r.adj.ids[pos]] = a
	}
	return out
}

// Err returns the *ExecutionError recorded for a failed node, or nil.
func (r *Run) Err(nodeID string) error {
	pos, ok := r.adj.index[nodeID]
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errs[pos]
}

// Events returns the run's event stream. Pulling events drives the run;
// the stream is finite and can be consumed once. Breaking out of the loop
// early cancels the remaining nodes, which still finish as skipped.
func (r *Run) Events() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		if !r.started.CompareAndSwap(false, true) {
			return
		}
		defer close(r.done)
		r.yield = yield
		r.execute()
	}
}

// Wait consumes the rest of the run, if nobody else is, and returns the
// summary once it has finished.
func (r *Run) Wait() Summary {
	for range r.Events() {
	}
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary
}

// Cancel stops the run: nodes that have not started are skipped. It is
// safe to call from any goroutine and more than once.
func (r *Run) Cancel() { r.cancel() }

// Done is closed once the run has emitted its summary.
func (r *Run) Done() <-chan struct{} { return r.done }

func (r *Run) emit(ev Event) {
	ev.RunID = r.id
	if ev.Time.IsZero() {
		ev.Time = r.eng.now()
	}
	for _, s := range r.eng.sinks {
		s.Emit(r.id, ev)
	}
	if r.stopped {
		return
	}
	if !r.yield(ev) {
		r.stopped = true
		r.cancel()
	}
}

func (r *Run) setState(pos int, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !canTransition(r.states[pos], to) {
		panic(fmt.Sprintf("engine: illegal transition %s -> %s for node %s", r.states[pos], to, r.adj.ids[pos]))
	}
	r.states[pos] = to
}

func (r *Run) state(pos int) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[pos]
}

func (r *Run) execute() {
	defer r.cancel()
	r.log.Info("run started", "nodes", len(r.order), "parallelism", r.eng.parallelism)

	for _, pos := range r.order {
		r.emit(Event{NodeID: r.adj.ids[pos], Status: StatusPending})
	}
	r.resolveSingletons()

	for _, pos := range r.order {
		if r.remaining[pos] == 0 && r.state(pos) == StatePending {
			heap.Push(r.ready, r.rank[pos])
		}
	}

	for {
		for r.inflight < r.eng.parallelism && r.ready.Len() > 0 {
			if r.ctx.Err() != nil {
				r.skipPending("run cancelled")
				*r.ready = (*r.ready)[:0]
				break
			}
			pos := r.order[heap.Pop(r.ready).(int)]
			if r.state(pos) != StatePending {
				continue
			}
			r.startNode(pos)
		}
		// nothing running means nothing is ready either
		if r.inflight == 0 {
			break
		}
		r.handle(<-r.msgs)
	}

	reason := "not reached"
	if r.ctx.Err() != nil {
		reason = "run cancelled"
	}
	r.skipPending(reason)
	r.finish()
}

// resolveSingletons keeps only the last node, in execution order, of each
// singleton handler type. The others are skipped with a warning.
func (r *Run) resolveSingletons() {
	byType := make(map[string][]int)
	var types []string
	for _, pos := range r.order {
		h, err := r.eng.reg.Lookup(r.nodes[pos].Type)
		if err != nil || !h.Descriptor().Singleton {
			continue
		}
		t := r.nodes[pos].Type
		if _, seen := byType[t]; !seen {
			types = append(types, t)
		}
		byType[t] = append(byType[t], pos)
	}
	for _, t := range types {
		group := byType[t]
		if len(group) < 2 {
			continue
		}
		winner := r.adj.ids[group[len(group)-1]]
		msg := fmt.Sprintf("%d '%s' nodes in graph; only '%s' (last in execution order) will be applied", len(group), t, winner)
		r.log.Warn("singleton collision", "node_type", t, "winner", winner, "count", len(group))
		r.emit(Event{NodeID: winner, Status: StatusWarning, Message: msg})
		for _, pos := range group[:len(group)-1] {
			r.skip(pos, fmt.Sprintf("superseded by '%s'", winner))
		}
	}
}

func (r *Run) startNode(pos int) {
	node := r.nodes[pos]
	r.setState(pos, StateRunning)
	r.mu.Lock()
	r.startedAt[pos] = r.eng.now()
	r.mu.Unlock()
	r.emit(Event{NodeID: node.ID, Status: StatusRunning})
	r.log.Debug("node started", "node_id", node.ID, "node_type", node.Type)

	h, err := r.eng.reg.Lookup(node.Type)
	if err != nil {
		r.fail(pos, err)
		return
	}
	desc := h.Descriptor()
	in, err := r.resolveInput(pos, desc)
	if err != nil {
		r.fail(pos, err)
		return
	}
	params := registry.NewParams(node.Params, desc.Params)
	ec := &execContext{run: r, pos: pos, nodeID: node.ID}

	r.inflight++
	go func() {
		out, err := invoke(h, in, params, ec)
		r.send(workerMsg{pos: pos, out: out, err: err})
	}()
}

// send delivers a worker message unless the run has already finished.
func (r *Run) send(m workerMsg) {
	select {
	case r.msgs <- m:
	case <-r.done:
	}
}

func invoke(h registry.Handler, in registry.Artifact, p registry.Params, ec registry.ExecContext) (out registry.Artifact, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panicked: %v", rec)
		}
	}()
	return h.Execute(in, p, ec)
}

// resolveInput picks the first parent, in edge order, with a recorded
// output. That output must be a view.
func (r *Run) resolveInput(pos int, desc registry.Descriptor) (registry.Artifact, error) {
	for _, parent := range r.adj.parents[pos] {
		r.mu.Lock()
		out, ok := r.outputs[parent]
		r.mu.Unlock()
		if !ok {
			continue
		}
		if !out.IsView() {
			return registry.Artifact{}, fmt.Errorf("parent '%s': %w", r.adj.ids[parent], ErrTerminalInput)
		}
		return out, nil
	}
	if desc.IsSource() {
		return registry.Artifact{}, nil
	}
	return registry.Artifact{}, ErrNoUsableInput
}

func (r *Run) handle(m workerMsg) {
	if m.progress != nil {
		if r.state(m.pos) != StateRunning {
			return
		}
		r.emit(Event{NodeID: r.adj.ids[m.pos], Status: StatusProgress, Progress: m.progress})
		return
	}
	r.inflight--
	if m.err != nil {
		r.fail(m.pos, m.err)
		return
	}
	r.complete(m.pos, m.out)
}

func (r *Run) elapsed(pos int) *int64 {
	r.mu.Lock()
	start := r.startedAt[pos]
	r.mu.Unlock()
	ms := r.eng.now().Sub(start).Milliseconds()
	return &ms
}

func (r *Run) complete(pos int, out registry.Artifact) {
	id := r.adj.ids[pos]
	r.setState(pos, StateComplete)
	if out.Kind() != registry.KindNone {
		r.mu.Lock()
		r.outputs[pos] = out
		r.mu.Unlock()
	}
	dur := r.elapsed(pos)
	r.emit(Event{NodeID: id, Status: StatusComplete, DurationMS: dur, Result: out.Summary()})
	r.log.Debug("node complete", "node_id", id, "duration_ms", *dur)

	for _, c := range r.adj.children[pos] {
		r.remaining[c]--
		if r.remaining[c] == 0 && r.state(c) == StatePending {
			heap.Push(r.ready, r.rank[c])
		}
	}
}

func (r *Run) fail(pos int, err error) {
	id := r.adj.ids[pos]
	execErr := &ExecutionError{NodeID: id, Err: err}
	r.setState(pos, StateError)
	r.mu.Lock()
	r.errs[pos] = execErr
	r.mu.Unlock()
	r.emit(Event{NodeID: id, Status: StatusError, DurationMS: r.elapsed(pos), Error: err.Error()})
	r.log.Warn("node failed", "node_id", id, "error", err)
	r.propagateSkip(pos, fmt.Sprintf("upstream node '%s' failed", id))
}

// skip marks one pending node skipped and cascades to its descendants.
func (r *Run) skip(pos int, reason string) {
	if r.state(pos) != StatePending {
		return
	}
	r.setState(pos, StateSkipped)
	r.emit(Event{NodeID: r.adj.ids[pos], Status: StatusSkipped, Message: reason})
	r.propagateSkip(pos, fmt.Sprintf("upstream node '%s' skipped", r.adj.ids[pos]))
}

// propagateSkip marks every pending node reachable from pos skipped,
// breadth first. Nodes already in a terminal state are left alone.
func (r *Run) propagateSkip(pos int, reason string) {
	visited := make(map[int]bool)
	queue := append([]int(nil), r.adj.children[pos]...)
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if visited[c] {
			continue
		}
		visited[c] = true
		if r.state(c) != StatePending {
			continue
		}
		r.setState(c, StateSkipped)
		r.emit(Event{NodeID: r.adj.ids[c], Status: StatusSkipped, Message: reason})
		queue = append(queue, r.adj.children[c]...)
	}
}

// skipPending skips every node still pending, in execution order.
func (r *Run) skipPending(reason string) {
	for _, pos := range r.order {
		if r.state(pos) == StatePending {
			r.setState(pos, StateSkipped)
			r.emit(Event{NodeID: r.adj.ids[pos], Status: StatusSkipped, Message: reason})
		}
	}
}

func (r *Run) finish() {
	s := Summary{Total: len(r.order)}
	r.mu.Lock()
	for _, st := range r.states {
		switch st {
		case StateComplete:
			s.Completed++
		case StateError:
			s.Failed++
		}
	}
	s.Skipped = s.Total - s.Completed - s.Failed
	r.summary = s
	r.mu.Unlock()

	r.log.Info("run finished", "total", s.Total, "completed", s.Completed, "failed", s.Failed, "skipped", s.Skipped)
	r.emit(Event{Status: StatusComplete, Summary: &s})
}

// execContext is the ExecContext handed to one handler invocation.
type execContext struct {
	run    *Run
	pos    int
	nodeID string
}

func (c *execContext) Context() context.Context { return c.run.ctx }
func (c *execContext) NodeID() string           { return c.nodeID }
func (c *execContext) Env() any                 { return c.run.env }

// ReportProgress forwards a completion fraction, clamped to [0, 1], to the
// event stream ahead of the node's completion event.
func (c *execContext) ReportProgress(fraction float64) {
	switch {
	case fraction < 0:
		fraction = 0
	case fraction > 1:
		fraction = 1
	}
	c.run.send(workerMsg{pos: c.pos, progress: &fraction})
}
