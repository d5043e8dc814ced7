package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/AaronLay10/curaflow/internal/engine"
	"github.com/AaronLay10/curaflow/internal/graph"
	"github.com/AaronLay10/curaflow/internal/graphstore"
	"github.com/AaronLay10/curaflow/internal/registry"
	"github.com/AaronLay10/curaflow/internal/service"
)

// maxBodyBytes bounds request bodies carrying graphs.
const maxBodyBytes = 4 << 20

// Server is the HTTP API in front of a service.Service.
type Server struct {
	svc     *service.Service
	auth    *Authenticator
	metrics *Metrics
	ready   *Readiness
	tls     TLSConfig
	name    string
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

func WithAuth(a *Authenticator) Option { return func(s *Server) { s.auth = a } }
func WithMetrics(m *Metrics) Option    { return func(s *Server) { s.metrics = m } }
func WithReadiness(r *Readiness) Option {
	return func(s *Server) { s.ready = r }
}
func WithTLS(c TLSConfig) Option       { return func(s *Server) { s.tls = c } }
func WithName(name string) Option      { return func(s *Server) { s.name = name } }
func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

func New(svc *service.Service, opts ...Option) *Server {
	s := &Server{
		svc:  svc,
		name: "curaflow",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.auth == nil {
		s.auth = &Authenticator{}
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	if s.ready == nil {
		s.ready = &Readiness{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	a := s.auth
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/ready", s.readyHandler)
	mux.HandleFunc("/metrics", s.metricsHandler)

	mux.HandleFunc("/catalog", a.RequireAnyRole(s.catalogHandler))
	mux.HandleFunc("/nodes/defaults", a.RequireAnyRole(s.nodeDefaultsHandler))
	mux.HandleFunc("/graphs/validate", a.RequireAnyRole(s.validateHandler))
	mux.HandleFunc("/graphs/execute", a.RequireAnyRole(s.executeHandler))
	mux.HandleFunc("/graphs", a.RequireAnyRole(s.graphsHandler))
	mux.HandleFunc("/graphs/load", a.RequireAnyRole(s.loadGraphHandler))
	mux.HandleFunc("/graphs/delete", a.RequireAdmin(s.deleteGraphHandler))
	mux.HandleFunc("/runs", a.RequireAnyRole(s.runsHandler))
	mux.HandleFunc("/runs/cancel", a.RequireAnyRole(s.cancelRunHandler))
	mux.HandleFunc("/events", a.RequireAnyRole(s.eventsHandler))
	mux.HandleFunc("/ws/events", a.RequireAnyRole(s.wsEventsHandler))
	return mux
}

// ListenAndServe serves the API until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	tlsCfg, err := s.tls.Load()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("API listening", "addr", srv.Addr, "tls", tlsCfg != nil)
		if tlsCfg != nil {
			errc <- srv.ListenAndServeTLS("", "")
		} else {
			errc <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.svc.Bus().Close()
		return srv.Shutdown(shutdownCtx)
	}
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   s.name,
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

type ReadyResponse struct {
	Ready    bool            `json:"ready"`
	Backends map[string]bool `json:"backends"`
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{Ready: s.ready.Ready(), Backends: map[string]bool{}}
	if s.ready.MQTTEnabled {
		resp.Backends["mqtt"] = s.ready.MQTTConnected()
	}
	if s.ready.PostgresEnabled {
		resp.Backends["postgres"] = s.ready.PostgresConnected()
	}
	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) catalogHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"catalog": s.svc.Catalog(r.Context())})
}

func (s *Server) nodeDefaultsHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	d, err := s.svc.NodeDefaults(r.Context(), r.URL.Query().Get("node_type"))
	switch {
	case errors.Is(err, registry.ErrUnknownNodeType):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]any{"metadata": d})
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return nil, false
	}
	return body, true
}

func (s *Server) validateHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	res, err := s.svc.ValidateJSON(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type validationFailure struct {
	OK     bool                     `json:"ok"`
	Error  string                   `json:"error"`
	Errors []graph.ValidationError `json:"errors"`
}

// executeHandler streams the run's events as NDJSON. A client that goes away
// cancels the run.
func (s *Server) executeHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	run, err := s.svc.ExecuteJSON(r.Context(), body)
	if err != nil {
		var failed *engine.ValidationFailedError
		if errors.As(err, &failed) {
			writeJSON(w, http.StatusBadRequest, validationFailure{Error: "graph validation failed", Errors: failed.Errors})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("X-Run-ID", run.ID())
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	for ev := range run.Events() {
		if err := enc.Encode(ev); err != nil {
			s.logger.Warn("execute stream write failed", "run_id", run.ID(), "err", err)
			break
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) graphsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.svc.ListGraphs(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"graphs": list})
	case http.MethodPost:
		body, ok := readBody(w, r)
		if !ok {
			return
		}
		g, err := graph.Parse(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		id, err := s.svc.SaveGraph(r.Context(), g)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"graph_id": id, "saved": true})
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) loadGraphHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	id := r.URL.Query().Get("graph_id")
	g, err := s.svc.LoadGraph(r.Context(), id)
	switch {
	case errors.Is(err, graphstore.ErrMissingID):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, graphstore.ErrNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("Graph '%s' not found", id))
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]any{"graph": g})
	}
}

type graphIDRequest struct {
	GraphID string `json:"graph_id"`
}

func (s *Server) deleteGraphHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req graphIDRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	err := s.svc.DeleteGraph(r.Context(), req.GraphID)
	switch {
	case errors.Is(err, graphstore.ErrMissingID):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
	}
}

func (s *Server) runsHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": s.svc.ActiveRuns()})
}

type runIDRequest struct {
	RunID string `json:"run_id"`
}

func (s *Server) cancelRunHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req runIDRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.RunID == "" {
		writeError(w, http.StatusBadRequest, "run_id required")
		return
	}
	if !s.svc.Cancel(req.RunID) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.svc.Bus().Recent(limit))
}
