package graphstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/curaflow/internal/graph"
)

// Version is bumped when the stored layout changes.
const Version = "v1"

const indexKey = "graph_index"

var (
	ErrNotFound  = errors.New("graph not found")
	ErrMissingID = errors.New("graph_id is required")
)

// Entry is one row of the graph index.
type Entry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	UpdatedAt   string `json:"updated_at"`
	NodeCount   int    `json:"node_count"`
}

// Store keeps saved graphs for one dataset.
type Store struct {
	kv        KV
	namespace string
	now       func() time.Time

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Namespace returns the KV namespace used for a dataset.
func Namespace(dataset string) string {
	return fmt.Sprintf("curaflow_%s_%s", unsafeChars.ReplaceAllString(dataset, "_"), Version)
}

func New(kv KV, dataset string, opts ...Option) *Store {
	s := &Store{kv: kv, namespace: Namespace(dataset), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Namespace() string { return s.namespace }

func graphKey(id string) string { return "graph_" + id }

// Save writes g, assigning an id when it has none, and refreshes its index
// entry. It returns the graph id.
func (s *Store) Save(ctx context.Context, g *graph.Graph) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.Name == "" {
		g.Name = graph.DefaultName
	}
	g.UpdatedAt = s.now().UTC().Format(time.RFC3339Nano)
	if g.CreatedAt == "" {
		g.CreatedAt = g.UpdatedAt
	}

	data, err := graph.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("encode graph %s: %w", g.ID, err)
	}
	if err := s.kv.Set(ctx, s.namespace, graphKey(g.ID), data); err != nil {
		return "", fmt.Errorf("store graph %s: %w", g.ID, err)
	}

	index, err := s.index(ctx)
	if err != nil {
		return "", err
	}
	index = without(index, g.ID)
	index = append(index, Entry{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		UpdatedAt:   g.UpdatedAt,
		NodeCount:   len(g.Nodes),
	})
	if err := s.writeIndex(ctx, index); err != nil {
		return "", err
	}
	return g.ID, nil
}

// List returns the index in save order.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index(ctx)
}

// Load returns the saved graph with the given id.
func (s *Store) Load(ctx context.Context, id string) (*graph.Graph, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	data, ok, err := s.kv.Get(ctx, s.namespace, graphKey(id))
	if err != nil {
		return nil, fmt.Errorf("load graph %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return graph.Parse(data)
}

// Delete removes a graph and its index entry. Deleting an unknown id is not
// an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrMissingID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(ctx, s.namespace, graphKey(id)); err != nil {
		return fmt.Errorf("delete graph %s: %w", id, err)
	}
	index, err := s.index(ctx)
	if err != nil {
		return err
	}
	return s.writeIndex(ctx, without(index, id))
}

func (s *Store) index(ctx context.Context) ([]Entry, error) {
	data, ok, err := s.kv.Get(ctx, s.namespace, indexKey)
	if err != nil {
		return nil, fmt.Errorf("read graph index: %w", err)
	}
	index := []Entry{}
	if !ok {
		return index, nil
	}
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("decode graph index: %w", err)
	}
	return index, nil
}

func (s *Store) writeIndex(ctx context.Context, index []Entry) error {
	data, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("encode graph index: %w", err)
	}
	if err := s.kv.Set(ctx, s.namespace, indexKey, data); err != nil {
		return fmt.Errorf("write graph index: %w", err)
	}
	return nil
}

func without(index []Entry, id string) []Entry {
	out := index[:0]
	for _, e := range index {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}
