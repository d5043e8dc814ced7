package dataset

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrViewNotFound is returned when loading a saved view that does not exist.
	ErrViewNotFound = errors.New("saved view not found")
	// ErrViewExists is returned when saving over a view without overwrite.
	ErrViewExists = errors.New("saved view already exists")
)

// SavedView is a named view stored on a dataset.
type SavedView struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Count       int       `json:"count"`
	view        *View
}

// Dataset is an in-memory sample collection with named saved views.
// It is safe for concurrent use; views taken from it are immutable.
type Dataset struct {
	mu      sync.RWMutex
	name    string
	samples []*Sample
	saved   map[string]SavedView
	now     func() time.Time
}

// New builds a dataset. Samples without an id get a generated one.
func New(name string, samples []Sample) *Dataset {
	ds := &Dataset{
		name:  name,
		saved: make(map[string]SavedView),
		now:   time.Now,
	}
	for i := range samples {
		s := samples[i]
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		if s.Fields == nil {
			s.Fields = map[string]any{}
		}
		ds.samples = append(ds.samples, &s)
	}
	return ds
}

// Name returns the dataset name.
func (d *Dataset) Name() string { return d.name }

// Len returns the number of samples.
func (d *Dataset) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.samples)
}

// View returns a view over every sample.
func (d *Dataset) View() *View {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return &View{ds: d, samples: append([]*Sample(nil), d.samples...)}
}

// SaveView stores v under name.
func (d *Dataset) SaveView(name, description string, v *View, overwrite bool) error {
	if name == "" {
		return errors.New("saved view name is required")
	}
	if v == nil {
		return errors.New("no view to save")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.saved[name]; exists && !overwrite {
		return fmt.Errorf("%w: %q", ErrViewExists, name)
	}
	d.saved[name] = SavedView{
		Name:        name,
		Description: description,
		CreatedAt:   d.now().UTC(),
		Count:       v.Count(),
		view:        v,
	}
	return nil
}

// LoadSavedView returns the view stored under name.
func (d *Dataset) LoadSavedView(name string) (*View, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sv, ok := d.saved[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrViewNotFound, name)
	}
	return sv.view, nil
}

// SavedViews lists saved views sorted by name.
func (d *Dataset) SavedViews() []SavedView {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]SavedView, 0, len(d.saved))
	for _, sv := range d.saved {
		out = append(out, sv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SavedViewNames lists saved view names sorted.
func (d *Dataset) SavedViewNames() []string {
	views := d.SavedViews()
	names := make([]string, len(views))
	for i, sv := range views {
		names[i] = sv.Name
	}
	return names
}
