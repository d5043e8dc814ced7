package dataset

import "sync"

// Session is the application state around one dataset: the view currently
// shown to the user.
type Session struct {
	mu      sync.RWMutex
	ds      *Dataset
	current *View
	changes int
}

// NewSession opens a session showing the full dataset.
func NewSession(ds *Dataset) *Session {
	return &Session{ds: ds, current: ds.View()}
}

// Dataset returns the session's dataset.
func (s *Session) Dataset() *Dataset { return s.ds }

// SetView replaces the current view.
func (s *Session) SetView(v *View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = v
	s.changes++
}

// CurrentView returns the view currently shown.
func (s *Session) CurrentView() *View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Changes counts SetView calls since the session opened.
func (s *Session) Changes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changes
}
