package events

import (
	"fmt"
	"time"
)

// Event is one line of the service's event log.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	Level     string         `json:"level"`
	Name      string         `json:"event"`
	Message   string         `json:"msg,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// RunID returns the run_id field, or "" when the event is not tied to a run.
func (e Event) RunID() string {
	id, _ := e.Fields["run_id"].(string)
	return id
}

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

var allowedEvents = map[string]struct{}{
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},

	"run.started":   {},
	"run.completed": {},
	"run.rejected":  {},

	"node.started":  {},
	"node.progress": {},
	"node.complete": {},
	"node.error":    {},
	"node.skipped":  {},
	"node.warning":  {},

	"graph.saved":   {},
	"graph.deleted": {},
}

// Validate reports whether name is a known event.
func Validate(name string) error {
	if _, ok := allowedEvents[name]; !ok {
		return fmt.Errorf("unknown event: %s", name)
	}
	return nil
}

var levels = map[string]struct{}{
	LevelDebug: {}, LevelInfo: {}, LevelWarn: {}, LevelError: {},
}
