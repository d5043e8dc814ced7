package engine

import "time"

// Status is the status field of an event.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
	StatusSkipped  Status = "skipped"
	StatusProgress Status = "progress"
	StatusWarning  Status = "warning"
)

// Event is one record of a run's event stream. The last event of every run
// carries a Summary and no NodeID.
type Event struct {
	RunID      string    `json:"run_id,omitempty"`
	NodeID     string    `json:"node_id,omitempty"`
	Status     Status    `json:"status"`
	Progress   *float64  `json:"progress,omitempty"`
	DurationMS *int64    `json:"duration_ms,omitempty"`
	Result     any       `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	Message    string    `json:"message,omitempty"`
	Time       time.Time `json:"time"`
	*Summary
}

// IsSummary reports whether e is the final summary event.
func (e Event) IsSummary() bool { return e.Summary != nil }

// Summary totals a finished run. Skipped is Total - Completed - Failed.
type Summary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Sink receives every event of every run, in order, before the consumer
// of the stream sees it. Emit must not block for long.
type Sink interface {
	Emit(runID string, e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(runID string, e Event)

func (f SinkFunc) Emit(runID string, e Event) { f(runID, e) }
