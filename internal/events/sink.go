package events

import "github.com/AaronLay10/curaflow/internal/engine"

// EngineSink mirrors engine run events onto b as node.* and run.* events.
func EngineSink(b *Bus) engine.Sink {
	return engine.SinkFunc(func(runID string, ev engine.Event) {
		level, name, fields, ok := translate(runID, ev)
		if !ok {
			return
		}
		_, _ = b.Emit(level, name, ev.Message, fields)
	})
}

func translate(runID string, ev engine.Event) (level, name string, fields map[string]any, ok bool) {
	fields = map[string]any{"run_id": runID}
	if ev.IsSummary() {
		fields["total"] = ev.Total
		fields["completed"] = ev.Completed
		fields["failed"] = ev.Failed
		fields["skipped"] = ev.Skipped
		level = LevelInfo
		if ev.Failed > 0 {
			level = LevelWarn
		}
		return level, "run.completed", fields, true
	}

	fields["node_id"] = ev.NodeID
	if ev.DurationMS != nil {
		fields["duration_ms"] = *ev.DurationMS
	}
	switch ev.Status {
	case engine.StatusRunning:
		return LevelInfo, "node.started", fields, true
	case engine.StatusProgress:
		if ev.Progress != nil {
			fields["progress"] = *ev.Progress
		}
		return LevelDebug, "node.progress", fields, true
	case engine.StatusComplete:
		if ev.Result != nil {
			fields["result"] = ev.Result
		}
		return LevelInfo, "node.complete", fields, true
	case engine.StatusError:
		fields["error"] = ev.Error
		return LevelError, "node.error", fields, true
	case engine.StatusSkipped:
		return LevelInfo, "node.skipped", fields, true
	case engine.StatusWarning:
		return LevelWarn, "node.warning", fields, true
	}
	return "", "", nil, false
}
