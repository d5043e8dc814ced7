package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AaronLay10/curaflow/internal/engine"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBus()

	sub1 := b.Subscribe()
	if b.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber after first subscribe, got %d", b.SubscriberCount())
	}

	sub2 := b.Subscribe()
	if b.SubscriberCount() != 2 {
		t.Errorf("expected 2 subscribers after second subscribe, got %d", b.SubscriberCount())
	}

	b.Unsubscribe(sub1)
	if b.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber after unsubscribe, got %d", b.SubscriberCount())
	}

	b.Unsubscribe(sub2)
	b.Unsubscribe(sub2)
	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", b.SubscriberCount())
	}
}

func TestBroadcastToSubscribers(t *testing.T) {
	b := NewBus()
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	defer b.Unsubscribe(sub1)
	defer b.Unsubscribe(sub2)

	if _, err := b.Emit(LevelInfo, "node.started", "", map[string]any{"node_id": "m"}); err != nil {
		t.Fatalf("emit: %v", err)
	}

	for i, sub := range []Subscriber{sub1, sub2} {
		select {
		case e := <-sub:
			if e.Name != "node.started" {
				t.Errorf("sub%d: expected 'node.started', got '%s'", i+1, e.Name)
			}
			if e.Fields["node_id"] != "m" {
				t.Errorf("sub%d: expected node_id 'm', got '%v'", i+1, e.Fields["node_id"])
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("sub%d: timeout waiting for event", i+1)
		}
	}
}

func TestSlowSubscriberDoesNotBlockEmit(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	for i := 0; i < subscriberBuffer*2; i++ {
		if _, err := b.Emit(LevelDebug, "node.progress", "", nil); err != nil {
			t.Fatalf("emit: %v", err)
		}
	}
	if len(sub) != subscriberBuffer {
		t.Errorf("expected a full buffer of %d, got %d", subscriberBuffer, len(sub))
	}
	if b.Total() != uint64(subscriberBuffer*2) {
		t.Errorf("expected total %d, got %d", subscriberBuffer*2, b.Total())
	}
}

func TestRecentEvents(t *testing.T) {
	b := NewBus()
	for i := 0; i < 10; i++ {
		b.Emit(LevelInfo, "node.started", "", map[string]any{"i": i})
	}

	recent := b.Recent(5)
	if len(recent) != 5 {
		t.Fatalf("expected 5 recent events, got %d", len(recent))
	}
	if recent[0].Fields["i"] != 5 {
		t.Errorf("expected first recent event i=5, got %v", recent[0].Fields["i"])
	}
	if len(b.Recent(100)) != 10 {
		t.Errorf("expected 10 events when requesting 100")
	}
	if len(b.Recent(0)) != 10 {
		t.Errorf("expected 10 events when requesting 0")
	}

	b.Clear()
	if len(b.Recent(0)) != 0 {
		t.Errorf("expected no events after clear")
	}
}

func TestRingBufferWraps(t *testing.T) {
	b := NewBus(WithBufferSize(3))
	for i := 0; i < 5; i++ {
		b.Emit(LevelInfo, "node.started", "", map[string]any{"i": i})
	}
	got := b.Recent(0)
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	for j, want := range []int{2, 3, 4} {
		if got[j].Fields["i"] != want {
			t.Errorf("event %d: expected i=%d, got %v", j, want, got[j].Fields["i"])
		}
	}
}

func TestEmitRejectsUnknownEvent(t *testing.T) {
	b := NewBus()
	if _, err := b.Emit(LevelInfo, "scene.started", "", nil); err == nil || err.Error() != "unknown event: scene.started" {
		t.Errorf("expected unknown event error, got %v", err)
	}
	if _, err := b.Emit("loud", "node.started", "", nil); err == nil {
		t.Error("expected unknown level error")
	}
	if b.Total() != 0 {
		t.Errorf("rejected events must not be recorded")
	}
}

func TestCloseClosesAllSubscribers(t *testing.T) {
	b := NewBus()
	subs := []Subscriber{b.Subscribe(), b.Subscribe(), b.Subscribe()}

	b.Close()
	for i, sub := range subs {
		if _, ok := <-sub; ok {
			t.Errorf("sub%d: expected channel to be closed", i+1)
		}
	}
	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after Close, got %d", b.SubscriberCount())
	}
	b.Unsubscribe(subs[0])
}

func TestWriterGetsJSONLines(t *testing.T) {
	var buf bytes.Buffer
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b := NewBus(WithWriter(&buf), WithClock(func() time.Time { return fixed }))

	b.Emit(LevelInfo, "system.startup", "curaflow starting", map[string]any{"port": 8080})

	line := strings.TrimSpace(buf.String())
	var got map[string]any
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("invalid JSON line %q: %v", line, err)
	}
	if got["event"] != "system.startup" || got["msg"] != "curaflow starting" || got["level"] != "info" {
		t.Errorf("unexpected line: %s", line)
	}
	if got["ts"] != "2024-05-01T12:00:00Z" {
		t.Errorf("unexpected ts: %v", got["ts"])
	}
}

type fakePersister struct {
	mu    sync.Mutex
	runs  []string
	names []string
	err   error
}

func (p *fakePersister) Append(_ time.Time, _, event, _ string, _ map[string]any, runID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.names = append(p.names, event)
	p.runs = append(p.runs, runID)
	return nil
}

func TestPersisterReceivesRunID(t *testing.T) {
	p := &fakePersister{}
	b := NewBus(WithPersister(p))

	b.Emit(LevelInfo, "run.started", "", map[string]any{"run_id": "r1"})
	b.Emit(LevelInfo, "graph.saved", "", map[string]any{"graph_id": "g"})

	if len(p.names) != 2 || p.runs[0] != "r1" || p.runs[1] != "" {
		t.Errorf("unexpected persisted rows: %v %v", p.names, p.runs)
	}
}

func TestPersistFailureReportedOnce(t *testing.T) {
	b := NewBus(WithPersister(&fakePersister{err: errors.New("db down")}))

	for i := 0; i < 3; i++ {
		if _, err := b.Emit(LevelInfo, "node.started", "", nil); err != nil {
			t.Fatalf("emit must not fail on persistence errors: %v", err)
		}
	}

	var sysErrors int
	for _, e := range b.Recent(0) {
		if e.Name == "system.error" {
			sysErrors++
			if e.Fields["error"] != "db down" {
				t.Errorf("unexpected error field: %v", e.Fields["error"])
			}
		}
	}
	if sysErrors != 1 {
		t.Errorf("expected exactly 1 system.error, got %d", sysErrors)
	}
}

func TestEngineSinkTranslatesEvents(t *testing.T) {
	b := NewBus()
	sink := EngineSink(b)

	dur := int64(12)
	progress := 0.5
	sink.Emit("r1", engine.Event{NodeID: "s", Status: engine.StatusPending})
	sink.Emit("r1", engine.Event{NodeID: "s", Status: engine.StatusRunning})
	sink.Emit("r1", engine.Event{NodeID: "s", Status: engine.StatusProgress, Progress: &progress})
	sink.Emit("r1", engine.Event{NodeID: "s", Status: engine.StatusComplete, DurationMS: &dur, Result: map[string]any{"count": 3}})
	sink.Emit("r1", engine.Event{NodeID: "m", Status: engine.StatusError, Error: "boom"})
	sink.Emit("r1", engine.Event{NodeID: "c", Status: engine.StatusSkipped, Message: "upstream failed"})
	sink.Emit("r1", engine.Event{Status: engine.StatusComplete, Summary: &engine.Summary{Total: 3, Completed: 1, Failed: 1, Skipped: 1}})

	got := b.Recent(0)
	want := []string{"node.started", "node.progress", "node.complete", "node.error", "node.skipped", "run.completed"}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("event %d: expected %s, got %s", i, name, got[i].Name)
		}
		if got[i].RunID() != "r1" {
			t.Errorf("event %d: missing run_id", i)
		}
	}
	if got[2].Fields["duration_ms"] != int64(12) {
		t.Errorf("expected duration_ms 12, got %v", got[2].Fields["duration_ms"])
	}
	if got[3].Level != LevelError || got[3].Fields["error"] != "boom" {
		t.Errorf("unexpected node.error: %+v", got[3])
	}
	if got[4].Message != "upstream failed" {
		t.Errorf("expected skip reason in message, got %q", got[4].Message)
	}
	last := got[5]
	if last.Level != LevelWarn || last.Fields["failed"] != 1 || last.Fields["total"] != 3 {
		t.Errorf("unexpected run.completed: %+v", last)
	}
}
