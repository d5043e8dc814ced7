package events

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBufferSize is the number of recent events a Bus keeps in memory.
const DefaultBufferSize = 256

const subscriberBuffer = 64

// Persister stores events durably. storage/postgres.Client implements it.
type Persister interface {
	Append(ts time.Time, level, event, msg string, fields map[string]any, runID string) error
}

// Subscriber receives events from a Bus.
type Subscriber chan Event

// Bus validates events, keeps the most recent ones, fans them out to
// subscribers and optionally persists them.
type Bus struct {
	buffer    *RingBuffer
	persister Persister
	out       io.Writer
	logger    *slog.Logger
	now       func() time.Time

	outMu sync.Mutex

	mu          sync.RWMutex
	subscribers map[Subscriber]struct{}

	total         atomic.Uint64
	persistFailed atomic.Bool
}

// Option configures a Bus.
type Option func(*Bus)

func WithBufferSize(n int) Option {
	return func(b *Bus) { b.buffer = NewRingBuffer(n) }
}

func WithPersister(p Persister) Option {
	return func(b *Bus) { b.persister = p }
}

// WithWriter writes every event to w as a JSON line.
func WithWriter(w io.Writer) Option {
	return func(b *Bus) { b.out = w }
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

func NewBus(opts ...Option) *Bus {
	b := &Bus{
		buffer:      NewRingBuffer(DefaultBufferSize),
		logger:      slog.Default(),
		now:         time.Now,
		subscribers: make(map[Subscriber]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Emit records an event. Unknown names and levels are rejected.
// A persistence failure does not fail Emit; the first one is reported as a
// system.error event.
func (b *Bus) Emit(level, name, msg string, fields map[string]any) (Event, error) {
	if err := Validate(name); err != nil {
		return Event{}, err
	}
	if _, ok := levels[level]; !ok {
		return Event{}, fmt.Errorf("unknown level: %s", level)
	}

	e := Event{
		Timestamp: b.now().UTC(),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}
	b.record(e)

	if b.persister != nil {
		if err := b.persister.Append(e.Timestamp, level, name, msg, fields, e.RunID()); err != nil {
			if b.persistFailed.CompareAndSwap(false, true) {
				b.logger.Error("event persistence failed", "event", name, "err", err)
				b.record(Event{
					Timestamp: b.now().UTC(),
					Level:     LevelError,
					Name:      "system.error",
					Message:   "event persistence failed",
					Fields:    map[string]any{"error": err.Error()},
				})
			}
		}
	}
	return e, nil
}

func (b *Bus) record(e Event) {
	b.buffer.Add(e)
	b.total.Add(1)
	b.write(e)
	b.broadcast(e)
}

func (b *Bus) write(e Event) {
	if b.out == nil {
		return
	}
	line, err := json.Marshal(e)
	if err != nil {
		b.logger.Warn("event not serializable", "event", e.Name, "err", err)
		return
	}
	b.outMu.Lock()
	defer b.outMu.Unlock()
	_, _ = b.out.Write(append(line, '\n'))
}

// broadcast never blocks; a subscriber with a full buffer misses the event.
func (b *Bus) broadcast(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- e:
		default:
		}
	}
}

// Subscribe registers a new subscriber.
func (b *Bus) Subscribe() Subscriber {
	ch := make(Subscriber, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes sub and closes it. Unknown subscribers are ignored.
func (b *Bus) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Close closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subscribers {
		close(sub)
	}
	b.subscribers = make(map[Subscriber]struct{})
}

func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Recent returns the last n buffered events, or all of them when n <= 0.
func (b *Bus) Recent(n int) []Event {
	all := b.buffer.Snapshot()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Total returns how many events have been recorded since the bus was created.
func (b *Bus) Total() uint64 { return b.total.Load() }

// Clear drops the buffered events.
func (b *Bus) Clear() { b.buffer.Clear() }
