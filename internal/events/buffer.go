package events

import "sync"

// RingBuffer keeps the most recent events up to its capacity, overwriting
// the oldest once full.
type RingBuffer struct {
	mu    sync.RWMutex
	slots []Event
	next  int // slot the next Add writes
	n     int // occupied slots
}

// NewRingBuffer returns a buffer holding up to capacity events (minimum 1).
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{slots: make([]Event, max(capacity, 1))}
}

func (rb *RingBuffer) Add(e Event) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.slots[rb.next] = e
	rb.next = (rb.next + 1) % len(rb.slots)
	rb.n = min(rb.n+1, len(rb.slots))
}

// Snapshot returns the buffered events oldest first.
func (rb *RingBuffer) Snapshot() []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	out := make([]Event, rb.n)
	oldest := (rb.next - rb.n + len(rb.slots)) % len(rb.slots)
	for i := range out {
		out[i] = rb.slots[(oldest+i)%len(rb.slots)]
	}
	return out
}

func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.n
}

func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	clear(rb.slots)
	rb.next, rb.n = 0, 0
}
