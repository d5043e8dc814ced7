package mqtt

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/AaronLay10/curaflow/internal/engine"
)

// Publisher is the part of Client a StatusPublisher needs.
type Publisher interface {
	Publish(topic string, retained bool, payload []byte) error
}

const queueSize = 256

type message struct {
	topic    string
	retained bool
	payload  []byte
}

// StatusPublisher is an engine.Sink that forwards run events to the broker.
// Node events go to <prefix>/runs/<run_id>/events; the final summary is also
// published retained to <prefix>/runs/<run_id>/status.
//
// Emit only enqueues; Run does the publishing. When the queue is full the
// event is dropped and counted.
type StatusPublisher struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
	queue  chan message

	dropped atomic.Uint64
}

func NewStatusPublisher(pub Publisher, prefix string, logger *slog.Logger) *StatusPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusPublisher{
		pub:    pub,
		prefix: prefix,
		logger: logger,
		queue:  make(chan message, queueSize),
	}
}

// EventsTopic returns the topic node events of runID are published on.
func (p *StatusPublisher) EventsTopic(runID string) string {
	return p.prefix + "/runs/" + runID + "/events"
}

// StatusTopic returns the retained summary topic of runID.
func (p *StatusPublisher) StatusTopic(runID string) string {
	return p.prefix + "/runs/" + runID + "/status"
}

func (p *StatusPublisher) Emit(runID string, e engine.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		p.logger.Warn("mqtt: event not serializable", "run_id", runID, "err", err)
		return
	}
	p.enqueue(message{topic: p.EventsTopic(runID), payload: payload})
	if e.IsSummary() {
		p.enqueue(message{topic: p.StatusTopic(runID), retained: true, payload: payload})
	}
}

func (p *StatusPublisher) enqueue(m message) {
	select {
	case p.queue <- m:
	default:
		p.dropped.Add(1)
	}
}

// Dropped returns how many messages were discarded because the queue was full.
func (p *StatusPublisher) Dropped() uint64 { return p.dropped.Load() }

// Run publishes queued messages until ctx is done, then drains what is left.
func (p *StatusPublisher) Run(ctx context.Context) {
	for {
		select {
		case m := <-p.queue:
			p.publish(m)
		case <-ctx.Done():
			for {
				select {
				case m := <-p.queue:
					p.publish(m)
				default:
					return
				}
			}
		}
	}
}

func (p *StatusPublisher) publish(m message) {
	if err := p.pub.Publish(m.topic, m.retained, m.payload); err != nil {
		p.logger.Warn("mqtt: publish failed", "topic", m.topic, "err", err)
	}
}
