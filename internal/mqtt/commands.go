package mqtt

import (
	"context"
	"log/slog"
	"sync"
)

// Subscriber is the part of Client a CommandSubscriber needs.
type Subscriber interface {
	Subscribe(topic string, fn func(topic string, payload []byte)) error
}

// ExecuteFunc starts a run of the serialized graph and returns its id.
type ExecuteFunc func(ctx context.Context, graphJSON []byte) (runID string, err error)

// CommandSubscriber lets other services start runs by publishing a graph
// to <prefix>/graphs/execute.
type CommandSubscriber struct {
	mu         sync.Mutex
	sub        Subscriber
	prefix     string
	execute    ExecuteFunc
	logger     *slog.Logger
	subscribed map[string]bool
}

func NewCommandSubscriber(sub Subscriber, prefix string, execute ExecuteFunc, logger *slog.Logger) *CommandSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandSubscriber{
		sub:        sub,
		prefix:     prefix,
		execute:    execute,
		logger:     logger,
		subscribed: make(map[string]bool),
	}
}

// ExecuteTopic is the topic execute commands arrive on.
func (s *CommandSubscriber) ExecuteTopic() string {
	return s.prefix + "/graphs/execute"
}

// Start subscribes to the command topics. It is idempotent; call
// ClearSubscriptions after a reconnect to subscribe again.
func (s *CommandSubscriber) Start(ctx context.Context) error {
	topic := s.ExecuteTopic()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribed[topic] {
		return nil
	}
	err := s.sub.Subscribe(topic, func(_ string, payload []byte) {
		runID, err := s.execute(ctx, payload)
		if err != nil {
			s.logger.Warn("mqtt: execute command rejected", "topic", topic, "err", err)
			return
		}
		s.logger.Info("mqtt: execute command accepted", "run_id", runID)
	})
	if err != nil {
		return err
	}
	s.subscribed[topic] = true
	return nil
}

// IsSubscribed returns true if the topic is already subscribed.
func (s *CommandSubscriber) IsSubscribed(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribed[topic]
}

// ClearSubscriptions forgets the subscription state.
func (s *CommandSubscriber) ClearSubscriptions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed = make(map[string]bool)
}
