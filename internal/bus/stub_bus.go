package bus

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// StubBus is an in-memory EventBus for tests and local development.
// Publish delivers synchronously to every subscribed handler, applying the
// same retry-then-dead-letter policy as the production bus.
type StubBus struct {
	cfg Config

	mu       sync.Mutex
	handlers map[string][]Handler
	dead     map[string][]*Message
	seq      int
	stopped  bool
}

// NewStubBus builds a StubBus.
func NewStubBus(cfg Config) *StubBus {
	cfg.applyDefaults()
	return &StubBus{
		cfg:      cfg,
		handlers: make(map[string][]Handler),
		dead:     make(map[string][]*Message),
	}
}

func (b *StubBus) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return ErrBusStopped
	}
	b.seq++
	msg := &Message{
		ID:          fmt.Sprintf("stub-%d", b.seq),
		Topic:       topic,
		Key:         key,
		Payload:     payload,
		PublishTime: time.Now().UTC(),
	}
	handlers := append([]Handler(nil), b.handlers[topic]...)
	b.mu.Unlock()

	for _, h := range handlers {
		delivered := *msg
		var err error
		for attempt := 1; attempt <= b.cfg.MaxRetries; attempt++ {
			delivered.Attempt = attempt
			if err = h(ctx, &delivered); err == nil {
				break
			}
		}
		if err != nil {
			b.mu.Lock()
			b.dead[DeadLetterTopic(topic)] = append(b.dead[DeadLetterTopic(topic)], msg)
			b.mu.Unlock()
		}
	}
	return nil
}

func (b *StubBus) Subscribe(_ context.Context, topic, _ string, handler Handler) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if handler == nil {
		return ErrNilHandler
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return ErrBusStopped
	}
	b.handlers[topic] = append(b.handlers[topic], handler)
	return nil
}

func (b *StubBus) Stop(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	return nil
}

func (b *StubBus) Health() HealthStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	status := "ok"
	if b.stopped {
		status = "stopped"
	}
	return HealthStatus{
		Healthy:    !b.stopped,
		Status:     status,
		ActiveSubs: len(b.handlers),
		LastCheck:  time.Now().UTC(),
	}
}

// DeadLetters returns messages that exhausted their retry budget.
func (b *StubBus) DeadLetters(topic string) []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Message(nil), b.dead[DeadLetterTopic(topic)]...)
}
