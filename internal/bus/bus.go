// Package bus provides at-least-once topic messaging between the pipeline
// stages. Producers publish envelopes; consumer groups process them with
// bounded retry and a dead-letter stream per topic.
package bus

import (
	"context"
	"fmt"
	"time"
)

// Pipeline topics.
const (
	TopicIngestEvent     = "ingest-event"
	TopicAnalyzeEvent    = "analyze-event"
	TopicExtractEntities = "extract-entities"

	// TopicAnalyzeCompat is the legacy name for the analyze topic. Older
	// producers still publish to it; consumers subscribe to both.
	TopicAnalyzeCompat = "event-analysis"
)

// Message is one delivered envelope.
type Message struct {
	ID          string    `json:"id"`
	Topic       string    `json:"topic"`
	Key         string    `json:"key"`
	Payload     []byte    `json:"payload"`
	PublishTime time.Time `json:"publish_time"`
	Attempt     int       `json:"attempt"`
}

// Handler processes one message. A nil return acks; an error return leaves
// the message pending for redelivery until the retry budget is spent, after
// which it moves to the dead-letter stream.
type Handler func(ctx context.Context, msg *Message) error

// EventBus is the pipeline's transport. Delivery is at-least-once; handlers
// must be idempotent.
type EventBus interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
	Subscribe(ctx context.Context, topic, group string, handler Handler) error
	Stop(ctx context.Context) error
	Health() HealthStatus
}

// HealthStatus reports bus liveness for the health endpoint.
type HealthStatus struct {
	Healthy    bool      `json:"healthy"`
	Status     string    `json:"status"`
	Errors     []string  `json:"errors,omitempty"`
	ActiveSubs int       `json:"active_subscriptions"`
	LastCheck  time.Time `json:"last_check"`
}

// Config tunes delivery behavior shared by implementations.
type Config struct {
	// MaxRetries bounds redeliveries before a message is dead-lettered.
	MaxRetries int
	// Prefetch caps in-flight messages per subscription.
	Prefetch int
	// MaxStreamLen caps stream length (approximate trim); 0 means unbounded.
	MaxStreamLen int64
	// BlockTimeout is how long a consumer read blocks before re-polling.
	BlockTimeout time.Duration
}

// DefaultConfig returns production delivery settings.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   5,
		Prefetch:     16,
		MaxStreamLen: 100_000,
		BlockTimeout: 5 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.Prefetch <= 0 {
		c.Prefetch = d.Prefetch
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = d.BlockTimeout
	}
}

// DeadLetterTopic names the dead-letter stream for a topic.
func DeadLetterTopic(topic string) string {
	return topic + ".dlq"
}

var (
	ErrBusStopped     = fmt.Errorf("bus stopped")
	ErrEmptyTopic     = fmt.Errorf("empty topic")
	ErrNilHandler     = fmt.Errorf("nil handler")
	ErrUnknownBusType = fmt.Errorf("unknown bus type")
)

// Type selects an implementation.
type Type string

const (
	TypeRedis Type = "redis"
	TypeStub  Type = "stub"
)
