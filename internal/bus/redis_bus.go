package bus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	streamPrefix = "bus:"
	consumerName = "worker"
	// claimMinIdle is how long a first-delivery pending message sits before
	// another consumer may claim it; each redelivery doubles the requirement
	// up to claimMaxIdle.
	claimMinIdle = 30 * time.Second
	claimMaxIdle = 8 * time.Minute
)

// redeliveryIdle returns the idle time a pending message must accumulate
// before its next claim, doubling per prior delivery so a failing message
// backs off instead of cycling through the group at a fixed cadence.
func redeliveryIdle(retryCount int64) time.Duration {
	idle := claimMinIdle
	for i := int64(1); i < retryCount && idle < claimMaxIdle; i++ {
		idle *= 2
	}
	if idle > claimMaxIdle {
		idle = claimMaxIdle
	}
	return idle
}

// RedisBus implements EventBus over Redis Streams with consumer groups.
type RedisBus struct {
	rdb *redis.Client
	cfg Config

	mu      sync.Mutex
	wg      sync.WaitGroup
	cancels []context.CancelFunc
	subs    int
	stopped bool
	lastErr string
}

// NewRedisBus builds a RedisBus. Zero-valued config fields take defaults.
func NewRedisBus(rdb *redis.Client, cfg Config) *RedisBus {
	cfg.applyDefaults()
	return &RedisBus{rdb: rdb, cfg: cfg}
}

func streamKey(topic string) string { return streamPrefix + topic }

// Publish appends the payload to the topic stream, trimming approximately
// to the configured cap.
func (b *RedisBus) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	args := &redis.XAddArgs{
		Stream: streamKey(topic),
		Values: map[string]interface{}{
			"key":     key,
			"payload": payload,
			"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		},
	}
	if b.cfg.MaxStreamLen > 0 {
		args.MaxLen = b.cfg.MaxStreamLen
		args.Approx = true
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe starts a consumer-group loop for the topic. It returns once the
// loop is running; processing continues until Stop or context cancellation.
func (b *RedisBus) Subscribe(ctx context.Context, topic, group string, handler Handler) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if handler == nil {
		return ErrNilHandler
	}

	stream := streamKey(topic)
	err := b.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("create group %s/%s: %w", topic, group, err)
	}

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return ErrBusStopped
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	b.cancels = append(b.cancels, cancel)
	b.subs++
	b.wg.Add(1)
	b.mu.Unlock()

	go b.consumeLoop(loopCtx, stream, topic, group, handler)
	return nil
}

func (b *RedisBus) consumeLoop(ctx context.Context, stream, topic, group string, handler Handler) {
	defer b.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		b.reclaimStale(ctx, stream, topic, group, handler)

		res, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumerName,
			Streams:  []string{stream, ">"},
			Count:    int64(b.cfg.Prefetch),
			Block:    b.cfg.BlockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			b.noteError(err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		for _, s := range res {
			for _, xm := range s.Messages {
				b.handleOne(ctx, stream, topic, group, handler, xm, 1)
			}
		}
	}
}

// reclaimStale claims messages another consumer left pending past the idle
// cutoff and retries or dead-letters them.
func (b *RedisBus) reclaimStale(ctx context.Context, stream, topic, group string, handler Handler) {
	pending, err := b.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Idle:   claimMinIdle,
		Start:  "-",
		End:    "+",
		Count:  int64(b.cfg.Prefetch),
	}).Result()
	if err != nil || len(pending) == 0 {
		return
	}
	for _, p := range pending {
		need := redeliveryIdle(p.RetryCount)
		if p.Idle < need {
			continue
		}
		claimed, err := b.rdb.XClaim(ctx, &redis.XClaimArgs{
			Stream:   stream,
			Group:    group,
			Consumer: consumerName,
			MinIdle:  need,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			continue
		}
		for _, xm := range claimed {
			b.handleOne(ctx, stream, topic, group, handler, xm, int(p.RetryCount))
		}
	}
}

func (b *RedisBus) handleOne(ctx context.Context, stream, topic, group string, handler Handler, xm redis.XMessage, attempt int) {
	msg := decodeXMessage(xm, topic)
	msg.Attempt = attempt

	err := handler(ctx, msg)
	if err == nil {
		b.rdb.XAck(ctx, stream, group, xm.ID)
		return
	}
	if attempt >= b.cfg.MaxRetries {
		b.deadLetter(ctx, topic, msg, err)
		b.rdb.XAck(ctx, stream, group, xm.ID)
		return
	}
	// Leave unacked; the pending reclaim path redelivers with backoff
	// provided by the idle cutoff.
	log.Warn().Err(err).Str("topic", topic).Str("id", msg.ID).Int("attempt", attempt).
		Msg("handler failed, message left pending")
}

func (b *RedisBus) deadLetter(ctx context.Context, topic string, msg *Message, cause error) {
	err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(DeadLetterTopic(topic)),
		Values: map[string]interface{}{
			"key":      msg.Key,
			"payload":  msg.Payload,
			"origin":   msg.ID,
			"attempts": strconv.Itoa(msg.Attempt),
			"error":    cause.Error(),
		},
	}).Err()
	if err != nil {
		b.noteError(err)
		log.Error().Err(err).Str("topic", topic).Str("id", msg.ID).Msg("dead-letter write failed")
		return
	}
	log.Error().Str("topic", topic).Str("id", msg.ID).Int("attempts", msg.Attempt).
		AnErr("cause", cause).Msg("message dead-lettered")
}

// Stop cancels all consumer loops and waits for them to drain.
func (b *RedisBus) Stop(ctx context.Context) error {
	b.mu.Lock()
	b.stopped = true
	for _, cancel := range b.cancels {
		cancel()
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *RedisBus) Health() HealthStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	hs := HealthStatus{
		Healthy:    !b.stopped && b.lastErr == "",
		Status:     "ok",
		ActiveSubs: b.subs,
		LastCheck:  time.Now().UTC(),
	}
	if b.stopped {
		hs.Status = "stopped"
	}
	if b.lastErr != "" {
		hs.Status = "degraded"
		hs.Errors = []string{b.lastErr}
	}
	return hs
}

func (b *RedisBus) noteError(err error) {
	b.mu.Lock()
	b.lastErr = err.Error()
	b.mu.Unlock()
}

func decodeXMessage(xm redis.XMessage, topic string) *Message {
	msg := &Message{ID: xm.ID, Topic: topic}
	if k, ok := xm.Values["key"].(string); ok {
		msg.Key = k
	}
	if p, ok := xm.Values["payload"].(string); ok {
		msg.Payload = []byte(p)
	}
	if ts, ok := xm.Values["ts"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			msg.PublishTime = t
		}
	}
	return msg
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}
