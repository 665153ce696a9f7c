package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-redis/redis/v8"

	contractsv1 "trustpoll/contracts/gen/events/v1"
)

// RedisPublisher sends notifications over redis pub/sub so a process other
// than the publisher can relay them to its clients.
type RedisPublisher struct {
	client redis.UniversalClient
	logger *slog.Logger
}

func NewRedisPublisher(client redis.UniversalClient, logger *slog.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, logger: logger}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, event contractsv1.Envelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.EventID, err)
	}
	receivers, err := p.client.Publish(ctx, topic, payload).Result()
	if err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	if p.logger != nil {
		p.logger.Debug("event published to redis",
			"event", "redis_publish",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"topic", topic,
			"event_id", event.EventID,
			"receivers", receivers,
		)
	}
	return nil
}

// RedisRelay forwards redis messages matching a channel pattern into a Bus.
type RedisRelay struct {
	client  redis.UniversalClient
	pattern string
	bus     *Bus
	logger  *slog.Logger

	readyOnce sync.Once
	ready     chan struct{}
}

func NewRedisRelay(client redis.UniversalClient, pattern string, bus *Bus, logger *slog.Logger) *RedisRelay {
	return &RedisRelay{
		client:  client,
		pattern: pattern,
		bus:     bus,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the pattern subscription is confirmed by redis.
func (r *RedisRelay) Ready() <-chan struct{} {
	return r.ready
}

// Run relays until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.PSubscribe(ctx, r.pattern)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("redis psubscribe %s: %w", r.pattern, err)
	}
	r.readyOnce.Do(func() { close(r.ready) })

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.forward(ctx, msg)
		}
	}
}

func (r *RedisRelay) forward(ctx context.Context, msg *redis.Message) {
	var event contractsv1.Envelope
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		if r.logger != nil {
			r.logger.Warn("dropping undecodable redis event",
				"event", "redis_relay_decode_failed",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"topic", msg.Channel,
				"error", err.Error(),
			)
		}
		return
	}
	_ = r.bus.Publish(ctx, msg.Channel, event)
}
