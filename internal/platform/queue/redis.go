package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisQueue shares one queue across processes. Visibility is a pair of
// sorted sets scored in unix milliseconds; every state change is a Lua
// script so concurrent leasers never see the same message.
type RedisQueue struct {
	client redis.UniversalClient
	keys   redisKeys
	closed atomic.Bool
}

type redisKeys struct {
	jobs     string
	enqueued string
	ready    string
	inflight string
	dead     string
	attempts string
	errors   string
	leases   string
}

func NewRedisQueue(client redis.UniversalClient, name string) *RedisQueue {
	return &RedisQueue{
		client: client,
		keys: redisKeys{
			jobs:     name + ":jobs",
			enqueued: name + ":enqueued",
			ready:    name + ":ready",
			inflight: name + ":inflight",
			dead:     name + ":dead",
			attempts: name + ":attempts",
			errors:   name + ":errors",
			leases:   name + ":leases",
		},
	}
}

// KEYS: jobs, enqueued, ready. ARGV: id, payload, enqueued_ms.
var redisEnqueueScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 0 then
  return 0
end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
return 1
`)

// KEYS: ready, inflight, attempts, leases. ARGV: now_ms, deadline_ms, lease_id.
var redisLeaseScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for _, id in ipairs(expired) do
  redis.call('ZREM', KEYS[2], id)
  redis.call('HDEL', KEYS[4], id)
  redis.call('ZADD', KEYS[1], ARGV[1], id)
end
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then
  return false
end
local id = ids[1]
redis.call('ZREM', KEYS[1], id)
redis.call('ZADD', KEYS[2], ARGV[2], id)
redis.call('HSET', KEYS[4], id, ARGV[3])
local attempts = redis.call('HINCRBY', KEYS[3], id, 1)
return {id, attempts}
`)

// KEYS: inflight, ready, dead, jobs, enqueued, attempts, errors, leases.
// ARGV: id, result, retry_ms, reason, now_ms, lease_id.
var redisCompleteScript = redis.NewScript(`
if redis.call('HGET', KEYS[8], ARGV[1]) ~= ARGV[6] then
  return 0
end
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('HDEL', KEYS[8], ARGV[1])
if ARGV[2] == 'ack' then
  redis.call('HDEL', KEYS[4], ARGV[1])
  redis.call('HDEL', KEYS[5], ARGV[1])
  redis.call('HDEL', KEYS[6], ARGV[1])
  redis.call('HDEL', KEYS[7], ARGV[1])
elseif ARGV[2] == 'retry' then
  redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
  redis.call('HSET', KEYS[7], ARGV[1], ARGV[4])
else
  redis.call('ZADD', KEYS[3], ARGV[5], ARGV[1])
  redis.call('HSET', KEYS[7], ARGV[1], ARGV[4])
end
return 1
`)

func (q *RedisQueue) Enqueue(ctx context.Context, msg Message) (bool, error) {
	if q.closed.Load() {
		return false, ErrQueueClosed
	}
	if msg.ID == "" {
		return false, ErrInvalidID
	}
	enqueuedAt := msg.EnqueuedAt.UTC()
	if enqueuedAt.IsZero() {
		enqueuedAt = time.Now().UTC()
	}
	created, err := redisEnqueueScript.Run(ctx, q.client,
		[]string{q.keys.jobs, q.keys.enqueued, q.keys.ready},
		msg.ID, string(msg.Payload), enqueuedAt.UnixMilli(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis enqueue %s: %w", msg.ID, err)
	}
	return created == 1, nil
}

func (q *RedisQueue) Lease(ctx context.Context, now time.Time, leaseFor time.Duration) (Message, bool, error) {
	if q.closed.Load() {
		return Message{}, false, ErrQueueClosed
	}
	if leaseFor <= 0 {
		return Message{}, false, ErrInvalidLease
	}
	leaseID := uuid.NewString()
	raw, err := redisLeaseScript.Run(ctx, q.client,
		[]string{q.keys.ready, q.keys.inflight, q.keys.attempts, q.keys.leases},
		now.UnixMilli(), now.Add(leaseFor).UnixMilli(), leaseID,
	).Slice()
	if errors.Is(err, redis.Nil) {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, fmt.Errorf("redis lease: %w", err)
	}
	if len(raw) != 2 {
		return Message{}, false, fmt.Errorf("redis lease: unexpected reply %v", raw)
	}
	id, _ := raw[0].(string)
	attempts, _ := raw[1].(int64)

	pipe := q.client.Pipeline()
	payloadCmd := pipe.HGet(ctx, q.keys.jobs, id)
	enqueuedCmd := pipe.HGet(ctx, q.keys.enqueued, id)
	errorCmd := pipe.HGet(ctx, q.keys.errors, id)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Message{}, false, fmt.Errorf("redis load leased %s: %w", id, err)
	}
	payload, err := payloadCmd.Bytes()
	if err != nil {
		return Message{}, false, fmt.Errorf("redis load payload %s: %w", id, err)
	}
	msg := Message{
		ID:        id,
		Payload:   payload,
		Attempts:  int(attempts),
		LastError: errorCmd.Val(),
		LeaseID:   leaseID,
	}
	if millis, err := strconv.ParseInt(enqueuedCmd.Val(), 10, 64); err == nil {
		msg.EnqueuedAt = time.UnixMilli(millis).UTC()
	}
	return msg, true, nil
}

func (q *RedisQueue) Complete(ctx context.Context, leased Message, result Result, retryAt time.Time, reason string) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	id := leased.ID
	completed, err := redisCompleteScript.Run(ctx, q.client,
		[]string{
			q.keys.inflight, q.keys.ready, q.keys.dead, q.keys.jobs,
			q.keys.enqueued, q.keys.attempts, q.keys.errors, q.keys.leases,
		},
		id, string(result), retryAt.UnixMilli(), reason, time.Now().UTC().UnixMilli(), leased.LeaseID,
	).Int()
	if err != nil {
		return fmt.Errorf("redis complete %s: %w", id, err)
	}
	if completed == 0 {
		return fmt.Errorf("%w: %s", ErrNotLeased, id)
	}
	return nil
}

func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.client.Pipeline()
	ready := pipe.ZCard(ctx, q.keys.ready)
	inflight := pipe.ZCard(ctx, q.keys.inflight)
	dead := pipe.ZCard(ctx, q.keys.dead)
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("redis stats: %w", err)
	}
	return Stats{Ready: ready.Val(), Inflight: inflight.Val(), Dead: dead.Val()}, nil
}

// Close marks the queue closed; the redis client is owned by the caller.
func (q *RedisQueue) Close() error {
	q.closed.Store(true)
	return nil
}

var _ Queue = (*RedisQueue)(nil)
