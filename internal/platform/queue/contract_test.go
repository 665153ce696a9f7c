package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

// runQueueContract exercises the behavior every backend must share.
func runQueueContract(t *testing.T, newQueue func(t *testing.T) Queue) {
	t.Run("enqueue is idempotent by id", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()
		now := time.Now().UTC()

		created, err := q.Enqueue(ctx, Message{ID: "job-1", Payload: []byte(`{"a":1}`), EnqueuedAt: now})
		if err != nil || !created {
			t.Fatalf("first enqueue: created=%v err=%v", created, err)
		}
		created, err = q.Enqueue(ctx, Message{ID: "job-1", Payload: []byte(`{"a":2}`), EnqueuedAt: now})
		if err != nil || created {
			t.Fatalf("duplicate enqueue: created=%v err=%v", created, err)
		}
		stats, err := q.Stats(ctx)
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		if stats.Ready != 1 {
			t.Fatalf("expected one ready message, got %+v", stats)
		}
	})

	t.Run("lease hides message until ack", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()
		now := time.Now().UTC()
		if _, err := q.Enqueue(ctx, Message{ID: "job-1", Payload: []byte("payload"), EnqueuedAt: now}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}

		msg, ok, err := q.Lease(ctx, now.Add(time.Millisecond), time.Minute)
		if err != nil || !ok {
			t.Fatalf("lease: ok=%v err=%v", ok, err)
		}
		if msg.ID != "job-1" || string(msg.Payload) != "payload" || msg.Attempts != 1 {
			t.Fatalf("unexpected leased message: %+v", msg)
		}
		if _, ok, _ := q.Lease(ctx, now.Add(time.Second), time.Minute); ok {
			t.Fatalf("leased message must be invisible to other leasers")
		}
		if msg.LeaseID == "" {
			t.Fatalf("leased message must carry a lease id")
		}
		if err := q.Complete(ctx, msg, Ack, now, ""); err != nil {
			t.Fatalf("ack: %v", err)
		}
		stats, _ := q.Stats(ctx)
		if stats.Ready != 0 || stats.Inflight != 0 || stats.Dead != 0 {
			t.Fatalf("expected empty queue after ack, got %+v", stats)
		}
		if err := q.Complete(ctx, msg, Ack, now, ""); !errors.Is(err, ErrNotLeased) {
			t.Fatalf("expected ErrNotLeased on double ack, got %v", err)
		}
	})

	t.Run("expired lease is redelivered", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()
		now := time.Now().UTC()
		if _, err := q.Enqueue(ctx, Message{ID: "job-1", Payload: []byte("p"), EnqueuedAt: now}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		if _, ok, err := q.Lease(ctx, now.Add(time.Millisecond), time.Second); err != nil || !ok {
			t.Fatalf("first lease: ok=%v err=%v", ok, err)
		}
		msg, ok, err := q.Lease(ctx, now.Add(5*time.Second), time.Second)
		if err != nil || !ok {
			t.Fatalf("expected redelivery after lease expiry: ok=%v err=%v", ok, err)
		}
		if msg.Attempts != 2 {
			t.Fatalf("expected attempt 2, got %d", msg.Attempts)
		}
	})

	t.Run("retry becomes visible at retry time", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()
		now := time.Now().UTC()
		if _, err := q.Enqueue(ctx, Message{ID: "job-1", Payload: []byte("p"), EnqueuedAt: now}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		leased, _, err := q.Lease(ctx, now.Add(time.Millisecond), time.Minute)
		if err != nil {
			t.Fatalf("lease: %v", err)
		}
		retryAt := now.Add(10 * time.Second)
		if err := q.Complete(ctx, leased, Retry, retryAt, "boom"); err != nil {
			t.Fatalf("retry: %v", err)
		}
		if _, ok, _ := q.Lease(ctx, now.Add(5*time.Second), time.Minute); ok {
			t.Fatalf("message must stay hidden before retry time")
		}
		msg, ok, err := q.Lease(ctx, retryAt.Add(time.Millisecond), time.Minute)
		if err != nil || !ok {
			t.Fatalf("lease after retry time: ok=%v err=%v", ok, err)
		}
		if msg.LastError != "boom" || msg.Attempts != 2 {
			t.Fatalf("unexpected redelivered message: %+v", msg)
		}
	})

	t.Run("dead letter keeps id reserved", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()
		now := time.Now().UTC()
		if _, err := q.Enqueue(ctx, Message{ID: "job-1", Payload: []byte("p"), EnqueuedAt: now}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		leased, _, err := q.Lease(ctx, now.Add(time.Millisecond), time.Minute)
		if err != nil {
			t.Fatalf("lease: %v", err)
		}
		if err := q.Complete(ctx, leased, DeadLetter, now, "poison"); err != nil {
			t.Fatalf("dead letter: %v", err)
		}
		stats, _ := q.Stats(ctx)
		if stats.Dead != 1 || stats.Ready != 0 {
			t.Fatalf("expected one dead message, got %+v", stats)
		}
		created, err := q.Enqueue(ctx, Message{ID: "job-1", Payload: []byte("p"), EnqueuedAt: now})
		if err != nil || created {
			t.Fatalf("dead-lettered id must not be re-enqueued: created=%v err=%v", created, err)
		}
	})

	t.Run("stale lease cannot complete a redelivery", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()
		now := time.Now().UTC()
		if _, err := q.Enqueue(ctx, Message{ID: "job-1", Payload: []byte("p"), EnqueuedAt: now}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		stale, ok, err := q.Lease(ctx, now.Add(time.Millisecond), time.Second)
		if err != nil || !ok {
			t.Fatalf("first lease: ok=%v err=%v", ok, err)
		}
		current, ok, err := q.Lease(ctx, now.Add(5*time.Second), time.Minute)
		if err != nil || !ok {
			t.Fatalf("redelivery: ok=%v err=%v", ok, err)
		}
		if current.LeaseID == stale.LeaseID {
			t.Fatalf("redelivery must get a fresh lease id")
		}

		if err := q.Complete(ctx, stale, Ack, now, ""); !errors.Is(err, ErrNotLeased) {
			t.Fatalf("expected ErrNotLeased for stale ack, got %v", err)
		}
		stats, _ := q.Stats(ctx)
		if stats.Inflight != 1 {
			t.Fatalf("stale ack must leave the redelivery inflight, got %+v", stats)
		}
		if err := q.Complete(ctx, current, Ack, now, ""); err != nil {
			t.Fatalf("current ack: %v", err)
		}
		stats, _ = q.Stats(ctx)
		if stats.Ready != 0 || stats.Inflight != 0 {
			t.Fatalf("expected empty queue after current ack, got %+v", stats)
		}
	})
}
