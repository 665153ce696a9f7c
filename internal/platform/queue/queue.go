package queue

import (
	"context"
	"errors"
	"time"
)

// Result is the explicit outcome a handler reports for one delivery.
type Result string

const (
	Ack        Result = "ack"
	Retry      Result = "retry"
	DeadLetter Result = "dead_letter"
)

var (
	ErrNotLeased    = errors.New("queue message is not leased")
	ErrInvalidID    = errors.New("queue message id is required")
	ErrQueueClosed  = errors.New("queue is closed")
	ErrInvalidLease = errors.New("lease duration must be positive")
)

// Message is one durable job. ID is the idempotency key for Enqueue.
// LeaseID is set by Lease and names that one delivery; Complete rejects a
// message whose lease has since been handed to another leaser.
type Message struct {
	ID         string
	Payload    []byte
	Attempts   int
	EnqueuedAt time.Time
	LastError  string
	LeaseID    string
}

type Stats struct {
	Ready    int64
	Inflight int64
	Dead     int64
}

// Queue is an at-least-once work queue with visibility leases.
//
// Lease hands out the oldest visible message and hides it until the lease
// deadline; expired leases become visible again. Complete, given the
// leased message, removes the
// message on Ack, reschedules it at retryAt on Retry and parks it on
// DeadLetter. Dead-lettered ids stay known, so Enqueue of the same id is
// still a no-op.
type Queue interface {
	Enqueue(ctx context.Context, msg Message) (bool, error)
	Lease(ctx context.Context, now time.Time, leaseFor time.Duration) (Message, bool, error)
	Complete(ctx context.Context, leased Message, result Result, retryAt time.Time, reason string) error
	Stats(ctx context.Context) (Stats, error)
	Close() error
}
