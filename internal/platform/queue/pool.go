package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Handler processes one delivery. The returned error is informational; the
// Result alone decides what happens to the message.
type Handler func(ctx context.Context, msg Message) (Result, error)

// Pool runs Concurrency lease/handle/complete loops against one queue.
type Pool struct {
	Name         string
	Queue        Queue
	Handler      Handler
	Policy       Policy
	Concurrency  int
	PollInterval time.Duration
	Now          func() time.Time
	Logger       *slog.Logger
}

// Run blocks until ctx is canceled or the queue fails permanently.
func (p *Pool) Run(ctx context.Context) error {
	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		slot := i
		group.Go(func() error {
			return p.loop(groupCtx, slot)
		})
	}
	err := group.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrQueueClosed) {
		return nil
	}
	return err
}

func (p *Pool) loop(ctx context.Context, slot int) error {
	poll := p.PollInterval
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		processed, err := p.ProcessOne(ctx)
		if errors.Is(err, ErrQueueClosed) {
			return err
		}
		if err != nil {
			p.logger().Error("queue lease failed",
				"event", "queue_pool_lease_failed",
				"module", "internal/platform/queue",
				"layer", "platform",
				"queue", p.Name,
				"slot", slot,
				"error", err.Error(),
			)
		}
		if processed && err == nil {
			continue
		}
		timer := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// ProcessOne leases and handles at most one message. It reports false when
// nothing was visible.
func (p *Pool) ProcessOne(ctx context.Context) (bool, error) {
	policy := p.Policy.normalized()
	msg, ok, err := p.Queue.Lease(ctx, p.now(), policy.LeaseTimeout)
	if err != nil || !ok {
		return false, err
	}

	// Once leased, the message runs to completion and is always settled.
	runCtx := context.WithoutCancel(ctx)
	var result Result
	var handlerErr error
	if msg.Attempts > policy.MaxAttempts {
		result = DeadLetter
		handlerErr = fmt.Errorf("lease expired %d times without completion", msg.Attempts-1)
	} else {
		result, handlerErr = p.invoke(runCtx, msg)
		result = policy.Decide(result, msg.Attempts)
	}

	now := p.now()
	retryAt := now
	reason := ""
	if handlerErr != nil {
		reason = handlerErr.Error()
	}
	if result == Retry {
		retryAt = now.Add(policy.Backoff(msg.Attempts))
	}

	logger := p.logger()
	switch result {
	case DeadLetter:
		logger.Error("queue message dead-lettered",
			"event", "queue_pool_dead_letter",
			"module", "internal/platform/queue",
			"layer", "platform",
			"queue", p.Name,
			"message_id", msg.ID,
			"attempt", msg.Attempts,
			"reason", reason,
		)
	case Retry:
		logger.Warn("queue message scheduled for retry",
			"event", "queue_pool_retry",
			"module", "internal/platform/queue",
			"layer", "platform",
			"queue", p.Name,
			"message_id", msg.ID,
			"attempt", msg.Attempts,
			"retry_at", retryAt,
			"reason", reason,
		)
	}

	if err := p.Queue.Complete(runCtx, msg, result, retryAt, reason); err != nil {
		// The lease will expire and the message becomes visible again.
		logger.Error("queue message completion failed",
			"event", "queue_pool_complete_failed",
			"module", "internal/platform/queue",
			"layer", "platform",
			"queue", p.Name,
			"message_id", msg.ID,
			"result", string(result),
			"error", err.Error(),
		)
		return true, nil
	}
	return true, nil
}

func (p *Pool) invoke(ctx context.Context, msg Message) (result Result, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = Retry
			err = fmt.Errorf("handler panic: %v", recovered)
		}
	}()
	return p.Handler(ctx, msg)
}

func (p *Pool) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Pool) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
