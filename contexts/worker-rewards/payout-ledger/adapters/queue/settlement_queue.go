package queueadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"trustpoll/contexts/worker-rewards/payout-ledger/domain/entities"
	domainerrors "trustpoll/contexts/worker-rewards/payout-ledger/domain/errors"
	"trustpoll/contexts/worker-rewards/payout-ledger/ports"
	"trustpoll/internal/platform/queue"
)

// SettlementQueue stores settlement jobs as JSON messages keyed by payout id.
type SettlementQueue struct {
	Queue  queue.Queue
	Logger *slog.Logger
}

func (q SettlementQueue) Enqueue(ctx context.Context, job entities.SettlementJob) error {
	if !job.Valid() {
		return domainerrors.ErrInvalidInput
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	created, err := q.Queue.Enqueue(ctx, queue.Message{
		ID:         job.PayoutID,
		Payload:    payload,
		EnqueuedAt: job.EnqueuedAt,
	})
	if err != nil {
		return err
	}
	if !created && q.Logger != nil {
		q.Logger.Debug("settlement job already queued",
			"event", "payout_ledger_settlement_enqueue_duplicate",
			"module", "worker-rewards/payout-ledger",
			"layer", "adapter",
			"payout_id", job.PayoutID,
		)
	}
	return nil
}

// SettlementHandler is the slice of the settlement worker the queue drives.
type SettlementHandler interface {
	Handle(ctx context.Context, delivery ports.SettlementDelivery) (ports.JobResult, error)
}

// Handler decodes queue messages for the settlement worker. Undecodable
// payloads can never succeed and are dead-lettered.
func Handler(handler SettlementHandler) queue.Handler {
	return func(ctx context.Context, msg queue.Message) (queue.Result, error) {
		var job entities.SettlementJob
		if err := json.Unmarshal(msg.Payload, &job); err != nil {
			return queue.DeadLetter, fmt.Errorf("decode settlement job %s: %w", msg.ID, err)
		}
		result, err := handler.Handle(ctx, ports.SettlementDelivery{Job: job, Attempt: msg.Attempts})
		return toQueueResult(result), err
	}
}

func toQueueResult(result ports.JobResult) queue.Result {
	switch result {
	case ports.JobAck:
		return queue.Ack
	case ports.JobDeadLetter:
		return queue.DeadLetter
	default:
		return queue.Retry
	}
}

var _ ports.SettlementQueue = SettlementQueue{}
