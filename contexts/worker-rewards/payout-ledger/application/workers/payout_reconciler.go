package workers

import (
	"context"
	"log/slog"
	"time"

	application "trustpoll/contexts/worker-rewards/payout-ledger/application"
	"trustpoll/contexts/worker-rewards/payout-ledger/domain/entities"
	"trustpoll/contexts/worker-rewards/payout-ledger/ports"
)

// PayoutReconciler closes the gap between a committed withdrawal and a failed
// enqueue by re-enqueueing PENDING payouts that outlived the grace window.
// Enqueue is idempotent by payout id, so live jobs are untouched.
type PayoutReconciler struct {
	Payouts   ports.PayoutRepository
	Workers   ports.WorkerRepository
	Queue     ports.SettlementQueue
	Clock     ports.Clock
	Grace     time.Duration
	BatchSize int
	Logger    *slog.Logger
}

func (j PayoutReconciler) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(j.Logger)
	now := time.Now().UTC()
	if j.Clock != nil {
		now = j.Clock.Now().UTC()
	}
	grace := j.Grace
	if grace <= 0 {
		grace = 2 * time.Minute
	}
	limit := j.BatchSize
	if limit <= 0 {
		limit = 100
	}

	pending, err := j.Payouts.ListPendingPayouts(ctx, now.Add(-grace), limit)
	if err != nil {
		logger.Error("pending payout sweep failed",
			"event", "payout_ledger_reconcile_list_failed",
			"module", "worker-rewards/payout-ledger",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	requeued := 0
	for _, payout := range pending {
		worker, err := j.Workers.GetWorker(ctx, payout.WorkerID)
		if err != nil {
			logger.Error("pending payout worker lookup failed",
				"event", "payout_ledger_reconcile_worker_failed",
				"module", "worker-rewards/payout-ledger",
				"layer", "worker",
				"payout_id", payout.PayoutID,
				"worker_id", payout.WorkerID,
				"error", err.Error(),
			)
			continue
		}
		job := entities.SettlementJob{
			PayoutID:    payout.PayoutID,
			WorkerID:    payout.WorkerID,
			Amount:      payout.Amount,
			Destination: worker.Wallet,
			EnqueuedAt:  now,
		}
		if err := j.Queue.Enqueue(ctx, job); err != nil {
			logger.Error("pending payout re-enqueue failed",
				"event", "payout_ledger_reconcile_enqueue_failed",
				"module", "worker-rewards/payout-ledger",
				"layer", "worker",
				"payout_id", payout.PayoutID,
				"reconciliation_required", true,
				"error", err.Error(),
			)
			return err
		}
		requeued++
	}
	if requeued > 0 {
		logger.Info("pending payout sweep completed",
			"event", "payout_ledger_reconcile_completed",
			"module", "worker-rewards/payout-ledger",
			"layer", "worker",
			"requeued_count", requeued,
		)
	}
	return nil
}
