package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	application "trustpoll/contexts/worker-rewards/payout-ledger/application"
	"trustpoll/contexts/worker-rewards/payout-ledger/domain/entities"
	domainerrors "trustpoll/contexts/worker-rewards/payout-ledger/domain/errors"
	"trustpoll/contexts/worker-rewards/payout-ledger/ports"
)

const defaultEnqueueTimeout = 5 * time.Second

type InitiateWithdrawalCommand struct {
	WorkerID string
}

type InitiateWithdrawalResult struct {
	Payout entities.Payout
	Job    entities.SettlementJob
}

// InitiateWithdrawalUseCase locks the whole pending balance, creates a PENDING
// payout and hands settlement to the durable queue.
type InitiateWithdrawalUseCase struct {
	Ledger         ports.Ledger
	Queue          ports.SettlementQueue
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	EnqueueTimeout time.Duration
	Metrics        ports.LedgerMetrics
	Logger         *slog.Logger
}

// Execute commits the lock and payout under serializable isolation with the
// worker row held exclusively, then enqueues the settlement job. The queue
// cannot join the database transaction, so the enqueue happens strictly after
// commit. An enqueue failure leaves a PENDING payout with locked funds that
// needs reconciliation; it is reported, never swallowed.
func (u InitiateWithdrawalUseCase) Execute(ctx context.Context, cmd InitiateWithdrawalCommand) (InitiateWithdrawalResult, error) {
	logger := application.ResolveLogger(u.Logger)
	workerID := strings.TrimSpace(cmd.WorkerID)
	if workerID == "" {
		return InitiateWithdrawalResult{}, domainerrors.ErrInvalidInput
	}

	payoutID, err := u.IDGen.NewID(ctx)
	if err != nil {
		return InitiateWithdrawalResult{}, err
	}
	now := u.now()

	logger.Info("withdrawal started",
		"event", "payout_ledger_withdrawal_started",
		"module", "worker-rewards/payout-ledger",
		"layer", "application",
		"worker_id", workerID,
	)

	var payout entities.Payout
	var destination string
	err = u.Ledger.WithinTx(ctx, ports.IsolationSerializable, func(ctx context.Context, tx ports.LedgerTx) error {
		worker, err := tx.LockWorker(ctx, workerID)
		if err != nil {
			return err
		}
		next, amount, err := worker.Balance().LockAll()
		if err != nil {
			return err
		}
		if err := tx.SaveBalance(ctx, workerID, next, now); err != nil {
			return err
		}
		payout, err = entities.NewPayout(payoutID, workerID, amount, now)
		if err != nil {
			return err
		}
		destination = worker.Wallet
		return tx.CreatePayout(ctx, payout)
	})
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, domainerrors.ErrInsufficientBalance) ||
			errors.Is(err, domainerrors.ErrWorkerNotFound) ||
			errors.Is(err, domainerrors.ErrConcurrentUpdate) {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "withdrawal rejected",
			"event", "payout_ledger_withdrawal_rejected",
			"module", "worker-rewards/payout-ledger",
			"layer", "application",
			"worker_id", workerID,
			"error", err.Error(),
		)
		return InitiateWithdrawalResult{}, err
	}

	job := entities.SettlementJob{
		PayoutID:    payout.PayoutID,
		WorkerID:    workerID,
		Amount:      payout.Amount,
		Destination: destination,
		EnqueuedAt:  now,
	}
	result := InitiateWithdrawalResult{Payout: payout, Job: job}

	// The funds are already committed as locked; a caller hanging up must not
	// abort the hand-off to the queue.
	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.enqueueTimeout())
	defer cancel()
	if err := u.Queue.Enqueue(enqueueCtx, job); err != nil {
		logger.Error("settlement enqueue failed after commit",
			"event", "payout_ledger_withdrawal_enqueue_failed",
			"module", "worker-rewards/payout-ledger",
			"layer", "application",
			"worker_id", workerID,
			"payout_id", payout.PayoutID,
			"amount", payout.Amount,
			"reconciliation_required", true,
			"error", err.Error(),
		)
		return result, fmt.Errorf("%w: payout %s: %w", domainerrors.ErrSettlementEnqueueFailed, payout.PayoutID, err)
	}

	application.ResolveMetrics(u.Metrics).WithdrawalInitiated(payout.Amount)
	logger.Info("withdrawal queued for settlement",
		"event", "payout_ledger_withdrawal_queued",
		"module", "worker-rewards/payout-ledger",
		"layer", "application",
		"worker_id", workerID,
		"payout_id", payout.PayoutID,
		"amount", payout.Amount,
	)
	return result, nil
}

func (u InitiateWithdrawalUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}

func (u InitiateWithdrawalUseCase) enqueueTimeout() time.Duration {
	if u.EnqueueTimeout <= 0 {
		return defaultEnqueueTimeout
	}
	return u.EnqueueTimeout
}
