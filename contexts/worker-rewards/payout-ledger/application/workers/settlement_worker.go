package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	application "trustpoll/contexts/worker-rewards/payout-ledger/application"
	"trustpoll/contexts/worker-rewards/payout-ledger/domain/entities"
	domainerrors "trustpoll/contexts/worker-rewards/payout-ledger/domain/errors"
	"trustpoll/contexts/worker-rewards/payout-ledger/ports"
)

const (
	defaultTransferTimeout = 30 * time.Second
	defaultConfirmTimeout  = 60 * time.Second
	defaultConfirmPoll     = 2 * time.Second
	maxConfirmPoll         = 15 * time.Second
	defaultPublishTimeout  = 2 * time.Second
)

// errAlreadySettled marks a finalize that found the payout terminal under lock.
var errAlreadySettled = errors.New("payout settled by another delivery")

// SettlementWorker drives one settlement job through
// RECEIVED -> TRANSFER_SUBMITTED -> TRANSFER_CONFIRMED | TRANSFER_FAILED.
type SettlementWorker struct {
	Ledger          ports.Ledger
	Payouts         ports.PayoutRepository
	Gateway         ports.TransferGateway
	Confirmer       ports.TransferConfirmer
	ConfirmEnabled  bool
	Publisher       ports.EventPublisher
	Clock           ports.Clock
	IDGen           ports.IDGenerator
	TransferTimeout time.Duration
	ConfirmTimeout  time.Duration

	// ConfirmPollInterval is the first wait between status checks; it
	// doubles up to maxConfirmPoll.
	ConfirmPollInterval time.Duration

	Metrics ports.LedgerMetrics
	Logger  *slog.Logger
}

// Handle processes one delivery. Deliveries are at-least-once; the PENDING
// gate on the payout row is what keeps a redelivery from paying twice.
func (w SettlementWorker) Handle(ctx context.Context, delivery ports.SettlementDelivery) (ports.JobResult, error) {
	logger := application.ResolveLogger(w.Logger)
	started := w.now()
	job := delivery.Job
	state := entities.SettlementReceived

	if !job.Valid() {
		logger.Error("settlement job malformed",
			"event", "payout_ledger_settlement_job_invalid",
			"module", "worker-rewards/payout-ledger",
			"layer", "worker",
			"payout_id", job.PayoutID,
			"attempt", delivery.Attempt,
		)
		return w.finish(state, ports.JobDeadLetter, started), domainerrors.ErrInvalidInput
	}

	payout, err := w.Payouts.GetPayout(ctx, job.PayoutID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrPayoutNotFound) {
			logger.Error("settlement job references missing payout",
				"event", "payout_ledger_settlement_payout_missing",
				"module", "worker-rewards/payout-ledger",
				"layer", "worker",
				"payout_id", job.PayoutID,
				"attempt", delivery.Attempt,
			)
			return w.finish(state, ports.JobDeadLetter, started), err
		}
		return w.finish(state, ports.JobRetry, started), err
	}
	if payout.IsTerminal() {
		logger.Info("settlement job already applied",
			"event", "payout_ledger_settlement_duplicate_delivery",
			"module", "worker-rewards/payout-ledger",
			"layer", "worker",
			"payout_id", payout.PayoutID,
			"status", string(payout.Status),
			"attempt", delivery.Attempt,
		)
		return w.finish(state, ports.JobAck, started), nil
	}
	if payout.WorkerID != job.WorkerID || payout.Amount != job.Amount {
		logger.Error("settlement job disagrees with payout row",
			"event", "payout_ledger_settlement_job_mismatch",
			"module", "worker-rewards/payout-ledger",
			"layer", "worker",
			"payout_id", payout.PayoutID,
			"job_amount", job.Amount,
			"payout_amount", payout.Amount,
		)
		return w.finish(state, ports.JobDeadLetter, started), domainerrors.ErrRepositoryInvariantBroke
	}

	reference, transferErr := w.submitTransfer(ctx, job)
	if transferErr == nil {
		state = entities.SettlementTransferSubmitted
		transferErr = w.confirmTransfer(ctx, logger, payout.PayoutID, reference)
	}

	if transferErr != nil {
		state = entities.SettlementTransferFailed
		logger.Warn("settlement transfer failed",
			"event", "payout_ledger_settlement_transfer_failed",
			"module", "worker-rewards/payout-ledger",
			"layer", "worker",
			"payout_id", payout.PayoutID,
			"worker_id", payout.WorkerID,
			"reference", reference,
			"attempt", delivery.Attempt,
			"error", transferErr.Error(),
		)
		settled, err := w.compensate(ctx, payout, reference, transferErr.Error())
		if err != nil {
			return w.finalizeFailed(logger, state, payout, started, err)
		}
		if settled.PayoutID != "" {
			w.publish(ctx, logger, settled)
		}
		// Compensated; the queue policy decides what happens to the job and
		// any redelivery stops at the PENDING gate.
		return w.finish(state, ports.JobRetry, started), transferErr
	}

	state = entities.SettlementTransferConfirmed
	settled, err := w.complete(ctx, payout, reference)
	if err != nil {
		return w.finalizeFailed(logger, state, payout, started, err)
	}
	if settled.PayoutID != "" {
		w.publish(ctx, logger, settled)
		logger.Info("settlement completed",
			"event", "payout_ledger_settlement_completed",
			"module", "worker-rewards/payout-ledger",
			"layer", "worker",
			"payout_id", settled.PayoutID,
			"worker_id", settled.WorkerID,
			"amount", settled.Amount,
			"reference", reference,
		)
	}
	return w.finish(state, ports.JobAck, started), nil
}

func (w SettlementWorker) submitTransfer(ctx context.Context, job entities.SettlementJob) (string, error) {
	transferCtx, cancel := context.WithTimeout(ctx, positiveOr(w.TransferTimeout, defaultTransferTimeout))
	defer cancel()
	reference, err := w.Gateway.Transfer(transferCtx, ports.TransferRequest{
		Destination:    job.Destination,
		Amount:         job.Amount,
		IdempotencyKey: job.PayoutID,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domainerrors.ErrTransferFailed, err)
	}
	if reference == "" {
		return "", fmt.Errorf("%w: gateway returned empty reference", domainerrors.ErrTransferFailed)
	}
	return reference, nil
}

// confirmTransfer polls until the gateway gives a final answer or the confirm
// deadline passes. Pending, unknown and transport errors keep polling.
func (w SettlementWorker) confirmTransfer(ctx context.Context, logger *slog.Logger, payoutID string, reference string) error {
	if !w.ConfirmEnabled || w.Confirmer == nil {
		return nil
	}
	confirmCtx, cancel := context.WithTimeout(ctx, positiveOr(w.ConfirmTimeout, defaultConfirmTimeout))
	defer cancel()

	wait := positiveOr(w.ConfirmPollInterval, defaultConfirmPoll)
	var (
		lastOutcome ports.TransferOutcome
		lastErr     error
	)
	for polls := 1; ; polls++ {
		outcome, err := w.Confirmer.Confirm(confirmCtx, reference)
		if err == nil {
			switch outcome {
			case ports.TransferConfirmed:
				return nil
			case ports.TransferRejected:
				return fmt.Errorf("%w: reference %s rejected", domainerrors.ErrTransferFailed, reference)
			}
		}
		lastOutcome, lastErr = outcome, err
		logger.Debug("settlement transfer not final yet",
			"event", "payout_ledger_settlement_confirm_pending",
			"module", "worker-rewards/payout-ledger",
			"layer", "worker",
			"payout_id", payoutID,
			"reference", reference,
			"outcome", string(outcome),
			"polls", polls,
		)

		timer := time.NewTimer(wait)
		select {
		case <-confirmCtx.Done():
			timer.Stop()
			if lastErr != nil {
				return fmt.Errorf("%w: reference %s unconfirmed after %d polls: %w", domainerrors.ErrTransferAmbiguous, reference, polls, lastErr)
			}
			return fmt.Errorf("%w: reference %s still %q after %d polls", domainerrors.ErrTransferAmbiguous, reference, lastOutcome, polls)
		case <-timer.C:
		}
		wait *= 2
		if wait > maxConfirmPoll {
			wait = maxConfirmPoll
		}
	}
}

// complete returns a zero Payout when another delivery already finalized it.
func (w SettlementWorker) complete(ctx context.Context, payout entities.Payout, reference string) (entities.Payout, error) {
	return w.finalize(ctx, payout.PayoutID, func(current entities.Payout, balance entities.Balance, now time.Time) (entities.Payout, entities.Balance, error) {
		next, err := current.Complete(reference, now)
		if err != nil {
			return current, balance, err
		}
		return next, balance.Settle(current.Amount), nil
	})
}

func (w SettlementWorker) compensate(ctx context.Context, payout entities.Payout, reference string, reason string) (entities.Payout, error) {
	return w.finalize(ctx, payout.PayoutID, func(current entities.Payout, balance entities.Balance, now time.Time) (entities.Payout, entities.Balance, error) {
		next, err := current.Fail(reason, reference, now)
		if err != nil {
			return current, balance, err
		}
		restored, err := balance.Restore(current.Amount)
		if err != nil {
			return current, balance, err
		}
		return next, restored, nil
	})
}

type payoutTransition func(current entities.Payout, balance entities.Balance, now time.Time) (entities.Payout, entities.Balance, error)

// finalize applies a terminal transition under payout then worker row locks.
func (w SettlementWorker) finalize(ctx context.Context, payoutID string, transition payoutTransition) (entities.Payout, error) {
	// The transfer has already happened; finalizing must not be cut short by
	// the delivery context.
	ctx = context.WithoutCancel(ctx)
	now := w.now()
	var settled entities.Payout
	err := w.Ledger.WithinTx(ctx, ports.IsolationReadCommitted, func(ctx context.Context, tx ports.LedgerTx) error {
		settled = entities.Payout{}
		current, err := tx.LockPayout(ctx, payoutID)
		if err != nil {
			return err
		}
		if current.IsTerminal() {
			return errAlreadySettled
		}
		worker, err := tx.LockWorker(ctx, current.WorkerID)
		if err != nil {
			return err
		}
		next, balance, err := transition(current, worker.Balance(), now)
		if err != nil {
			return err
		}
		if err := tx.SaveBalance(ctx, worker.WorkerID, balance, now); err != nil {
			return err
		}
		if err := tx.SavePayout(ctx, next); err != nil {
			return err
		}
		settled = next
		return nil
	})
	if errors.Is(err, errAlreadySettled) {
		return entities.Payout{}, nil
	}
	if err != nil {
		return entities.Payout{}, err
	}
	return settled, nil
}

func (w SettlementWorker) finalizeFailed(logger *slog.Logger, state entities.SettlementState, payout entities.Payout, started time.Time, err error) (ports.JobResult, error) {
	logger.Error("settlement finalize failed",
		"event", "payout_ledger_settlement_finalize_failed",
		"module", "worker-rewards/payout-ledger",
		"layer", "worker",
		"payout_id", payout.PayoutID,
		"worker_id", payout.WorkerID,
		"state", string(state),
		"error", err.Error(),
	)
	return w.finish(state, ports.JobRetry, started), err
}

func (w SettlementWorker) publish(ctx context.Context, logger *slog.Logger, payout entities.Payout) {
	if w.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultPublishTimeout)
	defer cancel()

	eventID := payout.PayoutID + ":" + string(payout.Status)
	if w.IDGen != nil {
		if id, err := w.IDGen.NewID(ctx); err == nil {
			eventID = id
		}
	}
	envelope, err := newPayoutEnvelope(eventID, payout, w.now())
	if err == nil {
		err = w.Publisher.Publish(ctx, PayoutTopic(payout.PayoutID), envelope)
	}
	if err != nil {
		logger.Warn("payout notification publish failed",
			"event", "payout_ledger_notification_failed",
			"module", "worker-rewards/payout-ledger",
			"layer", "worker",
			"payout_id", payout.PayoutID,
			"error", err.Error(),
		)
	}
}

func (w SettlementWorker) finish(state entities.SettlementState, result ports.JobResult, started time.Time) ports.JobResult {
	application.ResolveMetrics(w.Metrics).SettlementFinished(state, result, w.now().Sub(started))
	return result
}

func (w SettlementWorker) now() time.Time {
	if w.Clock == nil {
		return time.Now().UTC()
	}
	return w.Clock.Now().UTC()
}

func positiveOr(value time.Duration, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}
