package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "trustpoll/contexts/worker-rewards/payout-ledger/application"
	"trustpoll/contexts/worker-rewards/payout-ledger/domain/entities"
	domainerrors "trustpoll/contexts/worker-rewards/payout-ledger/domain/errors"
	"trustpoll/contexts/worker-rewards/payout-ledger/domain/services"
	"trustpoll/contexts/worker-rewards/payout-ledger/ports"
)

type RecordSubmissionCommand struct {
	WorkerID string
	TaskID   string
	OptionID string
}

type RecordSubmissionResult struct {
	Submission     entities.Submission
	CreditedAmount int64
	TaskDone       bool
	NextTask       entities.Task
	HasNextTask    bool
}

// RecordSubmissionUseCase records a vote, credits the worker and closes the
// task once the quota is reached, all in one ledger transaction.
type RecordSubmissionUseCase struct {
	Ledger  ports.Ledger
	Tasks   ports.TaskReader
	Clock   ports.Clock
	IDGen   ports.IDGenerator
	Quota   int
	Metrics ports.LedgerMetrics
	Logger  *slog.Logger
}

// Execute runs the submission workflow in this order:
// 1) lock the task row and re-verify assignability
// 2) insert the submission (unique on task+worker)
// 3) bump the option vote count and close the task at quota
// 4) atomically credit pending balance
// 5) after commit, look up the next assignable task.
func (u RecordSubmissionUseCase) Execute(ctx context.Context, cmd RecordSubmissionCommand) (RecordSubmissionResult, error) {
	logger := application.ResolveLogger(u.Logger)
	workerID := strings.TrimSpace(cmd.WorkerID)
	taskID := strings.TrimSpace(cmd.TaskID)
	optionID := strings.TrimSpace(cmd.OptionID)
	if workerID == "" || taskID == "" || optionID == "" {
		logger.Warn("submission validation failed",
			"event", "payout_ledger_submission_validation_failed",
			"module", "worker-rewards/payout-ledger",
			"layer", "application",
			"worker_id", workerID,
			"task_id", taskID,
		)
		return RecordSubmissionResult{}, domainerrors.ErrInvalidInput
	}

	quota := u.Quota
	if quota <= 0 {
		quota = services.DefaultQuota
	}
	submissionID, err := u.IDGen.NewID(ctx)
	if err != nil {
		return RecordSubmissionResult{}, err
	}
	now := u.now()

	var submission entities.Submission
	var taskDone bool
	err = u.Ledger.WithinTx(ctx, ports.IsolationReadCommitted, func(ctx context.Context, tx ports.LedgerTx) error {
		taskDone = false

		task, err := tx.LockTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task.Done {
			return domainerrors.ErrTaskNotAssignable
		}
		if !task.HasOption(optionID) {
			return domainerrors.ErrInvalidOption
		}
		already, err := tx.HasSubmission(ctx, taskID, workerID)
		if err != nil {
			return err
		}
		if already {
			return domainerrors.ErrTaskNotAssignable
		}

		credit, err := services.CreditPerSubmission(task.Amount, quota)
		if err != nil {
			return err
		}
		submission = entities.Submission{
			SubmissionID: submissionID,
			TaskID:       taskID,
			WorkerID:     workerID,
			OptionID:     optionID,
			Amount:       credit,
			CreatedAt:    now,
		}
		if err := tx.CreateSubmission(ctx, submission); err != nil {
			return err
		}
		if err := tx.IncrementOptionVotes(ctx, taskID, optionID); err != nil {
			return err
		}
		votes, err := tx.CountTaskVotes(ctx, taskID)
		if err != nil {
			return err
		}
		if services.QuotaReached(votes, quota) {
			if err := tx.MarkTaskDone(ctx, taskID); err != nil {
				return err
			}
			taskDone = true
		}
		return tx.CreditPending(ctx, workerID, credit, now)
	})
	if err != nil {
		level := slog.LevelError
		if isExpectedSubmissionError(err) {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "submission rejected",
			"event", "payout_ledger_submission_rejected",
			"module", "worker-rewards/payout-ledger",
			"layer", "application",
			"worker_id", workerID,
			"task_id", taskID,
			"option_id", optionID,
			"error", err.Error(),
		)
		return RecordSubmissionResult{}, err
	}

	application.ResolveMetrics(u.Metrics).SubmissionRecorded(submission.Amount)
	logger.Info("submission recorded",
		"event", "payout_ledger_submission_recorded",
		"module", "worker-rewards/payout-ledger",
		"layer", "application",
		"submission_id", submission.SubmissionID,
		"worker_id", workerID,
		"task_id", taskID,
		"option_id", optionID,
		"credited_amount", submission.Amount,
		"task_done", taskDone,
	)

	result := RecordSubmissionResult{
		Submission:     submission,
		CreditedAmount: submission.Amount,
		TaskDone:       taskDone,
	}
	next, found, err := u.Tasks.NextTaskForWorker(ctx, workerID)
	if err != nil {
		// The credit is committed; a failed follow-up read only loses the hint.
		logger.Warn("next task lookup after submission failed",
			"event", "payout_ledger_submission_next_task_failed",
			"module", "worker-rewards/payout-ledger",
			"layer", "application",
			"worker_id", workerID,
			"error", err.Error(),
		)
		return result, nil
	}
	result.NextTask = next
	result.HasNextTask = found
	return result, nil
}

func (u RecordSubmissionUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}

func isExpectedSubmissionError(err error) bool {
	return errors.Is(err, domainerrors.ErrTaskNotAssignable) ||
		errors.Is(err, domainerrors.ErrInvalidOption) ||
		errors.Is(err, domainerrors.ErrDuplicateSubmission) ||
		errors.Is(err, domainerrors.ErrWorkerNotFound) ||
		errors.Is(err, domainerrors.ErrConcurrentUpdate)
}
