package queries

import (
	"context"
	"log/slog"
	"strings"

	application "trustpoll/contexts/worker-rewards/payout-ledger/application"
	"trustpoll/contexts/worker-rewards/payout-ledger/domain/entities"
	domainerrors "trustpoll/contexts/worker-rewards/payout-ledger/domain/errors"
	"trustpoll/contexts/worker-rewards/payout-ledger/ports"
)

// NextTaskUseCase selects the oldest task the worker has not submitted to and
// that is not yet quota-filled. It has no side effects; callers re-invoke it
// after any write that could change assignability.
type NextTaskUseCase struct {
	Tasks  ports.TaskReader
	Logger *slog.Logger
}

func (u NextTaskUseCase) Execute(ctx context.Context, workerID string) (entities.Task, bool, error) {
	workerID = strings.TrimSpace(workerID)
	if workerID == "" {
		return entities.Task{}, false, domainerrors.ErrInvalidInput
	}
	task, found, err := u.Tasks.NextTaskForWorker(ctx, workerID)
	if err != nil {
		application.ResolveLogger(u.Logger).Error("next task lookup failed",
			"event", "payout_ledger_next_task_failed",
			"module", "worker-rewards/payout-ledger",
			"layer", "application",
			"worker_id", workerID,
			"error", err.Error(),
		)
		return entities.Task{}, false, err
	}
	return task, found, nil
}
