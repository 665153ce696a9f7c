package queries

import (
	"context"
	"strings"

	"trustpoll/contexts/worker-rewards/payout-ledger/domain/entities"
	domainerrors "trustpoll/contexts/worker-rewards/payout-ledger/domain/errors"
	"trustpoll/contexts/worker-rewards/payout-ledger/ports"
)

type GetBalanceUseCase struct {
	Workers ports.WorkerRepository
}

func (u GetBalanceUseCase) Execute(ctx context.Context, workerID string) (entities.Balance, error) {
	workerID = strings.TrimSpace(workerID)
	if workerID == "" {
		return entities.Balance{}, domainerrors.ErrInvalidInput
	}
	worker, err := u.Workers.GetWorker(ctx, workerID)
	if err != nil {
		return entities.Balance{}, err
	}
	return worker.Balance(), nil
}
