package queries

import (
	"context"
	"strings"

	"trustpoll/contexts/worker-rewards/payout-ledger/domain/entities"
	domainerrors "trustpoll/contexts/worker-rewards/payout-ledger/domain/errors"
	"trustpoll/contexts/worker-rewards/payout-ledger/ports"
)

type GetPayoutUseCase struct {
	Payouts ports.PayoutRepository
}

// Execute hides payouts owned by other workers behind ErrPayoutNotFound.
func (u GetPayoutUseCase) Execute(ctx context.Context, workerID string, payoutID string) (entities.Payout, error) {
	workerID = strings.TrimSpace(workerID)
	payoutID = strings.TrimSpace(payoutID)
	if workerID == "" || payoutID == "" {
		return entities.Payout{}, domainerrors.ErrInvalidInput
	}
	payout, err := u.Payouts.GetPayout(ctx, payoutID)
	if err != nil {
		return entities.Payout{}, err
	}
	if payout.WorkerID != workerID {
		return entities.Payout{}, domainerrors.ErrPayoutNotFound
	}
	return payout, nil
}
