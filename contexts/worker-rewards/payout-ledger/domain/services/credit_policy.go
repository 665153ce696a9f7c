package services

import (
	"fmt"

	domainerrors "trustpoll/contexts/worker-rewards/payout-ledger/domain/errors"
)

// DefaultQuota is the number of submissions that fully distribute a task.
const DefaultQuota = 100

// CreditPerSubmission splits a task reward evenly over quota submissions with
// integer truncation. The remainder is never distributed.
func CreditPerSubmission(taskAmount int64, quota int) (int64, error) {
	if quota <= 0 {
		return 0, fmt.Errorf("%w: quota must be positive, got %d", domainerrors.ErrInvalidInput, quota)
	}
	if taskAmount < 0 {
		return 0, fmt.Errorf("%w: negative task amount %d", domainerrors.ErrInvalidInput, taskAmount)
	}
	return taskAmount / int64(quota), nil
}

// UndistributedRemainder is the rounding loss left in a fully voted task.
func UndistributedRemainder(taskAmount int64, quota int) int64 {
	if quota <= 0 || taskAmount < 0 {
		return 0
	}
	return taskAmount % int64(quota)
}

func QuotaReached(totalVotes int, quota int) bool {
	return quota > 0 && totalVotes >= quota
}
