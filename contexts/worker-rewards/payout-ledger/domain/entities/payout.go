package entities

import (
	"fmt"
	"time"

	domainerrors "trustpoll/contexts/worker-rewards/payout-ledger/domain/errors"
)

type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "PENDING"
	PayoutStatusCompleted PayoutStatus = "COMPLETED"
	PayoutStatusFailed    PayoutStatus = "FAILED"
)

// Payout is created PENDING and transitions exactly once to a terminal status.
type Payout struct {
	PayoutID      string
	WorkerID      string
	Amount        int64
	Status        PayoutStatus
	Reference     string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewPayout(payoutID string, workerID string, amount int64, now time.Time) (Payout, error) {
	if payoutID == "" || workerID == "" || amount <= 0 {
		return Payout{}, domainerrors.ErrInvalidInput
	}
	return Payout{
		PayoutID:  payoutID,
		WorkerID:  workerID,
		Amount:    amount,
		Status:    PayoutStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (p Payout) IsTerminal() bool {
	return p.Status == PayoutStatusCompleted || p.Status == PayoutStatusFailed
}

func (p Payout) Complete(reference string, now time.Time) (Payout, error) {
	if p.IsTerminal() {
		return p, fmt.Errorf("%w: %s is %s", domainerrors.ErrPayoutAlreadySettled, p.PayoutID, p.Status)
	}
	if reference == "" {
		return p, fmt.Errorf("%w: completed payout requires a transfer reference", domainerrors.ErrInvalidInput)
	}
	p.Status = PayoutStatusCompleted
	p.Reference = reference
	p.FailureReason = ""
	p.UpdatedAt = now
	return p, nil
}

// Fail keeps reference when a transfer was submitted but never confirmed, so
// the row can be reconciled against the network later.
func (p Payout) Fail(reason string, reference string, now time.Time) (Payout, error) {
	if p.IsTerminal() {
		return p, fmt.Errorf("%w: %s is %s", domainerrors.ErrPayoutAlreadySettled, p.PayoutID, p.Status)
	}
	p.Status = PayoutStatusFailed
	p.Reference = reference
	p.FailureReason = reason
	p.UpdatedAt = now
	return p, nil
}
