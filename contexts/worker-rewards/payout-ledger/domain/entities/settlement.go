package entities

import "time"

// SettlementState tracks one delivery of a settlement job.
type SettlementState string

const (
	SettlementReceived          SettlementState = "RECEIVED"
	SettlementTransferSubmitted SettlementState = "TRANSFER_SUBMITTED"
	SettlementTransferConfirmed SettlementState = "TRANSFER_CONFIRMED"
	SettlementTransferFailed    SettlementState = "TRANSFER_FAILED"
)

// SettlementJob is the durable queue entry created alongside a payout.
// PayoutID doubles as the queue key, so enqueueing is idempotent.
type SettlementJob struct {
	PayoutID    string    `json:"payout_id"`
	WorkerID    string    `json:"worker_id"`
	Amount      int64     `json:"amount"`
	Destination string    `json:"destination"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

func (j SettlementJob) Valid() bool {
	return j.PayoutID != "" && j.WorkerID != "" && j.Destination != "" && j.Amount > 0
}
