package entities

import "time"

type Worker struct {
	WorkerID      string
	Wallet        string
	PendingAmount int64
	LockedAmount  int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (w Worker) Balance() Balance {
	return Balance{Pending: w.PendingAmount, Locked: w.LockedAmount}
}

// WithBalance returns a copy carrying the given balance.
func (w Worker) WithBalance(balance Balance, updatedAt time.Time) Worker {
	w.PendingAmount = balance.Pending
	w.LockedAmount = balance.Locked
	w.UpdatedAt = updatedAt
	return w
}
