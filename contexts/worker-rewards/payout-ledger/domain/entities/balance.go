package entities

import (
	"fmt"
	"math"

	domainerrors "trustpoll/contexts/worker-rewards/payout-ledger/domain/errors"
)

// Balance is a worker's (pending, locked) pair in the smallest currency unit.
// Every ledger mutation goes through these methods so that both fields stay
// non-negative at each commit point.
type Balance struct {
	Pending int64
	Locked  int64
}

// Total is the conserved quantity: it grows only by credits and shrinks only
// by settled payouts.
func (b Balance) Total() int64 {
	return b.Pending + b.Locked
}

func (b Balance) Validate() error {
	if b.Pending < 0 || b.Locked < 0 {
		return fmt.Errorf("%w: pending=%d locked=%d", domainerrors.ErrBalanceInvariant, b.Pending, b.Locked)
	}
	return nil
}

// Credit adds earned reward to pending.
func (b Balance) Credit(amount int64) (Balance, error) {
	if amount < 0 {
		return b, fmt.Errorf("%w: negative credit %d", domainerrors.ErrInvalidInput, amount)
	}
	if b.Pending > math.MaxInt64-amount {
		return b, fmt.Errorf("%w: pending overflow", domainerrors.ErrBalanceInvariant)
	}
	next := Balance{Pending: b.Pending + amount, Locked: b.Locked}
	return next, next.Validate()
}

// LockAll moves the whole pending amount into locked and returns the moved
// amount. A non-positive pending balance cannot be withdrawn.
func (b Balance) LockAll() (Balance, int64, error) {
	if err := b.Validate(); err != nil {
		return b, 0, err
	}
	if b.Pending <= 0 {
		return b, 0, domainerrors.ErrInsufficientBalance
	}
	if b.Locked > math.MaxInt64-b.Pending {
		return b, 0, fmt.Errorf("%w: locked overflow", domainerrors.ErrBalanceInvariant)
	}
	return Balance{Pending: 0, Locked: b.Locked + b.Pending}, b.Pending, nil
}

// Settle releases a completed payout from locked. The subtraction clamps at
// zero so a replayed or stale settlement cannot drive locked negative.
func (b Balance) Settle(amount int64) Balance {
	return Balance{Pending: b.Pending, Locked: clampSub(b.Locked, amount)}
}

// Restore compensates a failed payout: the amount leaves locked and returns
// to pending.
func (b Balance) Restore(amount int64) (Balance, error) {
	if amount < 0 {
		return b, fmt.Errorf("%w: negative restore %d", domainerrors.ErrInvalidInput, amount)
	}
	if b.Pending > math.MaxInt64-amount {
		return b, fmt.Errorf("%w: pending overflow", domainerrors.ErrBalanceInvariant)
	}
	next := Balance{Pending: b.Pending + amount, Locked: clampSub(b.Locked, amount)}
	return next, next.Validate()
}

func clampSub(value int64, amount int64) int64 {
	if amount >= value {
		return 0
	}
	return value - amount
}
