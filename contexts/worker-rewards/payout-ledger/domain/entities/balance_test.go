package entities

import (
	"errors"
	"math"
	"testing"
	"time"

	domainerrors "trustpoll/contexts/worker-rewards/payout-ledger/domain/errors"
)

func TestBalanceLockAllMovesEntirePending(t *testing.T) {
	next, amount, err := Balance{Pending: 70, Locked: 30}.LockAll()
	if err != nil {
		t.Fatalf("lock all: %v", err)
	}
	if amount != 70 || next.Pending != 0 || next.Locked != 100 {
		t.Fatalf("unexpected lock result: amount=%d balance=%+v", amount, next)
	}
	if next.Total() != 100 {
		t.Fatalf("lock must conserve total, got %d", next.Total())
	}
}

func TestBalanceLockAllRejectsEmptyPending(t *testing.T) {
	if _, _, err := (Balance{Locked: 50}).LockAll(); !errors.Is(err, domainerrors.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestBalanceSettleAndRestoreClampLocked(t *testing.T) {
	settled := Balance{Pending: 5, Locked: 10}.Settle(25)
	if settled.Locked != 0 || settled.Pending != 5 {
		t.Fatalf("settle must clamp locked at zero, got %+v", settled)
	}

	restored, err := Balance{Pending: 5, Locked: 10}.Restore(10)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Pending != 15 || restored.Locked != 0 {
		t.Fatalf("unexpected restore result: %+v", restored)
	}
}

func TestBalanceRestoreGuardsOverflowAndNegatives(t *testing.T) {
	start := Balance{Pending: math.MaxInt64 - 5, Locked: 10}
	got, err := start.Restore(10)
	if !errors.Is(err, domainerrors.ErrBalanceInvariant) {
		t.Fatalf("expected overflow to violate invariant, got %v", err)
	}
	if got != start {
		t.Fatalf("failed restore must leave balance unchanged, got %+v", got)
	}
	if _, err := (Balance{Locked: 10}).Restore(-1); !errors.Is(err, domainerrors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative restore, got %v", err)
	}
}

func TestBalanceCreditGuardsOverflowAndNegatives(t *testing.T) {
	if _, err := (Balance{}).Credit(-1); !errors.Is(err, domainerrors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative credit, got %v", err)
	}
	if _, err := (Balance{Pending: math.MaxInt64}).Credit(1); !errors.Is(err, domainerrors.ErrBalanceInvariant) {
		t.Fatalf("expected overflow to violate invariant, got %v", err)
	}
}

func TestPayoutTransitionsOnlyOnce(t *testing.T) {
	now := time.Now().UTC()
	payout, err := NewPayout("p-1", "w-1", 100, now)
	if err != nil {
		t.Fatalf("new payout: %v", err)
	}
	completed, err := payout.Complete("sig-1", now)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != PayoutStatusCompleted || completed.Reference != "sig-1" {
		t.Fatalf("unexpected completed payout: %+v", completed)
	}
	if _, err := completed.Fail("late failure", "", now); !errors.Is(err, domainerrors.ErrPayoutAlreadySettled) {
		t.Fatalf("expected ErrPayoutAlreadySettled, got %v", err)
	}
	if _, err := payout.Complete("", now); !errors.Is(err, domainerrors.ErrInvalidInput) {
		t.Fatalf("completion without reference must fail, got %v", err)
	}
}
