package errors

import "errors"

// Validation: malformed input, nothing was written.
var (
	ErrInvalidInput  = errors.New("invalid payout ledger input")
	ErrInvalidOption = errors.New("selected option does not belong to task")
	ErrInvalidWallet = errors.New("wallet address is not a valid public key")
)

// Not found: the entity is absent or already consumed.
var (
	ErrWorkerNotFound    = errors.New("worker not found")
	ErrTaskNotAssignable = errors.New("task not found or not assignable to worker")
	ErrPayoutNotFound    = errors.New("payout not found")
)

// Conflict: a concurrent writer won the race.
var (
	ErrDuplicateSubmission  = errors.New("submission already recorded for task and worker")
	ErrConcurrentUpdate     = errors.New("ledger row was modified concurrently")
	ErrWorkerAlreadyExists  = errors.New("worker wallet already registered")
	ErrPayoutAlreadySettled = errors.New("payout already reached a terminal status")
)

var ErrInsufficientBalance = errors.New("insufficient pending balance")

// Transfer errors are resolved by compensation and never reach withdrawal callers.
var (
	ErrTransferFailed    = errors.New("external transfer failed")
	ErrTransferAmbiguous = errors.New("external transfer confirmation is ambiguous")
)

// Internal: infrastructure or invariant breakage.
var (
	ErrBalanceInvariant         = errors.New("balance invariant violated")
	ErrSettlementEnqueueFailed  = errors.New("settlement job enqueue failed after commit")
	ErrRepositoryInvariantBroke = errors.New("repository invariant violated")
)
