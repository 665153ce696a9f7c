package postgresadapter

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	domainerrors "trustpoll/contexts/worker-rewards/payout-ledger/domain/errors"

	"github.com/jackc/pgx/v5/pgconn"
)

func newTestRepository() *Repository {
	return NewRepository(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTranslateTxErrorMapsSerializationFailureToConcurrentUpdate(t *testing.T) {
	repo := newTestRepository()
	err := repo.translateTxError(fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"}))
	if !errors.Is(err, domainerrors.ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}
}

func TestTranslateTxErrorMapsSubmissionUniqueViolation(t *testing.T) {
	repo := newTestRepository()
	err := repo.translateTxError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_submissions_task_worker"})
	if !errors.Is(err, domainerrors.ErrDuplicateSubmission) {
		t.Fatalf("expected ErrDuplicateSubmission, got %v", err)
	}

	err = repo.translateTxError(&pgconn.PgError{Code: "23505", ConstraintName: "payouts_pkey"})
	if !errors.Is(err, domainerrors.ErrRepositoryInvariantBroke) {
		t.Fatalf("expected ErrRepositoryInvariantBroke for other unique constraints, got %v", err)
	}
}

func TestTranslateTxErrorMapsCheckViolationToBalanceInvariant(t *testing.T) {
	repo := newTestRepository()
	err := repo.translateTxError(&pgconn.PgError{Code: "23514", ConstraintName: "chk_workers_locked_non_negative"})
	if !errors.Is(err, domainerrors.ErrBalanceInvariant) {
		t.Fatalf("expected ErrBalanceInvariant, got %v", err)
	}
}

func TestTranslateTxErrorKeepsDomainErrors(t *testing.T) {
	repo := newTestRepository()
	err := repo.translateTxError(domainerrors.ErrInsufficientBalance)
	if !errors.Is(err, domainerrors.ErrInsufficientBalance) {
		t.Fatalf("expected domain error passthrough, got %v", err)
	}
}

func TestIsRetryableTxErrorIncludesDeadlocks(t *testing.T) {
	if !isRetryableTxError(&pgconn.PgError{Code: "40P01"}) {
		t.Fatalf("expected deadlock_detected to be retryable")
	}
	if isRetryableTxError(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("unique violation must not be retried")
	}
	if isRetryableTxError(errors.New("connection reset")) {
		t.Fatalf("plain errors must not be retried")
	}
}
