package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "trustpoll/contexts/worker-rewards/payout-ledger/application"
	"trustpoll/contexts/worker-rewards/payout-ledger/domain/entities"
	domainerrors "trustpoll/contexts/worker-rewards/payout-ledger/domain/errors"
	"trustpoll/contexts/worker-rewards/payout-ledger/ports"
)

type RegisterWorkerCommand struct {
	Wallet string
}

type RegisterWorkerResult struct {
	Worker  entities.Worker
	Created bool
}

// RegisterWorkerUseCase finds or creates the ledger row for a wallet on first
// authentication. Balances start at zero.
type RegisterWorkerUseCase struct {
	Workers ports.WorkerRepository
	Wallets ports.WalletValidator
	Clock   ports.Clock
	IDGen   ports.IDGenerator
	Logger  *slog.Logger
}

func (u RegisterWorkerUseCase) Execute(ctx context.Context, cmd RegisterWorkerCommand) (RegisterWorkerResult, error) {
	logger := application.ResolveLogger(u.Logger)
	wallet := strings.TrimSpace(cmd.Wallet)
	if wallet == "" {
		return RegisterWorkerResult{}, domainerrors.ErrInvalidInput
	}
	if u.Wallets != nil {
		if err := u.Wallets.ValidateWallet(wallet); err != nil {
			return RegisterWorkerResult{}, err
		}
	}

	if existing, found, err := u.Workers.GetWorkerByWallet(ctx, wallet); err != nil {
		return RegisterWorkerResult{}, err
	} else if found {
		return RegisterWorkerResult{Worker: existing}, nil
	}

	workerID, err := u.IDGen.NewID(ctx)
	if err != nil {
		return RegisterWorkerResult{}, err
	}
	now := u.now()
	worker := entities.Worker{
		WorkerID:  workerID,
		Wallet:    wallet,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.Workers.CreateWorker(ctx, worker); err != nil {
		if !errors.Is(err, domainerrors.ErrWorkerAlreadyExists) {
			return RegisterWorkerResult{}, err
		}
		// Lost a concurrent first sign-in; the winner's row is the worker.
		existing, found, lookupErr := u.Workers.GetWorkerByWallet(ctx, wallet)
		if lookupErr != nil {
			return RegisterWorkerResult{}, lookupErr
		}
		if !found {
			return RegisterWorkerResult{}, domainerrors.ErrRepositoryInvariantBroke
		}
		return RegisterWorkerResult{Worker: existing}, nil
	}

	logger.Info("worker registered",
		"event", "payout_ledger_worker_registered",
		"module", "worker-rewards/payout-ledger",
		"layer", "application",
		"worker_id", worker.WorkerID,
	)
	return RegisterWorkerResult{Worker: worker, Created: true}, nil
}

func (u RegisterWorkerUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}
