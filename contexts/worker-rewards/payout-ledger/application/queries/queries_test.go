package queries_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"trustpoll/contexts/worker-rewards/payout-ledger/adapters/memory"
	"trustpoll/contexts/worker-rewards/payout-ledger/application/queries"
	"trustpoll/contexts/worker-rewards/payout-ledger/domain/entities"
	domainerrors "trustpoll/contexts/worker-rewards/payout-ledger/domain/errors"
	"trustpoll/contexts/worker-rewards/payout-ledger/ports"
)

func TestNextTaskReturnsOldestUnansweredTask(t *testing.T) {
	store := memory.NewStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.SeedTask(entities.Task{TaskID: "newer", Amount: 100, CreatedAt: base.Add(time.Hour), Options: []entities.Option{{OptionID: "n1"}}})
	store.SeedTask(entities.Task{TaskID: "older", Amount: 100, CreatedAt: base, Options: []entities.Option{{OptionID: "o1"}, {OptionID: "o2"}}})
	store.SeedTask(entities.Task{TaskID: "closed", Amount: 100, CreatedAt: base.Add(-time.Hour), Done: true})

	task, found, err := queries.NextTaskUseCase{Tasks: store}.Execute(context.Background(), "w-1")
	if err != nil || !found {
		t.Fatalf("next task: found=%v err=%v", found, err)
	}
	if task.TaskID != "older" || len(task.Options) != 2 {
		t.Fatalf("expected oldest open task with options, got %+v", task)
	}
}

func TestNextTaskSkipsAnsweredTasks(t *testing.T) {
	store := memory.NewStore()
	store.SeedWorker(entities.Worker{WorkerID: "w-1", Wallet: "wallet"})
	store.SeedTask(entities.Task{TaskID: "t-1", Amount: 100, Options: []entities.Option{{OptionID: "a"}}})
	err := store.WithinTx(context.Background(), ports.IsolationReadCommitted, func(ctx context.Context, tx ports.LedgerTx) error {
		return tx.CreateSubmission(ctx, entities.Submission{SubmissionID: "s-1", TaskID: "t-1", WorkerID: "w-1", OptionID: "a"})
	})
	if err != nil {
		t.Fatalf("seed submission: %v", err)
	}

	_, found, err := queries.NextTaskUseCase{Tasks: store}.Execute(context.Background(), "w-1")
	if err != nil {
		t.Fatalf("next task: %v", err)
	}
	if found {
		t.Fatalf("answered task must not be returned")
	}
	_, found, _ = queries.NextTaskUseCase{Tasks: store}.Execute(context.Background(), "w-2")
	if !found {
		t.Fatalf("other workers still get the task")
	}
}

func TestGetPayoutHidesOtherWorkersPayouts(t *testing.T) {
	store := memory.NewStore()
	store.SeedWorker(entities.Worker{WorkerID: "w-1", Wallet: "wallet-1", PendingAmount: 10})
	payout, _ := entities.NewPayout("p-1", "w-1", 10, time.Now().UTC())
	err := store.WithinTx(context.Background(), ports.IsolationSerializable, func(ctx context.Context, tx ports.LedgerTx) error {
		return tx.CreatePayout(ctx, payout)
	})
	if err != nil {
		t.Fatalf("seed payout: %v", err)
	}

	useCase := queries.GetPayoutUseCase{Payouts: store}
	if got, err := useCase.Execute(context.Background(), "w-1", "p-1"); err != nil || got.Amount != 10 {
		t.Fatalf("owner lookup: %+v %v", got, err)
	}
	if _, err := useCase.Execute(context.Background(), "w-2", "p-1"); !errors.Is(err, domainerrors.ErrPayoutNotFound) {
		t.Fatalf("expected ErrPayoutNotFound for other worker, got %v", err)
	}
}

func TestGetBalanceUnknownWorker(t *testing.T) {
	_, err := queries.GetBalanceUseCase{Workers: memory.NewStore()}.Execute(context.Background(), "ghost")
	if !errors.Is(err, domainerrors.ErrWorkerNotFound) {
		t.Fatalf("expected ErrWorkerNotFound, got %v", err)
	}
}
