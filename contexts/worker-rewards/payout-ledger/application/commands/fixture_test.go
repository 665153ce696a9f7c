package commands_test

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"trustpoll/contexts/worker-rewards/payout-ledger/adapters/memory"
	"trustpoll/contexts/worker-rewards/payout-ledger/application/commands"
	"trustpoll/contexts/worker-rewards/payout-ledger/domain/entities"
)

var baseTime = time.Date(2024, 11, 5, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store       *memory.Store
	queue       *memory.SettlementQueue
	submissions commands.RecordSubmissionUseCase
	withdrawals commands.InitiateWithdrawalUseCase
}

func newFixture(quota int) fixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	store.SetClock(func() time.Time { return baseTime })
	queue := memory.NewSettlementQueue()
	return fixture{
		store: store,
		queue: queue,
		submissions: commands.RecordSubmissionUseCase{
			Ledger: store,
			Tasks:  store,
			Clock:  store,
			IDGen:  store,
			Quota:  quota,
			Logger: logger,
		},
		withdrawals: commands.InitiateWithdrawalUseCase{
			Ledger: store,
			Queue:  queue,
			Clock:  store,
			IDGen:  store,
			Logger: logger,
		},
	}
}

func (f fixture) seedWorker(id string, pending int64) {
	f.store.SeedWorker(entities.Worker{
		WorkerID:      id,
		Wallet:        "wallet-" + id,
		PendingAmount: pending,
		CreatedAt:     baseTime,
		UpdatedAt:     baseTime,
	})
}

func (f fixture) seedTask(id string, amount int64, createdAt time.Time) {
	f.store.SeedTask(entities.Task{
		TaskID:    id,
		Title:     "Which thumbnail is best?",
		Amount:    amount,
		CreatedAt: createdAt,
		Options: []entities.Option{
			{OptionID: id + "-a", ImageURL: "https://cdn.example/a.png"},
			{OptionID: id + "-b", ImageURL: "https://cdn.example/b.png"},
		},
	})
}

func workerName(i int) string {
	return fmt.Sprintf("worker-%03d", i)
}
