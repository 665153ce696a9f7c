package payoutledger

import (
	"log/slog"
	"time"

	httpadapter "trustpoll/contexts/worker-rewards/payout-ledger/adapters/http"
	"trustpoll/contexts/worker-rewards/payout-ledger/adapters/memory"
	"trustpoll/contexts/worker-rewards/payout-ledger/adapters/solana"
	"trustpoll/contexts/worker-rewards/payout-ledger/application/commands"
	"trustpoll/contexts/worker-rewards/payout-ledger/application/queries"
	"trustpoll/contexts/worker-rewards/payout-ledger/application/workers"
	"trustpoll/contexts/worker-rewards/payout-ledger/ports"
)

type Module struct {
	Handler    httpadapter.Handler
	Settlement workers.SettlementWorker
	Reconciler workers.PayoutReconciler

	// In-memory collaborators, set only by NewInMemoryModule.
	Store     *memory.Store
	Queue     *memory.SettlementQueue
	Gateway   *memory.TransferGateway
	Publisher *memory.Publisher
}

type Dependencies struct {
	Ledger    ports.Ledger
	Tasks     ports.TaskReader
	Workers   ports.WorkerRepository
	Payouts   ports.PayoutRepository
	Queue     ports.SettlementQueue
	Gateway   ports.TransferGateway
	Wallets   ports.WalletValidator
	Publisher ports.EventPublisher
	Metrics   ports.LedgerMetrics
	Clock     ports.Clock
	IDGen     ports.IDGenerator

	SubmissionQuota     int
	TransferTimeout     time.Duration
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration
	ConfirmTransfer     bool
	EnqueueTimeout      time.Duration
	ReconcileGrace      time.Duration
	Logger              *slog.Logger
}

func NewModule(deps Dependencies) Module {
	var confirmer ports.TransferConfirmer
	if candidate, ok := deps.Gateway.(ports.TransferConfirmer); ok {
		confirmer = candidate
	}

	return Module{
		Handler: httpadapter.Handler{
			Register: commands.RegisterWorkerUseCase{
				Workers: deps.Workers,
				Wallets: deps.Wallets,
				Clock:   deps.Clock,
				IDGen:   deps.IDGen,
				Logger:  deps.Logger,
			},
			Submissions: commands.RecordSubmissionUseCase{
				Ledger:  deps.Ledger,
				Tasks:   deps.Tasks,
				Clock:   deps.Clock,
				IDGen:   deps.IDGen,
				Quota:   deps.SubmissionQuota,
				Metrics: deps.Metrics,
				Logger:  deps.Logger,
			},
			Withdrawals: commands.InitiateWithdrawalUseCase{
				Ledger:         deps.Ledger,
				Queue:          deps.Queue,
				Clock:          deps.Clock,
				IDGen:          deps.IDGen,
				EnqueueTimeout: deps.EnqueueTimeout,
				Metrics:        deps.Metrics,
				Logger:         deps.Logger,
			},
			NextTask: queries.NextTaskUseCase{
				Tasks:  deps.Tasks,
				Logger: deps.Logger,
			},
			Balances: queries.GetBalanceUseCase{Workers: deps.Workers},
			Payouts:  queries.GetPayoutUseCase{Payouts: deps.Payouts},
			Logger:   deps.Logger,
		},
		Settlement: workers.SettlementWorker{
			Ledger:              deps.Ledger,
			Payouts:             deps.Payouts,
			Gateway:             deps.Gateway,
			Confirmer:           confirmer,
			ConfirmEnabled:      deps.ConfirmTransfer,
			Publisher:           deps.Publisher,
			Clock:               deps.Clock,
			IDGen:               deps.IDGen,
			TransferTimeout:     deps.TransferTimeout,
			ConfirmTimeout:      deps.ConfirmTimeout,
			ConfirmPollInterval: deps.ConfirmPollInterval,
			Metrics:             deps.Metrics,
			Logger:              deps.Logger,
		},
		Reconciler: workers.PayoutReconciler{
			Payouts: deps.Payouts,
			Workers: deps.Workers,
			Queue:   deps.Queue,
			Clock:   deps.Clock,
			Grace:   deps.ReconcileGrace,
			Logger:  deps.Logger,
		},
	}
}

// NewInMemoryModule wires every port to in-process fakes. The settlement queue
// only records jobs; callers drive Settlement.Handle themselves.
func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	queue := memory.NewSettlementQueue()
	gateway := memory.NewTransferGateway()
	publisher := &memory.Publisher{}
	module := NewModule(Dependencies{
		Ledger:          store,
		Tasks:           store,
		Workers:         store,
		Payouts:         store,
		Queue:           queue,
		Gateway:         gateway,
		Wallets:         solana.WalletValidator{},
		Publisher:       publisher,
		Clock:           store,
		IDGen:           store,
		ConfirmTransfer: true,
		Logger:          logger,
	})
	module.Store = store
	module.Queue = queue
	module.Gateway = gateway
	module.Publisher = publisher
	return module
}
