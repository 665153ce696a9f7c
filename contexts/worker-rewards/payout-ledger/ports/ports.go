package ports

import (
	"context"
	"time"

	"trustpoll/contexts/worker-rewards/payout-ledger/domain/entities"
	contractsv1 "trustpoll/contracts/gen/events/v1"
)

// Isolation names the transaction isolation a ledger write requires.
type Isolation string

const (
	IsolationReadCommitted Isolation = "read_committed"
	IsolationSerializable  Isolation = "serializable"
)

// LedgerTx exposes the row-level primitives available inside one ledger
// transaction. Lock* methods take an exclusive row lock held until commit.
type LedgerTx interface {
	LockWorker(ctx context.Context, workerID string) (entities.Worker, error)
	SaveBalance(ctx context.Context, workerID string, balance entities.Balance, updatedAt time.Time) error
	// CreditPending is a single atomic increment; it does not need LockWorker.
	CreditPending(ctx context.Context, workerID string, amount int64, updatedAt time.Time) error

	LockTask(ctx context.Context, taskID string) (entities.Task, error)
	HasSubmission(ctx context.Context, taskID string, workerID string) (bool, error)
	CreateSubmission(ctx context.Context, submission entities.Submission) error
	IncrementOptionVotes(ctx context.Context, taskID string, optionID string) error
	CountTaskVotes(ctx context.Context, taskID string) (int, error)
	MarkTaskDone(ctx context.Context, taskID string) error

	CreatePayout(ctx context.Context, payout entities.Payout) error
	LockPayout(ctx context.Context, payoutID string) (entities.Payout, error)
	SavePayout(ctx context.Context, payout entities.Payout) error
}

// Ledger owns transaction boundaries. fn may be invoked more than once when
// the store retries a serialization failure, so it must not have effects
// outside tx.
type Ledger interface {
	WithinTx(ctx context.Context, isolation Isolation, fn func(ctx context.Context, tx LedgerTx) error) error
}

// TaskReader is the read side used by the dispatcher. Results may be stale.
type TaskReader interface {
	NextTaskForWorker(ctx context.Context, workerID string) (entities.Task, bool, error)
}

type WorkerRepository interface {
	GetWorker(ctx context.Context, workerID string) (entities.Worker, error)
	GetWorkerByWallet(ctx context.Context, wallet string) (entities.Worker, bool, error)
	// CreateWorker returns ErrWorkerAlreadyExists when the wallet is taken.
	CreateWorker(ctx context.Context, worker entities.Worker) error
}

type PayoutRepository interface {
	GetPayout(ctx context.Context, payoutID string) (entities.Payout, error)
	ListPendingPayouts(ctx context.Context, createdBefore time.Time, limit int) ([]entities.Payout, error)
}

// SettlementQueue is the producer side of the durable settlement queue.
// Enqueue is idempotent by payout id.
type SettlementQueue interface {
	Enqueue(ctx context.Context, job entities.SettlementJob) error
}

// JobResult tells the queue what to do with a delivery.
type JobResult string

const (
	JobAck        JobResult = "ack"
	JobRetry      JobResult = "retry"
	JobDeadLetter JobResult = "dead_letter"
)

// SettlementDelivery is one at-least-once delivery of a settlement job.
type SettlementDelivery struct {
	Job     entities.SettlementJob
	Attempt int
}

type TransferRequest struct {
	Destination    string
	Amount         int64
	IdempotencyKey string
}

// TransferGateway submits an irreversible transfer and returns its reference.
// Gateways must return the original reference when the idempotency key repeats.
type TransferGateway interface {
	Transfer(ctx context.Context, req TransferRequest) (string, error)
}

type TransferOutcome string

const (
	TransferConfirmed TransferOutcome = "confirmed"
	TransferRejected  TransferOutcome = "rejected"
	// TransferPending means the network accepted the transfer but has not
	// reached finality yet.
	TransferPending TransferOutcome = "pending"
	TransferUnknown TransferOutcome = "unknown"
)

// TransferConfirmer is optional; gateways that report finality implement it.
// Only TransferConfirmed and TransferRejected are final answers.
type TransferConfirmer interface {
	Confirm(ctx context.Context, reference string) (TransferOutcome, error)
}

type WalletValidator interface {
	ValidateWallet(wallet string) error
}

// LedgerMetrics receives business counters; nil means no metrics.
type LedgerMetrics interface {
	SubmissionRecorded(credit int64)
	WithdrawalInitiated(amount int64)
	SettlementFinished(state entities.SettlementState, result JobResult, elapsed time.Duration)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// EventEnvelope reuses the canonical cross-runtime envelope contract.
type EventEnvelope = contractsv1.Envelope

// EventPublisher is the fire-and-forget notification sink.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}
