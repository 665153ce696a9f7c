package postgresadapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"trustpoll/contexts/worker-rewards/payout-ledger/domain/entities"
	domainerrors "trustpoll/contexts/worker-rewards/payout-ledger/domain/errors"
	"trustpoll/contexts/worker-rewards/payout-ledger/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultTxAttempts = 3

type Repository struct {
	db         *gorm.DB
	logger     *slog.Logger
	txAttempts int
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:         db,
		logger:     logger,
		txAttempts: defaultTxAttempts,
	}
}

// WithTxAttempts sets how many times a transaction aborted by a
// serialization failure is replayed before ErrConcurrentUpdate.
func (r *Repository) WithTxAttempts(attempts int) *Repository {
	if attempts > 0 {
		r.txAttempts = attempts
	}
	return r
}

// Migrate creates the ledger tables, unique indexes and non-negative checks.
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(
		&workerModel{},
		&taskModel{},
		&optionModel{},
		&submissionModel{},
		&payoutModel{},
	); err != nil {
		return r.logError("payout_ledger_repo_migrate_failed", err)
	}
	return nil
}

func (r *Repository) WithinTx(ctx context.Context, isolation ports.Isolation, fn func(ctx context.Context, tx ports.LedgerTx) error) error {
	options := &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	if isolation == ports.IsolationSerializable {
		options.Isolation = sql.LevelSerializable
	}

	var err error
	for attempt := 1; attempt <= r.txAttempts; attempt++ {
		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(ctx, ledgerTx{db: tx})
		}, options)
		if err == nil || !isRetryableTxError(err) {
			break
		}
		r.logger.Warn("ledger transaction aborted by concurrent writer",
			"event", "payout_ledger_repo_tx_retry",
			"module", "worker-rewards/payout-ledger",
			"layer", "adapter",
			"attempt", attempt,
			"isolation", string(isolation),
			"error", err.Error(),
		)
	}
	if err == nil {
		return nil
	}
	return r.translateTxError(err)
}

func (r *Repository) translateTxError(err error) error {
	switch {
	case isRetryableTxError(err):
		return fmt.Errorf("%w: %w", domainerrors.ErrConcurrentUpdate, err)
	case isCheckViolation(err):
		return r.logError("payout_ledger_repo_check_violation", fmt.Errorf("%w: %s", domainerrors.ErrBalanceInvariant, constraintName(err)))
	case isUniqueViolation(err):
		if constraintName(err) == "idx_submissions_task_worker" {
			return domainerrors.ErrDuplicateSubmission
		}
		return fmt.Errorf("%w: %s", domainerrors.ErrRepositoryInvariantBroke, constraintName(err))
	case isDomainError(err):
		return err
	default:
		return r.logError("payout_ledger_repo_tx_failed", err)
	}
}

func (r *Repository) NextTaskForWorker(ctx context.Context, workerID string) (entities.Task, bool, error) {
	workerID = strings.TrimSpace(workerID)
	var rows []taskModel
	err := r.db.WithContext(ctx).
		Where("done = ?", false).
		Where("NOT EXISTS (SELECT 1 FROM submissions s WHERE s.task_id = tasks.id AND s.worker_id = ?)", workerID).
		Order("created_at ASC").
		Order("id ASC").
		Limit(1).
		Find(&rows).
		Error
	if err != nil {
		return entities.Task{}, false, r.logError("payout_ledger_repo_next_task_failed", err, "worker_id", workerID)
	}
	if len(rows) == 0 {
		return entities.Task{}, false, nil
	}

	var options []optionModel
	if err := r.db.WithContext(ctx).
		Where("task_id = ?", rows[0].ID).
		Order("id ASC").
		Find(&options).Error; err != nil {
		return entities.Task{}, false, r.logError("payout_ledger_repo_next_task_options_failed", err, "task_id", rows[0].ID)
	}
	return rows[0].toEntity(options), true, nil
}

func (r *Repository) GetWorker(ctx context.Context, workerID string) (entities.Worker, error) {
	var row workerModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(workerID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Worker{}, domainerrors.ErrWorkerNotFound
		}
		return entities.Worker{}, r.logError("payout_ledger_repo_get_worker_failed", err, "worker_id", strings.TrimSpace(workerID))
	}
	return row.toEntity(), nil
}

func (r *Repository) GetWorkerByWallet(ctx context.Context, wallet string) (entities.Worker, bool, error) {
	var rows []workerModel
	if err := r.db.WithContext(ctx).
		Where("wallet = ?", strings.TrimSpace(wallet)).
		Limit(1).
		Find(&rows).Error; err != nil {
		return entities.Worker{}, false, r.logError("payout_ledger_repo_get_worker_by_wallet_failed", err)
	}
	if len(rows) == 0 {
		return entities.Worker{}, false, nil
	}
	return rows[0].toEntity(), true, nil
}

func (r *Repository) CreateWorker(ctx context.Context, worker entities.Worker) error {
	row := workerModelFromEntity(worker)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrWorkerAlreadyExists
		}
		return r.logError("payout_ledger_repo_create_worker_failed", err, "worker_id", row.ID)
	}
	return nil
}

func (r *Repository) GetPayout(ctx context.Context, payoutID string) (entities.Payout, error) {
	var row payoutModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(payoutID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Payout{}, domainerrors.ErrPayoutNotFound
		}
		return entities.Payout{}, r.logError("payout_ledger_repo_get_payout_failed", err, "payout_id", strings.TrimSpace(payoutID))
	}
	return row.toEntity(), nil
}

func (r *Repository) ListPendingPayouts(ctx context.Context, createdBefore time.Time, limit int) ([]entities.Payout, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []payoutModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(entities.PayoutStatusPending)).
		Where("created_at < ?", createdBefore.UTC()).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("payout_ledger_repo_list_pending_payouts_failed", err)
	}
	items := make([]entities.Payout, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "worker-rewards/payout-ledger",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("payout ledger repository operation failed", fields...)
	return err
}

// ledgerTx runs every statement on the surrounding gorm transaction.
type ledgerTx struct {
	db *gorm.DB
}

func (t ledgerTx) LockWorker(ctx context.Context, workerID string) (entities.Worker, error) {
	var row workerModel
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", strings.TrimSpace(workerID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Worker{}, domainerrors.ErrWorkerNotFound
		}
		return entities.Worker{}, err
	}
	return row.toEntity(), nil
}

func (t ledgerTx) SaveBalance(ctx context.Context, workerID string, balance entities.Balance, updatedAt time.Time) error {
	if err := balance.Validate(); err != nil {
		return err
	}
	result := t.db.WithContext(ctx).
		Model(&workerModel{}).
		Where("id = ?", strings.TrimSpace(workerID)).
		Updates(map[string]any{
			"pending_amount": balance.Pending,
			"locked_amount":  balance.Locked,
			"updated_at":     updatedAt.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrWorkerNotFound
	}
	return nil
}

func (t ledgerTx) CreditPending(ctx context.Context, workerID string, amount int64, updatedAt time.Time) error {
	if amount < 0 {
		return domainerrors.ErrInvalidInput
	}
	result := t.db.WithContext(ctx).
		Model(&workerModel{}).
		Where("id = ?", strings.TrimSpace(workerID)).
		Updates(map[string]any{
			"pending_amount": gorm.Expr("pending_amount + ?", amount),
			"updated_at":     updatedAt.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrWorkerNotFound
	}
	return nil
}

func (t ledgerTx) LockTask(ctx context.Context, taskID string) (entities.Task, error) {
	var row taskModel
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", strings.TrimSpace(taskID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Task{}, domainerrors.ErrTaskNotAssignable
		}
		return entities.Task{}, err
	}
	var options []optionModel
	if err := t.db.WithContext(ctx).
		Where("task_id = ?", row.ID).
		Order("id ASC").
		Find(&options).Error; err != nil {
		return entities.Task{}, err
	}
	return row.toEntity(options), nil
}

func (t ledgerTx) HasSubmission(ctx context.Context, taskID string, workerID string) (bool, error) {
	var count int64
	if err := t.db.WithContext(ctx).
		Model(&submissionModel{}).
		Where("task_id = ?", strings.TrimSpace(taskID)).
		Where("worker_id = ?", strings.TrimSpace(workerID)).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (t ledgerTx) CreateSubmission(ctx context.Context, submission entities.Submission) error {
	row := submissionModelFromEntity(submission)
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) && constraintName(err) == "idx_submissions_task_worker" {
			return domainerrors.ErrDuplicateSubmission
		}
		return err
	}
	return nil
}

func (t ledgerTx) IncrementOptionVotes(ctx context.Context, taskID string, optionID string) error {
	result := t.db.WithContext(ctx).
		Model(&optionModel{}).
		Where("id = ?", strings.TrimSpace(optionID)).
		Where("task_id = ?", strings.TrimSpace(taskID)).
		Update("vote_count", gorm.Expr("vote_count + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrInvalidOption
	}
	return nil
}

// CountTaskVotes counts submissions; the task row lock serializes writers.
func (t ledgerTx) CountTaskVotes(ctx context.Context, taskID string) (int, error) {
	var count int64
	if err := t.db.WithContext(ctx).
		Model(&submissionModel{}).
		Where("task_id = ?", strings.TrimSpace(taskID)).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (t ledgerTx) MarkTaskDone(ctx context.Context, taskID string) error {
	result := t.db.WithContext(ctx).
		Model(&taskModel{}).
		Where("id = ?", strings.TrimSpace(taskID)).
		Update("done", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrTaskNotAssignable
	}
	return nil
}

func (t ledgerTx) CreatePayout(ctx context.Context, payout entities.Payout) error {
	row := payoutModelFromEntity(payout)
	return t.db.WithContext(ctx).Create(&row).Error
}

func (t ledgerTx) LockPayout(ctx context.Context, payoutID string) (entities.Payout, error) {
	var row payoutModel
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", strings.TrimSpace(payoutID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Payout{}, domainerrors.ErrPayoutNotFound
		}
		return entities.Payout{}, err
	}
	return row.toEntity(), nil
}

func (t ledgerTx) SavePayout(ctx context.Context, payout entities.Payout) error {
	result := t.db.WithContext(ctx).
		Model(&payoutModel{}).
		Where("id = ?", strings.TrimSpace(payout.PayoutID)).
		Updates(map[string]any{
			"status":         string(payout.Status),
			"reference":      payout.Reference,
			"failure_reason": payout.FailureReason,
			"updated_at":     payout.UpdatedAt.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrPayoutNotFound
	}
	return nil
}

// isRetryableTxError matches serialization_failure and deadlock_detected.
func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23514"
}

func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

func isDomainError(err error) bool {
	for _, target := range []error{
		domainerrors.ErrInvalidInput,
		domainerrors.ErrInvalidOption,
		domainerrors.ErrWorkerNotFound,
		domainerrors.ErrTaskNotAssignable,
		domainerrors.ErrPayoutNotFound,
		domainerrors.ErrDuplicateSubmission,
		domainerrors.ErrInsufficientBalance,
		domainerrors.ErrPayoutAlreadySettled,
		domainerrors.ErrBalanceInvariant,
		domainerrors.ErrRepositoryInvariantBroke,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var _ ports.Ledger = (*Repository)(nil)
var _ ports.TaskReader = (*Repository)(nil)
var _ ports.WorkerRepository = (*Repository)(nil)
var _ ports.PayoutRepository = (*Repository)(nil)
