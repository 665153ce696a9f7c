package postgresadapter

import (
	"strings"
	"time"

	"trustpoll/contexts/worker-rewards/payout-ledger/domain/entities"
)

type workerModel struct {
	ID            string    `gorm:"column:id;primaryKey"`
	Wallet        string    `gorm:"column:wallet;uniqueIndex:idx_workers_wallet;not null"`
	PendingAmount int64     `gorm:"column:pending_amount;not null;default:0;check:chk_workers_pending_non_negative,pending_amount >= 0"`
	LockedAmount  int64     `gorm:"column:locked_amount;not null;default:0;check:chk_workers_locked_non_negative,locked_amount >= 0"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (workerModel) TableName() string {
	return "workers"
}

func (m workerModel) toEntity() entities.Worker {
	return entities.Worker{
		WorkerID:      m.ID,
		Wallet:        m.Wallet,
		PendingAmount: m.PendingAmount,
		LockedAmount:  m.LockedAmount,
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
}

func workerModelFromEntity(worker entities.Worker) workerModel {
	return workerModel{
		ID:            strings.TrimSpace(worker.WorkerID),
		Wallet:        strings.TrimSpace(worker.Wallet),
		PendingAmount: worker.PendingAmount,
		LockedAmount:  worker.LockedAmount,
		CreatedAt:     worker.CreatedAt.UTC(),
		UpdatedAt:     worker.UpdatedAt.UTC(),
	}
}

type taskModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Title     string    `gorm:"column:title"`
	Amount    int64     `gorm:"column:amount;not null;check:chk_tasks_amount_non_negative,amount >= 0"`
	Done      bool      `gorm:"column:done;not null;default:false;index:idx_tasks_open,priority:1"`
	CreatedAt time.Time `gorm:"column:created_at;index:idx_tasks_open,priority:2"`
}

func (taskModel) TableName() string {
	return "tasks"
}

func (m taskModel) toEntity(options []optionModel) entities.Task {
	task := entities.Task{
		TaskID:    m.ID,
		Title:     m.Title,
		Amount:    m.Amount,
		Done:      m.Done,
		CreatedAt: m.CreatedAt.UTC(),
		Options:   make([]entities.Option, 0, len(options)),
	}
	for _, option := range options {
		task.Options = append(task.Options, option.toEntity())
	}
	return task
}

type optionModel struct {
	ID        string `gorm:"column:id;primaryKey"`
	TaskID    string `gorm:"column:task_id;index:idx_options_task;not null"`
	ImageURL  string `gorm:"column:image_url"`
	VoteCount int    `gorm:"column:vote_count;not null;default:0"`
}

func (optionModel) TableName() string {
	return "options"
}

func (m optionModel) toEntity() entities.Option {
	return entities.Option{
		OptionID:  m.ID,
		TaskID:    m.TaskID,
		ImageURL:  m.ImageURL,
		VoteCount: m.VoteCount,
	}
}

type submissionModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	TaskID    string    `gorm:"column:task_id;uniqueIndex:idx_submissions_task_worker,priority:1;not null"`
	WorkerID  string    `gorm:"column:worker_id;uniqueIndex:idx_submissions_task_worker,priority:2;not null"`
	OptionID  string    `gorm:"column:option_id;not null"`
	Amount    int64     `gorm:"column:amount;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (submissionModel) TableName() string {
	return "submissions"
}

func submissionModelFromEntity(submission entities.Submission) submissionModel {
	return submissionModel{
		ID:        strings.TrimSpace(submission.SubmissionID),
		TaskID:    strings.TrimSpace(submission.TaskID),
		WorkerID:  strings.TrimSpace(submission.WorkerID),
		OptionID:  strings.TrimSpace(submission.OptionID),
		Amount:    submission.Amount,
		CreatedAt: submission.CreatedAt.UTC(),
	}
}

type payoutModel struct {
	ID            string    `gorm:"column:id;primaryKey"`
	WorkerID      string    `gorm:"column:worker_id;index:idx_payouts_worker;not null"`
	Amount        int64     `gorm:"column:amount;not null;check:chk_payouts_amount_positive,amount > 0"`
	Status        string    `gorm:"column:status;not null;index:idx_payouts_status_created,priority:1"`
	Reference     string    `gorm:"column:reference"`
	FailureReason string    `gorm:"column:failure_reason"`
	CreatedAt     time.Time `gorm:"column:created_at;index:idx_payouts_status_created,priority:2"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (payoutModel) TableName() string {
	return "payouts"
}

func (m payoutModel) toEntity() entities.Payout {
	return entities.Payout{
		PayoutID:      m.ID,
		WorkerID:      m.WorkerID,
		Amount:        m.Amount,
		Status:        entities.PayoutStatus(m.Status),
		Reference:     m.Reference,
		FailureReason: m.FailureReason,
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
}

func payoutModelFromEntity(payout entities.Payout) payoutModel {
	return payoutModel{
		ID:            strings.TrimSpace(payout.PayoutID),
		WorkerID:      strings.TrimSpace(payout.WorkerID),
		Amount:        payout.Amount,
		Status:        string(payout.Status),
		Reference:     payout.Reference,
		FailureReason: payout.FailureReason,
		CreatedAt:     payout.CreatedAt.UTC(),
		UpdatedAt:     payout.UpdatedAt.UTC(),
	}
}
