package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"trustpoll/contexts/worker-rewards/payout-ledger/domain/entities"
	domainerrors "trustpoll/contexts/worker-rewards/payout-ledger/domain/errors"
	"trustpoll/contexts/worker-rewards/payout-ledger/ports"

	"github.com/google/uuid"
)

// Store is the single-process ledger. WithinTx holds the write lock for the
// whole closure, so transactions are serial and a failed closure rolls back
// to the snapshot taken at entry.
type Store struct {
	mu sync.RWMutex

	workers      map[string]entities.Worker
	walletIndex  map[string]string
	tasks        map[string]entities.Task
	submissions  map[string]entities.Submission
	payouts      map[string]entities.Payout
	nowFn        func() time.Time
	commitErrors []error
}

func NewStore() *Store {
	return &Store{
		workers:     make(map[string]entities.Worker),
		walletIndex: make(map[string]string),
		tasks:       make(map[string]entities.Task),
		submissions: make(map[string]entities.Submission),
		payouts:     make(map[string]entities.Payout),
	}
}

func submissionKey(taskID string, workerID string) string {
	return taskID + "|" + workerID
}

// SeedTask stores a task with its options. Task creation is owned by another
// service; this is the in-memory stand-in for that write path.
func (s *Store) SeedTask(task entities.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task.TaskID = strings.TrimSpace(task.TaskID)
	if task.CreatedAt.IsZero() {
		task.CreatedAt = s.nowLocked()
	}
	options := make([]entities.Option, len(task.Options))
	for i, option := range task.Options {
		option.TaskID = task.TaskID
		options[i] = option
	}
	task.Options = options
	s.tasks[task.TaskID] = task
}

func (s *Store) SeedWorker(worker entities.Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[worker.WorkerID] = worker
	s.walletIndex[worker.Wallet] = worker.WorkerID
}

// SetClock overrides the store clock; nil restores wall time.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = now
}

// FailCommits makes the next len(errs) transactions run their closure and
// then roll back with the given error, as a failed COMMIT would.
func (s *Store) FailCommits(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErrors = append(s.commitErrors, errs...)
}

func (s *Store) WithinTx(ctx context.Context, _ ports.Isolation, fn func(ctx context.Context, tx ports.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshotLocked()
	err := fn(ctx, txView{store: s})
	if err == nil && len(s.commitErrors) > 0 {
		err = s.commitErrors[0]
		s.commitErrors = s.commitErrors[1:]
	}
	if err != nil {
		s.restoreLocked(snapshot)
		return err
	}
	return nil
}

type storeSnapshot struct {
	workers     map[string]entities.Worker
	walletIndex map[string]string
	tasks       map[string]entities.Task
	submissions map[string]entities.Submission
	payouts     map[string]entities.Payout
}

func (s *Store) snapshotLocked() storeSnapshot {
	snapshot := storeSnapshot{
		workers:     make(map[string]entities.Worker, len(s.workers)),
		walletIndex: make(map[string]string, len(s.walletIndex)),
		tasks:       make(map[string]entities.Task, len(s.tasks)),
		submissions: make(map[string]entities.Submission, len(s.submissions)),
		payouts:     make(map[string]entities.Payout, len(s.payouts)),
	}
	for key, value := range s.workers {
		snapshot.workers[key] = value
	}
	for key, value := range s.walletIndex {
		snapshot.walletIndex[key] = value
	}
	for key, value := range s.tasks {
		snapshot.tasks[key] = cloneTask(value)
	}
	for key, value := range s.submissions {
		snapshot.submissions[key] = value
	}
	for key, value := range s.payouts {
		snapshot.payouts[key] = value
	}
	return snapshot
}

func (s *Store) restoreLocked(snapshot storeSnapshot) {
	s.workers = snapshot.workers
	s.walletIndex = snapshot.walletIndex
	s.tasks = snapshot.tasks
	s.submissions = snapshot.submissions
	s.payouts = snapshot.payouts
}

func cloneTask(task entities.Task) entities.Task {
	options := make([]entities.Option, len(task.Options))
	copy(options, task.Options)
	task.Options = options
	return task
}

func (s *Store) NextTaskForWorker(_ context.Context, workerID string) (entities.Task, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	workerID = strings.TrimSpace(workerID)

	candidates := make([]entities.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		if task.Done {
			continue
		}
		if _, submitted := s.submissions[submissionKey(task.TaskID, workerID)]; submitted {
			continue
		}
		candidates = append(candidates, task)
	}
	if len(candidates) == 0 {
		return entities.Task{}, false, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].TaskID < candidates[j].TaskID
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	return cloneTask(candidates[0]), true, nil
}

func (s *Store) GetWorker(_ context.Context, workerID string) (entities.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	worker, ok := s.workers[strings.TrimSpace(workerID)]
	if !ok {
		return entities.Worker{}, domainerrors.ErrWorkerNotFound
	}
	return worker, nil
}

func (s *Store) GetWorkerByWallet(_ context.Context, wallet string) (entities.Worker, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	workerID, ok := s.walletIndex[strings.TrimSpace(wallet)]
	if !ok {
		return entities.Worker{}, false, nil
	}
	return s.workers[workerID], true, nil
}

func (s *Store) CreateWorker(_ context.Context, worker entities.Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.walletIndex[worker.Wallet]; exists {
		return domainerrors.ErrWorkerAlreadyExists
	}
	if _, exists := s.workers[worker.WorkerID]; exists {
		return domainerrors.ErrWorkerAlreadyExists
	}
	s.workers[worker.WorkerID] = worker
	s.walletIndex[worker.Wallet] = worker.WorkerID
	return nil
}

func (s *Store) GetPayout(_ context.Context, payoutID string) (entities.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payout, ok := s.payouts[strings.TrimSpace(payoutID)]
	if !ok {
		return entities.Payout{}, domainerrors.ErrPayoutNotFound
	}
	return payout, nil
}

func (s *Store) ListPendingPayouts(_ context.Context, createdBefore time.Time, limit int) ([]entities.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Payout, 0)
	for _, payout := range s.payouts {
		if payout.Status == entities.PayoutStatusPending && payout.CreatedAt.Before(createdBefore) {
			items = append(items, payout)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Submissions lists a worker's submissions; used by tests and debugging.
func (s *Store) Submissions(workerID string) []entities.Submission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Submission, 0)
	for _, submission := range s.submissions {
		if submission.WorkerID == workerID {
			items = append(items, submission)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items
}

func (s *Store) GetTask(taskID string) (entities.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	return cloneTask(task), ok
}

func (s *Store) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowLocked()
}

func (s *Store) nowLocked() time.Time {
	if s.nowFn != nil {
		return s.nowFn().UTC()
	}
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

// txView operates on the store maps while WithinTx holds the write lock.
type txView struct {
	store *Store
}

func (t txView) LockWorker(_ context.Context, workerID string) (entities.Worker, error) {
	worker, ok := t.store.workers[workerID]
	if !ok {
		return entities.Worker{}, domainerrors.ErrWorkerNotFound
	}
	return worker, nil
}

func (t txView) SaveBalance(_ context.Context, workerID string, balance entities.Balance, updatedAt time.Time) error {
	worker, ok := t.store.workers[workerID]
	if !ok {
		return domainerrors.ErrWorkerNotFound
	}
	if err := balance.Validate(); err != nil {
		return err
	}
	t.store.workers[workerID] = worker.WithBalance(balance, updatedAt)
	return nil
}

func (t txView) CreditPending(_ context.Context, workerID string, amount int64, updatedAt time.Time) error {
	worker, ok := t.store.workers[workerID]
	if !ok {
		return domainerrors.ErrWorkerNotFound
	}
	next, err := worker.Balance().Credit(amount)
	if err != nil {
		return err
	}
	t.store.workers[workerID] = worker.WithBalance(next, updatedAt)
	return nil
}

func (t txView) LockTask(_ context.Context, taskID string) (entities.Task, error) {
	task, ok := t.store.tasks[taskID]
	if !ok {
		return entities.Task{}, domainerrors.ErrTaskNotAssignable
	}
	return cloneTask(task), nil
}

func (t txView) HasSubmission(_ context.Context, taskID string, workerID string) (bool, error) {
	_, ok := t.store.submissions[submissionKey(taskID, workerID)]
	return ok, nil
}

func (t txView) CreateSubmission(_ context.Context, submission entities.Submission) error {
	key := submissionKey(submission.TaskID, submission.WorkerID)
	if _, exists := t.store.submissions[key]; exists {
		return domainerrors.ErrDuplicateSubmission
	}
	if _, ok := t.store.workers[submission.WorkerID]; !ok {
		return domainerrors.ErrWorkerNotFound
	}
	t.store.submissions[key] = submission
	return nil
}

func (t txView) IncrementOptionVotes(_ context.Context, taskID string, optionID string) error {
	task, ok := t.store.tasks[taskID]
	if !ok {
		return domainerrors.ErrTaskNotAssignable
	}
	task = cloneTask(task)
	for i := range task.Options {
		if task.Options[i].OptionID == optionID {
			task.Options[i].VoteCount++
			t.store.tasks[taskID] = task
			return nil
		}
	}
	return domainerrors.ErrInvalidOption
}

func (t txView) CountTaskVotes(_ context.Context, taskID string) (int, error) {
	task, ok := t.store.tasks[taskID]
	if !ok {
		return 0, domainerrors.ErrTaskNotAssignable
	}
	return task.TotalVotes(), nil
}

func (t txView) MarkTaskDone(_ context.Context, taskID string) error {
	task, ok := t.store.tasks[taskID]
	if !ok {
		return domainerrors.ErrTaskNotAssignable
	}
	task.Done = true
	t.store.tasks[taskID] = task
	return nil
}

func (t txView) CreatePayout(_ context.Context, payout entities.Payout) error {
	if _, exists := t.store.payouts[payout.PayoutID]; exists {
		return fmt.Errorf("%w: payout %s exists", domainerrors.ErrRepositoryInvariantBroke, payout.PayoutID)
	}
	t.store.payouts[payout.PayoutID] = payout
	return nil
}

func (t txView) LockPayout(_ context.Context, payoutID string) (entities.Payout, error) {
	payout, ok := t.store.payouts[payoutID]
	if !ok {
		return entities.Payout{}, domainerrors.ErrPayoutNotFound
	}
	return payout, nil
}

func (t txView) SavePayout(_ context.Context, payout entities.Payout) error {
	if _, ok := t.store.payouts[payout.PayoutID]; !ok {
		return domainerrors.ErrPayoutNotFound
	}
	t.store.payouts[payout.PayoutID] = payout
	return nil
}
