package memory

import (
	"context"
	"sort"
	"sync"

	"trustpoll/contexts/worker-rewards/payout-ledger/domain/entities"
)

// SettlementQueue records enqueued jobs keyed by payout id.
type SettlementQueue struct {
	mu sync.Mutex

	jobs     map[string]entities.SettlementJob
	calls    int
	failures []error
}

func NewSettlementQueue() *SettlementQueue {
	return &SettlementQueue{jobs: make(map[string]entities.SettlementJob)}
}

func (q *SettlementQueue) FailNext(errs ...error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failures = append(q.failures, errs...)
}

func (q *SettlementQueue) Enqueue(ctx context.Context, job entities.SettlementJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if len(q.failures) > 0 {
		err := q.failures[0]
		q.failures = q.failures[1:]
		return err
	}
	if _, exists := q.jobs[job.PayoutID]; !exists {
		q.jobs[job.PayoutID] = job
	}
	return nil
}

func (q *SettlementQueue) Jobs() []entities.SettlementJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := make([]entities.SettlementJob, 0, len(q.jobs))
	for _, job := range q.jobs {
		items = append(items, job)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].PayoutID < items[j].PayoutID
	})
	return items
}

// Calls counts Enqueue attempts including failed and duplicate ones.
func (q *SettlementQueue) Calls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}
