package queueadapter

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"trustpoll/contexts/worker-rewards/payout-ledger/domain/entities"
	"trustpoll/contexts/worker-rewards/payout-ledger/ports"
	"trustpoll/internal/platform/queue"
)

type recordingHandler struct {
	deliveries []ports.SettlementDelivery
	result     ports.JobResult
}

func (h *recordingHandler) Handle(_ context.Context, delivery ports.SettlementDelivery) (ports.JobResult, error) {
	h.deliveries = append(h.deliveries, delivery)
	return h.result, nil
}

func TestSettlementQueueRoundTripsJobsThroughPool(t *testing.T) {
	backend, err := queue.OpenBolt(filepath.Join(t.TempDir(), "settlement.db"))
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	defer backend.Close()

	now := time.Now().UTC().Add(-time.Second)
	job := entities.SettlementJob{
		PayoutID:    "payout-1",
		WorkerID:    "worker-1",
		Amount:      2500,
		Destination: "wallet-1",
		EnqueuedAt:  now,
	}
	producer := SettlementQueue{Queue: backend}
	if err := producer.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := producer.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("duplicate enqueue must be a no-op: %v", err)
	}

	handler := &recordingHandler{result: ports.JobAck}
	pool := &queue.Pool{Queue: backend, Handler: Handler(handler)}
	processed, err := pool.ProcessOne(context.Background())
	if err != nil || !processed {
		t.Fatalf("process: processed=%v err=%v", processed, err)
	}
	if len(handler.deliveries) != 1 {
		t.Fatalf("expected one delivery, got %d", len(handler.deliveries))
	}
	got := handler.deliveries[0]
	if got.Job.PayoutID != job.PayoutID || got.Job.Amount != job.Amount || got.Attempt != 1 {
		t.Fatalf("unexpected delivery: %+v", got)
	}
}

func TestHandlerDeadLettersUndecodablePayload(t *testing.T) {
	result, err := Handler(&recordingHandler{result: ports.JobAck})(context.Background(), queue.Message{
		ID:      "bad",
		Payload: []byte("{not json"),
	})
	if result != queue.DeadLetter || err == nil {
		t.Fatalf("expected dead letter with error, got %s %v", result, err)
	}
}

func TestEnqueueRejectsInvalidJob(t *testing.T) {
	err := SettlementQueue{}.Enqueue(context.Background(), entities.SettlementJob{PayoutID: "p"})
	if err == nil || errors.Is(err, context.Canceled) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestToQueueResultDefaultsToRetry(t *testing.T) {
	if toQueueResult(ports.JobResult("")) != queue.Retry {
		t.Fatalf("expected unknown results to retry")
	}
}
