package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"trustpoll/contexts/worker-rewards/payout-ledger/domain/entities"
	"trustpoll/contexts/worker-rewards/payout-ledger/ports"
	"trustpoll/internal/platform/queue"
)

func TestLedgerCountersAreExported(t *testing.T) {
	m := NewLedger("test")
	m.SubmissionRecorded(10)
	m.SubmissionRecorded(5)
	m.WithdrawalInitiated(15)
	m.SettlementFinished(entities.SettlementTransferConfirmed, ports.JobAck, 120*time.Millisecond)

	values := gatherCounters(t, m)
	if values["test_submissions_recorded_total"] != 2 {
		t.Fatalf("expected 2 submissions, got %v", values["test_submissions_recorded_total"])
	}
	if values["test_credited_units_total"] != 15 {
		t.Fatalf("expected 15 credited units, got %v", values["test_credited_units_total"])
	}
	if values["test_withdrawn_units_total"] != 15 {
		t.Fatalf("expected 15 withdrawn units, got %v", values["test_withdrawn_units_total"])
	}
	if values["test_settlements_finished_total"] != 1 {
		t.Fatalf("expected 1 settlement, got %v", values["test_settlements_finished_total"])
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	want := `test_settlements_finished_total{result="ack",state="TRANSFER_CONFIRMED"} 1`
	if !strings.Contains(rec.Body.String(), want) {
		t.Fatalf("expected %q in metrics output", want)
	}
}

func TestHandlerServesQueueDepth(t *testing.T) {
	m := NewLedger("test")
	m.WatchQueue("settlement", stubQueue{stats: queue.Stats{Ready: 3, Inflight: 1, Dead: 2}})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`trustpoll_queue_messages{queue="settlement",state="ready"} 3`,
		`trustpoll_queue_messages{queue="settlement",state="dead"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output", want)
		}
	}
}

func TestQueueStatsErrorDoesNotBreakScrape(t *testing.T) {
	m := NewLedger("test")
	m.WatchQueue("settlement", stubQueue{err: errors.New("backend down")})
	m.SubmissionRecorded(1)

	if _, err := m.Registry().Gather(); err == nil {
		t.Fatalf("expected gather error for failing collector")
	}
}

func gatherCounters(t *testing.T, m *Ledger) map[string]float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	values := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			if counter := metric.GetCounter(); counter != nil {
				values[family.GetName()] += counter.GetValue()
			}
		}
	}
	return values
}

type stubQueue struct {
	stats queue.Stats
	err   error
}

func (s stubQueue) Enqueue(context.Context, queue.Message) (bool, error) { return false, nil }

func (s stubQueue) Lease(context.Context, time.Time, time.Duration) (queue.Message, bool, error) {
	return queue.Message{}, false, nil
}

func (s stubQueue) Complete(context.Context, queue.Message, queue.Result, time.Time, string) error {
	return nil
}

func (s stubQueue) Stats(context.Context) (queue.Stats, error) { return s.stats, s.err }

func (s stubQueue) Close() error { return nil }
