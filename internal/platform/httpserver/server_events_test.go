package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	payoutledger "trustpoll/contexts/worker-rewards/payout-ledger"
	"trustpoll/contexts/worker-rewards/payout-ledger/application/workers"
	"trustpoll/contexts/worker-rewards/payout-ledger/domain/entities"
	"trustpoll/contexts/worker-rewards/payout-ledger/ports"
	ledgerhttp "trustpoll/contexts/worker-rewards/payout-ledger/transport/http"
	contractsv1 "trustpoll/contracts/gen/events/v1"
	"trustpoll/internal/platform/messaging"
)

func newStreamServer(t *testing.T) (*Server, payoutledger.Module, *messaging.Bus) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	module := payoutledger.NewInMemoryModule(logger)
	bus := messaging.NewBus(4, logger)
	return New(module, bus, nil, logger, ":0"), module, bus
}

func createPayout(t *testing.T, server *Server, module payoutledger.Module, workerID string) ledgerhttp.PayoutResponse {
	t.Helper()
	seedWorkerAndTask(module, workerID, 700)
	rec := doRequest(server, http.MethodPost, "/v1/worker/payout", workerID, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create payout: expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var payout ledgerhttp.PayoutResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payout); err != nil {
		t.Fatalf("decode payout: %v", err)
	}
	return payout
}

func settleQueued(t *testing.T, module payoutledger.Module) {
	t.Helper()
	jobs := module.Queue.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("expected one queued job, got %d", len(jobs))
	}
	result, err := module.Settlement.Handle(context.Background(), ports.SettlementDelivery{Job: jobs[0], Attempt: 1})
	if err != nil || result != ports.JobAck {
		t.Fatalf("settle: %s %v", result, err)
	}
}

// readEvent returns the data line of the first named event on the stream.
func readEvent(t *testing.T, body io.Reader) (string, string) {
	t.Helper()
	scanner := bufio.NewScanner(body)
	var name string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: ") && name != "":
			return name, strings.TrimPrefix(line, "data: ")
		}
	}
	t.Fatalf("stream ended without an event: %v", scanner.Err())
	return "", ""
}

func TestPayoutStreamDeliversSettlement(t *testing.T) {
	server, module, bus := newStreamServer(t)
	payout := createPayout(t, server, module, "worker-1")

	httpServer := httptest.NewServer(server.mux)
	defer httpServer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, httpServer.URL+"/v1/worker/payouts/"+payout.PayoutID+"/events", nil)
	req.Header.Set("X-Worker-Id", "worker-1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Fatalf("unexpected stream response %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	// Headers arrive after the handler is watching the topic.
	settleQueued(t, module)
	if err := bus.Publish(ctx, workers.PayoutTopic(payout.PayoutID), contractsv1.Envelope{EventID: "e-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	name, data := readEvent(t, resp.Body)
	if name != workers.EventTypePayoutSettled {
		t.Fatalf("unexpected event name %q", name)
	}
	var settled ledgerhttp.PayoutResponse
	if err := json.Unmarshal([]byte(data), &settled); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if settled.PayoutID != payout.PayoutID || settled.Status != string(entities.PayoutStatusCompleted) || settled.Reference == "" {
		t.Fatalf("unexpected settled payout %+v", settled)
	}
}

func TestPayoutStreamReturnsTerminalPayoutImmediately(t *testing.T) {
	server, module, _ := newStreamServer(t)
	payout := createPayout(t, server, module, "worker-1")
	settleQueued(t, module)

	rec := doRequest(server, http.MethodGet, "/v1/worker/payouts/"+payout.PayoutID+"/events", "worker-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	name, data := readEvent(t, rec.Body)
	if name != workers.EventTypePayoutSettled || !strings.Contains(data, `"status":"COMPLETED"`) {
		t.Fatalf("unexpected event %s %s", name, data)
	}
}

func TestPayoutStreamChecksOwnership(t *testing.T) {
	server, module, _ := newStreamServer(t)
	payout := createPayout(t, server, module, "worker-1")

	rec := doRequest(server, http.MethodGet, "/v1/worker/payouts/"+payout.PayoutID+"/events", "worker-2", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign payout stream: expected 404, got %d", rec.Code)
	}
	rec = doRequest(server, http.MethodGet, "/v1/worker/payouts/"+payout.PayoutID+"/events", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing worker: expected 401, got %d", rec.Code)
	}
}

func TestPayoutStreamUnroutedWithoutEvents(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	module := payoutledger.NewInMemoryModule(logger)
	server := New(module, nil, nil, logger, ":0")
	payout := createPayout(t, server, module, "worker-1")

	rec := doRequest(server, http.MethodGet, "/v1/worker/payouts/"+payout.PayoutID+"/events", "worker-1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without an event feed, got %d", rec.Code)
	}
}
