package memory

import (
	"context"
	"sync"

	"trustpoll/contexts/worker-rewards/payout-ledger/ports"

	"github.com/google/uuid"
)

// TransferGateway is a scripted stand-in for the payment network. Repeated
// idempotency keys return the original reference without a second transfer.
type TransferGateway struct {
	mu sync.Mutex

	references map[string]string
	transfers  []ports.TransferRequest
	failures   []error
	scripted   []ports.TransferOutcome
	outcome    ports.TransferOutcome
	confirmErr error
	confirms   int
}

func NewTransferGateway() *TransferGateway {
	return &TransferGateway{
		references: make(map[string]string),
		outcome:    ports.TransferConfirmed,
	}
}

// FailNext queues errors returned by the next Transfer calls.
func (g *TransferGateway) FailNext(errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = append(g.failures, errs...)
}

// SetConfirmation sets what Confirm reports for every reference.
func (g *TransferGateway) SetConfirmation(outcome ports.TransferOutcome, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outcome = outcome
	g.confirmErr = err
}

// ScriptConfirmations queues outcomes for the next Confirm calls; once they
// are used up Confirm falls back to SetConfirmation.
func (g *TransferGateway) ScriptConfirmations(outcomes ...ports.TransferOutcome) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripted = append(g.scripted, outcomes...)
}

// Confirms counts Confirm calls.
func (g *TransferGateway) Confirms() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.confirms
}

func (g *TransferGateway) Transfer(ctx context.Context, req ports.TransferRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.failures) > 0 {
		err := g.failures[0]
		g.failures = g.failures[1:]
		return "", err
	}
	if reference, ok := g.references[req.IdempotencyKey]; ok {
		return reference, nil
	}
	reference := "tx_" + uuid.NewString()
	g.references[req.IdempotencyKey] = reference
	g.transfers = append(g.transfers, req)
	return reference, nil
}

func (g *TransferGateway) Confirm(ctx context.Context, _ string) (ports.TransferOutcome, error) {
	if err := ctx.Err(); err != nil {
		return ports.TransferUnknown, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.confirms++
	if len(g.scripted) > 0 {
		outcome := g.scripted[0]
		g.scripted = g.scripted[1:]
		return outcome, nil
	}
	return g.outcome, g.confirmErr
}

// Transfers returns the distinct transfers that moved funds.
func (g *TransferGateway) Transfers() []ports.TransferRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	items := make([]ports.TransferRequest, len(g.transfers))
	copy(items, g.transfers)
	return items
}
