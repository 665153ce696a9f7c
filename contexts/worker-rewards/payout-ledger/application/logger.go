package application

import (
	"log/slog"
	"time"

	"trustpoll/contexts/worker-rewards/payout-ledger/domain/entities"
	"trustpoll/contexts/worker-rewards/payout-ledger/ports"
)

// ResolveLogger guarantees a non-nil logger for application/worker code paths.
func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// ResolveMetrics guarantees a non-nil metrics sink.
func ResolveMetrics(metrics ports.LedgerMetrics) ports.LedgerMetrics {
	if metrics == nil {
		return noopMetrics{}
	}
	return metrics
}

type noopMetrics struct{}

func (noopMetrics) SubmissionRecorded(int64)  {}
func (noopMetrics) WithdrawalInitiated(int64) {}
func (noopMetrics) SettlementFinished(entities.SettlementState, ports.JobResult, time.Duration) {
}
