package workers

import (
	"encoding/json"
	"time"

	"trustpoll/contexts/worker-rewards/payout-ledger/domain/entities"
	"trustpoll/contexts/worker-rewards/payout-ledger/ports"
)

const (
	EventTypePayoutSettled = "payout.settled"
	payoutTopicPrefix      = "payout-"
)

// PayoutTopic is the per-payout notification channel a client subscribes to.
func PayoutTopic(payoutID string) string {
	return payoutTopicPrefix + payoutID
}

type payoutSettledPayload struct {
	PayoutID  string `json:"payout_id"`
	WorkerID  string `json:"worker_id"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Reference string `json:"reference,omitempty"`
}

func newPayoutEnvelope(eventID string, payout entities.Payout, occurredAt time.Time) (ports.EventEnvelope, error) {
	payload, err := json.Marshal(payoutSettledPayload{
		PayoutID:  payout.PayoutID,
		WorkerID:  payout.WorkerID,
		Status:    string(payout.Status),
		Amount:    payout.Amount,
		Reference: payout.Reference,
	})
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        EventTypePayoutSettled,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    "payout-ledger",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "payout_id",
		PartitionKey:     payout.PayoutID,
		Data:             payload,
	}, nil
}
