package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"trustpoll/contexts/worker-rewards/payout-ledger/application/workers"
	"trustpoll/contexts/worker-rewards/payout-ledger/domain/entities"
	ledgerhttp "trustpoll/contexts/worker-rewards/payout-ledger/transport/http"
	contractsv1 "trustpoll/contracts/gen/events/v1"
)

const defaultKeepAlive = 15 * time.Second

// PayoutEvents is the topic feed the stream route listens on.
type PayoutEvents interface {
	Watch(topic string) (<-chan contractsv1.Envelope, func())
}

// handlePayoutEvents streams one server-sent event once the payout reaches a
// terminal status. The row is re-read on every notification, so the event
// only carries what the caller could also GET.
func (s *Server) handlePayoutEvents(w http.ResponseWriter, r *http.Request) {
	workerID, ok := requireWorker(w, r)
	if !ok {
		return
	}
	payoutID := r.PathValue("payout_id")

	// Watch before the first read so a settlement between the two is not missed.
	notifications, stop := s.events.Watch(workers.PayoutTopic(payoutID))
	defer stop()

	payout, err := s.ledger.Handler.GetPayoutHandler(r.Context(), workerID, payoutID)
	if err != nil {
		s.writeLedgerDomainError(w, r, err)
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if terminalPayout(payout) {
		_ = writePayoutEvent(w, rc, payout)
		return
	}
	if _, err := fmt.Fprint(w, ": waiting\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		return
	}

	keepAlive := time.NewTicker(s.keepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.shutdown:
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-notifications:
			payout, err = s.ledger.Handler.GetPayoutHandler(r.Context(), workerID, payoutID)
			if err != nil {
				s.logger.Warn("payout stream refresh failed",
					"event", "http_payout_stream_refresh_failed",
					"module", "internal/platform/httpserver",
					"layer", "platform",
					"payout_id", payoutID,
					"error", err.Error(),
				)
				return
			}
			if terminalPayout(payout) {
				_ = writePayoutEvent(w, rc, payout)
				return
			}
		}
	}
}

func terminalPayout(payout ledgerhttp.PayoutResponse) bool {
	return payout.Status == string(entities.PayoutStatusCompleted) ||
		payout.Status == string(entities.PayoutStatusFailed)
}

func writePayoutEvent(w http.ResponseWriter, rc *http.ResponseController, payout ledgerhttp.PayoutResponse) error {
	data, err := json.Marshal(payout)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", workers.EventTypePayoutSettled, data); err != nil {
		return err
	}
	return rc.Flush()
}
