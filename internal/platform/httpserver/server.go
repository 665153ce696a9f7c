package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	payoutledger "trustpoll/contexts/worker-rewards/payout-ledger"
	ledgererrors "trustpoll/contexts/worker-rewards/payout-ledger/domain/errors"
	ledgerhttp "trustpoll/contexts/worker-rewards/payout-ledger/transport/http"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "trustpoll/internal/platform/httpserver/docs"
)

const shutdownTimeout = 15 * time.Second

type Server struct {
	mux       *http.ServeMux
	logger    *slog.Logger
	addr      string
	ledger    payoutledger.Module
	events    PayoutEvents
	metrics   http.Handler
	keepAlive time.Duration
	shutdown  chan struct{}
}

// New builds the API server. metrics may be nil, which leaves /metrics
// unrouted; events may be nil, which leaves the payout stream unrouted.
func New(
	ledger payoutledger.Module,
	events PayoutEvents,
	metrics http.Handler,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:       http.NewServeMux(),
		logger:    logger,
		addr:      addr,
		ledger:    ledger,
		events:    events,
		metrics:   metrics,
		keepAlive: defaultKeepAlive,
		shutdown:  make(chan struct{}),
	}
	s.registerRoutes()
	return s
}

// NewMetricsServer serves only /metrics and /healthz, for processes without the API.
func NewMetricsServer(metrics http.Handler, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mux:      http.NewServeMux(),
		logger:   logger,
		addr:     addr,
		metrics:  metrics,
		shutdown: make(chan struct{}),
	}
	if metrics != nil {
		s.mux.Handle("GET /metrics", metrics)
	}
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s
}

// Run serves until ctx is done, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Open payout streams end on shutdown instead of holding the drain.
	var closeOnce sync.Once
	srv.RegisterOnShutdown(func() {
		closeOnce.Do(func() { close(s.shutdown) })
	})
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http server stopped",
		"event", "http_server_stopped",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("POST /v1/worker/register", s.handleRegisterWorker)
	s.mux.HandleFunc("GET /v1/worker/next-task", s.handleNextTask)
	s.mux.HandleFunc("POST /v1/worker/submission", s.handleCreateSubmission)
	s.mux.HandleFunc("GET /v1/worker/balance", s.handleBalance)
	s.mux.HandleFunc("POST /v1/worker/payout", s.handleCreatePayout)
	s.mux.HandleFunc("GET /v1/worker/payouts/{payout_id}", s.handleGetPayout)
	if s.events != nil {
		s.mux.HandleFunc("GET /v1/worker/payouts/{payout_id}/events", s.handlePayoutEvents)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegisterWorker(w http.ResponseWriter, r *http.Request) {
	var req ledgerhttp.RegisterWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeLedgerError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.ledger.Handler.RegisterWorkerHandler(r.Context(), req)
	if err != nil {
		s.writeLedgerDomainError(w, r, err)
		return
	}
	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleNextTask(w http.ResponseWriter, r *http.Request) {
	workerID, ok := requireWorker(w, r)
	if !ok {
		return
	}

	resp, err := s.ledger.Handler.NextTaskHandler(r.Context(), workerID)
	if err != nil {
		s.writeLedgerDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	workerID, ok := requireWorker(w, r)
	if !ok {
		return
	}

	var req ledgerhttp.CreateSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeLedgerError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.ledger.Handler.CreateSubmissionHandler(r.Context(), workerID, req)
	if err != nil {
		s.writeLedgerDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	workerID, ok := requireWorker(w, r)
	if !ok {
		return
	}

	resp, err := s.ledger.Handler.BalanceHandler(r.Context(), workerID)
	if err != nil {
		s.writeLedgerDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreatePayout(w http.ResponseWriter, r *http.Request) {
	workerID, ok := requireWorker(w, r)
	if !ok {
		return
	}

	resp, err := s.ledger.Handler.CreatePayoutHandler(r.Context(), workerID)
	if err != nil {
		if errors.Is(err, ledgererrors.ErrSettlementEnqueueFailed) && resp.PayoutID != "" {
			writeLedgerError(w, http.StatusInternalServerError, "settlement_enqueue_failed",
				"payout "+resp.PayoutID+" was recorded but settlement is delayed")
			return
		}
		s.writeLedgerDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleGetPayout(w http.ResponseWriter, r *http.Request) {
	workerID, ok := requireWorker(w, r)
	if !ok {
		return
	}

	resp, err := s.ledger.Handler.GetPayoutHandler(r.Context(), workerID, r.PathValue("payout_id"))
	if err != nil {
		s.writeLedgerDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func requireWorker(w http.ResponseWriter, r *http.Request) (string, bool) {
	workerID := strings.TrimSpace(r.Header.Get("X-Worker-Id"))
	if workerID == "" {
		writeLedgerError(w, http.StatusUnauthorized, "missing_worker", "X-Worker-Id header is required")
		return "", false
	}
	return workerID, true
}

func (s *Server) writeLedgerDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledgererrors.ErrInvalidInput),
		errors.Is(err, ledgererrors.ErrInvalidOption),
		errors.Is(err, ledgererrors.ErrInvalidWallet):
		writeLedgerError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, ledgererrors.ErrWorkerNotFound),
		errors.Is(err, ledgererrors.ErrTaskNotAssignable),
		errors.Is(err, ledgererrors.ErrPayoutNotFound):
		writeLedgerError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ledgererrors.ErrDuplicateSubmission):
		writeLedgerError(w, http.StatusConflict, "duplicate_submission", err.Error())
	case errors.Is(err, ledgererrors.ErrConcurrentUpdate),
		errors.Is(err, ledgererrors.ErrWorkerAlreadyExists):
		writeLedgerError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, ledgererrors.ErrInsufficientBalance):
		writeLedgerError(w, http.StatusUnprocessableEntity, "insufficient_balance", err.Error())
	default:
		s.logger.Error("unhandled payout ledger error",
			"event", "http_internal_error",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err.Error(),
		)
		writeLedgerError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeLedgerError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ledgerhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
