package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"

	payoutledger "trustpoll/contexts/worker-rewards/payout-ledger"
	"trustpoll/contexts/worker-rewards/payout-ledger/adapters/memory"
	postgresadapter "trustpoll/contexts/worker-rewards/payout-ledger/adapters/postgres"
	queueadapter "trustpoll/contexts/worker-rewards/payout-ledger/adapters/queue"
	"trustpoll/contexts/worker-rewards/payout-ledger/adapters/solana"
	"trustpoll/contexts/worker-rewards/payout-ledger/adapters/transfer"
	"trustpoll/contexts/worker-rewards/payout-ledger/application/workers"
	"trustpoll/contexts/worker-rewards/payout-ledger/ports"
	"trustpoll/internal/platform/config"
	"trustpoll/internal/platform/db"
	"trustpoll/internal/platform/httpserver"
	"trustpoll/internal/platform/messaging"
	"trustpoll/internal/platform/metrics"
	"trustpoll/internal/platform/queue"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server  *httpserver.Server
	settle  *settlementRunner
	relay   *messaging.RedisRelay
	runtime *runtime
	logger  *slog.Logger
}

type WorkerApp struct {
	metrics *httpserver.Server
	settle  *settlementRunner
	runtime *runtime
	logger  *slog.Logger
}

// runtime holds the collaborators both processes share.
type runtime struct {
	cfg      config.Config
	logger   *slog.Logger
	postgres *db.Postgres
	redis    *redis.Client
	queue    queue.Queue
	metrics  *metrics.Ledger
	bus      *messaging.Bus
	module   payoutledger.Module
}

type settlementRunner struct {
	pool       *queue.Pool
	reconciler *reconcileLoop
}

type reconcileLoop struct {
	run      func(ctx context.Context) error
	interval time.Duration
	logger   *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	rt, err := buildRuntime("api")
	if err != nil {
		return nil, err
	}

	app := &APIApp{
		server:  httpserver.New(rt.module, rt.bus, rt.metrics.Handler(), rt.logger, normalizeAddr(rt.cfg.HTTPPort)),
		runtime: rt,
		logger:  rt.logger,
	}
	// The bolt file can only be opened by one process, so the api owns the pool.
	if rt.cfg.QueueBackend == config.QueueBackendBolt {
		app.settle = rt.settlementRunner()
	}
	// Settlements finish in the worker process; its notifications reach the
	// api's stream clients through redis.
	if rt.redis != nil {
		app.relay = newPayoutRelay(rt.redis, rt.bus, rt.logger)
	}
	return app, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.QueueBackend != config.QueueBackendRedis {
		return nil, fmt.Errorf("worker process requires QUEUE_BACKEND=%s; %s queues are drained by the api process",
			config.QueueBackendRedis, cfg.QueueBackend)
	}

	rt, err := buildRuntimeWithConfig(cfg, "worker")
	if err != nil {
		return nil, err
	}
	return &WorkerApp{
		metrics: httpserver.NewMetricsServer(rt.metrics.Handler(), rt.logger, normalizeAddr(cfg.MetricsPort)),
		settle:  rt.settlementRunner(),
		runtime: rt,
		logger:  rt.logger,
	}, nil
}

func buildRuntime(process string) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return buildRuntimeWithConfig(cfg, process)
}

func buildRuntimeWithConfig(cfg config.Config, process string) (_ *runtime, err error) {
	logger, err := newLogger(cfg, process)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}
	gateway, err := newTransferGateway(cfg, logger)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = rt.close()
		}
	}()

	rt.postgres, err = db.ConnectWithOptions(cfg.PostgresDSN, postgresOptions(cfg))
	if err != nil {
		return nil, err
	}
	repo := postgresadapter.NewRepository(rt.postgres.DB, logger).WithTxAttempts(cfg.LedgerTxRetries)
	if cfg.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err = repo.Migrate(ctx)
		cancel()
		if err != nil {
			return nil, err
		}
	}

	rt.queue, err = rt.openQueue()
	if err != nil {
		return nil, err
	}

	rt.metrics = metrics.NewLedger("trustpoll")
	rt.metrics.WatchQueue(cfg.QueueName, rt.queue)
	rt.bus = messaging.NewBus(32, logger)

	rt.module = payoutledger.NewModule(payoutledger.Dependencies{
		Ledger:              repo,
		Tasks:               repo,
		Workers:             repo,
		Payouts:             repo,
		Queue:               queueadapter.SettlementQueue{Queue: rt.queue, Logger: logger},
		Gateway:             gateway,
		Wallets:             solana.WalletValidator{},
		Publisher:           notificationPublisher(rt.redis, rt.bus, logger),
		Metrics:             rt.metrics,
		Clock:               postgresadapter.SystemClock{},
		IDGen:               postgresadapter.UUIDGenerator{},
		SubmissionQuota:     cfg.SubmissionQuota,
		TransferTimeout:     cfg.TransferTimeout,
		ConfirmTimeout:      cfg.TransferConfirmTimeout,
		ConfirmPollInterval: cfg.TransferConfirmPollInterval,
		ConfirmTransfer:     cfg.TransferConfirm,
		ReconcileGrace:      cfg.ReconcileGrace,
		Logger:              logger,
	})
	return rt, nil
}

func postgresOptions(cfg config.Config) db.Options {
	return db.Options{
		MaxOpenConns:    cfg.PostgresMaxOpenConns,
		MaxIdleConns:    cfg.PostgresMaxIdleConns,
		ConnMaxLifetime: cfg.PostgresConnMaxLifetime,
	}
}

// notificationPublisher picks redis pub/sub when a redis client is open, so
// notifications cross process boundaries; otherwise the local bus.
func notificationPublisher(client *redis.Client, bus *messaging.Bus, logger *slog.Logger) ports.EventPublisher {
	if client != nil {
		return messaging.NewRedisPublisher(client, logger)
	}
	return bus
}

func newPayoutRelay(client *redis.Client, bus *messaging.Bus, logger *slog.Logger) *messaging.RedisRelay {
	return messaging.NewRedisRelay(client, workers.PayoutTopic("*"), bus, logger)
}

func (rt *runtime) openQueue() (queue.Queue, error) {
	switch rt.cfg.QueueBackend {
	case config.QueueBackendBolt:
		return queue.OpenBolt(rt.cfg.BoltQueuePath)
	case config.QueueBackendRedis:
		rt.redis = redis.NewClient(&redis.Options{
			Addr:     rt.cfg.RedisAddr,
			Password: rt.cfg.RedisPassword,
			DB:       rt.cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis %s: %w", rt.cfg.RedisAddr, err)
		}
		return queue.NewRedisQueue(rt.redis, rt.cfg.QueueName), nil
	default:
		return nil, fmt.Errorf("unsupported queue backend %q", rt.cfg.QueueBackend)
	}
}

func (rt *runtime) settlementRunner() *settlementRunner {
	runner := &settlementRunner{
		pool: &queue.Pool{
			Name:    rt.cfg.QueueName,
			Queue:   rt.queue,
			Handler: queueadapter.Handler(rt.module.Settlement),
			Policy: queue.Policy{
				MaxAttempts:  rt.cfg.SettlementMaxAttempts,
				BaseBackoff:  rt.cfg.SettlementBaseBackoff,
				MaxBackoff:   rt.cfg.SettlementMaxBackoff,
				LeaseTimeout: rt.cfg.SettlementLeaseTimeout,
			},
			Concurrency:  rt.cfg.SettlementConcurrency,
			PollInterval: rt.cfg.SettlementPollInterval,
			Logger:       rt.logger,
		},
	}
	if rt.cfg.EnablePayoutReconciler {
		runner.reconciler = &reconcileLoop{
			run:      rt.module.Reconciler.RunOnce,
			interval: rt.cfg.ReconcileInterval,
			logger:   rt.logger,
		}
	}
	return runner
}

func (rt *runtime) close() error {
	var errs []error
	if rt.queue != nil {
		errs = append(errs, rt.queue.Close())
	}
	if rt.redis != nil {
		errs = append(errs, rt.redis.Close())
	}
	if rt.postgres != nil {
		errs = append(errs, rt.postgres.Close())
	}
	return errors.Join(errs...)
}

func (a *APIApp) Run(ctx context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
			"queue_backend", a.runtime.cfg.QueueBackend,
			"embedded_settlement", a.settle != nil,
		)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.server.Run(groupCtx)
	})
	if a.relay != nil {
		group.Go(func() error {
			return a.relay.Run(groupCtx)
		})
	}
	if a.settle != nil {
		group.Go(func() error {
			return a.settle.run(groupCtx)
		})
	}
	return group.Wait()
}

func (a *APIApp) Close() error {
	if a.runtime != nil {
		return a.runtime.close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"concurrency", w.runtime.cfg.SettlementConcurrency,
		"queue", w.runtime.cfg.QueueName,
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return w.metrics.Run(groupCtx)
	})
	group.Go(func() error {
		return w.settle.run(groupCtx)
	})
	return group.Wait()
}

func (w *WorkerApp) Close() error {
	if w.runtime != nil {
		return w.runtime.close()
	}
	return nil
}

func (s *settlementRunner) run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return s.pool.Run(groupCtx)
	})
	if s.reconciler != nil {
		group.Go(func() error {
			return s.reconciler.loop(groupCtx)
		})
	}
	return group.Wait()
}

// loop keeps going on RunOnce errors; a missed pass is picked up by the next tick.
func (l *reconcileLoop) loop(ctx context.Context) error {
	interval := l.interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := l.run(ctx); err != nil && ctx.Err() == nil {
			l.logger.Error("payout reconciliation pass failed",
				"event", "bootstrap_reconcile_failed",
				"module", "internal/app/bootstrap",
				"layer", "platform",
				"error", err.Error(),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// newTransferGateway refuses to start without a gateway URL unless the
// in-memory gateway, which moves no funds, is selected explicitly.
func newTransferGateway(cfg config.Config, logger *slog.Logger) (ports.TransferGateway, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.TransferGateway)) {
	case config.TransferGatewayMemory:
		logger.Warn("using in-memory transfer gateway; payouts move no funds",
			"event", "bootstrap_transfer_gateway_memory",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
		return memory.NewTransferGateway(), nil
	case "", config.TransferGatewayHTTP:
		if strings.TrimSpace(cfg.TransferGatewayURL) == "" {
			return nil, fmt.Errorf("TRANSFER_GATEWAY_URL is required; set TRANSFER_GATEWAY=%s to run without a payment network",
				config.TransferGatewayMemory)
		}
		return transfer.NewHTTPGateway(
			cfg.TransferGatewayURL,
			cfg.TransferGatewayToken,
			cfg.TransferSourceWallet,
			cfg.TransferTimeout,
		), nil
	default:
		return nil, fmt.Errorf("unsupported TRANSFER_GATEWAY %q", cfg.TransferGateway)
	}
}

func newLogger(cfg config.Config, process string) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.LogLevel))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.LogFormat)) {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "", "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q", cfg.LogFormat)
	}
	return slog.New(handler).With("service", cfg.ServiceName, "process", process), nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
