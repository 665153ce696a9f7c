package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"trustpoll/contexts/worker-rewards/payout-ledger/adapters/memory"
	"trustpoll/contexts/worker-rewards/payout-ledger/adapters/transfer"
	"trustpoll/contexts/worker-rewards/payout-ledger/application/workers"
	contractsv1 "trustpoll/contracts/gen/events/v1"
	"trustpoll/internal/platform/config"
	"trustpoll/internal/platform/messaging"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNormalizeAddr(t *testing.T) {
	cases := map[string]string{
		"":      ":8080",
		"9000":  ":9000",
		":7000": ":7000",
		" 81 ":  ":81",
	}
	for in, want := range cases {
		if got := normalizeAddr(in); got != want {
			t.Fatalf("normalizeAddr(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewLoggerValidatesLevelAndFormat(t *testing.T) {
	if _, err := newLogger(config.Config{LogLevel: "debug", LogFormat: "text"}, "api"); err != nil {
		t.Fatalf("text logger: %v", err)
	}
	if _, err := newLogger(config.Config{LogLevel: "info", LogFormat: "json"}, "worker"); err != nil {
		t.Fatalf("json logger: %v", err)
	}
	if _, err := newLogger(config.Config{LogLevel: "loud", LogFormat: "json"}, "api"); err == nil {
		t.Fatalf("expected invalid level error")
	}
	if _, err := newLogger(config.Config{LogLevel: "info", LogFormat: "xml"}, "api"); err == nil {
		t.Fatalf("expected invalid format error")
	}
}

func TestBuildWorkerRequiresRedisBackend(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("QUEUE_BACKEND", config.QueueBackendBolt)
	t.Setenv("POSTGRES_DSN", "postgres://unused")

	_, err := BuildWorker()
	if err == nil || !strings.Contains(err.Error(), "QUEUE_BACKEND=redis") {
		t.Fatalf("expected redis backend requirement, got %v", err)
	}
}

func TestBuildAPIRequiresPostgresDSN(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("POSTGRES_DSN", "")

	if _, err := BuildAPI(); err == nil || !strings.Contains(err.Error(), "POSTGRES_DSN") {
		t.Fatalf("expected missing dsn error, got %v", err)
	}
}

func TestReconcileLoopSurvivesFailedPasses(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := &reconcileLoop{
		run: func(context.Context) error {
			if calls.Add(1) >= 3 {
				cancel()
			}
			return errors.New("ledger unavailable")
		},
		interval: time.Millisecond,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	done := make(chan error, 1)
	go func() { done <- loop.loop(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("loop returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("reconcile loop did not stop")
	}
	if calls.Load() < 3 {
		t.Fatalf("expected loop to keep running after errors, got %d calls", calls.Load())
	}
}

func TestBuildAPIRequiresTransferGatewayURL(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("POSTGRES_DSN", "postgres://unused")
	t.Setenv("TRANSFER_GATEWAY", "")
	t.Setenv("TRANSFER_GATEWAY_URL", "")

	// Fails before any connection is attempted.
	if _, err := BuildAPI(); err == nil || !strings.Contains(err.Error(), "TRANSFER_GATEWAY_URL") {
		t.Fatalf("expected missing gateway url error, got %v", err)
	}
}

func TestNewTransferGatewaySelection(t *testing.T) {
	logger := discardLogger()

	if _, err := newTransferGateway(config.Config{TransferGateway: config.TransferGatewayHTTP}, logger); err == nil {
		t.Fatalf("http gateway without url must fail")
	}
	if _, err := newTransferGateway(config.Config{TransferGateway: "stub"}, logger); err == nil {
		t.Fatalf("unknown gateway must fail")
	}

	gateway, err := newTransferGateway(config.Config{TransferGateway: config.TransferGatewayMemory}, logger)
	if err != nil {
		t.Fatalf("memory gateway: %v", err)
	}
	if _, ok := gateway.(*memory.TransferGateway); !ok {
		t.Fatalf("expected memory gateway, got %T", gateway)
	}

	gateway, err = newTransferGateway(config.Config{
		TransferGateway:    config.TransferGatewayHTTP,
		TransferGatewayURL: "http://gateway.internal",
	}, logger)
	if err != nil {
		t.Fatalf("http gateway: %v", err)
	}
	if _, ok := gateway.(*transfer.HTTPGateway); !ok {
		t.Fatalf("expected http gateway, got %T", gateway)
	}
}

func TestPostgresOptionsFromConfig(t *testing.T) {
	opts := postgresOptions(config.Config{
		PostgresMaxOpenConns:    40,
		PostgresMaxIdleConns:    8,
		PostgresConnMaxLifetime: 10 * time.Minute,
	})
	if opts.MaxOpenConns != 40 || opts.MaxIdleConns != 8 || opts.ConnMaxLifetime != 10*time.Minute {
		t.Fatalf("unexpected pool options %+v", opts)
	}
}

func TestNotificationPublisherUsesBusWithoutRedis(t *testing.T) {
	bus := messaging.NewBus(1, nil)
	if got := notificationPublisher(nil, bus, discardLogger()); got != bus {
		t.Fatalf("expected local bus, got %T", got)
	}
}

// The worker process publishes through its own redis client; the api relays
// from a separate client into the bus its stream route watches.
func TestPayoutNotificationsReachAPIBusThroughRedis(t *testing.T) {
	server := miniredis.RunT(t)
	workerRedis := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer workerRedis.Close()
	apiRedis := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer apiRedis.Close()

	workerBus := messaging.NewBus(4, nil)
	apiBus := messaging.NewBus(4, nil)
	topic := workers.PayoutTopic("p-9")
	events, stop := apiBus.Watch(topic)
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	relay := newPayoutRelay(apiRedis, apiBus, discardLogger())
	go func() { _ = relay.Run(ctx) }()
	select {
	case <-relay.Ready():
	case <-time.After(2 * time.Second):
		t.Fatalf("relay never subscribed")
	}

	publisher := notificationPublisher(workerRedis, workerBus, discardLogger())
	if err := publisher.Publish(ctx, topic, contractsv1.Envelope{EventID: "e-9", EventType: workers.EventTypePayoutSettled}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case event := <-events:
		if event.EventID != "e-9" {
			t.Fatalf("unexpected event %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("notification never reached the api bus")
	}
}
