package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	QueueBackendRedis = "redis"
	QueueBackendBolt  = "bolt"

	TransferGatewayHTTP   = "http"
	TransferGatewayMemory = "memory"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string
	HTTPPort    string
	MetricsPort string
	PostgresDSN string
	AutoMigrate bool

	PostgresMaxOpenConns    int
	PostgresMaxIdleConns    int
	PostgresConnMaxLifetime time.Duration

	LogLevel    string
	LogFormat   string

	QueueBackend  string
	QueueName     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	BoltQueuePath string

	SettlementConcurrency  int
	SettlementMaxAttempts  int
	SettlementBaseBackoff  time.Duration
	SettlementMaxBackoff   time.Duration
	SettlementLeaseTimeout time.Duration
	SettlementPollInterval time.Duration

	SubmissionQuota int
	LedgerTxRetries int

	// TransferGateway is "http" or "memory"; memory moves no funds and must
	// be chosen explicitly.
	TransferGateway             string
	TransferGatewayURL          string
	TransferGatewayToken        string
	TransferSourceWallet        string
	TransferTimeout             time.Duration
	TransferConfirm             bool
	TransferConfirmTimeout      time.Duration
	TransferConfirmPollInterval time.Duration

	EnablePayoutReconciler bool
	ReconcileGrace         time.Duration
	ReconcileInterval      time.Duration
}

// Load reads the environment, after merging an optional .env file (or the
// file named by ENV_FILE). Variables already set in the environment win.
func Load() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}

	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "trustpoll"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		metricsPort = "9090"
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("QUEUE_BACKEND")))
	if backend == "" {
		backend = QueueBackendRedis
	}
	if backend != QueueBackendRedis && backend != QueueBackendBolt {
		return Config{}, fmt.Errorf("QUEUE_BACKEND must be %q or %q, got %q", QueueBackendRedis, QueueBackendBolt, backend)
	}

	gateway := strings.ToLower(envString("TRANSFER_GATEWAY", TransferGatewayHTTP))
	if gateway != TransferGatewayHTTP && gateway != TransferGatewayMemory {
		return Config{}, fmt.Errorf("TRANSFER_GATEWAY must be %q or %q, got %q", TransferGatewayHTTP, TransferGatewayMemory, gateway)
	}

	cfg := Config{
		ServiceName: service,
		HTTPPort:    port,
		MetricsPort: metricsPort,
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		AutoMigrate: envBool("AUTO_MIGRATE", false),
		LogLevel:    envString("LOG_LEVEL", "info"),
		LogFormat:   envString("LOG_FORMAT", "json"),

		PostgresMaxOpenConns:    envInt("POSTGRES_MAX_OPEN_CONNS", 25),
		PostgresMaxIdleConns:    envInt("POSTGRES_MAX_IDLE_CONNS", 5),
		PostgresConnMaxLifetime: envDuration("POSTGRES_CONN_MAX_LIFETIME", 30*time.Minute),

		QueueBackend:  backend,
		QueueName:     envString("QUEUE_NAME", "settlement"),
		RedisAddr:     envString("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),
		BoltQueuePath: envString("BOLT_QUEUE_PATH", "settlement-queue.db"),

		SettlementConcurrency:  envInt("SETTLEMENT_CONCURRENCY", 5),
		SettlementMaxAttempts:  envInt("SETTLEMENT_MAX_ATTEMPTS", 5),
		SettlementBaseBackoff:  envDuration("SETTLEMENT_BASE_BACKOFF", 2*time.Second),
		SettlementMaxBackoff:   envDuration("SETTLEMENT_MAX_BACKOFF", 5*time.Minute),
		SettlementLeaseTimeout: envDuration("SETTLEMENT_LEASE_TIMEOUT", 2*time.Minute),
		SettlementPollInterval: envDuration("SETTLEMENT_POLL_INTERVAL", 500*time.Millisecond),

		SubmissionQuota: envInt("SUBMISSION_QUOTA", 100),
		LedgerTxRetries: envInt("LEDGER_TX_RETRIES", 3),

		TransferGateway:             gateway,
		TransferGatewayURL:          os.Getenv("TRANSFER_GATEWAY_URL"),
		TransferGatewayToken:        os.Getenv("TRANSFER_GATEWAY_TOKEN"),
		TransferSourceWallet:        os.Getenv("TRANSFER_SOURCE_WALLET"),
		TransferTimeout:             envDuration("TRANSFER_TIMEOUT", 30*time.Second),
		TransferConfirm:             envBool("TRANSFER_CONFIRM", true),
		TransferConfirmTimeout:      envDuration("TRANSFER_CONFIRM_TIMEOUT", 60*time.Second),
		TransferConfirmPollInterval: envDuration("TRANSFER_CONFIRM_POLL_INTERVAL", 2*time.Second),

		EnablePayoutReconciler: envBool("ENABLE_PAYOUT_RECONCILER", true),
		ReconcileGrace:         envDuration("RECONCILE_GRACE", 2*time.Minute),
		ReconcileInterval:      envDuration("RECONCILE_INTERVAL", 30*time.Second),
	}
	if cfg.SubmissionQuota <= 0 {
		return Config{}, fmt.Errorf("SUBMISSION_QUOTA must be positive, got %d", cfg.SubmissionQuota)
	}
	if cfg.PostgresMaxOpenConns < 0 || cfg.PostgresMaxIdleConns < 0 {
		return Config{}, fmt.Errorf("POSTGRES_MAX_OPEN_CONNS and POSTGRES_MAX_IDLE_CONNS must not be negative")
	}
	if cfg.SettlementConcurrency <= 0 {
		return Config{}, fmt.Errorf("SETTLEMENT_CONCURRENCY must be positive, got %d", cfg.SettlementConcurrency)
	}
	return cfg, nil
}

func loadDotEnv() error {
	path := strings.TrimSpace(os.Getenv("ENV_FILE"))
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}

func envString(name string, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return fallback
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
