package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trustpoll/contexts/worker-rewards/payout-ledger/domain/entities"
	"trustpoll/contexts/worker-rewards/payout-ledger/ports"
	"trustpoll/internal/platform/queue"
)

// Ledger records payout-ledger business counters on a private registry.
type Ledger struct {
	registry *prometheus.Registry

	submissions      prometheus.Counter
	creditedUnits    prometheus.Counter
	withdrawals      prometheus.Counter
	withdrawnUnits   prometheus.Counter
	settlements      *prometheus.CounterVec
	settlementTiming *prometheus.HistogramVec
}

var _ ports.LedgerMetrics = (*Ledger)(nil)

func NewLedger(namespace string) *Ledger {
	if namespace == "" {
		namespace = "trustpoll"
	}
	m := &Ledger{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_recorded_total",
			Help:      "Submissions committed to the ledger.",
		}),
		creditedUnits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credited_units_total",
			Help:      "Smallest currency units credited to pending balances.",
		}),
		withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawals_initiated_total",
			Help:      "Payouts created by withdrawal requests.",
		}),
		withdrawnUnits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawn_units_total",
			Help:      "Smallest currency units moved from pending to locked.",
		}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_finished_total",
			Help:      "Settlement deliveries by final state and queue result.",
		}, []string{"state", "result"}),
		settlementTiming: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_duration_seconds",
			Help:      "Wall time spent handling one settlement delivery.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.submissions,
		m.creditedUnits,
		m.withdrawals,
		m.withdrawnUnits,
		m.settlements,
		m.settlementTiming,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Ledger) SubmissionRecorded(credit int64) {
	m.submissions.Inc()
	if credit > 0 {
		m.creditedUnits.Add(float64(credit))
	}
}

func (m *Ledger) WithdrawalInitiated(amount int64) {
	m.withdrawals.Inc()
	if amount > 0 {
		m.withdrawnUnits.Add(float64(amount))
	}
}

func (m *Ledger) SettlementFinished(state entities.SettlementState, result ports.JobResult, elapsed time.Duration) {
	m.settlements.WithLabelValues(string(state), string(result)).Inc()
	m.settlementTiming.WithLabelValues(string(result)).Observe(elapsed.Seconds())
}

// WatchQueue exports the queue depth gauges. Stats are read on scrape.
func (m *Ledger) WatchQueue(name string, q queue.Queue) {
	m.registry.MustRegister(&queueCollector{
		name:  name,
		queue: q,
		depth: prometheus.NewDesc(
			"trustpoll_queue_messages",
			"Messages in the settlement queue by state.",
			[]string{"queue", "state"},
			nil,
		),
	})
}

func (m *Ledger) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Ledger) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type queueCollector struct {
	name  string
	queue queue.Queue
	depth *prometheus.Desc
}

func (c *queueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.depth
}

func (c *queueCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	stats, err := c.queue.Stats(ctx)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.depth, err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.depth, prometheus.GaugeValue, float64(stats.Ready), c.name, "ready")
	ch <- prometheus.MustNewConstMetric(c.depth, prometheus.GaugeValue, float64(stats.Inflight), c.name, "inflight")
	ch <- prometheus.MustNewConstMetric(c.depth, prometheus.GaugeValue, float64(stats.Dead), c.name, "dead")
}
