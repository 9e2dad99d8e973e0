// Package metrics exports revocation and sync counters to Prometheus.
package metrics

import (
	"strconv"
	"time"

	"certledger/internal/domain"
	"certledger/internal/usecase"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "certledger"

type Metrics struct {
	transitions  *prometheus.CounterVec
	syncOutcomes *prometheus.CounterVec
	syncBacklog  prometheus.Gauge
	httpDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Revoke and reinstate attempts by outcome (synced, pending, failed).",
		}, []string{"action", "outcome"}),
		syncOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "outcomes_total",
			Help:      "Reconciler results per token.",
		}, []string{"action", "success"}),
		syncBacklog: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "backlog",
			Help:      "Rows selected by the last reconciler sweep.",
		}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) ObserveTransition(action domain.ActionType, success bool, onChainPending bool) {
	outcome := "synced"
	switch {
	case !success:
		outcome = "failed"
	case onChainPending:
		outcome = "pending"
	}
	m.transitions.WithLabelValues(string(action), outcome).Inc()
}

func (m *Metrics) ObserveSync(outcome domain.SyncOutcome) {
	m.syncOutcomes.WithLabelValues(string(outcome.Action), strconv.FormatBool(outcome.Success)).Inc()
}

func (m *Metrics) ObserveSyncBacklog(pending int) {
	m.syncBacklog.Set(float64(pending))
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// RegisterLedgerBreaker exports the ledger circuit breaker state read by
// state: 0 closed, 1 half-open, 2 open.
func RegisterLedgerBreaker(reg prometheus.Registerer, state func() float64) {
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "breaker_state",
		Help:      "Ledger circuit breaker state (0 closed, 1 half-open, 2 open).",
	}, state)
}

var _ usecase.Observer = (*Metrics)(nil)
