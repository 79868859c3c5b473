// Package telemetry exposes the engine's operational counters and
// gauges to Prometheus: signal flow, order outcomes, exits, reconcile
// findings, open position count and account balance.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/meridian-lab/meridian-trading/internal/logger"
)

const shutdownGrace = 5 * time.Second

// Metrics is the engine's metric set. One instance is shared by the
// live engine and the reconciler.
type Metrics struct {
	gatherer prometheus.Gatherer

	signals        *prometheus.CounterVec
	signalOutcomes *prometheus.CounterVec
	orders         *prometheus.CounterVec
	exits          *prometheus.CounterVec
	conflicts      *prometheus.CounterVec
	adoptions      *prometheus.CounterVec
	taskCycles     *prometheus.CounterVec
	brokerErrors   *prometheus.CounterVec
	openPositions  prometheus.Gauge
	balance        prometheus.Gauge
}

// New registers the metric set on the default Prometheus registry.
func New() *Metrics {
	metrics := build(promauto.With(prometheus.DefaultRegisterer))
	metrics.gatherer = prometheus.DefaultGatherer

	return metrics
}

// NewWith registers on a caller-supplied registry. Tests pass a fresh
// one so suites never collide on metric names.
func NewWith(registry *prometheus.Registry) *Metrics {
	metrics := build(promauto.With(registry))
	metrics.gatherer = registry

	return metrics
}

func build(factory promauto.Factory) *Metrics {
	return &Metrics{
		signals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_signals_total",
				Help: "Signals produced per instrument and action",
			},
			[]string{"instrument", "action"},
		),
		signalOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_signal_outcomes_total",
				Help: "What became of each signal, by outcome",
			},
			[]string{"instrument", "outcome"},
		),
		orders: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_orders_total",
				Help: "Market orders submitted, by side and result",
			},
			[]string{"instrument", "side", "result"},
		),
		exits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_position_exits_total",
				Help: "Closed positions per exit reason",
			},
			[]string{"instrument", "reason"},
		),
		conflicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_reconcile_conflicts_total",
				Help: "Reconciliation passes that found a broker disagreement",
			},
			[]string{"instrument"},
		),
		adoptions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_adopted_positions_total",
				Help: "Broker positions adopted into the ledger",
			},
			[]string{"instrument"},
		),
		taskCycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_task_cycles_total",
				Help: "Scheduler task cycles by result",
			},
			[]string{"task", "result"},
		),
		brokerErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_broker_errors_total",
				Help: "Broker call failures by error code",
			},
			[]string{"code"},
		),
		openPositions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "meridian_open_positions",
				Help: "Open positions currently tracked by the ledger",
			},
		),
		balance: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "meridian_account_balance",
				Help: "Last balance reported by the broker",
			},
		),
	}
}

func (m *Metrics) RecordSignal(instrument, action string) {
	m.signals.WithLabelValues(instrument, action).Inc()
}

func (m *Metrics) RecordSignalOutcome(instrument, outcome string) {
	m.signalOutcomes.WithLabelValues(instrument, outcome).Inc()
}

func (m *Metrics) RecordOrder(instrument, side, result string) {
	m.orders.WithLabelValues(instrument, side, result).Inc()
}

func (m *Metrics) RecordExit(instrument, reason string) {
	m.exits.WithLabelValues(instrument, reason).Inc()
}

func (m *Metrics) RecordConflict(instrument string) {
	m.conflicts.WithLabelValues(instrument).Inc()
}

func (m *Metrics) RecordAdoption(instrument string) {
	m.adoptions.WithLabelValues(instrument).Inc()
}

// RecordCycle tallies one scheduler cycle; a non-nil err lands in the
// error bucket.
func (m *Metrics) RecordCycle(task string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}

	m.taskCycles.WithLabelValues(task, result).Inc()
}

func (m *Metrics) RecordBrokerError(code string) {
	m.brokerErrors.WithLabelValues(code).Inc()
}

func (m *Metrics) SetOpenPositions(count int) {
	m.openPositions.Set(float64(count))
}

func (m *Metrics) SetBalance(balance float64) {
	m.balance.Set(balance)
}

// Handler returns the scrape endpoint for this metric set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ListenAndServe exposes /metrics and /health on addr until ctx is
// canceled.
func (m *Metrics) ListenAndServe(ctx context.Context, addr string, log *logger.Logger) error {
	router := mux.NewRouter()
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errs := make(chan error, 1)
	go func() {
		errs <- server.ListenAndServe()
	}()

	log.Info("metrics listener started", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	case err := <-errs:
		return err
	}
}
