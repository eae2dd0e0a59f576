package service

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "market"

// Metrics contains metrics exposed by this package. All of them carry a
// "market" label.
type Metrics struct {
	// Number of orders left resting on the book.
	OrdersCreated metrics.Counter
	// Number of fills against resting orders.
	Fills metrics.Counter
	// Base quantity traded.
	FillVolume metrics.Counter
	// Number of cancelled orders.
	Cancels metrics.Counter
	// Number of claims that paid out.
	Claims metrics.Counter
	// Number of calls refused by validation. Labelled by "reason".
	Rejects metrics.Counter
	// Resting orders per side. Labelled by "side".
	RestingOrders metrics.Gauge
	// Last journal sequence applied.
	JournalSeq metrics.Gauge
	// Time spent in a market step, in seconds.
	StepDuration metrics.Histogram
	// 1 once the market halted.
	Halted metrics.Gauge
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
func PrometheusMetrics(namespace string) *Metrics {
	labels := []string{"market"}
	return &Metrics{
		OrdersCreated: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "orders_created",
			Help:      "Number of orders left resting on the book.",
		}, labels),
		Fills: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "fills",
			Help:      "Number of fills against resting orders.",
		}, labels),
		FillVolume: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "fill_volume",
			Help:      "Base quantity traded.",
		}, labels),
		Cancels: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "cancels",
			Help:      "Number of cancelled orders.",
		}, labels),
		Claims: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "claims",
			Help:      "Number of claims that paid out.",
		}, labels),
		Rejects: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "rejects",
			Help:      "Number of calls refused by validation.",
		}, append(labels, "reason")),
		RestingOrders: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "resting_orders",
			Help:      "Resting orders per side.",
		}, append(labels, "side")),
		JournalSeq: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "journal_seq",
			Help:      "Last journal sequence applied.",
		}, labels),
		StepDuration: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "step_duration_seconds",
			Help:      "Time spent in a market step.",
			Buckets:   stdprometheus.ExponentialBuckets(0.00001, 4, 10),
		}, labels),
		Halted: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "halted",
			Help:      "Whether the market stopped after a fatal error.",
		}, labels),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		OrdersCreated: discard.NewCounter(),
		Fills:         discard.NewCounter(),
		FillVolume:    discard.NewCounter(),
		Cancels:       discard.NewCounter(),
		Claims:        discard.NewCounter(),
		Rejects:       discard.NewCounter(),
		RestingOrders: discard.NewGauge(),
		JournalSeq:    discard.NewGauge(),
		StepDuration:  discard.NewHistogram(),
		Halted:        discard.NewGauge(),
	}
}

// with binds the market label.
func (m *Metrics) with(market string) *Metrics {
	return &Metrics{
		OrdersCreated: m.OrdersCreated.With("market", market),
		Fills:         m.Fills.With("market", market),
		FillVolume:    m.FillVolume.With("market", market),
		Cancels:       m.Cancels.With("market", market),
		Claims:        m.Claims.With("market", market),
		Rejects:       m.Rejects.With("market", market),
		RestingOrders: m.RestingOrders.With("market", market),
		JournalSeq:    m.JournalSeq.With("market", market),
		StepDuration:  m.StepDuration.With("market", market),
		Halted:        m.Halted.With("market", market),
	}
}
