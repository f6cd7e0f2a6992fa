// Package metrics exposes the listener's Prometheus instrumentation.
// Every recording method is a no-op on a nil *Dispatcher, so code that
// was given no metrics handle pays nothing and needs no enabled check at
// each call site.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatcher holds the counters and histograms the dispatcher and
// runtime report through on every transaction.
type Dispatcher struct {
	transactions       *prometheus.CounterVec
	transactionLatency prometheus.Histogram
	handlerInvocations *prometheus.CounterVec
	handlerLatency     *prometheus.HistogramVec
	handlerPanics      *prometheus.CounterVec
	reconnects         *prometheus.CounterVec
	resyncs            prometheus.Counter
	cacheSize          prometheus.Gauge
}

// NewDispatcher registers the dispatcher metric family against reg and
// returns a handle to record against. Pass a fresh
// prometheus.NewRegistry() in tests to avoid colliding with the default
// global registry across test runs.
func NewDispatcher(reg prometheus.Registerer) *Dispatcher {
	factory := promauto.With(reg)
	return &Dispatcher{
		transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dirlistener_transactions_total",
			Help: "Total number of dispatcher transactions processed, by command and outcome.",
		}, []string{"command", "outcome"}),
		transactionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dirlistener_transaction_duration_seconds",
			Help:    "End-to-end latency of one dispatcher transaction (FETCH_META..ADVANCE_CURSOR).",
			Buckets: prometheus.DefBuckets,
		}),
		handlerInvocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dirlistener_handler_invocations_total",
			Help: "Total handler invocations, by handler name and outcome.",
		}, []string{"handler", "outcome"}),
		handlerLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dirlistener_handler_duration_seconds",
			Help:    "Latency of a single handler invocation, by handler name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"handler"}),
		handlerPanics: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dirlistener_handler_panics_total",
			Help: "Total recovered handler panics, by handler name.",
		}, []string{"handler"}),
		reconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dirlistener_reconnects_total",
			Help: "Total reconnect attempts after an idle alive-probe failure, by connection.",
		}, []string{"connection"}),
		resyncs: factory.NewCounter(prometheus.CounterOpts{
			Name: "dirlistener_cache_resyncs_total",
			Help: "Total full cache resyncs triggered by cursor fencing.",
		}),
		cacheSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dirlistener_cache_entries",
			Help: "Current number of entries in the local directory shadow cache.",
		}),
	}
}

// ObserveTransaction records one completed transaction.
func (m *Dispatcher) ObserveTransaction(command string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.transactions.WithLabelValues(command, outcome).Inc()
	m.transactionLatency.Observe(d.Seconds())
}

// ObserveHandler records one handler invocation.
func (m *Dispatcher) ObserveHandler(name string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.handlerInvocations.WithLabelValues(name, outcome).Inc()
	m.handlerLatency.WithLabelValues(name).Observe(d.Seconds())
}

// RecordPanic increments the panic counter for a handler.
func (m *Dispatcher) RecordPanic(name string) {
	if m == nil {
		return
	}
	m.handlerPanics.WithLabelValues(name).Inc()
}

// RecordReconnect increments the reconnect counter for a connection
// ("notifier" or "directory").
func (m *Dispatcher) RecordReconnect(connection string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(connection).Inc()
}

// RecordResync increments the resync counter.
func (m *Dispatcher) RecordResync() {
	if m == nil {
		return
	}
	m.resyncs.Inc()
}

// SetCacheSize sets the current cache entry count gauge.
func (m *Dispatcher) SetCacheSize(n float64) {
	if m == nil {
		return
	}
	m.cacheSize.Set(n)
}
