// Package metrics exposes Prometheus counters for HTTP traffic and ledger activity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application. A nil *Collector
// is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	LedgerOperations    *prometheus.CounterVec
	NettingOutcomes     *prometheus.CounterVec
	SettlementTransfers prometheus.Histogram
	ExpensesResplit     prometheus.Counter
	Conflicts           prometheus.Counter
}

// NewCollector creates a collector with its own registry
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		LedgerOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_operations_total",
				Help:      "Ledger mutations by operation and result",
			},
			[]string{"operation", "result"},
		),
		NettingOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_netting_outcomes_total",
				Help:      "Recorded obligations by netting outcome",
			},
			[]string{"outcome"},
		),
		SettlementTransfers: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "settlement_plan_transfers",
				Help:      "Number of transfers in computed settlement plans",
				Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
			},
		),
		ExpensesResplit: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_expenses_resplit_total",
				Help:      "Expenses re-split by group recalculation",
			},
		),
		Conflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_concurrency_conflicts_total",
				Help:      "Transactions aborted because of a concurrent writer",
			},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.LedgerOperations,
		c.NettingOutcomes,
		c.SettlementTransfers,
		c.ExpensesResplit,
		c.Conflicts,
	)

	return c
}

// Registry returns the Prometheus registry for this collector
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveOperation counts a ledger operation. conflict marks a transaction
// that lost a race.
func (c *Collector) ObserveOperation(operation string, err error, conflict bool) {
	if c == nil {
		return
	}
	result := "ok"
	switch {
	case conflict:
		result = "conflict"
		c.Conflicts.Inc()
	case err != nil:
		result = "error"
	}
	c.LedgerOperations.WithLabelValues(operation, result).Inc()
}

// ObserveNetting counts the outcome of one recorded obligation
func (c *Collector) ObserveNetting(outcome string) {
	if c == nil {
		return
	}
	c.NettingOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveResplit counts expenses re-split during a recalculation
func (c *Collector) ObserveResplit(n int) {
	if c == nil {
		return
	}
	c.ExpensesResplit.Add(float64(n))
}

// ObserveSettlement records the size of a settlement plan
func (c *Collector) ObserveSettlement(transfers int) {
	if c == nil {
		return
	}
	c.SettlementTransfers.Observe(float64(transfers))
}

// Middleware records request counts and latency keyed by the chi route pattern
func (c *Collector) Middleware(next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		c.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
