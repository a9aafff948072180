// Package metrics holds the Prometheus collectors for the ledger.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a set of collectors registered on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	ExpensesCreated    *prometheus.CounterVec
	ExpenseFailures    *prometheus.CounterVec
	SharesPaid         prometheus.Counter
	SettlementsCreated prometheus.Counter
	SettlementsSettled prometheus.Counter
	DuplicatesRejected prometheus.Counter
	BalanceDuration    prometheus.Histogram
	RequestDuration    *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ExpensesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "expenses_created_total",
			Help:      "Expenses created, by split mode.",
		}, []string{"split_mode"}),
		ExpenseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "expense_failures_total",
			Help:      "Failed expense writes, by error kind.",
		}, []string{"kind"}),
		SharesPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "shares_paid_total",
			Help:      "Participant shares marked paid.",
		}),
		SettlementsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "settlements_created_total",
			Help:      "Settlements recorded.",
		}),
		SettlementsSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "settlements_settled_total",
			Help:      "Settlements marked settled.",
		}),
		DuplicatesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "settlement_duplicates_rejected_total",
			Help:      "Settlements rejected by the duplicate guard.",
		}),
		BalanceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ledger",
			Name:      "balance_computation_seconds",
			Help:      "Time spent loading expenses and computing balances.",
			Buckets:   prometheus.DefBuckets,
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		m.ExpensesCreated,
		m.ExpenseFailures,
		m.SharesPaid,
		m.SettlementsCreated,
		m.SettlementsSettled,
		m.DuplicatesRejected,
		m.BalanceDuration,
		m.RequestDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request latency labelled by the matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
