// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	QuotesIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbd_quotes_ingested_total",
		Help: "Quotes accepted into the market snapshot per exchange",
	}, []string{"exchange"})

	PollFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbd_poll_failures_total",
		Help: "Market data poll failures per exchange",
	}, []string{"exchange"})

	OpportunitiesFound = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbd_opportunities_found_total",
		Help: "Opportunities emitted by the scanner per kind",
	}, []string{"kind"})

	BestNetProfitRatio = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arbd_best_net_profit_ratio",
		Help: "Net profit ratio of the top-ranked opportunity in the last scan",
	})

	ExecutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbd_executions_total",
		Help: "Completed executions per terminal outcome",
	}, []string{"outcome"})

	RealizedProfit = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arbd_realized_profit_total",
		Help: "Cumulative realized profit in the settlement currency",
	})

	BreakerOpen = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arbd_breaker_open",
		Help: "1 while the exchange circuit breaker is open",
	}, []string{"exchange"})

	ScanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "arbd_scan_duration_seconds",
		Help:    "Time for one poll+build+scan cycle",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		QuotesIngested,
		PollFailures,
		OpportunitiesFound,
		BestNetProfitRatio,
		ExecutionsTotal,
		RealizedProfit,
		BreakerOpen,
		ScanDuration,
	)
}
