package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BalanceRefreshRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "discovery_balance_refresh_runs_total",
		Help: "Completed balance refresh passes.",
	})

	BalanceRefreshUsers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "discovery_balance_refresh_users_total",
		Help: "User balances refreshed from chain.",
	})

	BalanceRefreshErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "discovery_balance_refresh_errors_total",
		Help: "Per-user balance lookups that failed and were skipped.",
	})

	FleetNodesScraped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "discovery_fleet_nodes_scraped_total",
		Help: "Fleet nodes successfully scraped for health.",
	})

	FleetScrapeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "discovery_fleet_scrape_failures_total",
		Help: "Fleet nodes skipped due to scrape failures.",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "discovery_http_request_duration_seconds",
		Help:    "API request latency by route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "status"})
)
