package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RentalsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rentals_created_total",
		Help: "Total number of rental orders booked",
	})

	RentalsActivatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rentals_activated_total",
		Help: "Total number of rental orders activated",
	})

	RentalsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rentals_completed_total",
		Help: "Total number of rental orders completed",
	})

	RentalsOverdueTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rentals_overdue_total",
		Help: "Total number of returns recorded past the booked end date",
	})

	RentalsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rentals_cancelled_total",
		Help: "Total number of rental orders cancelled",
	})

	RentalsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rentals_failed_total",
		Help: "Total number of failed rental operations",
	}, []string{"reason"})

	DepositRefundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deposit_refunds_total",
		Help: "Total number of automatic deposit refunds created",
	})

	RefundManualFollowupsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refund_manual_followups_total",
		Help: "Total number of completions that could not attribute a refund account",
	})

	SettlementRefreshLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "settlement_refresh_latency_seconds",
		Help:    "Latency of settlement ledger refreshes",
		Buckets: prometheus.DefBuckets,
	})

	SweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweep_runs_total",
		Help: "Total number of lifecycle sweeps executed",
	})

	SweepOrdersActivated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweep_orders_activated_total",
		Help: "Total number of orders activated by sweeps",
	})

	SweepOrdersCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweep_orders_completed_total",
		Help: "Total number of orders completed by sweeps",
	})

	SweepErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweep_errors_total",
		Help: "Total number of per-order failures recorded during sweeps",
	})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sweep_duration_seconds",
		Help:    "Duration of full lifecycle sweeps",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
