package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	OrdersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_orders_created_total",
			Help: "Orders created in pending state",
		},
	)

	OversellRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_oversell_rejections_total",
			Help: "Reservation attempts rejected for exhausted inventory",
		},
	)

	FinalizeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_finalize_total",
			Help: "Finalize calls by outcome",
		},
		[]string{"outcome"},
	)

	TicketsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_tickets_issued_total",
			Help: "Tickets minted after payment confirmation",
		},
	)

	TicketsValidated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_tickets_validated_total",
			Help: "Validation scans by result",
		},
		[]string{"result"},
	)

	SignatureRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_webhook_signature_rejections_total",
			Help: "Inbound notifications rejected for bad signatures",
		},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ticketing_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ticketing_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
