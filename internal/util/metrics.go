package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CatalogLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_loads_total",
		Help: "Total number of catalog loads by snapshot source",
	}, []string{"source"})

	CartOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_operations_total",
		Help: "Total number of cart operations",
	}, []string{"op", "result"})

	SubmissionAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "submission_attempts_total",
		Help: "Total number of submission attempts per strategy",
	}, []string{"strategy", "outcome"})

	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "submissions_total",
		Help: "Total number of order submissions by result",
	}, []string{"result"})

	SubmissionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "submission_attempt_latency_seconds",
		Help:    "Latency of a single submission attempt",
		Buckets: prometheus.DefBuckets,
	}, []string{"strategy"})

	SequenceAdvancesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sequence_advances_total",
		Help: "Total number of order sequence advances",
	})

	StockPushFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_push_failures_total",
		Help: "Total number of failed stock push-backs to the ledger",
	})

	ReceiptsRenderedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "receipts_rendered_total",
		Help: "Total number of receipts rendered",
	})

	ReceiptFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "receipt_failures_total",
		Help: "Total number of receipts that could not be rendered",
	}, []string{"reason"})

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
