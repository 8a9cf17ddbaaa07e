package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_processed_total",
		Help: "Total number of orders allocated and recorded",
	})

	OrdersDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_duplicate_total",
		Help: "Total number of order submissions deduplicated by external order id",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order submissions",
	}, []string{"reason"})

	AllocationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "allocation_latency_seconds",
		Help:    "Latency of the order allocation transaction",
		Buckets: prometheus.DefBuckets,
	})

	ConsumptionsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consumptions_recorded_total",
		Help: "Total number of batch consumption rows written",
	})

	BatchesSynthesizedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batches_synthesized_total",
		Help: "Total number of batches synthesized on stock shortfall",
	})

	AllocationShortfallTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "allocation_shortfall_total",
		Help: "Total number of order lines that committed with an uncovered remainder",
	})

	ResolverRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "resolver_request_duration_seconds",
		Help:    "Latency of product metadata resolver calls",
		Buckets: prometheus.DefBuckets,
	})

	ResolverFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resolver_failures_total",
		Help: "Total number of metadata resolver failures",
	}, []string{"kind"})

	WebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_deliveries_total",
		Help: "Total number of platform webhook deliveries by outcome",
	}, []string{"outcome"})

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
