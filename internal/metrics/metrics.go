// Package metrics provides Prometheus metrics for dos-queue.
// It tracks queue operations on every backend and the worker's processing
// loop so slow or failing backends show up before the backlog does.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "dosq"
)

// Queue operation metrics, labeled by backend and operation.
var (
	// QueueOperationsTotal counts queue operations.
	QueueOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_operations_total",
			Help:      "Total number of queue operations",
		},
		[]string{"backend", "operation", "status"}, // status: success, failure
	)

	// QueueOperationLatency measures latency of queue operations.
	QueueOperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_operation_latency_seconds",
			Help:      "Latency of queue operations in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"backend", "operation"},
	)

	// QueueEmptyPollsTotal counts dequeues that returned no message.
	QueueEmptyPollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_empty_polls_total",
			Help:      "Total number of dequeue calls that found no message",
		},
		[]string{"backend"},
	)

	// QueueHealthy is 1 when the last health probe succeeded.
	QueueHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_healthy",
			Help:      "Result of the last queue health probe (1 healthy, 0 unhealthy)",
		},
		[]string{"backend"},
	)

	// QueueDepth tracks the backlog reported by the backend.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Current number of messages waiting in the queue",
		},
		[]string{"backend"},
	)
)

// Worker metrics track the consume loop.
var (
	// MessagesProcessedTotal counts messages handled by the worker.
	MessagesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_processed_total",
			Help:      "Total number of messages processed by the worker",
		},
		[]string{"result"}, // result: success, failure
	)

	// MessageProcessingLatency measures time to process a single message.
	MessageProcessingLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_processing_latency_seconds",
			Help:      "Time to process a single message in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)
)

// API metrics track message submission.
var (
	// MessagesSubmittedTotal counts messages accepted by the API.
	MessagesSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_submitted_total",
			Help:      "Total number of messages submitted through the API",
		},
		[]string{"result"}, // result: accepted, rejected, failed
	)

	// MessageSize tracks payload sizes submitted through the API.
	MessageSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_size_bytes",
			Help:      "Size of submitted message payloads in bytes",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		},
	)
)
