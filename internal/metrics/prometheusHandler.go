package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var HttpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "http_requests_total",
	Help: "Total number of requests labelled by path and status",
}, []string{"path", "status"})

// watcher
var changesObserved = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "changes_observed_total",
	Help: "Change events read from the source store, by collection and operation",
}, []string{"collection", "operation"})

var changesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "changes_published_total",
	Help: "Change messages confirmed by the broker",
}, []string{"collection"})

var changesPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "changes_publish_failures_total",
	Help: "Change messages lost because the publish failed",
}, []string{"collection"})

var streamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "change_stream_errors_total",
	Help: "Change stream read failures, by collection",
}, []string{"collection"})

// consumer
var messagesConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "messages_consumed_total",
	Help: "Deliveries handled by the consumer, by outcome",
}, []string{"outcome"})

// task dispatch
var countTasksInQueue = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "count_tasks_in_queue",
	Help: "Number of tasks submitted but not yet picked up by this process",
})

var activeWorkerCount = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "active_worker_count",
	Help: "Number of active workers",
})

var taskRetries = promauto.NewCounter(prometheus.CounterOpts{
	Name: "task_retries_total",
	Help: "Tasks re-enqueued after a retryable failure",
})

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "reindex_task_duration_seconds",
	Help:    "Total time spent in one reindex task.",
	Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60, 120},
}, []string{"status"})

var dependencyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "dependency_latency_seconds",
	Help:    "Latency of external service calls.",
	Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
}, []string{"service"})

type HttpStatusRecorder struct {
	http.ResponseWriter
	Status int
}

func (r *HttpStatusRecorder) WriteHeader(code int) {
	r.Status = code
	r.ResponseWriter.WriteHeader(code)
}

func ChangeObserved(collection string, operation string) {
	changesObserved.WithLabelValues(collection, operation).Inc()
}

func ChangePublished(collection string) {
	changesPublished.WithLabelValues(collection).Inc()
}

func ChangePublishFailed(collection string) {
	changesPublishFailures.WithLabelValues(collection).Inc()
}

func StreamError(collection string) {
	streamErrors.WithLabelValues(collection).Inc()
}

// MessageOutcome is one of acked, retried, dead_lettered, requeued.
func MessageOutcome(outcome string) {
	messagesConsumed.WithLabelValues(outcome).Inc()
}

func IncrementTasksInQueue() {
	countTasksInQueue.Inc()
}

func DecrementTasksInQueue() {
	countTasksInQueue.Dec()
}

func IncrementActiveWorkerCount() {
	activeWorkerCount.Inc()
}

func DecrementActiveWorkerCount() {
	activeWorkerCount.Dec()
}

func TaskRetried() {
	taskRetries.Inc()
}

func CaptureExecutionMetrics(label string, timeElapsed time.Duration) {
	dependencyLatency.WithLabelValues(label).Observe(timeElapsed.Seconds())
}

func CaptureTaskMetrics(label string, timeElapsed time.Duration) {
	requestDuration.WithLabelValues(label).Observe(timeElapsed.Seconds())
}
