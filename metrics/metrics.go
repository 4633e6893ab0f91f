package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const MetricsPrefix = "order_reservation_"

// Outcome labels.
const (
	OutcomeOK         = "ok"
	OutcomeInvalid    = "invalid"
	OutcomeWriteError = "write_error"
)

// Adapter labels.
const (
	AdapterHTTP       = "http"
	AdapterLambdaHTTP = "lambda_http"
	AdapterSQS        = "sqs"
	AdapterLambdaSQS  = "lambda_sqs"
	AdapterSTAN       = "stan"
)

// Redelivery actions.
const (
	ActionRedeliver  = "redeliver"
	ActionDeadLetter = "dead_letter"
)

var ingestCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricsPrefix + "ingest_total",
		Help: "Order reservations handled, by entry adapter and outcome",
	},
	[]string{"adapter", "outcome"},
)

var writeDurationHist = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    MetricsPrefix + "write_duration_seconds",
		Help:    "Time taken to write one order reservation object",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"outcome"},
)

var redeliveryCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricsPrefix + "redeliveries_total",
		Help: "Queue messages handed back for redelivery or dead-lettered",
	},
	[]string{"adapter", "action"},
)

func RecordIngest(adapter, outcome string) {
	ingestCounter.WithLabelValues(adapter, outcome).Inc()
}

// IngestCounter returns the ingest counter of one adapter and outcome.
func IngestCounter(adapter, outcome string) prometheus.Counter {
	return ingestCounter.WithLabelValues(adapter, outcome)
}

// RedeliveryCounter returns the redelivery counter of one adapter and action.
func RedeliveryCounter(adapter, action string) prometheus.Counter {
	return redeliveryCounter.WithLabelValues(adapter, action)
}

func RecordWrite(outcome string, d time.Duration) {
	writeDurationHist.WithLabelValues(outcome).Observe(d.Seconds())
}

func RecordRedelivery(adapter, action string) {
	redeliveryCounter.WithLabelValues(adapter, action).Inc()
}
