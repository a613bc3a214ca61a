package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "ingest_"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	messagesTotal  *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	rowsTotal      *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	writeLatency   prometheus.Histogram
	authRejections *prometheus.CounterVec
)

// Init registers ingest metrics on the default registry and, when db is set,
// connection pool gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		register(prometheus.DefaultRegisterer, db, logger)
	})
}

func register(reg prometheus.Registerer, db *sql.DB, logger *log.Logger) {
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "messages_total",
			Help: "Total ingested messages by result",
		},
		[]string{"result"},
	)
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "errors_total",
			Help: "Total ingest errors by reason",
		},
		[]string{"reason"},
	)
	rowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "rows_total",
			Help: "Total rows written by value column",
		},
		[]string{"column"},
	)
	latency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    metricPrefix + "latency_seconds",
			Help:    "Per-message ingest latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)
	writeLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    metricPrefix + "write_latency_seconds",
			Help:    "Single row insert latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	authRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "auth_rejections_total",
			Help: "Requests refused before ingest by auth scheme and reason",
		},
		[]string{"scheme", "reason"},
	)

	reg.MustRegister(messagesTotal, errorsTotal, rowsTotal, latency, writeLatency, authRejections)

	if db != nil {
		registerDBMetrics(reg, db, logger)
	}
}

// ObserveMessage records one processed message.
func ObserveMessage(result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if messagesTotal != nil {
		messagesTotal.WithLabelValues(result).Inc()
	}
	if latency != nil {
		latency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncError increments the error counter.
func IncError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if errorsTotal != nil {
		errorsTotal.WithLabelValues(reason).Inc()
	}
}

// ObserveRowWrite records one written row.
func ObserveRowWrite(column string, duration time.Duration) {
	if column == "" {
		column = "unknown"
	}
	if rowsTotal != nil {
		rowsTotal.WithLabelValues(column).Inc()
	}
	if writeLatency != nil {
		writeLatency.Observe(duration.Seconds())
	}
}

// IncAuthRejection counts a request refused by authentication.
func IncAuthRejection(scheme, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if authRejections != nil {
		authRejections.WithLabelValues(scheme, reason).Inc()
	}
}
