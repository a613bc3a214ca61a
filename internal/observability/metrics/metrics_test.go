package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIngestMetricsRecorded(t *testing.T) {
	register(prometheus.NewRegistry(), nil, nil)

	ObserveMessage(ResultSuccess, 10*time.Millisecond)
	ObserveMessage(ResultError, time.Millisecond)
	IncError("missing_topic")
	ObserveRowWrite("value_bigint", time.Millisecond)
	ObserveRowWrite("value_bigint", time.Millisecond)

	if got := testutil.ToFloat64(messagesTotal.WithLabelValues(ResultSuccess)); got != 1 {
		t.Fatalf("success messages = %v", got)
	}
	if got := testutil.ToFloat64(errorsTotal.WithLabelValues("missing_topic")); got != 1 {
		t.Fatalf("missing_topic errors = %v", got)
	}
	if got := testutil.ToFloat64(rowsTotal.WithLabelValues("value_bigint")); got != 2 {
		t.Fatalf("bigint rows = %v", got)
	}
}

func TestEmptyLabelsDefault(t *testing.T) {
	register(prometheus.NewRegistry(), nil, nil)

	IncError("")
	ObserveRowWrite("", 0)
	if got := testutil.ToFloat64(errorsTotal.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("unknown errors = %v", got)
	}
	if got := testutil.ToFloat64(rowsTotal.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("unknown rows = %v", got)
	}
}

func TestAuthRejectionsRecorded(t *testing.T) {
	register(prometheus.NewRegistry(), nil, nil)

	IncAuthRejection("signature", "expired")
	IncAuthRejection("signature", "expired")
	IncAuthRejection("bearer", "")
	if got := testutil.ToFloat64(authRejections.WithLabelValues("signature", "expired")); got != 2 {
		t.Fatalf("signature/expired rejections = %v", got)
	}
	if got := testutil.ToFloat64(authRejections.WithLabelValues("bearer", "unknown")); got != 1 {
		t.Fatalf("bearer/unknown rejections = %v", got)
	}
}
