package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOutboxMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetricsWithRegisterer(reg)

	m.RecordPublish("sent", 10*time.Millisecond)
	m.RecordPublish("retry_error", 0)
	m.RecordResult("failed")
	m.SetBacklog(3, -time.Second)

	if got := testutil.ToFloat64(m.publishAttempts.WithLabelValues("sent")); got != 1 {
		t.Fatalf("sent attempts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.publishAttempts.WithLabelValues("failed")); got != 1 {
		t.Fatalf("failed attempts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.pendingRecords); got != 3 {
		t.Fatalf("pending = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.oldestPendingAge); got != 0 {
		t.Fatalf("negative age must clamp to 0, got %v", got)
	}
	if got := testutil.CollectAndCount(m.publishLatency); got != 1 {
		t.Fatalf("expected latency histogram to be collected, got %d", got)
	}

	again := NewOutboxMetricsWithRegisterer(reg)
	again.RecordResult("failed")
	if got := testutil.ToFloat64(m.publishAttempts.WithLabelValues("failed")); got != 2 {
		t.Fatalf("re-registered metrics must share collectors, got %v", got)
	}
}

func TestCleanupMetrics(t *testing.T) {
	m := NewCleanupMetricsWithRegisterer(prometheus.NewRegistry())

	m.AddDeleted(5)
	m.AddDeleted(-1)
	m.RecordRun(true, 5)
	m.RecordRun(false, 0)

	if got := testutil.ToFloat64(m.deleted); got != 5 {
		t.Fatalf("deleted = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.lastDeleted); got != 5 {
		t.Fatalf("last deleted = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("error")); got != 1 {
		t.Fatalf("error runs = %v, want 1", got)
	}
}

func TestWorkerMetricsNilSafe(t *testing.T) {
	var om *OutboxMetrics
	om.RecordPublish("sent", time.Second)
	om.RecordResult("failed")
	om.SetBacklog(1, time.Second)

	var cm *CleanupMetrics
	cm.RecordRun(true, 1)
	cm.AddDeleted(1)
}
