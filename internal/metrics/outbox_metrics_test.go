package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestOutboxMetrics_RecordPublish(t *testing.T) {
	m := NewOutboxMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordPublish("sent")
	m.RecordPublish("sent")
	m.RecordPublish("failed")

	metric := &dto.Metric{}
	if err := m.publishAttempts.WithLabelValues("sent").Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if got := metric.GetCounter().GetValue(); got != 2 {
		t.Errorf("expected 2 sent attempts, got %v", got)
	}
}

func TestOutboxMetrics_SetBacklog(t *testing.T) {
	m := NewOutboxMetricsWithRegisterer(prometheus.NewRegistry())

	m.SetBacklog(3, time.Now().Add(-2*time.Second))

	pending := &dto.Metric{}
	if err := m.pendingRecords.Write(pending); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if got := pending.GetGauge().GetValue(); got != 3 {
		t.Errorf("expected 3 pending records, got %v", got)
	}

	age := &dto.Metric{}
	if err := m.oldestPendingAge.Write(age); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if got := age.GetGauge().GetValue(); got < 1 {
		t.Errorf("expected oldest age >= 1s, got %v", got)
	}

	m.SetBacklog(0, time.Time{})
	if err := m.oldestPendingAge.Write(age); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if got := age.GetGauge().GetValue(); got != 0 {
		t.Errorf("expected zero age for empty backlog, got %v", got)
	}
}

func TestNewOutboxMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewOutboxMetricsWithRegisterer(reg)
	second := NewOutboxMetricsWithRegisterer(reg)

	first.RecordPublish("sent")
	second.RecordPublish("sent")

	metric := &dto.Metric{}
	if err := first.publishAttempts.WithLabelValues("sent").Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if got := metric.GetCounter().GetValue(); got != 2 {
		t.Errorf("expected shared counter value 2, got %v", got)
	}
}
