package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCheckoutMetricsCountsOutcomesAndResumes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCheckoutMetrics(reg)
	metrics.IncOutcome("DONE", "")
	metrics.IncOutcome("DONE", "")
	metrics.IncOutcome("FAILED", "declined")
	metrics.IncResume("PERSISTING", "resumed")
	metrics.ObserveDuration(120 * time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "checkout_outcomes_total", "state", "DONE"); err != nil {
		t.Fatalf("fetch outcomes: %v", err)
	} else if got != 2 {
		t.Fatalf("expected DONE=2, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "checkout_outcomes_total", "reason", "declined"); err != nil {
		t.Fatalf("fetch declined: %v", err)
	} else if got != 1 {
		t.Fatalf("expected declined=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "checkout_reconciler_resumes_total", "state", "PERSISTING"); err != nil {
		t.Fatalf("fetch resumes: %v", err)
	} else if got != 1 {
		t.Fatalf("expected resumes=1, got %f", got)
	}
	if findMetricFamily(mfs, "checkout_duration_seconds") == nil {
		t.Fatal("expected duration histogram")
	}
}

func TestCheckoutMetricsNilSafe(t *testing.T) {
	var metrics *CheckoutMetrics
	metrics.IncOutcome("DONE", "")
	metrics.IncResume("DONE", "")
	metrics.ObserveDuration(time.Second)
	NewCheckoutMetrics(nil).IncOutcome("FAILED", "x")
}
