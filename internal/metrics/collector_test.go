package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/certscope/certscope/internal/scanner"
)

func TestScanCompleted(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ScanCompleted("edge", scanner.Stats{
		Total:     40,
		Succeeded: 30,
		Failed:    10,
		Duration:  1500 * time.Millisecond,
	})

	labels := prometheus.Labels{"job": "edge"}
	if got := testutil.ToFloat64(c.scanTargets.With(labels)); got != 40 {
		t.Errorf("scan_targets_total = %v, want 40", got)
	}
	if got := testutil.ToFloat64(c.scanFinished.With(labels)); got != 40 {
		t.Errorf("scan_finished_targets = %v, want 40", got)
	}
	if got := testutil.ToFloat64(c.scanSucceeded.With(labels)); got != 30 {
		t.Errorf("scan_succeeded_targets = %v, want 30", got)
	}
	if got := testutil.ToFloat64(c.scanFailed.With(labels)); got != 10 {
		t.Errorf("scan_failed_targets = %v, want 10", got)
	}
	if got := testutil.ToFloat64(c.scanDuration.With(labels)); got != 1.5 {
		t.Errorf("scan_duration_seconds = %v, want 1.5", got)
	}
}

func TestScanCompleted_OverwritesPreviousPass(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ScanCompleted("edge", scanner.Stats{Total: 40, Succeeded: 40})
	c.ScanCompleted("edge", scanner.Stats{Total: 40, Succeeded: 25, Failed: 15})

	if got := testutil.ToFloat64(c.scanSucceeded.With(prometheus.Labels{"job": "edge"})); got != 25 {
		t.Errorf("scan_succeeded_targets = %v, want 25", got)
	}
}

func TestVerifyCompleted(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	at := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	c.VerifyCompleted(12, at)

	if got := testutil.ToFloat64(c.chainsChecked); got != 12 {
		t.Errorf("verify_chains_examined = %v, want 12", got)
	}
	if got := testutil.ToFloat64(c.verifyAt); got != float64(at.Unix()) {
		t.Errorf("verify_last_run_timestamp = %v", got)
	}
}
