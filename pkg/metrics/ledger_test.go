package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestLedgerMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewLedgerMetrics(reg)

	metrics.IncPointsOperation("deduct", "success")
	metrics.IncCouponOperation("mark_used", "conflict")
	metrics.IncDuplicateScan()
	metrics.IncAuditAppend("failure")
	metrics.AddVerifyBreaks(3)
	metrics.ObserveTransaction("points_deduct", 80*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "points_operations_total", "operation", "deduct"); err != nil {
		t.Fatalf("fetch points counter: %v", err)
	} else if got != 1 {
		t.Fatalf("expected points counter=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "coupon_operations_total", "outcome", "conflict"); err != nil {
		t.Fatalf("fetch coupon counter: %v", err)
	} else if got != 1 {
		t.Fatalf("expected coupon counter=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "audit_verify_breaks_total", "", ""); err != nil {
		t.Fatalf("fetch verify breaks: %v", err)
	} else if got != 3 {
		t.Fatalf("expected verify breaks=3, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "ledger_transaction_duration_seconds", "operation", "points_deduct"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestLedgerMetricsNilSafe(t *testing.T) {
	var metrics *LedgerMetrics
	metrics.IncPointsOperation("add", "success")
	metrics.IncDuplicateScan()
	metrics.AddVerifyBreaks(1)

	unregistered := NewLedgerMetrics(nil)
	unregistered.IncAuditAppend("success")
	unregistered.ObserveTransaction("noop", time.Millisecond)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if label == "" || matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
