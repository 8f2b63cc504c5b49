package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics records operational signals for the ledger surfaces. A nil
// receiver or an unregistered instance is safe to call, so services never
// need to branch on whether metrics are wired.
type LedgerMetrics struct {
	pointsOps     *prometheus.CounterVec
	couponOps     *prometheus.CounterVec
	duplicateScan prometheus.Counter
	auditAppends  *prometheus.CounterVec
	verifyBreaks  prometheus.Counter
	txDuration    *prometheus.HistogramVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	pointsOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "points_operations_total",
		Help: "Points ledger operations by kind and outcome.",
	}, []string{"operation", "outcome"})
	couponOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coupon_operations_total",
		Help: "Coupon state transitions by kind and outcome.",
	}, []string{"operation", "outcome"})
	duplicateScan := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "offline_duplicate_scans_total",
		Help: "Offline scan events absorbed as duplicates.",
	})
	auditAppends := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_appends_total",
		Help: "Audit chain append attempts by outcome.",
	}, []string{"outcome"})
	verifyBreaks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_verify_breaks_total",
		Help: "Broken links found by audit chain verification.",
	})
	txDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_transaction_duration_seconds",
		Help:    "Duration of ledger write transactions in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	reg.MustRegister(pointsOps, couponOps, duplicateScan, auditAppends, verifyBreaks, txDuration)
	return &LedgerMetrics{
		pointsOps:     pointsOps,
		couponOps:     couponOps,
		duplicateScan: duplicateScan,
		auditAppends:  auditAppends,
		verifyBreaks:  verifyBreaks,
		txDuration:    txDuration,
	}
}

// IncPointsOperation increments the points counter for one operation outcome.
func (m *LedgerMetrics) IncPointsOperation(operation, outcome string) {
	if m == nil || m.pointsOps == nil {
		return
	}
	m.pointsOps.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

// IncCouponOperation increments the coupon counter for one operation outcome.
func (m *LedgerMetrics) IncCouponOperation(operation, outcome string) {
	if m == nil || m.couponOps == nil {
		return
	}
	m.couponOps.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

// IncDuplicateScan counts one absorbed duplicate scan event.
func (m *LedgerMetrics) IncDuplicateScan() {
	if m == nil || m.duplicateScan == nil {
		return
	}
	m.duplicateScan.Inc()
}

// IncAuditAppend counts one audit append attempt by outcome.
func (m *LedgerMetrics) IncAuditAppend(outcome string) {
	if m == nil || m.auditAppends == nil {
		return
	}
	m.auditAppends.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// AddVerifyBreaks counts broken links discovered by a verification pass.
func (m *LedgerMetrics) AddVerifyBreaks(count int) {
	if m == nil || m.verifyBreaks == nil || count <= 0 {
		return
	}
	m.verifyBreaks.Add(float64(count))
}

// ObserveTransaction records the duration of one ledger write transaction.
func (m *LedgerMetrics) ObserveTransaction(operation string, duration time.Duration) {
	if m == nil || m.txDuration == nil {
		return
	}
	m.txDuration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
