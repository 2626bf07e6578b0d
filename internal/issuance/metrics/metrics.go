// Package metrics provides Prometheus metrics for the issuance pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all issuance pipeline metrics.
type Metrics struct {
	// Pipeline outcomes by final state (issued, failed) and failing stage.
	IssuancesTotal *prometheus.CounterVec

	// Per-stage latency (identity, biometric, render, features, anchor).
	StageDurationSeconds *prometheus.HistogramVec

	// Identity check retries.
	IdentityRetriesTotal prometheus.Counter

	// Verification outcomes for previously issued documents.
	VerificationsTotal *prometheus.CounterVec

	// Documents currently flowing through the pipeline.
	InFlight prometheus.Gauge
}

// New creates a new Metrics instance with all metrics registered.
func New() *Metrics {
	return &Metrics{
		IssuancesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veridoc_issuances_total",
			Help: "Total issuance attempts by outcome and failing stage",
		}, []string{"outcome", "stage"}),

		StageDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "veridoc_issuance_stage_duration_seconds",
			Help:    "Duration of issuance pipeline stages",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"stage"}),

		IdentityRetriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veridoc_issuance_identity_retries_total",
			Help: "Total identity check retries due to transient registry failures",
		}),

		VerificationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veridoc_document_verifications_total",
			Help: "Total document verifications by result (valid, invalid, error)",
		}, []string{"result"}),

		InFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "veridoc_issuances_in_flight",
			Help: "Number of issuance requests currently being processed",
		}),
	}
}

// RecordIssuance records a completed issuance attempt. Stage is empty for
// successful issuances and names the failing stage otherwise.
func (m *Metrics) RecordIssuance(outcome, stage string) {
	m.IssuancesTotal.WithLabelValues(outcome, stage).Inc()
}

// ObserveStage records the duration of one pipeline stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordIdentityRetry counts one identity retry.
func (m *Metrics) RecordIdentityRetry() {
	m.IdentityRetriesTotal.Inc()
}

// RecordVerification records a document verification result.
func (m *Metrics) RecordVerification(result string) {
	m.VerificationsTotal.WithLabelValues(result).Inc()
}
