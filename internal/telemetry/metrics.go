// Package telemetry exposes Prometheus collectors for the scan and
// prediction pipelines.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScansTotal counts tool invocations by outcome (ok, degraded).
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "securitygate_scans_total",
			Help: "Total number of scanner invocations by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)

	// FindingsTotal counts normalized findings by canonical severity bucket.
	FindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "securitygate_findings_total",
			Help: "Total number of findings by canonical severity",
		},
		[]string{"severity"},
	)

	// VerdictsTotal counts aggregate verdicts by decision.
	VerdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "securitygate_verdicts_total",
			Help: "Total number of scan verdicts by decision",
		},
		[]string{"verdict"},
	)

	// PredictionsTotal counts risk predictions by producing path.
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "securitygate_predictions_total",
			Help: "Total number of risk predictions by model path",
		},
		[]string{"model"},
	)

	// ScanDurationSeconds tracks per-tool scan latency.
	ScanDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "securitygate_scan_duration_seconds",
			Help:    "Duration of individual tool scans",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 180},
		},
		[]string{"tool"},
	)
)
