// Package metrics exposes reconciliation outcomes as prometheus series.
package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apperrors "github.com/mohit-ambani/auditflow-sub000/pkg/errors"
)

// Components reported in the component label
const (
	ComponentDocument   = "document"
	ComponentPayment    = "payment"
	ComponentAllocation = "allocation"
	ComponentGST        = "gst"
	ComponentDiscount   = "discount"
	ComponentPenalty    = "penalty"
	ComponentSKU        = "sku"
)

// ErrorReasonUnknown is reported for errors outside the application taxonomy
const ErrorReasonUnknown = "unknown"

// Config labels every series
type Config struct {
	Namespace   string
	Environment string
}

// Recorder counts component outcomes and oracle calls. A nil *Recorder is a
// valid no-op recorder.
type Recorder struct {
	outcomes      *prometheus.CounterVec
	errors        *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	oracleCalls   *prometheus.CounterVec
	oracleLatency prometheus.Histogram
}

// NewRecorder registers the reconciliation series with registerer. A nil
// registerer uses the prometheus default.
func NewRecorder(registerer prometheus.Registerer, cfg Config) *Recorder {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	namespace := strings.TrimSpace(cfg.Namespace)
	if namespace == "" {
		namespace = "auditflow"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{"env": environment}

	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "reconciliation_outcomes_total",
		Help:        "Reconciliation results by component and outcome class.",
		ConstLabels: constLabels,
	}, []string{"component", "outcome"})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "reconciliation_errors_total",
		Help:        "Reconciliation failures by component and error category.",
		ConstLabels: constLabels,
	}, []string{"component", "reason"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Name:        "reconciliation_duration_seconds",
		Help:        "Latency of one reconciliation operation.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"component"})
	oracleCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "sku_oracle_calls_total",
		Help:        "SKU oracle calls by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	oracleLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   namespace,
		Name:        "sku_oracle_latency_seconds",
		Help:        "SKU oracle call latency, including failed calls.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30},
		ConstLabels: constLabels,
	})

	registerer.MustRegister(outcomes, errs, duration, oracleCalls, oracleLatency)

	return &Recorder{
		outcomes:      outcomes,
		errors:        errs,
		duration:      duration,
		oracleCalls:   oracleCalls,
		oracleLatency: oracleLatency,
	}
}

// RecordOutcome counts one result of component classified as outcome
func (r *Recorder) RecordOutcome(component, outcome string) {
	if r == nil {
		return
	}
	if outcome == "" {
		outcome = "none"
	}
	r.outcomes.WithLabelValues(component, outcome).Inc()
}

// RecordError counts a failed operation of component
func (r *Recorder) RecordError(component string, err error) {
	if r == nil || err == nil {
		return
	}
	r.errors.WithLabelValues(component, ClassifyError(err)).Inc()
}

// ObserveDuration records the latency of one operation of component
func (r *Recorder) ObserveDuration(component string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.duration.WithLabelValues(component).Observe(elapsed.Seconds())
}

// ObserveOracle implements sku.OracleRecorder
func (r *Recorder) ObserveOracle(outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.oracleCalls.WithLabelValues(outcome).Inc()
	r.oracleLatency.Observe(elapsed.Seconds())
}

// ClassifyError maps err to a low-cardinality reason label
func ClassifyError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "deadline_exceeded"
	}
	if re, ok := apperrors.AsReconcilerError(err); ok {
		return string(re.Category)
	}
	return ErrorReasonUnknown
}
