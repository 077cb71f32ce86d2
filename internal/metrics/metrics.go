package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the forecasting core.
type Metrics struct {
	Predictions        *prometheus.CounterVec
	PredictionDuration *prometheus.HistogramVec

	TrainingRuns     *prometheus.CounterVec
	TrainingDuration *prometheus.HistogramVec

	QualitativeCalls    *prometheus.CounterVec
	FeatureDegradations *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers every collector on reg. A nil reg yields unregistered collectors, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Predictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapforecast_predictions_total",
				Help: "Predictions served by model type and strategy",
			},
			[]string{"model_type", "strategy"},
		),
		PredictionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "snapforecast_prediction_duration_seconds",
				Help:    "End-to-end prediction latency including feature extraction",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model_type"},
		),
		TrainingRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapforecast_training_runs_total",
				Help: "Training runs by model type and outcome",
			},
			[]string{"model_type", "outcome"},
		),
		TrainingDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "snapforecast_training_duration_seconds",
				Help:    "Wall time of ensemble training runs",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"model_type"},
		),
		QualitativeCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapforecast_qualitative_calls_total",
				Help: "Qualitative scoring calls by outcome",
			},
			[]string{"outcome"},
		),
		FeatureDegradations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapforecast_feature_degradations_total",
				Help: "Feature groups omitted because a sub-step failed",
			},
			[]string{"group"},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapforecast_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "snapforecast_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Nop returns collectors that are not registered anywhere.
func Nop() *Metrics { return New(nil) }

// OrNop returns m, or unregistered collectors when m is nil.
func OrNop(m *Metrics) *Metrics {
	if m == nil {
		return Nop()
	}
	return m
}
