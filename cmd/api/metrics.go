package main

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shiftsentry/attendance-backend/internal/domain/anomaly"
	"github.com/shiftsentry/attendance-backend/internal/domain/attendance"
	"github.com/shiftsentry/attendance-backend/internal/service/detection"
)

// Metric definitions for the attendance API. Each small struct below
// implements the MetricsCollector interface of one service package and is
// handed over via SetMetrics during wiring.

var (
	validationLayerOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shiftsentry",
			Subsystem: "validation",
			Name:      "layer_outcomes_total",
			Help:      "Validation layer outcomes by layer and outcome",
		},
		[]string{"layer", "outcome"},
	)

	validationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shiftsentry",
			Subsystem: "validation",
			Name:      "evaluation_duration_seconds",
			Help:      "Full validation chain duration",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14), // 100μs to ~1.6s
		},
		[]string{"admitted"},
	)

	anomalyScoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shiftsentry",
			Subsystem: "anomaly",
			Name:      "score_duration_seconds",
			Help:      "Per-metric anomaly scoring duration",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 14), // 10μs to ~160ms
		},
		[]string{"metric", "anomalous"},
	)

	correlationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shiftsentry",
			Subsystem: "correlation",
			Name:      "findings_total",
			Help:      "Correlated findings by whether a new alert was created",
		},
		[]string{"created"},
	)

	correlationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "shiftsentry",
			Subsystem: "correlation",
			Name:      "duration_seconds",
			Help:      "Finding correlation duration including retries",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
	)

	correlationConflictRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "shiftsentry",
			Subsystem: "correlation",
			Name:      "conflict_retries_total",
			Help:      "Optimistic concurrency conflicts retried during correlation",
		},
	)

	detectionProcessDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shiftsentry",
			Subsystem: "detection",
			Name:      "process_duration_seconds",
			Help:      "End-to-end event processing duration by outcome",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
		[]string{"outcome"},
	)

	detectionPredictorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shiftsentry",
			Subsystem: "detection",
			Name:      "predictor_duration_seconds",
			Help:      "External fraud predictor call duration",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"ok"},
	)

	detectionQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "shiftsentry",
			Subsystem: "detection",
			Name:      "queue_depth",
			Help:      "Pending events per pipeline shard",
		},
		[]string{"shard"},
	)

	broadcastPublishes = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "shiftsentry",
			Subsystem: "broadcast",
			Name:      "publishes_total",
			Help:      "Alert messages published to the hub",
		},
	)

	broadcastDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "shiftsentry",
			Subsystem: "broadcast",
			Name:      "deliveries_total",
			Help:      "Per-subscriber deliveries fanned out by the hub",
		},
	)

	broadcastDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shiftsentry",
			Subsystem: "broadcast",
			Name:      "dropped_total",
			Help:      "Messages dropped by the hub by reason",
		},
		[]string{"reason"},
	)

	broadcastSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "shiftsentry",
			Subsystem: "broadcast",
			Name:      "subscribers",
			Help:      "Currently registered websocket subscribers",
		},
	)
)

type validationMetrics struct{}

func (validationMetrics) RecordLayerOutcome(layer attendance.LayerCode, outcome attendance.LayerOutcome) {
	validationLayerOutcomes.WithLabelValues(string(layer), outcome.String()).Inc()
}

func (validationMetrics) RecordEvaluation(admitted bool, duration time.Duration) {
	validationDuration.WithLabelValues(strconv.FormatBool(admitted)).Observe(duration.Seconds())
}

type anomalyMetrics struct{}

func (anomalyMetrics) RecordScore(metric anomaly.Metric, anomalous bool, duration time.Duration) {
	anomalyScoreDuration.WithLabelValues(string(metric), strconv.FormatBool(anomalous)).Observe(duration.Seconds())
}

type correlationMetrics struct{}

func (correlationMetrics) RecordCorrelation(created bool, duration time.Duration) {
	correlationsTotal.WithLabelValues(strconv.FormatBool(created)).Inc()
	correlationDuration.Observe(duration.Seconds())
}

func (correlationMetrics) RecordConflictRetry() {
	correlationConflictRetries.Inc()
}

type detectionMetrics struct{}

func (detectionMetrics) RecordProcess(outcome detection.Outcome, duration time.Duration) {
	detectionProcessDuration.WithLabelValues(outcome.String()).Observe(duration.Seconds())
}

func (detectionMetrics) RecordPredictor(ok bool, duration time.Duration) {
	detectionPredictorDuration.WithLabelValues(strconv.FormatBool(ok)).Observe(duration.Seconds())
}

func (detectionMetrics) RecordQueueDepth(shard int, depth int) {
	detectionQueueDepth.WithLabelValues(strconv.Itoa(shard)).Set(float64(depth))
}

type broadcastMetrics struct{}

func (broadcastMetrics) RecordPublish(topics int, subscribers int) {
	broadcastPublishes.Inc()
	broadcastDeliveries.Add(float64(subscribers))
}

func (broadcastMetrics) RecordDropped(reason string) {
	broadcastDropped.WithLabelValues(reason).Inc()
}

func (broadcastMetrics) RecordSubscribers(count int) {
	broadcastSubscribers.Set(float64(count))
}
