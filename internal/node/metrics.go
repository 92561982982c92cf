package node

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Labels stay bounded: no per-actor or per-entity values.
var (
	frameDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bubbles_frame_duration_seconds",
		Help:    "Time spent advancing the predicted timeline and publishing a frame",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
	})

	inputsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bubbles_inputs_total",
		Help: "Inputs received, by source and result code",
	}, []string{"source", "code"})

	rollbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bubbles_rollbacks_total",
		Help: "Timeline rollbacks",
	}, []string{"timeline", "gap"})

	rollbackReplayed = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bubbles_rollback_replayed_inputs",
		Help:    "Inputs re-applied per rollback",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	predictedClock = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bubbles_predicted_clock_ms",
		Help: "Predicted timeline clock",
	})

	confirmedClock = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bubbles_confirmed_clock_ms",
		Help: "Confirmed timeline clock",
	})

	pendingPredictions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bubbles_pending_predictions",
		Help: "Predictions awaiting ledger confirmation",
	})

	subscribersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bubbles_subscribers_active",
		Help: "Connected presentation sockets",
	})

	framesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bubbles_frames_dropped_total",
		Help: "Frames not delivered because a subscriber queue was full",
	})

	checkpointErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bubbles_checkpoint_errors_total",
		Help: "Checkpoint or ledger log writes that failed",
	})
)
