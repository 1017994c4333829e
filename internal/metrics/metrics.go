// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "finmatch"

var (
	// RecommendationRequests counts served recommendation requests.
	// kind is user, session, or similar; source is model or fallback.
	RecommendationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "recommender",
		Name:      "requests_total",
		Help:      "Recommendation requests served, by kind and source.",
	}, []string{"kind", "source"})

	// TrainingRuns counts model refresh cycles by result.
	TrainingRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "recommender",
		Name:      "training_runs_total",
		Help:      "Model refresh cycles, by result (success or failure).",
	}, []string{"result"})

	// TrainingDuration observes wall-clock training time in seconds.
	TrainingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "recommender",
		Name:      "training_duration_seconds",
		Help:      "Wall-clock duration of model refresh cycles.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	})

	// ModelUsers is the user count of the active model generation.
	ModelUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "recommender",
		Name:      "model_users",
		Help:      "Users known to the active model generation.",
	})

	// ModelItems is the item count of the active model generation.
	ModelItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "recommender",
		Name:      "model_items",
		Help:      "Items known to the active model generation.",
	})

	// ModelTrainedAt is the unix timestamp of the active generation.
	ModelTrainedAt = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "recommender",
		Name:      "model_trained_at_seconds",
		Help:      "Unix timestamp of the active model generation.",
	})

	// ConsumerMessages counts consumed interaction events by outcome:
	// persisted, invalid (acked poison), or failed (redelivered).
	ConsumerMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "messages_total",
		Help:      "Interaction events consumed, by outcome.",
	}, []string{"outcome"})
)
