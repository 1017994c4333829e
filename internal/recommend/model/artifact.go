// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

package model

import (
	"time"

	"github.com/finmatch/recommender/internal/recommend"
	"github.com/finmatch/recommender/internal/recommend/pipeline"
)

// Weights holds the trained parameters of one model generation. The
// embeddings are the final effective vectors: identity factors plus the
// weighted side-feature contributions folded in at the end of training.
// Fields are exported for gob serialization.
type Weights struct {
	// Factors is the latent dimension.
	Factors int

	// UserEmbeddings is numUsers x Factors.
	UserEmbeddings [][]float64

	// ItemEmbeddings is numItems x Factors.
	ItemEmbeddings [][]float64

	// ItemBiases is one bias per item, added to every dot-product score.
	ItemBiases []float64

	// TrainedAt is when training finished.
	TrainedAt time.Time

	// Stats summarizes the training run that produced these weights.
	Stats recommend.TrainStats
}

// Artifact is one immutable trained model generation: weights plus the
// identifier mappings they were trained against. An artifact is never
// mutated after training; refreshes replace the whole artifact.
type Artifact struct {
	Weights  Weights
	Users    *pipeline.IndexMap
	Items    *pipeline.IndexMap
	Features *pipeline.IndexMap
}

// Ready reports whether the artifact has consistent, non-empty weights
// and mappings and can serve predictions.
func (a *Artifact) Ready() bool {
	if a == nil || a.Users == nil || a.Items == nil || a.Features == nil {
		return false
	}
	if a.Users.Len() == 0 || a.Items.Len() == 0 || a.Features.Len() == 0 {
		return false
	}
	if a.Weights.Factors <= 0 {
		return false
	}
	return len(a.Weights.UserEmbeddings) == a.Users.Len() &&
		len(a.Weights.ItemEmbeddings) == a.Items.Len() &&
		len(a.Weights.ItemBiases) == a.Items.Len()
}

// TrainedAt is when the artifact finished training.
func (a *Artifact) TrainedAt() time.Time {
	return a.Weights.TrainedAt
}

var _ recommend.Generation = (*Artifact)(nil)
