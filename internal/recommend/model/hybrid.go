// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

package model

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/finmatch/recommender/internal/recommend"
	"github.com/finmatch/recommender/internal/recommend/pipeline"
)

// Config contains hyperparameters for the hybrid model.
type Config struct {
	// Factors is the dimension of the latent factor vectors.
	// Default: 50.
	Factors int `koanf:"factors"`

	// LearningRate is the SGD step size.
	// Default: 0.05.
	LearningRate float64 `koanf:"learning_rate"`

	// Epochs is the number of training passes over the positive pairs.
	// Default: 20.
	Epochs int `koanf:"epochs"`

	// UserAlpha is the L2 regularization on user-side parameters.
	// Default: 1e-5.
	UserAlpha float64 `koanf:"user_alpha"`

	// ItemAlpha is the L2 regularization on item-side parameters.
	// Default: 1e-5.
	ItemAlpha float64 `koanf:"item_alpha"`

	// NegativeSamples is how many negative items are drawn per positive.
	// Default: 5.
	NegativeSamples int `koanf:"negative_samples"`

	// Seed makes training reproducible. If 0, a fixed default is used.
	Seed int64 `koanf:"seed"`
}

// DefaultConfig returns the standard hyperparameters.
func DefaultConfig() Config {
	return Config{
		Factors:         50,
		LearningRate:    0.05,
		Epochs:          20,
		UserAlpha:       1e-5,
		ItemAlpha:       1e-5,
		NegativeSamples: 5,
		Seed:            42,
	}
}

// Hybrid trains model generations and serves predictions from the
// active one. The active artifact is swapped atomically; in-flight
// readers keep the generation they started with.
type Hybrid struct {
	cfg    Config
	logger zerolog.Logger
	active atomic.Pointer[Artifact]
}

// New creates a hybrid model with no active generation.
func New(cfg Config, logger zerolog.Logger) *Hybrid {
	if cfg.Factors <= 0 {
		cfg.Factors = 50
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.05
	}
	if cfg.Epochs <= 0 {
		cfg.Epochs = 20
	}
	if cfg.UserAlpha <= 0 {
		cfg.UserAlpha = 1e-5
	}
	if cfg.ItemAlpha <= 0 {
		cfg.ItemAlpha = 1e-5
	}
	if cfg.NegativeSamples <= 0 {
		cfg.NegativeSamples = 5
	}
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}

	return &Hybrid{
		cfg:    cfg,
		logger: logger.With().Str("component", "model").Logger(),
	}
}

// Ready reports whether an active generation can serve predictions.
func (h *Hybrid) Ready() bool {
	return h.active.Load().Ready()
}

// Activate installs a generation as the serving model. The swap is a
// single pointer store; readers never observe a partial generation.
func (h *Hybrid) Activate(g recommend.Generation) error {
	artifact, ok := g.(*Artifact)
	if !ok {
		return fmt.Errorf("%w: unexpected generation type %T", recommend.ErrInvalidParameter, g)
	}
	if !artifact.Ready() {
		return fmt.Errorf("%w: generation is not servable", recommend.ErrInvalidParameter)
	}
	h.active.Store(artifact)
	return nil
}

// Active returns the current serving artifact, or nil.
func (h *Hybrid) Active() *Artifact {
	return h.active.Load()
}

// Train fits a new model generation from the given interactions using
// stochastic gradient descent on a pairwise ranking objective: for each
// observed (user, item) pair and a sampled unobserved item, the model
// learns to score the observed item higher. The interaction weight
// scales the gradient so high-intent events pull harder. The returned
// generation is not active until Activate is called.
//
//nolint:gocyclo // SGD training loops are inherently long
func (h *Hybrid) Train(ctx context.Context, interactions []recommend.UserInteraction, prefs recommend.Preferences) (recommend.Generation, recommend.TrainStats, error) {
	start := time.Now()

	ds := pipeline.Build(interactions, prefs)
	numUsers := ds.Users.Len()
	numItems := ds.Items.Len()
	numFeatures := ds.Features.Len()
	k := h.cfg.Factors

	if err := ctx.Err(); err != nil {
		return nil, recommend.TrainStats{}, err
	}

	//nolint:gosec // G404: math/rand is fine for ML initialization
	rng := rand.New(rand.NewSource(h.cfg.Seed))

	userFactors := randomMatrix(rng, numUsers, k)
	itemFactors := randomMatrix(rng, numItems, k)
	userFeatFactors := randomMatrix(rng, numFeatures, k)
	itemFeatFactors := randomMatrix(rng, numFeatures, k)
	itemBiases := make([]float64, numItems)

	// Per-user positive item sets for negative sampling.
	userItems := make(map[int]map[int]struct{}, numUsers)
	positives := make([]pipeline.Entry, len(ds.Interactions.Entries))
	copy(positives, ds.Interactions.Entries)
	for _, e := range positives {
		if userItems[e.Row] == nil {
			userItems[e.Row] = make(map[int]struct{})
		}
		userItems[e.Row][e.Col] = struct{}{}
	}

	lr := h.cfg.LearningRate
	uReg := h.cfg.UserAlpha
	iReg := h.cfg.ItemAlpha

	eu := make([]float64, k)
	ei := make([]float64, k)
	ej := make([]float64, k)

	for epoch := 0; epoch < h.cfg.Epochs && len(positives) > 0; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, recommend.TrainStats{}, fmt.Errorf("training interrupted: %w", err)
		}

		rng.Shuffle(len(positives), func(i, j int) {
			positives[i], positives[j] = positives[j], positives[i]
		})

		for _, pos := range positives {
			u, i, w := pos.Row, pos.Col, pos.Weight
			positiveSet := userItems[u]

			for ns := 0; ns < h.cfg.NegativeSamples; ns++ {
				// Sample an item the user has not interacted with.
				var j int
				for tries := 0; tries < 100; tries++ {
					j = rng.Intn(numItems)
					if _, ok := positiveSet[j]; !ok {
						break
					}
				}
				if _, ok := positiveSet[j]; ok {
					continue
				}

				uFeats := ds.UserFeatures.RowEntries[u]
				iFeats := ds.ItemFeatures.RowEntries[i]
				jFeats := ds.ItemFeatures.RowEntries[j]

				effectiveVec(eu, userFactors[u], userFeatFactors, uFeats)
				effectiveVec(ei, itemFactors[i], itemFeatFactors, iFeats)
				effectiveVec(ej, itemFactors[j], itemFeatFactors, jFeats)

				// x_uij = score(u,i) - score(u,j)
				xuij := itemBiases[i] - itemBiases[j]
				for f := 0; f < k; f++ {
					xuij += eu[f] * (ei[f] - ej[f])
				}

				// d/d_theta ln(sigmoid(x)) = 1 / (1 + exp(x)),
				// scaled by the interaction weight.
				sigmoid := 1.0 / (1.0 + math.Exp(xuij))
				if sigmoid < 1e-10 {
					continue
				}
				g := w * sigmoid

				for f := 0; f < k; f++ {
					du := g * (ei[f] - ej[f])
					di := g * eu[f]

					userFactors[u][f] += lr * (du - uReg*userFactors[u][f])
					for _, fw := range uFeats {
						userFeatFactors[fw.Col][f] += lr * (du*fw.Weight - uReg*userFeatFactors[fw.Col][f])
					}

					itemFactors[i][f] += lr * (di - iReg*itemFactors[i][f])
					for _, fw := range iFeats {
						itemFeatFactors[fw.Col][f] += lr * (di*fw.Weight - iReg*itemFeatFactors[fw.Col][f])
					}

					itemFactors[j][f] += lr * (-di - iReg*itemFactors[j][f])
					for _, fw := range jFeats {
						itemFeatFactors[fw.Col][f] += lr * (-di*fw.Weight - iReg*itemFeatFactors[fw.Col][f])
					}
				}

				itemBiases[i] += lr * (g - iReg*itemBiases[i])
				itemBiases[j] += lr * (-g - iReg*itemBiases[j])
			}
		}

		// Learning rate decay
		if epoch > 0 && epoch%10 == 0 {
			lr *= 0.95
		}
	}

	// Fold side-feature contributions into final embeddings so serving
	// never touches the feature matrices.
	userEmb := make([][]float64, numUsers)
	for u := 0; u < numUsers; u++ {
		vec := make([]float64, k)
		effectiveVec(vec, userFactors[u], userFeatFactors, ds.UserFeatures.RowEntries[u])
		userEmb[u] = vec
	}
	itemEmb := make([][]float64, numItems)
	for i := 0; i < numItems; i++ {
		vec := make([]float64, k)
		effectiveVec(vec, itemFactors[i], itemFeatFactors, ds.ItemFeatures.RowEntries[i])
		itemEmb[i] = vec
	}

	trainedAt := time.Now()
	stats := recommend.TrainStats{
		UserCount:        numUsers,
		ItemCount:        numItems,
		InteractionCount: len(ds.Interactions.Entries),
		Duration:         trainedAt.Sub(start),
		TrainedAt:        trainedAt,
	}

	artifact := &Artifact{
		Weights: Weights{
			Factors:        k,
			UserEmbeddings: userEmb,
			ItemEmbeddings: itemEmb,
			ItemBiases:     itemBiases,
			TrainedAt:      trainedAt,
			Stats:          stats,
		},
		Users:    ds.Users,
		Items:    ds.Items,
		Features: ds.Features,
	}

	h.logger.Debug().
		Int("users", numUsers).
		Int("items", numItems).
		Int("positives", len(positives)).
		Dur("duration", stats.Duration).
		Msg("training complete")

	return artifact, stats, nil
}

// PredictForUser scores every item for the user against the active
// generation and returns the top count, ranked from 1. Ties break on
// ascending product ID so results are stable across calls.
func (h *Hybrid) PredictForUser(userID string, count int) ([]recommend.ProductRecommendation, error) {
	a := h.active.Load()
	if !a.Ready() {
		return nil, recommend.ErrModelNotReady
	}

	u, ok := a.Users.Index(userID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", recommend.ErrUserNotFound, userID)
	}

	userVec := a.Weights.UserEmbeddings[u]
	scored := make([]recommend.ProductRecommendation, 0, a.Items.Len())
	for i, itemVec := range a.Weights.ItemEmbeddings {
		score := a.Weights.ItemBiases[i] + dot(userVec, itemVec)
		id, _ := a.Items.ID(i)
		scored = append(scored, recommend.ProductRecommendation{ProductID: id, Score: score})
	}

	sort.Slice(scored, func(x, y int) bool {
		if scored[x].Score != scored[y].Score {
			return scored[x].Score > scored[y].Score
		}
		return scored[x].ProductID < scored[y].ProductID
	})

	if count > 0 && len(scored) > count {
		scored = scored[:count]
	}
	for i := range scored {
		scored[i].Rank = i + 1
	}
	return scored, nil
}

// SimilarProducts returns the items closest to productID by cosine
// similarity of the item embeddings, excluding the product itself.
// Ties break on ascending internal index, which reflects first-seen
// training order.
func (h *Hybrid) SimilarProducts(productID string, count int) ([]recommend.ProductRecommendation, error) {
	a := h.active.Load()
	if !a.Ready() {
		return nil, recommend.ErrModelNotReady
	}

	source, ok := a.Items.Index(productID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", recommend.ErrProductNotFound, productID)
	}

	sourceVec := a.Weights.ItemEmbeddings[source]

	type candidate struct {
		idx   int
		score float64
	}
	candidates := make([]candidate, 0, a.Items.Len()-1)
	for i, itemVec := range a.Weights.ItemEmbeddings {
		if i == source {
			continue
		}
		candidates = append(candidates, candidate{idx: i, score: cosine(sourceVec, itemVec)})
	}

	sort.Slice(candidates, func(x, y int) bool {
		if candidates[x].score != candidates[y].score {
			return candidates[x].score > candidates[y].score
		}
		return candidates[x].idx < candidates[y].idx
	})

	if count > 0 && len(candidates) > count {
		candidates = candidates[:count]
	}

	recs := make([]recommend.ProductRecommendation, len(candidates))
	for i, c := range candidates {
		id, _ := a.Items.ID(c.idx)
		recs[i] = recommend.ProductRecommendation{
			ProductID: id,
			Score:     c.score,
			Rank:      i + 1,
		}
	}
	return recs, nil
}

var _ recommend.RecommendationModel = (*Hybrid)(nil)

// effectiveVec writes identity + weighted feature factors into dst.
func effectiveVec(dst, identity []float64, featFactors [][]float64, feats []pipeline.FeatureWeight) {
	copy(dst, identity)
	for _, fw := range feats {
		vec := featFactors[fw.Col]
		for f := range dst {
			dst[f] += fw.Weight * vec[f]
		}
	}
}

// randomMatrix initializes a rows x cols matrix with small random values.
func randomMatrix(rng *rand.Rand, rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		m[r] = make([]float64, cols)
		for c := 0; c < cols; c++ {
			m[r][c] = (rng.Float64() - 0.5) * 0.01
		}
	}
	return m
}

func dot(a, b []float64) float64 {
	var sum float64
	for f := range a {
		sum += a[f] * b[f]
	}
	return sum
}

// cosine computes cosine similarity, 0 for zero-magnitude vectors.
func cosine(a, b []float64) float64 {
	var dotp, normA, normB float64
	for f := range a {
		dotp += a[f] * b[f]
		normA += a[f] * a[f]
		normB += b[f] * b[f]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotp / (math.Sqrt(normA) * math.Sqrt(normB))
}
