// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/finmatch/recommender/internal/metrics"
)

// ServiceConfig tunes the orchestration layer.
type ServiceConfig struct {
	// DefaultCount is used when a caller asks for zero recommendations.
	DefaultCount int `koanf:"default_count"`

	// MaxSessionSeeds caps how many recent session products seed the
	// session-based similarity expansion.
	MaxSessionSeeds int `koanf:"max_session_seeds"`

	// SimilarPerSeed is how many similar products each seed contributes.
	SimilarPerSeed int `koanf:"similar_per_seed"`

	// FallbackScore is the fixed relevance assigned to popularity
	// fallback results.
	FallbackScore float64 `koanf:"fallback_score"`

	// TrainingLimit bounds how many recent interactions feed a refresh.
	TrainingLimit int `koanf:"training_limit"`

	// SessionLookback bounds how many session interactions are scanned
	// for seed products.
	SessionLookback int `koanf:"session_lookback"`
}

// DefaultServiceConfig returns the standard service tuning.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		DefaultCount:    5,
		MaxSessionSeeds: 3,
		SimilarPerSeed:  3,
		FallbackScore:   0.5,
		TrainingLimit:   50000,
		SessionLookback: 50,
	}
}

// Service orchestrates the recommendation domain: it answers
// recommendation queries against the active model generation, degrades
// to a popularity fallback for cold starts, and drives model refresh
// cycles.
type Service struct {
	cfg     ServiceConfig
	model   RecommendationModel
	store   GenerationStore
	repo    InteractionRepository
	catalog ProductCatalog
	logger  zerolog.Logger

	refreshMu sync.Mutex
}

// NewService creates the domain service. catalog may be nil, in which
// case recommendations are served without product detail enrichment.
func NewService(cfg ServiceConfig, model RecommendationModel, store GenerationStore, repo InteractionRepository, catalog ProductCatalog, logger zerolog.Logger) *Service {
	if cfg.DefaultCount <= 0 {
		cfg.DefaultCount = 5
	}
	if cfg.MaxSessionSeeds <= 0 {
		cfg.MaxSessionSeeds = 3
	}
	if cfg.SimilarPerSeed <= 0 {
		cfg.SimilarPerSeed = 3
	}
	if cfg.FallbackScore <= 0 {
		cfg.FallbackScore = 0.5
	}
	if cfg.TrainingLimit <= 0 {
		cfg.TrainingLimit = 50000
	}
	if cfg.SessionLookback <= 0 {
		cfg.SessionLookback = 50
	}

	return &Service{
		cfg:     cfg,
		model:   model,
		store:   store,
		repo:    repo,
		catalog: catalog,
		logger:  logger.With().Str("component", "recommend").Logger(),
	}
}

// Ready reports whether the active model generation can serve
// personalized predictions.
func (s *Service) Ready() bool {
	return s.model.Ready()
}

// GetUserRecommendations returns the top-count personalized
// recommendations for a user. Unknown users and scoring failures
// degrade to the popularity fallback; an absent model generation is
// reported as ErrModelNotReady.
func (s *Service) GetUserRecommendations(ctx context.Context, userID string, count int) ([]ProductRecommendation, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrInvalidParameter)
	}
	count = s.normalizeCount(count)

	if !s.model.Ready() {
		return nil, ErrModelNotReady
	}

	recs, err := s.model.PredictForUser(userID, count)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			s.logger.Warn().Err(err).Str("user_id", userID).
				Msg("prediction failed, serving fallback")
		}
		return s.fallback(ctx, "user", count)
	}

	metrics.RecommendationRequests.WithLabelValues("user", "model").Inc()
	return s.enrich(ctx, recs), nil
}

// GetSessionRecommendations returns recommendations for an anonymous
// session, expanding the most recently touched session products into
// their nearest neighbors. Sessions without extractable products, and
// cold-start situations, degrade to the popularity fallback.
func (s *Service) GetSessionRecommendations(ctx context.Context, sessionID string, count int) ([]ProductRecommendation, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: empty session id", ErrInvalidParameter)
	}
	count = s.normalizeCount(count)

	if !s.model.Ready() {
		return s.fallback(ctx, "session", count)
	}

	interactions, err := s.repo.GetSessionInteractions(ctx, sessionID, s.cfg.SessionLookback)
	if err != nil {
		return nil, err
	}

	seeds := s.sessionSeeds(interactions)
	if len(seeds) == 0 {
		return s.fallback(ctx, "session", count)
	}

	// Aggregate neighbor scores across seeds, keeping the best score
	// per candidate. Everything the session already touched is
	// excluded, not just the seeds.
	viewed := make(map[string]struct{})
	for i := range interactions {
		for _, id := range interactions[i].ProductRefs() {
			viewed[id] = struct{}{}
		}
	}

	best := make(map[string]float64)
	for _, seed := range seeds {
		similar, err := s.model.SimilarProducts(seed, s.cfg.SimilarPerSeed)
		if err != nil {
			if errors.Is(err, ErrProductNotFound) {
				continue
			}
			s.logger.Warn().Err(err).Str("product_id", seed).
				Msg("similarity lookup failed, serving fallback")
			return s.fallback(ctx, "session", count)
		}
		for _, rec := range similar {
			if _, seen := viewed[rec.ProductID]; seen {
				continue
			}
			if cur, ok := best[rec.ProductID]; !ok || rec.Score > cur {
				best[rec.ProductID] = rec.Score
			}
		}
	}

	if len(best) == 0 {
		return s.fallback(ctx, "session", count)
	}

	recs := make([]ProductRecommendation, 0, len(best))
	for id, score := range best {
		recs = append(recs, ProductRecommendation{ProductID: id, Score: score})
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].ProductID < recs[j].ProductID
	})
	if len(recs) > count {
		recs = recs[:count]
	}
	rerank(recs)

	metrics.RecommendationRequests.WithLabelValues("session", "model").Inc()
	return s.enrich(ctx, recs), nil
}

// GetSimilarProducts returns the products closest to productID in the
// latent space of the active generation. Unlike the user and session
// paths this does not fall back: callers asked about a specific
// product and get an explicit error when it is unknown.
func (s *Service) GetSimilarProducts(ctx context.Context, productID string, count int) ([]ProductRecommendation, error) {
	if productID == "" {
		return nil, fmt.Errorf("%w: empty product id", ErrInvalidParameter)
	}
	count = s.normalizeCount(count)

	recs, err := s.model.SimilarProducts(productID, count)
	if err != nil {
		return nil, err
	}

	metrics.RecommendationRequests.WithLabelValues("similar", "model").Inc()
	return s.enrich(ctx, recs), nil
}

// RefreshModel runs one training cycle: load recent interactions,
// train a new generation, persist it, then atomically swap it in.
// Serving continues on the previous generation until the swap. All
// failures are captured in the result rather than returned.
func (s *Service) RefreshModel(ctx context.Context) RefreshResult {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	started := time.Now()
	result := func(success bool, errMsg string, stats TrainStats) RefreshResult {
		finished := time.Now()
		outcome := "success"
		if !success {
			outcome = "failure"
		}
		metrics.TrainingRuns.WithLabelValues(outcome).Inc()
		metrics.TrainingDuration.Observe(finished.Sub(started).Seconds())
		return RefreshResult{
			Success:    success,
			Error:      errMsg,
			Stats:      stats,
			StartedAt:  started,
			FinishedAt: finished,
			Duration:   finished.Sub(started),
		}
	}

	interactions, err := s.repo.GetTrainingInteractions(ctx, s.cfg.TrainingLimit)
	if err != nil {
		s.logger.Error().Err(err).Msg("refresh aborted: loading training data failed")
		return result(false, err.Error(), TrainStats{})
	}
	if len(interactions) == 0 {
		s.logger.Info().Msg("refresh skipped: no training data available")
		return result(false, "no training data available", TrainStats{})
	}

	prefs := s.collectPreferences(ctx, interactions)

	gen, stats, err := s.model.Train(ctx, interactions, prefs)
	if err != nil {
		s.logger.Error().Err(err).Msg("refresh aborted: training failed")
		return result(false, err.Error(), stats)
	}

	if err := s.store.Save(ctx, gen); err != nil {
		// Keep serving the previous generation rather than activate
		// something that would be lost on restart.
		s.logger.Error().Err(err).Msg("refresh aborted: persisting generation failed")
		return result(false, err.Error(), stats)
	}

	if err := s.model.Activate(gen); err != nil {
		s.logger.Error().Err(err).Msg("refresh aborted: activating generation failed")
		return result(false, err.Error(), stats)
	}

	metrics.ModelUsers.Set(float64(stats.UserCount))
	metrics.ModelItems.Set(float64(stats.ItemCount))
	metrics.ModelTrainedAt.Set(float64(stats.TrainedAt.Unix()))

	s.logger.Info().
		Int("users", stats.UserCount).
		Int("items", stats.ItemCount).
		Int("interactions", stats.InteractionCount).
		Dur("duration", stats.Duration).
		Msg("model generation activated")

	return result(true, "", stats)
}

// RestoreModel loads the persisted generation, if any, and activates
// it. Called once at startup so the service survives restarts without
// retraining.
func (s *Service) RestoreModel(ctx context.Context) error {
	gen, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	if gen == nil {
		return nil
	}
	if err := s.model.Activate(gen); err != nil {
		return err
	}
	s.logger.Info().Time("trained_at", gen.TrainedAt()).Msg("restored persisted model generation")
	return nil
}

func (s *Service) normalizeCount(count int) int {
	if count <= 0 {
		return s.cfg.DefaultCount
	}
	return count
}

// sessionSeeds extracts up to MaxSessionSeeds distinct product IDs from
// session interactions, most recent first.
func (s *Service) sessionSeeds(interactions []UserInteraction) []string {
	sorted := make([]UserInteraction, len(interactions))
	copy(sorted, interactions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	seen := make(map[string]struct{})
	var seeds []string
	for _, in := range sorted {
		for _, id := range in.ProductRefs() {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			seeds = append(seeds, id)
			if len(seeds) == s.cfg.MaxSessionSeeds {
				return seeds
			}
		}
	}
	return seeds
}

// fallback serves the most-viewed products at a fixed relevance score.
// When even the popularity query fails the caller gets an empty list,
// not an error: fallback is the last line of degradation.
func (s *Service) fallback(ctx context.Context, kind string, count int) ([]ProductRecommendation, error) {
	popular, err := s.repo.GetMostViewedProducts(ctx, count)
	if err != nil {
		s.logger.Error().Err(err).Str("kind", kind).Msg("popularity fallback unavailable")
		metrics.RecommendationRequests.WithLabelValues(kind, "empty").Inc()
		return []ProductRecommendation{}, nil
	}

	recs := make([]ProductRecommendation, 0, len(popular))
	for i, p := range popular {
		recs = append(recs, ProductRecommendation{
			ProductID: p.ProductID,
			Score:     s.cfg.FallbackScore,
			Rank:      i + 1,
			Details:   map[string]any{"viewCount": p.ViewCount},
		})
	}

	metrics.RecommendationRequests.WithLabelValues(kind, "fallback").Inc()
	return s.enrich(ctx, recs), nil
}

// collectPreferences gathers declared preferences for every user seen
// in the training set. Per-user lookup failures are logged and skipped;
// training proceeds with whatever was found.
func (s *Service) collectPreferences(ctx context.Context, interactions []UserInteraction) Preferences {
	userIDs := make(map[string]struct{})
	for i := range interactions {
		if interactions[i].UserID != "" {
			userIDs[interactions[i].UserID] = struct{}{}
		}
	}

	prefs := make(Preferences, len(userIDs))
	for userID := range userIDs {
		p, err := s.repo.GetUserPreferences(ctx, userID)
		if err != nil {
			s.logger.Debug().Err(err).Str("user_id", userID).Msg("skipping preferences")
			continue
		}
		if len(p) > 0 {
			prefs[userID] = p
		}
	}
	return prefs
}

// enrich attaches product catalog details. Enrichment is best-effort:
// on catalog failure the recommendations are returned untouched, and
// ordering and ranks never change.
func (s *Service) enrich(ctx context.Context, recs []ProductRecommendation) []ProductRecommendation {
	if s.catalog == nil || len(recs) == 0 {
		return recs
	}

	ids := make([]string, len(recs))
	for i := range recs {
		ids[i] = recs[i].ProductID
	}

	details, err := s.catalog.GetProductDetailsBatch(ctx, ids)
	if err != nil {
		s.logger.Warn().Err(err).Msg("product enrichment failed")
		return recs
	}

	for i := range recs {
		d, ok := details[recs[i].ProductID]
		if !ok {
			continue
		}
		if recs[i].Details == nil {
			recs[i].Details = make(map[string]any, len(d))
		}
		for k, v := range d {
			recs[i].Details[k] = v
		}
	}
	return recs
}

// rerank rewrites ranks to be consecutive from 1 in slice order.
func rerank(recs []ProductRecommendation) {
	for i := range recs {
		recs[i].Rank = i + 1
	}
}
