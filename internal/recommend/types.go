// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

package recommend

import (
	"context"
	"time"
)

// InteractionType classifies a recorded user interaction.
type InteractionType string

// Interaction types understood by the feedback pipeline. Unknown types
// are stored but contribute the default weight during training.
const (
	TypeView        InteractionType = "product_view"
	TypeComparison  InteractionType = "comparison"
	TypeAction      InteractionType = "interaction"
	TypeApplication InteractionType = "product_application"
	TypeInquiry     InteractionType = "product_inquiry"
	TypeBookmark    InteractionType = "product_bookmark"
	TypePreference  InteractionType = "preference"
)

// InteractionData is the typed payload of an interaction. Only the
// fields relevant to the interaction type are populated; anything the
// producer sent beyond the known fields lands in Extra.
type InteractionData struct {
	// ProductID is the single product the interaction refers to.
	ProductID string `json:"productId,omitempty"`

	// ProductIDs lists the products involved in a comparison.
	ProductIDs []string `json:"productIDs,omitempty"`

	// Action is the sub-action of a generic interaction event
	// (click, favorite, save, apply, purchase).
	Action string `json:"action,omitempty"`

	// ViewDuration is how long the product page was open, in seconds.
	ViewDuration float64 `json:"viewDuration,omitempty"`

	// Product metadata carried on some events, used as item side features.
	Category    string `json:"category,omitempty"`
	ProductType string `json:"type,omitempty"`
	Institution string `json:"institution,omitempty"`

	// Demographics holds user attributes (age_group, income_range,
	// credit_score_range, risk_tolerance) used as user side features.
	Demographics map[string]string `json:"userDemographics,omitempty"`

	// Preferences holds declared user preferences from preference events.
	Preferences map[string]string `json:"preferences,omitempty"`

	// Extra preserves producer-specific fields that have no typed slot.
	Extra map[string]any `json:"extra,omitempty"`
}

// UserInteraction is a single recorded interaction between a user (or
// anonymous session) and the product catalog.
type UserInteraction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	SessionID   string          `json:"sessionId,omitempty"`
	Type        InteractionType `json:"type"`
	Timestamp   time.Time       `json:"timestamp"`
	IngestedAt  time.Time       `json:"ingestedAt"`
	SourceTopic string          `json:"sourceTopic,omitempty"`
	Data        InteractionData `json:"data"`
}

// ProductRefs returns the product identifiers the interaction refers
// to, in payload order, without duplicates. Interactions that carry no
// product reference (preference updates) return nil.
func (i *UserInteraction) ProductRefs() []string {
	if i.Data.ProductID != "" && len(i.Data.ProductIDs) == 0 {
		return []string{i.Data.ProductID}
	}

	seen := make(map[string]struct{}, len(i.Data.ProductIDs)+1)
	var refs []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		refs = append(refs, id)
	}

	add(i.Data.ProductID)
	for _, id := range i.Data.ProductIDs {
		add(id)
	}
	return refs
}

// ProductRecommendation is a single ranked recommendation.
type ProductRecommendation struct {
	ProductID string         `json:"id"`
	Score     float64        `json:"relevanceScore"`
	Rank      int            `json:"rank"`
	Details   map[string]any `json:"details,omitempty"`
}

// ProductViewCount pairs a product with the number of distinct users
// that viewed it. Used by the popularity fallback.
type ProductViewCount struct {
	ProductID string `json:"productId"`
	ViewCount int    `json:"viewCount"`
}

// TrainStats summarizes a completed training run.
type TrainStats struct {
	UserCount        int           `json:"userCount"`
	ItemCount        int           `json:"itemCount"`
	InteractionCount int           `json:"interactionCount"`
	Duration         time.Duration `json:"duration"`
	TrainedAt        time.Time     `json:"trainedAt"`
}

// RefreshResult is the structured outcome of a model refresh cycle.
// Refresh never panics the caller; failures are reported here.
type RefreshResult struct {
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	Stats      TrainStats    `json:"stats"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Duration   time.Duration `json:"duration"`
}

// Preferences maps user IDs to their declared preference key/values,
// merged into the user feature set at training time.
type Preferences map[string]map[string]string

// Generation is one immutable trained model generation. Readers hold a
// generation for the duration of a request; a refresh installs a new
// one without disturbing them.
type Generation interface {
	// Ready reports whether the generation has non-empty weights and
	// index mappings and can serve predictions.
	Ready() bool

	// TrainedAt is when the generation finished training.
	TrainedAt() time.Time
}

// RecommendationModel trains and serves model generations.
type RecommendationModel interface {
	// Train builds a new generation from the given interactions and
	// per-user preferences. The returned generation is not active
	// until Activate is called.
	Train(ctx context.Context, interactions []UserInteraction, prefs Preferences) (Generation, TrainStats, error)

	// Activate atomically installs a generation as the serving model.
	Activate(g Generation) error

	// PredictForUser returns the top-count personalized recommendations.
	PredictForUser(userID string, count int) ([]ProductRecommendation, error)

	// SimilarProducts returns the top-count products most similar to
	// the given product in latent space.
	SimilarProducts(productID string, count int) ([]ProductRecommendation, error)

	// Ready reports whether an active generation can serve predictions.
	Ready() bool
}

// GenerationStore persists model generations atomically: a load
// observes either a complete generation or none at all.
type GenerationStore interface {
	Save(ctx context.Context, g Generation) error
	Load(ctx context.Context) (Generation, error)
}

// InteractionRepository reads recorded interactions for serving and
// training.
type InteractionRepository interface {
	GetUserInteractions(ctx context.Context, userID string, limit int) ([]UserInteraction, error)
	GetSessionInteractions(ctx context.Context, sessionID string, limit int) ([]UserInteraction, error)
	GetTrainingInteractions(ctx context.Context, limit int) ([]UserInteraction, error)
	GetMostViewedProducts(ctx context.Context, count int) ([]ProductViewCount, error)
	GetUserPreferences(ctx context.Context, userID string) (map[string]string, error)
}

// ProductCatalog resolves product metadata from the catalog service.
// Implementations degrade to placeholder entries rather than failing a
// whole recommendation response.
type ProductCatalog interface {
	GetProductDetails(ctx context.Context, productID string) (map[string]any, error)
	GetProductDetailsBatch(ctx context.Context, productIDs []string) (map[string]map[string]any, error)
}
