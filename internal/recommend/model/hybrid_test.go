// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/finmatch/recommender/internal/recommend"
)

func testInteractions() []recommend.UserInteraction {
	now := time.Now()
	mk := func(user, product string, typ recommend.InteractionType) recommend.UserInteraction {
		return recommend.UserInteraction{
			UserID:    user,
			Type:      typ,
			Timestamp: now,
			Data:      recommend.InteractionData{ProductID: product},
		}
	}
	return []recommend.UserInteraction{
		mk("u1", "p1", recommend.TypeApplication),
		mk("u1", "p2", recommend.TypeBookmark),
		mk("u2", "p3", recommend.TypeApplication),
		mk("u3", "p1", recommend.TypeBookmark),
		mk("u3", "p2", recommend.TypeInquiry),
	}
}

func trainedModel(t *testing.T) *Hybrid {
	t.Helper()
	h := New(DefaultConfig(), zerolog.Nop())
	gen, _, err := h.Train(context.Background(), testInteractions(), nil)
	if err != nil {
		t.Fatalf("Train() error: %v", err)
	}
	if err := h.Activate(gen); err != nil {
		t.Fatalf("Activate() error: %v", err)
	}
	return h
}

func TestTrainProducesReadyGeneration(t *testing.T) {
	t.Parallel()

	h := New(DefaultConfig(), zerolog.Nop())
	gen, stats, err := h.Train(context.Background(), testInteractions(), nil)
	if err != nil {
		t.Fatalf("Train() error: %v", err)
	}
	if !gen.Ready() {
		t.Error("generation should be ready")
	}
	if stats.UserCount != 3 {
		t.Errorf("UserCount = %d, want 3", stats.UserCount)
	}
	if stats.ItemCount != 3 {
		t.Errorf("ItemCount = %d, want 3", stats.ItemCount)
	}
	if stats.InteractionCount != 5 {
		t.Errorf("InteractionCount = %d, want 5", stats.InteractionCount)
	}
	if h.Ready() {
		t.Error("model should not be ready before Activate")
	}
}

func TestTrainIsDeterministic(t *testing.T) {
	t.Parallel()

	h1 := New(DefaultConfig(), zerolog.Nop())
	h2 := New(DefaultConfig(), zerolog.Nop())

	g1, _, err := h1.Train(context.Background(), testInteractions(), nil)
	if err != nil {
		t.Fatal(err)
	}
	g2, _, err := h2.Train(context.Background(), testInteractions(), nil)
	if err != nil {
		t.Fatal(err)
	}

	a1 := g1.(*Artifact)
	a2 := g2.(*Artifact)
	for u := range a1.Weights.UserEmbeddings {
		for f := range a1.Weights.UserEmbeddings[u] {
			if a1.Weights.UserEmbeddings[u][f] != a2.Weights.UserEmbeddings[u][f] {
				t.Fatalf("embeddings differ at user %d factor %d", u, f)
			}
		}
	}
}

func TestTrainEmptyInputDoesNotFail(t *testing.T) {
	t.Parallel()

	h := New(DefaultConfig(), zerolog.Nop())
	gen, stats, err := h.Train(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Train() on empty input error: %v", err)
	}
	if gen == nil {
		t.Fatal("expected a placeholder generation")
	}
	if stats.UserCount != 1 || stats.ItemCount != 1 {
		t.Errorf("placeholder stats = %d users, %d items, want 1x1", stats.UserCount, stats.ItemCount)
	}
}

func TestTrainCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := New(DefaultConfig(), zerolog.Nop())
	if _, _, err := h.Train(ctx, testInteractions(), nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Train() with cancelled ctx = %v, want context.Canceled", err)
	}
}

func TestPredictForUser(t *testing.T) {
	t.Parallel()

	h := trainedModel(t)

	recs, err := h.PredictForUser("u1", 3)
	if err != nil {
		t.Fatalf("PredictForUser() error: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d recommendations, want 3", len(recs))
	}

	for i, rec := range recs {
		if rec.Rank != i+1 {
			t.Errorf("rank at %d = %d, want %d", i, rec.Rank, i+1)
		}
		if i > 0 && recs[i-1].Score < rec.Score {
			t.Errorf("scores not descending at %d", i)
		}
	}

	// u1 interacted with p1 and p2 but never p3; the pairwise objective
	// must rank the observed products above the unobserved one.
	if recs[2].ProductID != "p3" {
		t.Errorf("last recommendation = %s, want p3", recs[2].ProductID)
	}
}

func TestPredictForUserCountCap(t *testing.T) {
	t.Parallel()

	h := trainedModel(t)

	recs, err := h.PredictForUser("u1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Errorf("got %d recommendations, want 2", len(recs))
	}

	recs, err = h.PredictForUser("u1", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Errorf("count beyond catalog size returned %d, want 3", len(recs))
	}
}

func TestPredictForUserErrors(t *testing.T) {
	t.Parallel()

	notReady := New(DefaultConfig(), zerolog.Nop())
	if _, err := notReady.PredictForUser("u1", 5); !errors.Is(err, recommend.ErrModelNotReady) {
		t.Errorf("untrained model error = %v, want ErrModelNotReady", err)
	}

	h := trainedModel(t)
	if _, err := h.PredictForUser("nobody", 5); !errors.Is(err, recommend.ErrUserNotFound) {
		t.Errorf("unknown user error = %v, want ErrUserNotFound", err)
	}
}

func TestSimilarProducts(t *testing.T) {
	t.Parallel()

	h := trainedModel(t)

	recs, err := h.SimilarProducts("p1", 2)
	if err != nil {
		t.Fatalf("SimilarProducts() error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d similar products, want 2", len(recs))
	}
	for i, rec := range recs {
		if rec.ProductID == "p1" {
			t.Error("similar products must exclude the source product")
		}
		if rec.Rank != i+1 {
			t.Errorf("rank at %d = %d, want %d", i, rec.Rank, i+1)
		}
	}
}

func TestSimilarProductsErrors(t *testing.T) {
	t.Parallel()

	notReady := New(DefaultConfig(), zerolog.Nop())
	if _, err := notReady.SimilarProducts("p1", 5); !errors.Is(err, recommend.ErrModelNotReady) {
		t.Errorf("untrained model error = %v, want ErrModelNotReady", err)
	}

	h := trainedModel(t)
	if _, err := h.SimilarProducts("ghost", 5); !errors.Is(err, recommend.ErrProductNotFound) {
		t.Errorf("unknown product error = %v, want ErrProductNotFound", err)
	}
}

func TestActivateRejectsUnservableGeneration(t *testing.T) {
	t.Parallel()

	h := New(DefaultConfig(), zerolog.Nop())
	if err := h.Activate(&Artifact{}); !errors.Is(err, recommend.ErrInvalidParameter) {
		t.Errorf("Activate(empty) = %v, want ErrInvalidParameter", err)
	}
}
