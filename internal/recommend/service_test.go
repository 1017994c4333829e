// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

package recommend

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeGeneration is a minimal Generation for orchestration tests.
type fakeGeneration struct {
	ready     bool
	trainedAt time.Time
}

func (g *fakeGeneration) Ready() bool          { return g.ready }
func (g *fakeGeneration) TrainedAt() time.Time { return g.trainedAt }

// fakeModel scripts model behavior per test case.
type fakeModel struct {
	ready       bool
	predictions map[string][]ProductRecommendation
	similar     map[string][]ProductRecommendation
	predictErr  error
	similarErr  error

	trainErr    error
	trainStats  TrainStats
	activateErr error
	activated   []Generation
	trained     int
}

func (m *fakeModel) Train(_ context.Context, interactions []UserInteraction, _ Preferences) (Generation, TrainStats, error) {
	m.trained++
	if m.trainErr != nil {
		return nil, TrainStats{}, m.trainErr
	}
	stats := m.trainStats
	if stats.InteractionCount == 0 {
		stats.InteractionCount = len(interactions)
	}
	return &fakeGeneration{ready: true, trainedAt: time.Now()}, stats, nil
}

func (m *fakeModel) Activate(g Generation) error {
	if m.activateErr != nil {
		return m.activateErr
	}
	m.activated = append(m.activated, g)
	m.ready = true
	return nil
}

func (m *fakeModel) PredictForUser(userID string, count int) ([]ProductRecommendation, error) {
	if m.predictErr != nil {
		return nil, m.predictErr
	}
	recs, ok := m.predictions[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	if len(recs) > count {
		recs = recs[:count]
	}
	return recs, nil
}

func (m *fakeModel) SimilarProducts(productID string, count int) ([]ProductRecommendation, error) {
	if m.similarErr != nil {
		return nil, m.similarErr
	}
	recs, ok := m.similar[productID]
	if !ok {
		return nil, ErrProductNotFound
	}
	if len(recs) > count {
		recs = recs[:count]
	}
	return recs, nil
}

func (m *fakeModel) Ready() bool { return m.ready }

// fakeStore records saves and serves a scripted load.
type fakeStore struct {
	saved   []Generation
	saveErr error
	loaded  Generation
	loadErr error
}

func (s *fakeStore) Save(_ context.Context, g Generation) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, g)
	return nil
}

func (s *fakeStore) Load(_ context.Context) (Generation, error) {
	return s.loaded, s.loadErr
}

// fakeRepo serves scripted interaction data.
type fakeRepo struct {
	session     []UserInteraction
	sessionErr  error
	training    []UserInteraction
	trainingErr error
	popular     []ProductViewCount
	popularErr  error
	prefs       map[string]map[string]string
	prefsErr    error
}

func (r *fakeRepo) GetUserInteractions(context.Context, string, int) ([]UserInteraction, error) {
	return nil, nil
}

func (r *fakeRepo) GetSessionInteractions(context.Context, string, int) ([]UserInteraction, error) {
	return r.session, r.sessionErr
}

func (r *fakeRepo) GetTrainingInteractions(context.Context, int) ([]UserInteraction, error) {
	return r.training, r.trainingErr
}

func (r *fakeRepo) GetMostViewedProducts(context.Context, int) ([]ProductViewCount, error) {
	return r.popular, r.popularErr
}

func (r *fakeRepo) GetUserPreferences(_ context.Context, userID string) (map[string]string, error) {
	if r.prefsErr != nil {
		return nil, r.prefsErr
	}
	return r.prefs[userID], nil
}

// fakeCatalog returns fixed details per product.
type fakeCatalog struct {
	details map[string]map[string]any
	err     error
}

func (c *fakeCatalog) GetProductDetails(_ context.Context, id string) (map[string]any, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.details[id], nil
}

func (c *fakeCatalog) GetProductDetailsBatch(_ context.Context, ids []string) (map[string]map[string]any, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := make(map[string]map[string]any, len(ids))
	for _, id := range ids {
		if d, ok := c.details[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

func newTestService(model *fakeModel, store *fakeStore, repo *fakeRepo, catalog ProductCatalog) *Service {
	return NewService(DefaultServiceConfig(), model, store, repo, catalog, zerolog.Nop())
}

func sessionView(sessionID, productID string, ts time.Time) UserInteraction {
	return UserInteraction{
		ID:        productID + "-view",
		SessionID: sessionID,
		Type:      TypeView,
		Timestamp: ts,
		Data:      InteractionData{ProductID: productID},
	}
}

func TestGetUserRecommendationsFromModel(t *testing.T) {
	t.Parallel()

	model := &fakeModel{
		ready: true,
		predictions: map[string][]ProductRecommendation{
			"u1": {
				{ProductID: "p1", Score: 0.9, Rank: 1},
				{ProductID: "p2", Score: 0.7, Rank: 2},
			},
		},
	}
	svc := newTestService(model, &fakeStore{}, &fakeRepo{}, nil)

	recs, err := svc.GetUserRecommendations(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("GetUserRecommendations: %v", err)
	}
	if len(recs) != 2 || recs[0].ProductID != "p1" || recs[1].ProductID != "p2" {
		t.Fatalf("unexpected recommendations: %+v", recs)
	}
}

func TestGetUserRecommendationsUnknownUserFallsBack(t *testing.T) {
	t.Parallel()

	model := &fakeModel{ready: true}
	repo := &fakeRepo{popular: []ProductViewCount{
		{ProductID: "pop1", ViewCount: 12},
		{ProductID: "pop2", ViewCount: 7},
	}}
	svc := newTestService(model, &fakeStore{}, repo, nil)

	recs, err := svc.GetUserRecommendations(context.Background(), "stranger", 5)
	if err != nil {
		t.Fatalf("GetUserRecommendations: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d recommendations, want 2", len(recs))
	}
	for i, rec := range recs {
		if rec.Score != 0.5 {
			t.Errorf("fallback score = %v, want 0.5", rec.Score)
		}
		if rec.Rank != i+1 {
			t.Errorf("rank[%d] = %d, want %d", i, rec.Rank, i+1)
		}
	}
	if recs[0].Details["viewCount"] != 12 {
		t.Errorf("viewCount detail = %v, want 12", recs[0].Details["viewCount"])
	}
}

func TestGetUserRecommendationsModelNotReady(t *testing.T) {
	t.Parallel()

	svc := newTestService(&fakeModel{}, &fakeStore{}, &fakeRepo{}, nil)

	_, err := svc.GetUserRecommendations(context.Background(), "u1", 5)
	if !errors.Is(err, ErrModelNotReady) {
		t.Fatalf("err = %v, want ErrModelNotReady", err)
	}
}

func TestGetUserRecommendationsEmptyID(t *testing.T) {
	t.Parallel()

	svc := newTestService(&fakeModel{ready: true}, &fakeStore{}, &fakeRepo{}, nil)

	_, err := svc.GetUserRecommendations(context.Background(), "", 5)
	if !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("err = %v, want ErrInvalidParameter", err)
	}
}

func TestGetSessionRecommendationsExpandsSeeds(t *testing.T) {
	t.Parallel()

	base := time.Now()
	model := &fakeModel{
		ready: true,
		similar: map[string][]ProductRecommendation{
			"p1": {
				{ProductID: "n1", Score: 0.9},
				{ProductID: "n2", Score: 0.4},
			},
			"p2": {
				{ProductID: "n2", Score: 0.8}, // better score for n2 wins
				{ProductID: "p1", Score: 0.7}, // seed, must be excluded
			},
		},
	}
	repo := &fakeRepo{session: []UserInteraction{
		sessionView("s1", "p1", base.Add(2*time.Minute)),
		sessionView("s1", "p2", base.Add(time.Minute)),
	}}
	svc := newTestService(model, &fakeStore{}, repo, nil)

	recs, err := svc.GetSessionRecommendations(context.Background(), "s1", 5)
	if err != nil {
		t.Fatalf("GetSessionRecommendations: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d recommendations, want 2: %+v", len(recs), recs)
	}
	if recs[0].ProductID != "n1" || recs[1].ProductID != "n2" {
		t.Errorf("order = [%s %s], want [n1 n2]", recs[0].ProductID, recs[1].ProductID)
	}
	if recs[1].Score != 0.8 {
		t.Errorf("n2 score = %v, want best across seeds 0.8", recs[1].Score)
	}
	if recs[0].Rank != 1 || recs[1].Rank != 2 {
		t.Errorf("ranks = %d,%d, want 1,2", recs[0].Rank, recs[1].Rank)
	}
}

func TestGetSessionRecommendationsSeedCap(t *testing.T) {
	t.Parallel()

	// Five distinct products touched; only the three most recent may
	// seed the expansion.
	base := time.Now()
	var session []UserInteraction
	for i, id := range []string{"p1", "p2", "p3", "p4", "p5"} {
		session = append(session, sessionView("s1", id, base.Add(time.Duration(i)*time.Minute)))
	}

	model := &fakeModel{ready: true, similar: map[string][]ProductRecommendation{}}
	for _, id := range []string{"p1", "p2", "p3", "p4", "p5"} {
		model.similar[id] = []ProductRecommendation{{ProductID: "n-" + id, Score: 0.5}}
	}

	repo := &fakeRepo{session: session}
	svc := newTestService(model, &fakeStore{}, repo, nil)

	recs, err := svc.GetSessionRecommendations(context.Background(), "s1", 10)
	if err != nil {
		t.Fatalf("GetSessionRecommendations: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d neighbors, want 3 (one per seed, seeds capped at 3)", len(recs))
	}
	got := map[string]bool{}
	for _, r := range recs {
		got[r.ProductID] = true
	}
	for _, want := range []string{"n-p5", "n-p4", "n-p3"} {
		if !got[want] {
			t.Errorf("missing neighbor %s from the three most recent seeds, got %v", want, recs)
		}
	}
}

func TestGetSessionRecommendationsFallsBack(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{popular: []ProductViewCount{{ProductID: "pop1", ViewCount: 3}}}

	tests := []struct {
		name  string
		model *fakeModel
		repo  *fakeRepo
	}{
		{
			name:  "model not ready",
			model: &fakeModel{},
			repo:  repo,
		},
		{
			name:  "no session products",
			model: &fakeModel{ready: true},
			repo: &fakeRepo{
				session: []UserInteraction{{SessionID: "s1", Type: TypePreference, Timestamp: time.Now()}},
				popular: repo.popular,
			},
		},
		{
			name:  "all seeds unknown to model",
			model: &fakeModel{ready: true, similar: map[string][]ProductRecommendation{}},
			repo: &fakeRepo{
				session: []UserInteraction{sessionView("s1", "p1", time.Now())},
				popular: repo.popular,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := newTestService(tt.model, &fakeStore{}, tt.repo, nil)
			recs, err := svc.GetSessionRecommendations(context.Background(), "s1", 5)
			if err != nil {
				t.Fatalf("GetSessionRecommendations: %v", err)
			}
			if len(recs) != 1 || recs[0].ProductID != "pop1" || recs[0].Score != 0.5 {
				t.Fatalf("expected popularity fallback, got %+v", recs)
			}
		})
	}
}

func TestGetSessionRecommendationsExcludesViewedNonSeeds(t *testing.T) {
	t.Parallel()

	// p4 was viewed in the session but is not among the three seeds
	// (p1..p3 are more recent). It must still be excluded from results.
	base := time.Now()
	model := &fakeModel{
		ready: true,
		similar: map[string][]ProductRecommendation{
			"p1": {{ProductID: "p4", Score: 0.9}, {ProductID: "n1", Score: 0.3}},
			"p2": {{ProductID: "n1", Score: 0.5}},
			"p3": {{ProductID: "n2", Score: 0.4}},
		},
	}
	repo := &fakeRepo{session: []UserInteraction{
		sessionView("s1", "p1", base.Add(4*time.Minute)),
		sessionView("s1", "p2", base.Add(3*time.Minute)),
		sessionView("s1", "p3", base.Add(2*time.Minute)),
		sessionView("s1", "p4", base.Add(time.Minute)),
	}}
	svc := newTestService(model, &fakeStore{}, repo, nil)

	recs, err := svc.GetSessionRecommendations(context.Background(), "s1", 5)
	if err != nil {
		t.Fatalf("GetSessionRecommendations: %v", err)
	}
	for _, r := range recs {
		if r.ProductID == "p4" {
			t.Fatalf("already-viewed product recommended: %+v", recs)
		}
	}
	if len(recs) != 2 || recs[0].ProductID != "n1" || recs[0].Score != 0.5 {
		t.Fatalf("recs = %+v, want [n1@0.5 n2@0.4]", recs)
	}
}

func TestFallbackRepositoryFailureReturnsEmpty(t *testing.T) {
	t.Parallel()

	model := &fakeModel{ready: true}
	repo := &fakeRepo{popularErr: errors.New("db down")}
	svc := newTestService(model, &fakeStore{}, repo, nil)

	recs, err := svc.GetUserRecommendations(context.Background(), "stranger", 5)
	if err != nil {
		t.Fatalf("fallback surfaced an error: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("recs = %+v, want empty", recs)
	}
}

func TestGetSimilarProductsPropagatesErrors(t *testing.T) {
	t.Parallel()

	model := &fakeModel{ready: true, similar: map[string][]ProductRecommendation{}}
	svc := newTestService(model, &fakeStore{}, &fakeRepo{}, nil)

	_, err := svc.GetSimilarProducts(context.Background(), "ghost", 5)
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("err = %v, want ErrProductNotFound", err)
	}
}

func TestEnrichMergesCatalogDetails(t *testing.T) {
	t.Parallel()

	model := &fakeModel{
		ready: true,
		predictions: map[string][]ProductRecommendation{
			"u1": {
				{ProductID: "p1", Score: 0.9, Rank: 1},
				{ProductID: "p2", Score: 0.7, Rank: 2},
			},
		},
	}
	catalog := &fakeCatalog{details: map[string]map[string]any{
		"p1": {"name": "Rewards Card", "category": "credit_card"},
	}}
	svc := newTestService(model, &fakeStore{}, &fakeRepo{}, catalog)

	recs, err := svc.GetUserRecommendations(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("GetUserRecommendations: %v", err)
	}
	if recs[0].Details["name"] != "Rewards Card" {
		t.Errorf("p1 details = %+v, want catalog name merged", recs[0].Details)
	}
	if len(recs[1].Details) != 0 {
		t.Errorf("p2 details = %+v, want none", recs[1].Details)
	}
	// Enrichment must not disturb ordering or ranks.
	if recs[0].ProductID != "p1" || recs[0].Rank != 1 || recs[1].Rank != 2 {
		t.Errorf("ordering disturbed: %+v", recs)
	}
}

func TestEnrichCatalogFailureIsBestEffort(t *testing.T) {
	t.Parallel()

	model := &fakeModel{
		ready: true,
		predictions: map[string][]ProductRecommendation{
			"u1": {{ProductID: "p1", Score: 0.9, Rank: 1}},
		},
	}
	catalog := &fakeCatalog{err: errors.New("catalog down")}
	svc := newTestService(model, &fakeStore{}, &fakeRepo{}, catalog)

	recs, err := svc.GetUserRecommendations(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("GetUserRecommendations: %v", err)
	}
	if len(recs) != 1 || recs[0].ProductID != "p1" {
		t.Fatalf("recommendations lost on enrichment failure: %+v", recs)
	}
}

func TestRefreshModelTrainsSavesActivates(t *testing.T) {
	t.Parallel()

	model := &fakeModel{trainStats: TrainStats{UserCount: 2, ItemCount: 3}}
	store := &fakeStore{}
	repo := &fakeRepo{training: []UserInteraction{
		{UserID: "u1", Type: TypeView, Data: InteractionData{ProductID: "p1"}},
	}}
	svc := newTestService(model, store, repo, nil)

	result := svc.RefreshModel(context.Background())
	if !result.Success {
		t.Fatalf("refresh failed: %s", result.Error)
	}
	if len(store.saved) != 1 {
		t.Fatalf("generation not persisted, saves = %d", len(store.saved))
	}
	if len(model.activated) != 1 {
		t.Fatalf("generation not activated, activations = %d", len(model.activated))
	}
	if store.saved[0] != model.activated[0] {
		t.Error("persisted and activated generations differ")
	}
	if result.Stats.UserCount != 2 || result.Stats.ItemCount != 3 {
		t.Errorf("stats = %+v", result.Stats)
	}
}

func TestRefreshModelNoTrainingData(t *testing.T) {
	t.Parallel()

	model := &fakeModel{}
	svc := newTestService(model, &fakeStore{}, &fakeRepo{}, nil)

	result := svc.RefreshModel(context.Background())
	if result.Success {
		t.Fatal("refresh succeeded without training data")
	}
	if result.Error != "no training data available" {
		t.Errorf("error = %q", result.Error)
	}
	if model.trained != 0 {
		t.Error("model trained despite empty input")
	}
}

func TestRefreshModelSaveFailureKeepsOldGeneration(t *testing.T) {
	t.Parallel()

	model := &fakeModel{}
	store := &fakeStore{saveErr: errors.New("disk full")}
	repo := &fakeRepo{training: []UserInteraction{
		{UserID: "u1", Type: TypeView, Data: InteractionData{ProductID: "p1"}},
	}}
	svc := newTestService(model, store, repo, nil)

	result := svc.RefreshModel(context.Background())
	if result.Success {
		t.Fatal("refresh reported success despite save failure")
	}
	if len(model.activated) != 0 {
		t.Error("unpersisted generation was activated")
	}
}

func TestRefreshModelTrainFailure(t *testing.T) {
	t.Parallel()

	model := &fakeModel{trainErr: errors.New("training exploded")}
	repo := &fakeRepo{training: []UserInteraction{
		{UserID: "u1", Type: TypeView, Data: InteractionData{ProductID: "p1"}},
	}}
	store := &fakeStore{}
	svc := newTestService(model, store, repo, nil)

	result := svc.RefreshModel(context.Background())
	if result.Success {
		t.Fatal("refresh reported success despite training failure")
	}
	if len(store.saved) != 0 {
		t.Error("failed training run was persisted")
	}
}

func TestRefreshModelCollectsPreferences(t *testing.T) {
	t.Parallel()

	var gotPrefs Preferences
	model := &prefCapturingModel{prefs: &gotPrefs}
	repo := &fakeRepo{
		training: []UserInteraction{
			{UserID: "u1", Type: TypeView, Data: InteractionData{ProductID: "p1"}},
			{UserID: "u2", Type: TypeView, Data: InteractionData{ProductID: "p2"}},
		},
		prefs: map[string]map[string]string{
			"u1": {"risk_tolerance": "low"},
		},
	}
	svc := newTestService(&fakeModel{}, &fakeStore{}, repo, nil)
	svc.model = model

	result := svc.RefreshModel(context.Background())
	if !result.Success {
		t.Fatalf("refresh failed: %s", result.Error)
	}
	if len(gotPrefs) != 1 || gotPrefs["u1"]["risk_tolerance"] != "low" {
		t.Errorf("prefs passed to training = %+v", gotPrefs)
	}
}

// prefCapturingModel records the preferences handed to Train.
type prefCapturingModel struct {
	fakeModel
	prefs *Preferences
}

func (m *prefCapturingModel) Train(ctx context.Context, interactions []UserInteraction, prefs Preferences) (Generation, TrainStats, error) {
	*m.prefs = prefs
	return m.fakeModel.Train(ctx, interactions, prefs)
}

func TestReadsUnblockedDuringRefresh(t *testing.T) {
	t.Parallel()

	model := &slowTrainModel{
		fakeModel: fakeModel{
			ready: true,
			predictions: map[string][]ProductRecommendation{
				"u1": {{ProductID: "p1", Score: 0.9, Rank: 1}},
			},
		},
		release:  make(chan struct{}),
		training: make(chan struct{}),
	}
	repo := &fakeRepo{training: []UserInteraction{
		{UserID: "u1", Type: TypeView, Data: InteractionData{ProductID: "p1"}},
	}}
	svc := newTestService(&fakeModel{}, &fakeStore{}, repo, nil)
	svc.model = model

	refreshDone := make(chan RefreshResult, 1)
	go func() {
		refreshDone <- svc.RefreshModel(context.Background())
	}()
	<-model.training

	// Training is in flight and parked; reads must still answer from
	// the active generation.
	recs, err := svc.GetUserRecommendations(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("read blocked or failed during refresh: %v", err)
	}
	if len(recs) != 1 || recs[0].ProductID != "p1" {
		t.Fatalf("recs = %+v", recs)
	}

	close(model.release)
	result := <-refreshDone
	if !result.Success {
		t.Fatalf("refresh failed: %s", result.Error)
	}
}

// slowTrainModel parks inside Train until released, signalling entry
// on the training channel.
type slowTrainModel struct {
	fakeModel
	release  chan struct{}
	training chan struct{}
	once     sync.Once
}

func (m *slowTrainModel) Train(ctx context.Context, interactions []UserInteraction, prefs Preferences) (Generation, TrainStats, error) {
	m.once.Do(func() { close(m.training) })
	<-m.release
	return m.fakeModel.Train(ctx, interactions, prefs)
}

func TestRestoreModelActivatesPersisted(t *testing.T) {
	t.Parallel()

	gen := &fakeGeneration{ready: true, trainedAt: time.Now()}
	model := &fakeModel{}
	store := &fakeStore{loaded: gen}
	svc := newTestService(model, store, &fakeRepo{}, nil)

	if err := svc.RestoreModel(context.Background()); err != nil {
		t.Fatalf("RestoreModel: %v", err)
	}
	if len(model.activated) != 1 || model.activated[0] != Generation(gen) {
		t.Fatal("persisted generation not activated")
	}
}

func TestRestoreModelNothingPersisted(t *testing.T) {
	t.Parallel()

	model := &fakeModel{}
	svc := newTestService(model, &fakeStore{}, &fakeRepo{}, nil)

	if err := svc.RestoreModel(context.Background()); err != nil {
		t.Fatalf("RestoreModel: %v", err)
	}
	if len(model.activated) != 0 {
		t.Error("activated a generation that does not exist")
	}
}
