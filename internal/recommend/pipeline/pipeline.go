// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

package pipeline

import (
	"sort"

	"github.com/finmatch/recommender/internal/recommend"
)

// PlaceholderID is the single identifier used in degenerate datasets
// built from zero usable interactions.
const PlaceholderID = "default"

// Entry is one weighted cell of the sparse feedback matrix.
type Entry struct {
	Row    int
	Col    int
	Weight float64
}

// Matrix is a sparse user-item matrix in coordinate form. Entries are
// sorted by (Row, Col) and contain at most one cell per coordinate.
type Matrix struct {
	Rows    int
	Cols    int
	Entries []Entry
}

// FeatureWeight is one feature contribution of an entity row.
type FeatureWeight struct {
	Col    int
	Weight float64
}

// FeatureMatrix maps entity rows to their side features. Each row's
// weights are normalized to sum to one so entities with many features
// are not overweighted.
type FeatureMatrix struct {
	Rows       int
	Cols       int
	RowEntries [][]FeatureWeight
}

// Dataset is the complete training input for one model generation.
type Dataset struct {
	Interactions *Matrix
	UserFeatures *FeatureMatrix
	ItemFeatures *FeatureMatrix
	Users        *IndexMap
	Items        *IndexMap
	Features     *IndexMap
}

// Degenerate reports whether the dataset is the 1x1 placeholder built
// from zero usable interactions.
func (d *Dataset) Degenerate() bool {
	return len(d.Interactions.Entries) == 0
}

// Demographic attributes promoted to user feature tokens.
var demographicKeys = []string{"age_group", "income_range", "credit_score_range", "risk_tolerance"}

// Build assembles a training dataset from raw interactions and declared
// per-user preferences. Multiple interactions between the same user and
// product keep the maximum observed weight rather than accumulating, so
// repetition never outweighs intent. With no usable interactions a 1x1
// placeholder dataset is returned and training proceeds vacuously.
func Build(interactions []recommend.UserInteraction, prefs recommend.Preferences) *Dataset {
	users := NewIndexMap()
	items := NewIndexMap()
	userTokens := make(map[int]map[string]struct{})
	itemTokens := make(map[int]map[string]struct{})

	addToken := func(set map[int]map[string]struct{}, idx int, token string) {
		if set[idx] == nil {
			set[idx] = make(map[string]struct{})
		}
		set[idx][token] = struct{}{}
	}

	type pair struct{ u, i int }
	weights := make(map[pair]float64)

	for idx := range interactions {
		in := &interactions[idx]
		if in.UserID == "" {
			continue
		}

		refs := in.ProductRefs()
		if len(refs) == 0 {
			continue
		}

		u := users.Add(in.UserID)
		w := InteractionWeight(in)

		addToken(userTokens, u, "action:"+string(in.Type))
		if in.Data.Demographics != nil {
			for _, key := range demographicKeys {
				if v, ok := in.Data.Demographics[key]; ok && v != "" {
					addToken(userTokens, u, key+":"+v)
				}
			}
		}

		for _, productID := range refs {
			i := items.Add(productID)
			if cur, ok := weights[pair{u, i}]; !ok || w > cur {
				weights[pair{u, i}] = w
			}
			if in.Data.Category != "" {
				addToken(itemTokens, i, "category:"+in.Data.Category)
			}
			if in.Data.ProductType != "" {
				addToken(itemTokens, i, "type:"+in.Data.ProductType)
			}
			if in.Data.Institution != "" {
				addToken(itemTokens, i, "institution:"+in.Data.Institution)
			}
		}
	}

	for userID, kv := range prefs {
		u, ok := users.Index(userID)
		if !ok {
			continue
		}
		for k, v := range kv {
			if k != "" && v != "" {
				addToken(userTokens, u, "preference:"+k+":"+v)
			}
		}
	}

	if users.Len() == 0 || items.Len() == 0 || len(weights) == 0 {
		return placeholderDataset()
	}

	features := buildFeatureIndex(userTokens, itemTokens)

	entries := make([]Entry, 0, len(weights))
	for p, w := range weights {
		entries = append(entries, Entry{Row: p.u, Col: p.i, Weight: w})
	}
	sort.Slice(entries, func(a, b int) bool {
		if entries[a].Row != entries[b].Row {
			return entries[a].Row < entries[b].Row
		}
		return entries[a].Col < entries[b].Col
	})

	return &Dataset{
		Interactions: &Matrix{Rows: users.Len(), Cols: items.Len(), Entries: entries},
		UserFeatures: buildFeatureMatrix(users.Len(), features, userTokens),
		ItemFeatures: buildFeatureMatrix(items.Len(), features, itemTokens),
		Users:        users,
		Items:        items,
		Features:     features,
	}
}

// buildFeatureIndex assigns dense indices to the union of all observed
// feature tokens. Tokens are sorted so index assignment is independent
// of map iteration order.
func buildFeatureIndex(tokenSets ...map[int]map[string]struct{}) *IndexMap {
	union := make(map[string]struct{})
	for _, set := range tokenSets {
		for _, tokens := range set {
			for token := range tokens {
				union[token] = struct{}{}
			}
		}
	}

	sorted := make([]string, 0, len(union))
	for token := range union {
		sorted = append(sorted, token)
	}
	sort.Strings(sorted)

	features := NewIndexMap()
	for _, token := range sorted {
		features.Add(token)
	}
	return features
}

// buildFeatureMatrix produces normalized per-row feature weights: each
// row's entries sum to one, sorted by feature index.
func buildFeatureMatrix(rows int, features *IndexMap, tokens map[int]map[string]struct{}) *FeatureMatrix {
	m := &FeatureMatrix{
		Rows:       rows,
		Cols:       features.Len(),
		RowEntries: make([][]FeatureWeight, rows),
	}

	for row := 0; row < rows; row++ {
		set := tokens[row]
		if len(set) == 0 {
			continue
		}
		cols := make([]int, 0, len(set))
		for token := range set {
			if idx, ok := features.Index(token); ok {
				cols = append(cols, idx)
			}
		}
		sort.Ints(cols)

		w := 1.0 / float64(len(cols))
		entries := make([]FeatureWeight, len(cols))
		for i, col := range cols {
			entries[i] = FeatureWeight{Col: col, Weight: w}
		}
		m.RowEntries[row] = entries
	}
	return m
}

// placeholderDataset returns the 1x1 degenerate dataset. All index
// mappings contain the single placeholder identifier and the matrices
// carry no entries.
func placeholderDataset() *Dataset {
	users := NewIndexMap()
	users.Add(PlaceholderID)
	items := NewIndexMap()
	items.Add(PlaceholderID)
	features := NewIndexMap()
	features.Add(PlaceholderID)

	return &Dataset{
		Interactions: &Matrix{Rows: 1, Cols: 1},
		UserFeatures: &FeatureMatrix{Rows: 1, Cols: 1, RowEntries: make([][]FeatureWeight, 1)},
		ItemFeatures: &FeatureMatrix{Rows: 1, Cols: 1, RowEntries: make([][]FeatureWeight, 1)},
		Users:        users,
		Items:        items,
		Features:     features,
	}
}
