// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

package pipeline

// IndexMap is a stable bidirectional mapping between external string
// identifiers and dense matrix indices. Indices are assigned in
// insertion order. Fields are exported for gob serialization.
type IndexMap struct {
	Indices map[string]int
	IDs     []string
}

// NewIndexMap returns an empty mapping.
func NewIndexMap() *IndexMap {
	return &IndexMap{Indices: make(map[string]int)}
}

// Add inserts id if absent and returns its index.
func (m *IndexMap) Add(id string) int {
	if idx, ok := m.Indices[id]; ok {
		return idx
	}
	idx := len(m.IDs)
	m.Indices[id] = idx
	m.IDs = append(m.IDs, id)
	return idx
}

// Index returns the dense index for id.
func (m *IndexMap) Index(id string) (int, bool) {
	idx, ok := m.Indices[id]
	return idx, ok
}

// ID returns the external identifier at idx.
func (m *IndexMap) ID(idx int) (string, bool) {
	if idx < 0 || idx >= len(m.IDs) {
		return "", false
	}
	return m.IDs[idx], true
}

// Len returns the number of mapped identifiers.
func (m *IndexMap) Len() int {
	return len(m.IDs)
}
