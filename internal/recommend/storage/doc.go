// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

// Package storage persists model generations in Badger. A generation
// is written as one multi-key transaction (weights, the three index
// mappings, and a metadata record with checksums), so a reader loads
// either a complete generation or none at all — a crash mid-write
// leaves the previous generation intact.
package storage
