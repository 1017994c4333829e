// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

// Package pipeline converts raw user interactions into the sparse
// training inputs of the latent-factor model: a weighted user-item
// feedback matrix plus normalized user and item side-feature matrices,
// all indexed through stable identifier mappings.
package pipeline
