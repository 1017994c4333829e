// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

// Package recommend defines the domain model of the recommendation
// engine: user interactions, recommendation results, and the service
// that orchestrates model training and serving.
package recommend
