// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

// Package scheduler drives periodic model refresh cycles. Intervals
// are measured from the completion of one refresh to the start of the
// next, so a slow training run never causes overlapping cycles, and a
// failed run backs off for a cooldown period before retrying.
package scheduler
