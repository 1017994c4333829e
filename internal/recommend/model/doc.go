// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

// Package model implements the hybrid latent-factor recommendation
// model: pairwise-ranking matrix factorization over weighted implicit
// feedback, with user and item side features folded into the latent
// representations so sparse users and items inherit signal from the
// features they share with better-observed ones.
package model
