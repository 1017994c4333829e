// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

// Package database stores user interactions in DuckDB and serves the
// read patterns of the recommendation engine: per-user and per-session
// history, the bounded training window, view popularity, and declared
// user preferences.
package database
