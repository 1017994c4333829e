// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

// Package supervisor arranges the long-running services of the
// recommender into a supervision tree. The ingest layer (event
// consumer) and the model layer (refresh scheduler) restart
// independently: a crash while training never interrupts ingestion,
// and vice versa.
package supervisor
