// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

// Package products resolves product metadata from the catalog service.
// Calls are rate limited and protected by a circuit breaker; failures
// degrade to placeholder entries so a recommendation response is never
// lost to a slow or unavailable catalog.
package products
