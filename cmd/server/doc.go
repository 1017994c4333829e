// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

// Package main is the entry point for the Finmatch recommender service.
//
// The recommender consumes user interaction events from NATS JetStream,
// persists them in DuckDB, and periodically trains a hybrid latent-factor
// model over the interaction history. The trained model serves
// personalized, session-based, and similar-product recommendations, with
// a popularity fallback for users the model has not seen.
//
// # Startup Order
//
//  1. Configuration: layered Koanf v2 load (defaults, YAML file, env)
//  2. Logging: global zerolog logger
//  3. DuckDB: interaction store and repository
//  4. Badger: persisted model generations; a previously trained model
//     is restored so the service is warm immediately after restart
//  5. Products: catalog client with circuit breaker and rate limiter
//  6. NATS: external connection or embedded JetStream server
//  7. Supervision tree: event consumer (ingest layer) and refresh
//     scheduler (model layer), each restarting independently
//
// # Configuration
//
// All settings come from RECOMMENDER_-prefixed environment variables or
// a YAML file (RECOMMENDER_CONFIG or ./recommender.yaml). See
// internal/config for the full set.
//
// # Signal Handling
//
// SIGINT and SIGTERM stop the supervision tree, wait for an in-flight
// model refresh to complete, and close the stores in reverse order of
// initialization.
package main
