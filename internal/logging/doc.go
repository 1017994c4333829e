// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

// Package logging provides centralized zerolog-based logging for the
// recommendation service.
//
// All components log through a single configured zerolog instance:
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("component", "scheduler").Msg("started")
//
// Component loggers carry a fixed component field:
//
//	logger := logging.With().Str("component", "consumer").Logger()
package logging
