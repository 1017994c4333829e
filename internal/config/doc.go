// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

// Package config loads layered service configuration: built-in
// defaults, then an optional YAML file, then RECOMMENDER_-prefixed
// environment variables, highest last.
package config
