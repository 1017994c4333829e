// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

// Package eventprocessor ingests interaction events from the message
// broker and persists them to the interaction store with at-least-once
// semantics. Malformed events are acknowledged and counted rather than
// redelivered forever; persistence failures are redelivered.
package eventprocessor
