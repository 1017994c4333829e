// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

package recommend

import "errors"

// Sentinel errors of the recommendation domain. Components wrap these
// with %w so callers can branch with errors.Is while keeping the
// underlying cause in the message.
var (
	// ErrModelNotReady indicates no trained model generation is active.
	ErrModelNotReady = errors.New("recommendation model is not ready")

	// ErrUserNotFound indicates the user is not present in the active
	// model generation.
	ErrUserNotFound = errors.New("user not found in model")

	// ErrProductNotFound indicates the product is not present in the
	// active model generation.
	ErrProductNotFound = errors.New("product not found in model")

	// ErrDatabase indicates an interaction store operation failed.
	ErrDatabase = errors.New("database operation failed")

	// ErrExternalService indicates a product catalog call failed.
	ErrExternalService = errors.New("external service call failed")

	// ErrFileOperation indicates a model generation could not be
	// persisted or loaded.
	ErrFileOperation = errors.New("model storage operation failed")

	// ErrInvalidParameter indicates a caller-supplied parameter was
	// rejected before any work was done.
	ErrInvalidParameter = errors.New("invalid parameter")
)
