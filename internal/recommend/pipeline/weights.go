// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

package pipeline

import "github.com/finmatch/recommender/internal/recommend"

// Base weights per interaction type. Types not listed here contribute
// defaultWeight.
const (
	weightView        = 1.0
	weightComparison  = 0.8
	weightApplication = 3.0
	weightInquiry     = 1.5
	weightBookmark    = 2.0
	defaultWeight     = 1.0
)

// Sub-action weights for generic interaction events.
const (
	weightActionClick    = 0.5
	weightActionFavorite = 1.5
	weightActionConvert  = 2.0
	weightActionOther    = 0.3
)

// View duration thresholds, in seconds, and their multipliers.
const (
	viewLongSeconds     = 60
	viewVeryLongSeconds = 120
	viewLongFactor      = 1.5
	viewVeryLongFactor  = 2.0
)

// InteractionWeight returns the implicit-feedback weight of a single
// interaction. Views scale with dwell time, generic interactions with
// their sub-action, and high-intent events (applications, bookmarks,
// inquiries) carry fixed elevated weights.
func InteractionWeight(in *recommend.UserInteraction) float64 {
	switch in.Type {
	case recommend.TypeView:
		w := weightView
		switch {
		case in.Data.ViewDuration > viewVeryLongSeconds:
			w *= viewVeryLongFactor
		case in.Data.ViewDuration > viewLongSeconds:
			w *= viewLongFactor
		}
		return w

	case recommend.TypeComparison:
		// Every product in a comparison gets the same flat weight;
		// being compared is a weaker signal than a direct view.
		return weightComparison

	case recommend.TypeAction:
		switch in.Data.Action {
		case "click":
			return weightActionClick
		case "favorite", "save":
			return weightActionFavorite
		case "apply", "purchase":
			return weightActionConvert
		default:
			return weightActionOther
		}

	case recommend.TypeApplication:
		return weightApplication

	case recommend.TypeInquiry:
		return weightInquiry

	case recommend.TypeBookmark:
		return weightBookmark

	default:
		return defaultWeight
	}
}
