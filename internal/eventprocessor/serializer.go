// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

package eventprocessor

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/go-playground/validator/v10"
)

// Serializer converts interaction events to and from their JSON wire
// form and validates structural requirements.
type Serializer struct {
	validate *validator.Validate
}

// NewSerializer creates a serializer with struct validation.
func NewSerializer() *Serializer {
	return &Serializer{validate: validator.New()}
}

// Marshal encodes an event for publishing.
func (s *Serializer) Marshal(event *InteractionEvent) ([]byte, error) {
	if err := s.validate.Struct(event); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}
	return json.Marshal(event)
}

// Unmarshal decodes and validates an event payload.
func (s *Serializer) Unmarshal(payload []byte) (*InteractionEvent, error) {
	var event InteractionEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decoding event: %w", err)
	}
	if err := s.validate.Struct(&event); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}
	return &event, nil
}
