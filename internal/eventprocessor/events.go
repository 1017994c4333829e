// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

package eventprocessor

import (
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/finmatch/recommender/internal/recommend"
)

// FlexTime accepts the timestamp shapes producers actually send:
// RFC 3339 strings, unix epoch numbers (seconds or milliseconds), or
// nothing at all. Absent timestamps stay zero and are replaced with the
// broker receive time during normalization.
type FlexTime struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *FlexTime) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				t.Time = parsed
				return nil
			}
		}
		return fmt.Errorf("unrecognized timestamp format %q", s)
	}

	epoch, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("unrecognized timestamp %s", data)
	}
	// Large epoch values are milliseconds.
	if epoch > 1e12 {
		epoch /= 1000
	}
	sec := int64(epoch)
	nsec := int64((epoch - float64(sec)) * float64(time.Second))
	t.Time = time.Unix(sec, nsec).UTC()
	return nil
}

// InteractionEvent is the wire shape of an ingested interaction.
type InteractionEvent struct {
	EventID   string         `json:"eventId,omitempty"`
	Type      string         `json:"type" validate:"required"`
	UserID    string         `json:"userId" validate:"required"`
	SessionID string         `json:"sessionId,omitempty"`
	Timestamp FlexTime       `json:"timestamp,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// ToInteraction normalizes the event into a domain interaction: a
// generated ID when the producer sent none, the receive time for
// missing timestamps, and the typed payload extracted from the raw
// data map. Unknown payload fields are preserved in Extra.
func (e *InteractionEvent) ToInteraction(receivedAt time.Time, topic string) recommend.UserInteraction {
	in := recommend.UserInteraction{
		ID:          e.EventID,
		UserID:      e.UserID,
		SessionID:   e.SessionID,
		Type:        recommend.InteractionType(e.Type),
		Timestamp:   e.Timestamp.Time,
		IngestedAt:  receivedAt,
		SourceTopic: topic,
		Data:        parseData(e.Data),
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = receivedAt
	}
	return in
}

func parseData(raw map[string]any) recommend.InteractionData {
	var data recommend.InteractionData
	if len(raw) == 0 {
		return data
	}

	extra := make(map[string]any)
	for key, value := range raw {
		switch key {
		case "productId":
			data.ProductID = asString(value)
		case "productIDs":
			data.ProductIDs = asStringSlice(value)
		case "action":
			data.Action = asString(value)
		case "viewDuration":
			data.ViewDuration = asFloat(value)
		case "category":
			data.Category = asString(value)
		case "type":
			data.ProductType = asString(value)
		case "institution":
			data.Institution = asString(value)
		case "userDemographics":
			data.Demographics = asStringMap(value)
		case "preferences":
			data.Preferences = asStringMap(value)
		default:
			extra[key] = value
		}
	}
	if len(extra) > 0 {
		data.Extra = extra
	}
	return data
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}

func asStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if typed, ok := v.([]string); ok {
			return typed
		}
		return nil
	}
	result := make([]string, 0, len(items))
	for _, item := range items {
		if s := asString(item); s != "" {
			result = append(result, s)
		}
	}
	return result
}

func asStringMap(v any) map[string]string {
	raw, ok := v.(map[string]any)
	if !ok {
		if typed, ok := v.(map[string]string); ok {
			return typed
		}
		return nil
	}
	result := make(map[string]string, len(raw))
	for key, value := range raw {
		if s := asString(value); s != "" {
			result[key] = s
		}
	}
	return result
}
