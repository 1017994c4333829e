// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

package eventprocessor

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/finmatch/recommender/internal/recommend"
)

func TestFlexTimeUnmarshal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "rfc3339",
			input: `"2026-08-01T12:30:00Z"`,
			want:  time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC),
		},
		{
			name:  "rfc3339 with offset",
			input: `"2026-08-01T14:30:00+02:00"`,
			want:  time.Date(2026, 8, 1, 14, 30, 0, 0, time.FixedZone("", 2*3600)),
		},
		{
			name:  "bare datetime",
			input: `"2026-08-01T12:30:00"`,
			want:  time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC),
		},
		{
			name:  "epoch seconds",
			input: `1785500000`,
			want:  time.Unix(1785500000, 0).UTC(),
		},
		{
			name:  "epoch milliseconds",
			input: `1785500000000`,
			want:  time.Unix(1785500000, 0).UTC(),
		},
		{
			name:  "null",
			input: `null`,
			want:  time.Time{},
		},
		{
			name:  "empty string",
			input: `""`,
			want:  time.Time{},
		},
		{
			name:    "garbage",
			input:   `"next tuesday"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var ft FlexTime
			err := json.Unmarshal([]byte(tt.input), &ft)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !ft.Equal(tt.want) {
				t.Errorf("got %v, want %v", ft.Time, tt.want)
			}
		})
	}
}

func TestToInteractionNormalization(t *testing.T) {
	t.Parallel()

	received := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	event := &InteractionEvent{
		Type:      "product_view",
		UserID:    "u1",
		SessionID: "s1",
		Data: map[string]any{
			"productId":    "p1",
			"viewDuration": float64(95),
			"category":     "savings",
			"campaign":     "summer-2026",
		},
	}

	in := event.ToInteraction(received, "interactions.events")

	if in.ID == "" {
		t.Error("missing event ID should be generated")
	}
	if !in.Timestamp.Equal(received) {
		t.Errorf("missing timestamp should default to receive time, got %v", in.Timestamp)
	}
	if in.SourceTopic != "interactions.events" {
		t.Errorf("source topic = %q", in.SourceTopic)
	}
	if in.Data.ProductID != "p1" {
		t.Errorf("product id = %q, want p1", in.Data.ProductID)
	}
	if in.Data.ViewDuration != 95 {
		t.Errorf("view duration = %v, want 95", in.Data.ViewDuration)
	}
	if in.Data.Category != "savings" {
		t.Errorf("category = %q, want savings", in.Data.Category)
	}
	if in.Data.Extra["campaign"] != "summer-2026" {
		t.Errorf("unknown payload field not preserved: %v", in.Data.Extra)
	}
}

func TestToInteractionKeepsProducerValues(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 7, 15, 9, 0, 0, 0, time.UTC)
	event := &InteractionEvent{
		EventID:   "evt-42",
		Type:      "comparison",
		UserID:    "u2",
		Timestamp: FlexTime{ts},
		Data: map[string]any{
			"productIDs": []any{"p1", "p2", "p3"},
		},
	}

	in := event.ToInteraction(time.Now(), "interactions.events")

	if in.ID != "evt-42" {
		t.Errorf("event id = %q, want evt-42", in.ID)
	}
	if !in.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want producer value %v", in.Timestamp, ts)
	}
	if got := in.ProductRefs(); len(got) != 3 || got[0] != "p1" {
		t.Errorf("product refs = %v, want [p1 p2 p3]", got)
	}
	if in.Type != recommend.TypeComparison {
		t.Errorf("type = %q, want comparison", in.Type)
	}
}

func TestSerializerRejectsInvalidEvents(t *testing.T) {
	t.Parallel()

	s := NewSerializer()

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{
			name:    "valid",
			payload: `{"type":"product_view","userId":"u1","data":{"productId":"p1"}}`,
		},
		{
			name:    "missing user",
			payload: `{"type":"product_view","data":{"productId":"p1"}}`,
			wantErr: true,
		},
		{
			name:    "missing type",
			payload: `{"userId":"u1"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			payload: `{{{`,
			wantErr: true,
		},
		{
			name:    "demographics payload",
			payload: `{"type":"product_view","userId":"u1","data":{"productId":"p1","userDemographics":{"age_group":"25-34"}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := s.Unmarshal([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Errorf("Unmarshal() error = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}
