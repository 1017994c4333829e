// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/finmatch/recommender/internal/recommend"
)

// Interaction types that carry training signal. Preference updates are
// side features, not feedback, and are excluded from the training read.
var trainableTypes = []any{
	string(recommend.TypeView),
	string(recommend.TypeComparison),
	string(recommend.TypeAction),
	string(recommend.TypeApplication),
	string(recommend.TypeInquiry),
	string(recommend.TypeBookmark),
}

// InsertInteraction persists one interaction. The typed payload is
// stored as JSON alongside the indexed columns. Inserting an already
// stored ID is a no-op: the broker delivers at least once, and a
// redelivered event must ack cleanly instead of erroring on the
// primary key.
func (db *DB) InsertInteraction(ctx context.Context, in recommend.UserInteraction) error {
	data, err := json.Marshal(in.Data)
	if err != nil {
		return fmt.Errorf("%w: encoding interaction payload: %w", recommend.ErrDatabase, err)
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO interactions (id, user_id, session_id, type, product_id, timestamp, ingested_at, source_topic, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		in.ID, in.UserID, nullString(in.SessionID), string(in.Type),
		nullString(in.Data.ProductID), in.Timestamp, in.IngestedAt,
		nullString(in.SourceTopic), string(data))
	if err != nil {
		return fmt.Errorf("%w: inserting interaction: %w", recommend.ErrDatabase, err)
	}
	return nil
}

// GetUserInteractions returns a user's interactions, newest first.
func (db *DB) GetUserInteractions(ctx context.Context, userID string, limit int) ([]recommend.UserInteraction, error) {
	return db.queryInteractions(ctx, `
		SELECT id, user_id, session_id, type, timestamp, ingested_at, source_topic, data
		FROM interactions
		WHERE user_id = ?
		ORDER BY timestamp DESC
		LIMIT ?`, userID, normalizeLimit(limit))
}

// GetSessionInteractions returns a session's interactions, newest first.
func (db *DB) GetSessionInteractions(ctx context.Context, sessionID string, limit int) ([]recommend.UserInteraction, error) {
	return db.queryInteractions(ctx, `
		SELECT id, user_id, session_id, type, timestamp, ingested_at, source_topic, data
		FROM interactions
		WHERE session_id = ?
		ORDER BY timestamp DESC
		LIMIT ?`, sessionID, normalizeLimit(limit))
}

// GetTrainingInteractions returns the most recent window of weighted
// interaction types across all users, newest first.
func (db *DB) GetTrainingInteractions(ctx context.Context, limit int) ([]recommend.UserInteraction, error) {
	args := make([]any, 0, len(trainableTypes)+1)
	args = append(args, trainableTypes...)
	args = append(args, normalizeLimit(limit))

	return db.queryInteractions(ctx, `
		SELECT id, user_id, session_id, type, timestamp, ingested_at, source_topic, data
		FROM interactions
		WHERE type IN (?, ?, ?, ?, ?, ?)
		ORDER BY timestamp DESC
		LIMIT ?`, args...)
}

// GetMostViewedProducts returns products ranked by distinct viewers
// descending, ties broken by ascending product ID.
func (db *DB) GetMostViewedProducts(ctx context.Context, count int) ([]recommend.ProductViewCount, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT product_id, COUNT(DISTINCT user_id) AS viewers
		FROM interactions
		WHERE type = ? AND product_id IS NOT NULL AND product_id != ''
		GROUP BY product_id
		ORDER BY viewers DESC, product_id ASC
		LIMIT ?`, string(recommend.TypeView), normalizeLimit(count))
	if err != nil {
		return nil, fmt.Errorf("%w: querying popular products: %w", recommend.ErrDatabase, err)
	}
	defer closeRows(rows)

	var result []recommend.ProductViewCount
	for rows.Next() {
		var pvc recommend.ProductViewCount
		if err := rows.Scan(&pvc.ProductID, &pvc.ViewCount); err != nil {
			return nil, fmt.Errorf("%w: scanning popular products: %w", recommend.ErrDatabase, err)
		}
		result = append(result, pvc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading popular products: %w", recommend.ErrDatabase, err)
	}
	return result, nil
}

// GetUserPreferences returns the user's most recent declared
// preferences, or an empty map when none were recorded.
func (db *DB) GetUserPreferences(ctx context.Context, userID string) (map[string]string, error) {
	var raw string
	err := db.conn.QueryRowContext(ctx, `
		SELECT data
		FROM interactions
		WHERE user_id = ? AND type = ?
		ORDER BY timestamp DESC
		LIMIT 1`, userID, string(recommend.TypePreference)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: querying preferences: %w", recommend.ErrDatabase, err)
	}

	var data recommend.InteractionData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("%w: decoding preferences: %w", recommend.ErrDatabase, err)
	}
	if data.Preferences == nil {
		return map[string]string{}, nil
	}
	return data.Preferences, nil
}

func (db *DB) queryInteractions(ctx context.Context, query string, args ...any) ([]recommend.UserInteraction, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying interactions: %w", recommend.ErrDatabase, err)
	}
	defer closeRows(rows)

	var result []recommend.UserInteraction
	for rows.Next() {
		var (
			in          recommend.UserInteraction
			sessionID   sql.NullString
			sourceTopic sql.NullString
			typ         string
			raw         sql.NullString
		)
		if err := rows.Scan(&in.ID, &in.UserID, &sessionID, &typ, &in.Timestamp, &in.IngestedAt, &sourceTopic, &raw); err != nil {
			return nil, fmt.Errorf("%w: scanning interaction: %w", recommend.ErrDatabase, err)
		}
		in.SessionID = sessionID.String
		in.SourceTopic = sourceTopic.String
		in.Type = recommend.InteractionType(typ)
		if raw.Valid && raw.String != "" {
			if err := json.Unmarshal([]byte(raw.String), &in.Data); err != nil {
				return nil, fmt.Errorf("%w: decoding interaction payload: %w", recommend.ErrDatabase, err)
			}
		}
		result = append(result, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading interactions: %w", recommend.ErrDatabase, err)
	}
	return result, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func closeRows(rows *sql.Rows) {
	_ = rows.Close()
}

var _ recommend.InteractionRepository = (*DB)(nil)
