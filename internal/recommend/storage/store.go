// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/finmatch/recommender/internal/recommend"
	"github.com/finmatch/recommender/internal/recommend/model"
	"github.com/finmatch/recommender/internal/recommend/pipeline"
)

// Keys of the persisted generation. All five are written in a single
// transaction and must all be present for a load to succeed.
const (
	keyWeights  = "model/weights"
	keyUsers    = "model/users"
	keyItems    = "model/items"
	keyFeatures = "model/features"
	keyMeta     = "model/meta"
)

// meta describes a persisted generation and carries per-blob checksums
// verified on load.
type meta struct {
	SavedAt   time.Time
	TrainedAt time.Time
	Checksums map[string]string
}

// Store persists model artifacts in a Badger database.
type Store struct {
	db     *badger.DB
	logger zerolog.Logger
}

// New wraps an open Badger database. The caller owns the database
// lifecycle.
func New(db *badger.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "storage").Logger(),
	}
}

// Open opens (or creates) the Badger database at dir and returns a
// store over it. Close releases the database.
func Open(dir string, logger zerolog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: opening model store: %w", recommend.ErrFileOperation, err)
	}
	return New(db, logger), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists a generation, replacing any previous one. The write is
// a single transaction; concurrent loads observe the old generation
// until the transaction commits.
func (s *Store) Save(ctx context.Context, g recommend.Generation) error {
	artifact, ok := g.(*model.Artifact)
	if !ok {
		return fmt.Errorf("%w: unexpected generation type %T", recommend.ErrInvalidParameter, g)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	blobs := make(map[string][]byte, 4)
	encode := func(key string, v any) error {
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(v); err != nil {
			return fmt.Errorf("%w: encoding %s: %w", recommend.ErrFileOperation, key, err)
		}
		blobs[key] = buf.Bytes()
		return nil
	}

	if err := encode(keyWeights, &artifact.Weights); err != nil {
		return err
	}
	if err := encode(keyUsers, artifact.Users); err != nil {
		return err
	}
	if err := encode(keyItems, artifact.Items); err != nil {
		return err
	}
	if err := encode(keyFeatures, artifact.Features); err != nil {
		return err
	}

	m := meta{
		SavedAt:   time.Now(),
		TrainedAt: artifact.TrainedAt(),
		Checksums: make(map[string]string, len(blobs)),
	}
	for key, blob := range blobs {
		sum := sha256.Sum256(blob)
		m.Checksums[key] = hex.EncodeToString(sum[:])
	}

	var metaBuf bytes.Buffer
	if err := gob.NewEncoder(&metaBuf).Encode(&m); err != nil {
		return fmt.Errorf("%w: encoding metadata: %w", recommend.ErrFileOperation, err)
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		for key, blob := range blobs {
			if err := txn.Set([]byte(key), blob); err != nil {
				return err
			}
		}
		return txn.Set([]byte(keyMeta), metaBuf.Bytes())
	})
	if err != nil {
		return fmt.Errorf("%w: writing generation: %w", recommend.ErrFileOperation, err)
	}

	s.logger.Info().
		Time("trained_at", m.TrainedAt).
		Int("weights_bytes", len(blobs[keyWeights])).
		Msg("model generation persisted")
	return nil
}

// Load reads the persisted generation. Returns (nil, nil) when no
// generation has ever been saved. A partially present or corrupt
// generation is an error, never a half-loaded artifact.
func (s *Store) Load(ctx context.Context) (recommend.Generation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var m meta
	blobs := make(map[string][]byte, 4)

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyMeta))
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(&m)
		}); err != nil {
			return fmt.Errorf("decoding metadata: %w", err)
		}

		for _, key := range []string{keyWeights, keyUsers, keyItems, keyFeatures} {
			item, err := txn.Get([]byte(key))
			if err != nil {
				return fmt.Errorf("reading %s: %w", key, err)
			}
			blob, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("reading %s: %w", key, err)
			}
			blobs[key] = blob
		}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		// Check which key was missing: absent metadata means no
		// generation was ever saved; a missing blob with metadata
		// present is corruption.
		if len(blobs) == 0 && m.Checksums == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: incomplete generation: %w", recommend.ErrFileOperation, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading generation: %w", recommend.ErrFileOperation, err)
	}

	for key, blob := range blobs {
		sum := sha256.Sum256(blob)
		if hex.EncodeToString(sum[:]) != m.Checksums[key] {
			return nil, fmt.Errorf("%w: checksum mismatch for %s", recommend.ErrFileOperation, key)
		}
	}

	artifact := &model.Artifact{
		Users:    pipeline.NewIndexMap(),
		Items:    pipeline.NewIndexMap(),
		Features: pipeline.NewIndexMap(),
	}
	decode := func(key string, v any) error {
		if err := gob.NewDecoder(bytes.NewReader(blobs[key])).Decode(v); err != nil {
			return fmt.Errorf("%w: decoding %s: %w", recommend.ErrFileOperation, key, err)
		}
		return nil
	}
	if err := decode(keyWeights, &artifact.Weights); err != nil {
		return nil, err
	}
	if err := decode(keyUsers, artifact.Users); err != nil {
		return nil, err
	}
	if err := decode(keyItems, artifact.Items); err != nil {
		return nil, err
	}
	if err := decode(keyFeatures, artifact.Features); err != nil {
		return nil, err
	}

	if !artifact.Ready() {
		return nil, fmt.Errorf("%w: persisted generation is inconsistent", recommend.ErrFileOperation)
	}

	s.logger.Info().Time("trained_at", artifact.TrainedAt()).Msg("model generation loaded")
	return artifact, nil
}

var _ recommend.GenerationStore = (*Store)(nil)
