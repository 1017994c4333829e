// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/rs/zerolog"
)

// Config holds database configuration.
type Config struct {
	// Path is the DuckDB file path. Empty means in-memory.
	Path string `koanf:"path"`

	// MaxMemory caps DuckDB memory usage, e.g. "512MB".
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count. Zero means NumCPU.
	Threads int `koanf:"threads"`
}

// DefaultConfig returns the default database configuration.
func DefaultConfig() Config {
	return Config{
		Path:      "data/interactions.db",
		MaxMemory: "512MB",
	}
}

// DB wraps the DuckDB connection and provides interaction storage.
type DB struct {
	conn   *sql.DB
	logger zerolog.Logger
}

// New opens the database and initializes the schema.
func New(cfg Config, logger zerolog.Logger) (*DB, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if cfg.MaxMemory == "" {
		cfg.MaxMemory = "512MB"
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	} else {
		// DuckDB does not create parent directories itself.
		dir := filepath.Dir(path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
	}

	// Disable extension auto-install to avoid network access on open.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		path, threads, cfg.MaxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{
		conn:   conn,
		logger: logger.With().Str("component", "database").Logger(),
	}

	if err := db.initSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	conn.SetMaxOpenConns(threads)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)

	db.logger.Info().Str("path", path).Msg("database ready")
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS interactions (
    id           VARCHAR PRIMARY KEY,
    user_id      VARCHAR NOT NULL,
    session_id   VARCHAR,
    type         VARCHAR NOT NULL,
    product_id   VARCHAR,
    timestamp    TIMESTAMP NOT NULL,
    ingested_at  TIMESTAMP NOT NULL,
    source_topic VARCHAR,
    data         VARCHAR
);
CREATE INDEX IF NOT EXISTS idx_interactions_user ON interactions (user_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_interactions_session ON interactions (session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_interactions_type ON interactions (type, timestamp);
`
	_, err := db.conn.Exec(schema)
	return err
}
