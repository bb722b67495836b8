package store

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureSchema creates the tables the service needs if they do not exist.
// Candidate votes and connection rows cascade when their session is deleted.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			join_code TEXT NOT NULL,
			quorum_fraction DOUBLE PRECISION NOT NULL,
			participant_count INTEGER NOT NULL DEFAULT 1,
			genres JSONB NOT NULL DEFAULT '[]',
			providers JSONB NOT NULL DEFAULT '[]',
			region TEXT NOT NULL DEFAULT 'AU',
			language TEXT NOT NULL DEFAULT 'en',
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT participant_count_floor CHECK (participant_count >= 0),
			CONSTRAINT quorum_fraction_range CHECK (quorum_fraction >= 0 AND quorum_fraction <= 1)
		)`,
		`CREATE INDEX IF NOT EXISTS sessions_join_code_idx ON sessions (join_code)`,
		`CREATE TABLE IF NOT EXISTS session_movies (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			movie_id TEXT NOT NULL,
			vote_count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (session_id, movie_id),
			CONSTRAINT vote_count_floor CHECK (vote_count >= 0)
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
