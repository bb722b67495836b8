package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) CreateSession(ctx context.Context, session Session) error {
	genres, err := json.Marshal(session.Genres)
	if err != nil {
		return fmt.Errorf("marshal genres: %w", err)
	}
	providers, err := json.Marshal(session.Providers)
	if err != nil {
		return fmt.Errorf("marshal providers: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, join_code, quorum_fraction, participant_count, genres, providers, region, language, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, session.ID, session.JoinCode, session.QuorumFraction, session.ParticipantCount,
		genres, providers, session.Region, session.Language, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (Session, error) {
	return s.scanSession(s.db.QueryRowContext(ctx, `
		SELECT id, join_code, quorum_fraction, participant_count, genres, providers, region, language, expires_at, created_at
		FROM sessions
		WHERE id = $1
	`, sessionID))
}

// GetSessionByJoinCode returns the session holding the code. Join codes are
// only unique among active sessions, so when an expired row still holds the
// same code the latest-expiring row wins.
func (s *PostgresStore) GetSessionByJoinCode(ctx context.Context, joinCode string) (Session, error) {
	return s.scanSession(s.db.QueryRowContext(ctx, `
		SELECT id, join_code, quorum_fraction, participant_count, genres, providers, region, language, expires_at, created_at
		FROM sessions
		WHERE join_code = $1
		ORDER BY expires_at DESC
		LIMIT 1
	`, joinCode))
}

// JoinCodeActive reports whether an unexpired session currently holds the code.
func (s *PostgresStore) JoinCodeActive(ctx context.Context, joinCode string) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM sessions WHERE join_code = $1 AND expires_at > NOW())
	`, joinCode).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check join code: %w", err)
	}
	return taken, nil
}

// IncrementParticipants adds one participant and returns the new count. The
// row is only touched while the session is unexpired; sql.ErrNoRows means the
// session is missing or expired and the caller decides which.
func (s *PostgresStore) IncrementParticipants(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		UPDATE sessions
		SET participant_count = participant_count + 1
		WHERE id = $1 AND expires_at > NOW()
		RETURNING participant_count
	`, sessionID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DecrementParticipants removes one participant, floored at zero. sql.ErrNoRows
// means the session is missing or already empty.
func (s *PostgresStore) DecrementParticipants(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		UPDATE sessions
		SET participant_count = participant_count - 1
		WHERE id = $1 AND participant_count > 0
		RETURNING participant_count
	`, sessionID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteSession removes the session; candidate votes cascade via the schema.
func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete session rows: %w", err)
	}
	return affected > 0, nil
}

// EnsureCandidates lazily creates zero-vote rows for newly discovered movies.
// Re-discovering an already-seen movie never resets its count.
func (s *PostgresStore) EnsureCandidates(ctx context.Context, sessionID string, movieIDs []string) error {
	for _, movieID := range movieIDs {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO session_movies (session_id, movie_id, vote_count)
			VALUES ($1, $2, 0)
			ON CONFLICT (session_id, movie_id) DO NOTHING
		`, sessionID, movieID)
		if err != nil {
			return fmt.Errorf("ensure candidate %s: %w", movieID, err)
		}
	}
	return nil
}

// IncrementVote bumps the vote count for a (session, movie) pair and reads
// back, in the same statement, the updated count plus the participant count
// and quorum fraction that decide crossing. Concurrent votes on the same pair
// serialize on the row update, so every caller sees a distinct count.
func (s *PostgresStore) IncrementVote(ctx context.Context, sessionID, movieID string) (VoteTally, error) {
	var tally VoteTally
	err := s.db.QueryRowContext(ctx, `
		WITH bumped AS (
			UPDATE session_movies
			SET vote_count = vote_count + 1
			WHERE session_id = $1 AND movie_id = $2
			RETURNING vote_count
		)
		SELECT b.vote_count, s.participant_count, s.quorum_fraction
		FROM bumped b
		JOIN sessions s ON s.id = $1
	`, sessionID, movieID).Scan(&tally.VoteCount, &tally.ParticipantCount, &tally.QuorumFraction)
	if err != nil {
		return VoteTally{}, err
	}
	return tally, nil
}

// ListCandidates returns every candidate-vote row for the session.
func (s *PostgresStore) ListCandidates(ctx context.Context, sessionID string) ([]CandidateVote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, movie_id, vote_count
		FROM session_movies
		WHERE session_id = $1
		ORDER BY vote_count DESC, movie_id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	items := make([]CandidateVote, 0)
	for rows.Next() {
		var item CandidateVote
		if err := rows.Scan(&item.SessionID, &item.MovieID, &item.VoteCount); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) scanSession(row *sql.Row) (Session, error) {
	var (
		session   Session
		genres    []byte
		providers []byte
	)
	err := row.Scan(&session.ID, &session.JoinCode, &session.QuorumFraction, &session.ParticipantCount,
		&genres, &providers, &session.Region, &session.Language, &session.ExpiresAt, &session.CreatedAt)
	if err != nil {
		return Session{}, err
	}
	if err := json.Unmarshal(genres, &session.Genres); err != nil {
		return Session{}, fmt.Errorf("unmarshal genres: %w", err)
	}
	if err := json.Unmarshal(providers, &session.Providers); err != nil {
		return Session{}, fmt.Errorf("unmarshal providers: %w", err)
	}
	return session, nil
}
