package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"codeduel-server/duelerrors"
	"codeduel-server/match"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	photo_url  TEXT NOT NULL DEFAULT '',
	rating     INT  NOT NULL DEFAULT 1000,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_users_rating ON users(rating DESC);
CREATE TABLE IF NOT EXISTS matches (
	id                    UUID PRIMARY KEY,
	status                TEXT NOT NULL,
	question              TEXT,
	player0_id            TEXT NOT NULL,
	player0_name          TEXT NOT NULL,
	player0_photo_url     TEXT NOT NULL DEFAULT '',
	player0_rating        INT NOT NULL,
	player1_id            TEXT NOT NULL,
	player1_name          TEXT NOT NULL,
	player1_photo_url     TEXT NOT NULL DEFAULT '',
	player1_rating        INT NOT NULL,
	player0_score         INT NOT NULL DEFAULT 0,
	player1_score         INT NOT NULL DEFAULT 0,
	player0_solution      TEXT NOT NULL DEFAULT '',
	player1_solution      TEXT NOT NULL DEFAULT '',
	winner                TEXT,
	end_reason            TEXT,
	player0_rating_change INT NOT NULL DEFAULT 0,
	player1_rating_change INT NOT NULL DEFAULT 0,
	start_time            TIMESTAMPTZ,
	timeout_at            TIMESTAMPTZ,
	end_time              TIMESTAMPTZ,
	winning_solution      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_matches_status ON matches(status);
CREATE INDEX IF NOT EXISTS idx_matches_player0 ON matches(player0_id);
CREATE INDEX IF NOT EXISTS idx_matches_player1 ON matches(player1_id);
CREATE TABLE IF NOT EXISTS match_history (
	id                 UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id            TEXT NOT NULL,
	match_id           UUID NOT NULL,
	question           TEXT,
	played_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	score              INT NOT NULL,
	is_win             BOOLEAN NOT NULL,
	opponent_name      TEXT NOT NULL DEFAULT '',
	opponent_photo_url TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_match_history_user ON match_history(user_id);
CREATE INDEX IF NOT EXISTS idx_match_history_match ON match_history(match_id);
`

// Store persists users, matches and per-player match history in Postgres.
type Store struct {
	pool          *pgxpool.Pool
	initialRating int
}

// NewStore connects to Postgres and ensures the schema exists.
// If databaseURL is empty, NewStore returns (nil, nil) and no persistence occurs.
func NewStore(ctx context.Context, databaseURL string, initialRating int) (*Store, error) {
	if databaseURL == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}
	slog.Info("connected to Postgres", "tag", "storage")
	return &Store{pool: pool, initialRating: initialRating}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// EnsureUser creates the profile at the initial rating if absent, refreshes
// name and photo, and returns the current rating.
func (s *Store) EnsureUser(ctx context.Context, id, name, photoURL string) (int, error) {
	if s == nil || s.pool == nil {
		return 1000, nil
	}
	var r int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, name, photo_url, rating)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, photo_url = EXCLUDED.photo_url, updated_at = now()
		RETURNING rating`,
		id, name, photoURL, s.initialRating).Scan(&r)
	if err != nil {
		return 0, fmt.Errorf("ensuring user %s: %w", id, err)
	}
	return r, nil
}

// InsertMatch writes a freshly created countdown match.
func (s *Store) InsertMatch(ctx context.Context, m *match.Match) error {
	if s == nil || s.pool == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO matches (id, status, player0_id, player0_name, player0_photo_url, player0_rating,
			player1_id, player1_name, player1_photo_url, player1_rating, start_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		m.ID, string(m.Status),
		m.Players[0].ID, m.Players[0].Name, m.Players[0].PhotoURL, m.Players[0].Rating,
		m.Players[1].ID, m.Players[1].Name, m.Players[1].PhotoURL, m.Players[1].Rating,
		m.StartTime)
	return err
}

// ActivateMatch writes the countdown -> active transition.
func (s *Store) ActivateMatch(ctx context.Context, m *match.Match) error {
	if s == nil || s.pool == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE matches
		SET status = $2, question = $3, start_time = $4, timeout_at = $5,
			player0_score = 0, player1_score = 0
		WHERE id = $1`,
		m.ID, string(m.Status), m.Question, m.StartTime, m.TimeoutAt)
	return err
}

// RecordSubmission stores the latest score and solution text for one slot.
func (s *Store) RecordSubmission(ctx context.Context, matchID string, slot, score int, solution string) error {
	if s == nil || s.pool == nil {
		return nil
	}
	var query string
	if slot == 0 {
		query = `UPDATE matches SET player0_score = $2, player0_solution = $3 WHERE id = $1`
	} else {
		query = `UPDATE matches SET player1_score = $2, player1_solution = $3 WHERE id = $1`
	}
	_, err := s.pool.Exec(ctx, query, matchID, score, solution)
	return err
}

// FinalizeMatch writes the terminal match record, both players' new ratings
// and one history entry per player, all in a single transaction. The match
// update is conditional on the stored status still being active; if another
// writer got there first, ErrMatchNotActive is returned and nothing changes.
func (s *Store) FinalizeMatch(ctx context.Context, m *match.Match, newRatings [2]int) error {
	if s == nil || s.pool == nil {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var winner *string
	if m.Winner != "" {
		winner = &m.Winner
	}
	tag, err := tx.Exec(ctx, `
		UPDATE matches
		SET status = 'completed', winner = $2, end_reason = $3,
			player0_rating_change = $4, player1_rating_change = $5,
			player0_score = $6, player1_score = $7,
			player0_solution = $8, player1_solution = $9,
			end_time = $10, winning_solution = $11
		WHERE id = $1 AND status = 'active'`,
		m.ID, winner, string(m.EndReason),
		m.RatingChanges[0], m.RatingChanges[1],
		m.Scores[0], m.Scores[1],
		m.Solutions[0], m.Solutions[1],
		m.EndTime, m.WinningSolution)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return duelerrors.ErrMatchNotActive
	}

	for i := 0; i < 2; i++ {
		p := m.Players[i]
		opp := m.Players[1-i]
		_, err = tx.Exec(ctx, `UPDATE users SET rating = $2, updated_at = now() WHERE id = $1`,
			p.ID, newRatings[i])
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO match_history (user_id, match_id, question, played_at, score, is_win, opponent_name, opponent_photo_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			p.ID, m.ID, m.Question, m.EndTime, m.Scores[i], p.ID == m.Winner, opp.Name, opp.PhotoURL)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// AbandonMatch closes out a match that never settled. No ratings or history
// rows are touched; only non-terminal rows are affected.
func (s *Store) AbandonMatch(ctx context.Context, matchID string) error {
	if s == nil || s.pool == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE matches
		SET status = 'completed', end_reason = 'abandoned', end_time = now()
		WHERE id = $1 AND status != 'completed'`, matchID)
	return err
}

// GetMatch returns a persisted match by id, or (nil, nil) if not found.
func (s *Store) GetMatch(ctx context.Context, id string) (*match.Match, error) {
	if s == nil || s.pool == nil {
		return nil, nil
	}
	var m match.Match
	var question, endReason, winningSolution *string
	var winner *string
	var startTime, timeoutAt, endTime *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT id, status, question,
			player0_id, player0_name, player0_photo_url, player0_rating,
			player1_id, player1_name, player1_photo_url, player1_rating,
			player0_score, player1_score, player0_solution, player1_solution,
			winner, end_reason, player0_rating_change, player1_rating_change,
			start_time, timeout_at, end_time, winning_solution
		FROM matches WHERE id = $1`, id).Scan(
		&m.ID, &m.Status, &question,
		&m.Players[0].ID, &m.Players[0].Name, &m.Players[0].PhotoURL, &m.Players[0].Rating,
		&m.Players[1].ID, &m.Players[1].Name, &m.Players[1].PhotoURL, &m.Players[1].Rating,
		&m.Scores[0], &m.Scores[1], &m.Solutions[0], &m.Solutions[1],
		&winner, &endReason, &m.RatingChanges[0], &m.RatingChanges[1],
		&startTime, &timeoutAt, &endTime, &winningSolution)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if question != nil {
		m.Question = *question
	}
	if winner != nil {
		m.Winner = *winner
	}
	if endReason != nil {
		m.EndReason = match.EndReason(*endReason)
	}
	if winningSolution != nil {
		m.WinningSolution = *winningSolution
	}
	if startTime != nil {
		m.StartTime = *startTime
	}
	if timeoutAt != nil {
		m.TimeoutAt = *timeoutAt
	}
	if endTime != nil {
		m.EndTime = *endTime
	}
	return &m, nil
}

// HistoryRecord is one row of a player's compact match history.
type HistoryRecord struct {
	MatchID          string    `json:"matchId"`
	Question         string    `json:"question"`
	PlayedAt         time.Time `json:"date"`
	Score            int       `json:"score"`
	IsWin            bool      `json:"isWin"`
	OpponentName     string    `json:"opponentName"`
	OpponentPhotoURL string    `json:"opponentPhotoURL,omitempty"`
}

// ListHistory returns the user's match history, most recent first.
func (s *Store) ListHistory(ctx context.Context, userID string) ([]HistoryRecord, error) {
	if s == nil || s.pool == nil {
		return []HistoryRecord{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT match_id, COALESCE(question, ''), played_at, score, is_win, opponent_name, opponent_photo_url
		FROM match_history
		WHERE user_id = $1
		ORDER BY played_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []HistoryRecord{}
	for rows.Next() {
		var r HistoryRecord
		if err := rows.Scan(&r.MatchID, &r.Question, &r.PlayedAt, &r.Score, &r.IsWin, &r.OpponentName, &r.OpponentPhotoURL); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LeaderboardEntry is one row of the global leaderboard.
type LeaderboardEntry struct {
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoURL,omitempty"`
	Rating   int    `json:"rating"`
}

// ListLeaderboard returns users ordered by rating DESC.
func (s *Store) ListLeaderboard(ctx context.Context, limit, offset int) ([]LeaderboardEntry, error) {
	if s == nil || s.pool == nil {
		return []LeaderboardEntry{}, nil
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, photo_url, rating
		FROM users
		ORDER BY rating DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []LeaderboardEntry{}
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Name, &e.PhotoURL, &e.Rating); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
