package storage

import (
	"context"

	"codeduel-server/match"
)

// ReadStore abstracts the read side consumed by the HTTP API.
// Implementations can be swapped for testing (mocks) or read replicas.
type ReadStore interface {
	GetMatch(ctx context.Context, id string) (*match.Match, error)
	ListHistory(ctx context.Context, userID string) ([]HistoryRecord, error)
	ListLeaderboard(ctx context.Context, limit, offset int) ([]LeaderboardEntry, error)
}

// Compile-time checks: *Store is both the engine's durable gateway and the
// API's read store; *LiveStore is the engine's snapshot cache.
var (
	_ match.Gateway   = (*Store)(nil)
	_ ReadStore       = (*Store)(nil)
	_ match.LiveCache = (*LiveStore)(nil)
)
