package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"codeduel-server/match"
)

const (
	liveKeyPrefix = "match:live:"
	liveTTL       = 20 * time.Minute
)

// LiveStore keeps JSON snapshots of in-flight matches in Redis so the HTTP
// API can serve spectator reads without touching the engine. Snapshots expire
// on their own; Delete just shortens the window after a match completes.
type LiveStore struct {
	client *redis.Client
}

// NewLiveStore connects to Redis at the given URL. Like NewStore, an empty
// URL disables the cache and returns a nil store whose methods are no-ops.
func NewLiveStore(ctx context.Context, redisURL string) (*LiveStore, error) {
	if redisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &LiveStore{client: client}, nil
}

func (s *LiveStore) Save(ctx context.Context, m *match.Match) error {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal match %s: %w", m.ID, err)
	}
	return s.client.Set(ctx, liveKeyPrefix+m.ID, data, liveTTL).Err()
}

// Load returns the cached snapshot, or nil if none exists.
func (s *LiveStore) Load(ctx context.Context, id string) (*match.Match, error) {
	if s == nil {
		return nil, nil
	}
	data, err := s.client.Get(ctx, liveKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m match.Match
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal match %s: %w", id, err)
	}
	return &m, nil
}

func (s *LiveStore) Delete(ctx context.Context, id string) error {
	if s == nil {
		return nil
	}
	return s.client.Del(ctx, liveKeyPrefix+id).Err()
}

// Close releases the Redis connection.
func (s *LiveStore) Close() error {
	if s == nil {
		return nil
	}
	return s.client.Close()
}
