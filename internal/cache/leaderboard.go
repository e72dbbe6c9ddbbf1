// Package cache keeps short-lived copies of expensive read models.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Haseeb-Arshad/codingcam-backend/internal/domain"
)

// Leaderboard caches ranked leaderboard pages. Entries may be stale for up to the TTL.
type Leaderboard interface {
	Get(ctx context.Context, start, end time.Time, limit int) ([]domain.LeaderboardEntry, bool, error)
	Set(ctx context.Context, start, end time.Time, limit int, entries []domain.LeaderboardEntry) error
}

// NoopLeaderboard never hits.
type NoopLeaderboard struct{}

// Get always misses.
func (NoopLeaderboard) Get(context.Context, time.Time, time.Time, int) ([]domain.LeaderboardEntry, bool, error) {
	return nil, false, nil
}

// Set performs no action.
func (NoopLeaderboard) Set(context.Context, time.Time, time.Time, int, []domain.LeaderboardEntry) error {
	return nil
}

// kv is the subset of the Redis client the cache uses.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisLeaderboard stores JSON encoded pages under a key derived from the query.
type RedisLeaderboard struct {
	client kv
	ttl    time.Duration
	prefix string
}

// NewRedisLeaderboard constructs a RedisLeaderboard.
func NewRedisLeaderboard(client kv, ttl time.Duration) *RedisLeaderboard {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisLeaderboard{client: client, ttl: ttl, prefix: "codingcam:leaderboard"}
}

// NewRedisClient dials Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Get returns the cached page, if any.
func (c *RedisLeaderboard) Get(ctx context.Context, start, end time.Time, limit int) ([]domain.LeaderboardEntry, bool, error) {
	raw, err := c.client.Get(ctx, c.key(start, end, limit)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var entries []domain.LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false, fmt.Errorf("decode cached leaderboard: %w", err)
	}
	return entries, true, nil
}

// Set stores a page with the configured TTL.
func (c *RedisLeaderboard) Set(ctx context.Context, start, end time.Time, limit int, entries []domain.LeaderboardEntry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(start, end, limit), raw, c.ttl).Err()
}

func (c *RedisLeaderboard) key(start, end time.Time, limit int) string {
	return fmt.Sprintf("%s:%s:%s:%d", c.prefix, domain.DayOf(start).Format("2006-01-02"), domain.DayOf(end).Format("2006-01-02"), limit)
}
