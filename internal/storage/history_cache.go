package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/app-directory-tracker/internal/models"
	"github.com/redis/go-redis/v9"
)

// Writes the window only if the bot's generation is still the one the reader
// saw, so a history read before an invalidation is never cached after it.
var setIfCurrentScript = redis.NewScript(`
	local current = redis.call('GET', KEYS[2]) or '0'
	if current ~= ARGV[1] then
		return 0
	end
	redis.call('HSET', KEYS[1], ARGV[2], ARGV[3])
	redis.call('PEXPIRE', KEYS[1], ARGV[4])
	return 1
`)

// HistoryCache caches shaped guild count histories in Redis. All cached
// windows for one bot live in a single hash, keyed by limit, so a new
// sample invalidates them with one DEL. Each invalidation also bumps a
// per-bot generation counter that guards Set.
type HistoryCache struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewHistoryCache creates a history cache. A non-positive ttl disables caching.
func NewHistoryCache(redis *RedisCache, ttl time.Duration) *HistoryCache {
	return &HistoryCache{
		redis: redis,
		ttl:   ttl,
	}
}

// historyKey returns the hash key for a bot
// Format: history:{<botId>}
func historyKey(botID string) string {
	return "history:{" + botID + "}"
}

// generationKey shares the hash tag of historyKey so both land in one slot.
// Format: history:{<botId>}:gen
func generationKey(botID string) string {
	return historyKey(botID) + ":gen"
}

// Get returns the cached history for botID and limit. found is false on a
// miss; generation is then the value to hand back to Set.
func (c *HistoryCache) Get(ctx context.Context, botID string, limit int) (points []models.HistoryPoint, generation int64, found bool, err error) {
	if c.ttl <= 0 {
		return nil, 0, false, nil
	}

	pipe := c.redis.Client().Pipeline()
	window := pipe.HGet(ctx, historyKey(botID), strconv.Itoa(limit))
	gen := pipe.Get(ctx, generationKey(botID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, false, fmt.Errorf("failed to get history from cache: %w", err)
	}

	generation, err = gen.Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return nil, 0, false, fmt.Errorf("failed to read history generation: %w", err)
		}
		generation = 0
	}

	data, err := window.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, generation, false, nil
		}
		return nil, 0, false, fmt.Errorf("failed to get history from cache: %w", err)
	}

	if err := json.Unmarshal(data, &points); err != nil {
		return nil, 0, false, fmt.Errorf("failed to unmarshal cached history: %w", err)
	}
	return points, generation, true, nil
}

// Set stores the history for botID and limit unless the bot was invalidated
// after generation was read. A skipped write is not an error. The TTL applies
// to the whole hash.
func (c *HistoryCache) Set(ctx context.Context, botID string, limit int, generation int64, points []models.HistoryPoint) error {
	if c.ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	err = setIfCurrentScript.Run(ctx, c.redis.Client(),
		[]string{historyKey(botID), generationKey(botID)},
		strconv.FormatInt(generation, 10),
		strconv.Itoa(limit),
		data,
		c.ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to cache history: %w", err)
	}
	return nil
}

// Invalidate drops every cached history window for botID and advances its
// generation. The generation key has no TTL; there is one per polled bot.
func (c *HistoryCache) Invalidate(ctx context.Context, botID string) error {
	pipe := c.redis.Client().TxPipeline()
	pipe.Del(ctx, historyKey(botID))
	pipe.Incr(ctx, generationKey(botID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to invalidate history: %w", err)
	}
	return nil
}
