// Package store holds the durable and cached state around the coaching
// core: a position evaluation cache and an archive of batch analysis runs.
// Live sessions are deliberately not stored here; they live in memory only.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ai-chess-training/LLM-ChessCoach/pkg/coachdto"
)

const ttlEval = 6 * time.Hour

// EvalCache memoizes engine evaluations keyed by position and search budget.
// A cache miss returns (nil, false, nil).
type EvalCache interface {
	Get(ctx context.Context, key string) ([]coachdto.MultiPVEntry, bool, error)
	Put(ctx context.Context, key string, entries []coachdto.MultiPVEntry) error
}

// EvalKey builds the cache key. Budget parameters are part of the key so a
// quick-pass result never shadows a full evaluation of the same position.
func EvalKey(fen string, nodes int, moveTimeMillis int, multiPV int) string {
	return fmt.Sprintf("eval:%s|n%d|t%d|pv%d", strings.TrimSpace(fen), nodes, moveTimeMillis, multiPV)
}

type RedisEvalCache struct{ rdb *redis.Client }

func NewRedisEvalCache(rdb *redis.Client) *RedisEvalCache {
	return &RedisEvalCache{rdb: rdb}
}

func (c *RedisEvalCache) Get(ctx context.Context, key string) ([]coachdto.MultiPVEntry, bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var entries []coachdto.MultiPVEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false, err
	}
	return entries, true, nil
}

func (c *RedisEvalCache) Put(ctx context.Context, key string, entries []coachdto.MultiPVEntry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, raw, ttlEval).Err()
}

// MemoryEvalCache is the development fallback when no Redis is configured.
type MemoryEvalCache struct {
	mu      sync.RWMutex
	entries map[string][]coachdto.MultiPVEntry
}

func NewMemoryEvalCache() *MemoryEvalCache {
	return &MemoryEvalCache{entries: make(map[string][]coachdto.MultiPVEntry)}
}

func (c *MemoryEvalCache) Get(ctx context.Context, key string) ([]coachdto.MultiPVEntry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	out := append([]coachdto.MultiPVEntry(nil), entries...)
	return out, true, nil
}

func (c *MemoryEvalCache) Put(ctx context.Context, key string, entries []coachdto.MultiPVEntry) error {
	c.mu.Lock()
	c.entries[key] = append([]coachdto.MultiPVEntry(nil), entries...)
	c.mu.Unlock()
	return nil
}
