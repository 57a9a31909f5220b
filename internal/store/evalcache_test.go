package store

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ai-chess-training/LLM-ChessCoach/pkg/coachdto"
)

func sampleEntries() []coachdto.MultiPVEntry {
	cp := 34
	return []coachdto.MultiPVEntry{
		{MoveSAN: "e4", MoveUCI: "e2e4", Score: coachdto.EngineScore{CP: &cp}, LineSAN: []string{"e4", "e5", "Nf3"}},
		{MoveSAN: "d4", MoveUCI: "d2d4"},
	}
}

func TestEvalKeyIncludesBudget(t *testing.T) {
	fen := "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	quick := EvalKey(fen, 50000, 0, 5)
	full := EvalKey(fen, 1000000, 0, 5)
	if quick == full {
		t.Fatalf("quick and full budgets must not share a key")
	}
	if EvalKey(fen, 50000, 0, 5) != quick {
		t.Fatalf("key must be deterministic")
	}
}

func TestRedisEvalCacheRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewRedisEvalCache(rdb)
	ctx := context.Background()
	key := EvalKey("startpos", 50000, 0, 5)

	if _, hit, err := cache.Get(ctx, key); err != nil || hit {
		t.Fatalf("expected clean miss, hit=%v err=%v", hit, err)
	}

	if err := cache.Put(ctx, key, sampleEntries()); err != nil {
		t.Fatalf("Put: %v", err)
	}

	entries, hit, err := cache.Get(ctx, key)
	if err != nil || !hit {
		t.Fatalf("Get after Put: hit=%v err=%v", hit, err)
	}
	if len(entries) != 2 || entries[0].MoveUCI != "e2e4" {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Score.CP == nil || *entries[0].Score.CP != 34 {
		t.Fatalf("score lost in round trip: %+v", entries[0].Score)
	}

	if mr.TTL(key) <= 0 {
		t.Fatalf("cached entry must carry a TTL")
	}
}

func TestMemoryEvalCache(t *testing.T) {
	cache := NewMemoryEvalCache()
	ctx := context.Background()
	key := EvalKey("startpos", 1000000, 0, 5)

	if _, hit, _ := cache.Get(ctx, key); hit {
		t.Fatalf("expected miss on empty cache")
	}
	if err := cache.Put(ctx, key, sampleEntries()); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entries, hit, _ := cache.Get(ctx, key)
	if !hit || len(entries) != 2 {
		t.Fatalf("entries = %+v hit=%v", entries, hit)
	}

	// Mutating the returned slice must not corrupt the cached copy.
	entries[0].MoveUCI = "a2a3"
	again, _, _ := cache.Get(ctx, key)
	if again[0].MoveUCI != "e2e4" {
		t.Fatalf("cache aliased caller slice: %+v", again)
	}
}
