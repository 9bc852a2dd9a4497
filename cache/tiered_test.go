package cache

import (
	"context"
	"fmt"
	"testing"

	"github.com/plantops/opsbrief/opsmodel"
)

func TestTieredSetGetAnnotatesCopy(t *testing.T) {
	ctx := context.Background()
	c := New()

	stored := opsmodel.ToolResult{Success: true, Data: 1}
	if err := c.Set(ctx, "t:u:h", TierDaily, stored); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok, err := c.Get(ctx, "t:u:h")
	if err != nil || !ok {
		t.Fatalf("Get = ok=%v err=%v, want hit", ok, err)
	}
	if got.Data != 1 {
		t.Errorf("Get returned wrong data: %v", got.Data)
	}
	if got.Metadata.CachedAt == nil {
		t.Error("cache hit must set metadata.cached_at")
	}
	if got.Metadata.CacheTier != "daily" {
		t.Errorf("cache hit must set metadata.cache_tier, got %q", got.Metadata.CacheTier)
	}
	// Each hit annotates its own copy with its own cached_at timestamp.
	again, _, _ := c.Get(ctx, "t:u:h")
	if again.Metadata.CachedAt == got.Metadata.CachedAt {
		t.Error("each hit must annotate its own copy")
	}
}

func TestTieredMiss(t *testing.T) {
	c := New()
	if _, ok, _ := c.Get(context.Background(), "absent"); ok {
		t.Error("Get on absent key must miss")
	}
	stats := c.Stats()
	if stats.Misses != 1 || stats.Hits != 0 {
		t.Errorf("stats = %+v, want 1 miss", stats)
	}
}

func TestTieredNoneNeverStored(t *testing.T) {
	ctx := context.Background()
	c := New()
	if err := c.Set(ctx, "k", TierNone, opsmodel.ToolResult{Success: true}); err != nil {
		t.Fatalf("Set(TierNone) errored: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("TierNone values must never be stored")
	}
}

func TestTieredLRUEviction(t *testing.T) {
	ctx := context.Background()
	c := New(WithMaxEntriesPerTier(3))
	for i := 0; i < 4; i++ {
		key := fmt.Sprintf("t:u:%d", i)
		if err := c.Set(ctx, key, TierDaily, opsmodel.ToolResult{Success: true, Data: i}); err != nil {
			t.Fatalf("Set %d: %v", i, err)
		}
	}
	if _, ok, _ := c.Get(ctx, "t:u:0"); ok {
		t.Error("oldest entry should have been evicted at max size 3")
	}
	for i := 1; i < 4; i++ {
		if _, ok, _ := c.Get(ctx, fmt.Sprintf("t:u:%d", i)); !ok {
			t.Errorf("entry %d should have survived eviction", i)
		}
	}
	if n := c.Stats().EntriesByTier[TierDaily]; n != 3 {
		t.Errorf("daily tier holds %d entries, want 3", n)
	}
}

func TestTieredLRUTouchOnGet(t *testing.T) {
	ctx := context.Background()
	c := New(WithMaxEntriesPerTier(2))
	c.Set(ctx, "a", TierDaily, opsmodel.ToolResult{Success: true})
	c.Set(ctx, "b", TierDaily, opsmodel.ToolResult{Success: true})
	c.Get(ctx, "a") // a becomes most recent
	c.Set(ctx, "c", TierDaily, opsmodel.ToolResult{Success: true})
	if _, ok, _ := c.Get(ctx, "a"); !ok {
		t.Error("recently read entry must not be evicted")
	}
	if _, ok, _ := c.Get(ctx, "b"); ok {
		t.Error("least recently used entry must be evicted")
	}
}

func TestTieredInvalidateSelectors(t *testing.T) {
	ctx := context.Background()
	seed := func() *Tiered {
		c := New()
		c.Set(ctx, "oee_query:u:aaaa", TierDaily, opsmodel.ToolResult{Success: true})
		c.Set(ctx, "alert_check:u:bbbb", TierLive, opsmodel.ToolResult{Success: true})
		c.Set(ctx, "asset_lookup:u:cccc", TierStatic, opsmodel.ToolResult{Success: true})
		return c
	}

	c := seed()
	if n, _ := c.Invalidate(ctx, Selector{Tier: TierLive}); n != 1 {
		t.Errorf("tier invalidation removed %d, want 1", n)
	}

	c = seed()
	if n, _ := c.Invalidate(ctx, Selector{ToolName: "oee_query"}); n != 1 {
		t.Errorf("tool invalidation removed %d, want 1", n)
	}

	c = seed()
	if n, _ := c.Invalidate(ctx, Selector{Glob: "cc*"}); n != 1 {
		t.Errorf("glob invalidation removed %d, want 1", n)
	}

	c = seed()
	if n, _ := c.Invalidate(ctx, Selector{All: true}); n != 3 {
		t.Errorf("all invalidation removed %d, want 3", n)
	}
	if c.Stats().Invalidations != 1 {
		t.Errorf("invalidation counter = %d, want 1", c.Stats().Invalidations)
	}
}

func TestTieredDisabledMode(t *testing.T) {
	ctx := context.Background()
	c := New(WithDisabled())
	c.Set(ctx, "k", TierDaily, opsmodel.ToolResult{Success: true})
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("disabled cache must not store or return entries")
	}
	c.Enable()
	c.Set(ctx, "k", TierDaily, opsmodel.ToolResult{Success: true})
	if _, ok, _ := c.Get(ctx, "k"); !ok {
		t.Error("re-enabled cache must work again")
	}
}

func TestStatsHitRate(t *testing.T) {
	s := Stats{Hits: 3, Misses: 1}
	if got := s.HitRate(); got != 0.75 {
		t.Errorf("HitRate = %v, want 0.75", got)
	}
	if (Stats{}).HitRate() != 0 {
		t.Error("HitRate with no lookups must be 0")
	}
}
