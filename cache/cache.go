// Package cache implements the tool response cache: tiered TTLs, structured
// invalidation, and an in-process LRU-per-tier store of opsmodel.ToolResult
// values keyed by tool name and semantic input hash.
package cache

import (
	"context"
	"time"

	"github.com/plantops/opsbrief/opsmodel"
)

// Tier enumerates the three memoization lifetimes plus the bypass tier.
type Tier string

const (
	TierLive   Tier = "live"
	TierDaily  Tier = "daily"
	TierStatic Tier = "static"
	TierNone   Tier = "none"
)

// DefaultTTL returns each tier's default freshness window.
func DefaultTTL(t Tier) time.Duration {
	switch t {
	case TierLive:
		return 60 * time.Second
	case TierDaily:
		return 15 * time.Minute
	case TierStatic:
		return time.Hour
	default:
		return 0
	}
}

// Entry is a stored cache value plus the tier it was written under.
type Entry struct {
	Result opsmodel.ToolResult
	Tier   Tier
}

// Cache is the tiered tool-response store. Implementations must be safe for
// concurrent use.
type Cache interface {
	// Get returns a copy of the stored result with metadata.cached_at and
	// metadata.cache_tier set, or ok=false on a miss or expired entry.
	Get(ctx context.Context, key string) (opsmodel.ToolResult, bool, error)
	// Set stores result under key for tier's TTL. Storing under TierNone is
	// always a no-op.
	Set(ctx context.Context, key string, tier Tier, result opsmodel.ToolResult) error
	// Invalidate removes entries matching the given selector.
	Invalidate(ctx context.Context, sel Selector) (int, error)
	// Stats returns current hit/miss/invalidation counters.
	Stats() Stats
}

// Selector chooses which entries Invalidate removes. Exactly one non-zero
// field should be set; All takes precedence if true.
type Selector struct {
	All      bool
	Tier     Tier
	ToolName string
	Glob     string // matched against the key tail (the hash segment)
}

// Stats is the cache's running counters.
type Stats struct {
	Hits          int64
	Misses        int64
	Invalidations int64
	EntriesByTier map[Tier]int
}

// HitRate returns Hits / (Hits + Misses), or 0 when there have been no
// lookups yet.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
