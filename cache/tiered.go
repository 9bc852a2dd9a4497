package cache

import (
	"container/list"
	"context"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/plantops/opsbrief/opsmodel"
	"github.com/plantops/opsbrief/telemetry"
)

// RefreshFunc recomputes the value for key so a tier can be kept warm
// without a caller blocking on recomputation.
type RefreshFunc func(ctx context.Context, key string) (opsmodel.ToolResult, error)

type tieredEntry struct {
	key       string
	tier      Tier
	result    opsmodel.ToolResult
	expiresAt time.Time
	ttl       time.Duration
	elem      *list.Element
}

// Tiered is an in-process, per-tier LRU cache. Each tier has its own
// eviction list and its own max-entries bound; TierNone is never stored.
// One ring per tier keeps live/daily/static entries from competing for the
// same eviction budget.
type Tiered struct {
	mu         sync.RWMutex
	enabled    bool
	maxPerTier int
	entries    map[string]*tieredEntry
	lru        map[Tier]*list.List

	hits, misses, invalidations int64
	metrics                     telemetry.Metrics

	refreshFunc     RefreshFunc
	refreshCooldown time.Duration
	refreshCtx      context.Context
	refreshCancel   context.CancelFunc
	refreshWg       sync.WaitGroup
	refreshCh       chan string
}

// Option configures a Tiered cache.
type Option func(*Tiered)

// WithMaxEntriesPerTier bounds each tier's LRU list. Default 1000.
func WithMaxEntriesPerTier(n int) Option {
	return func(t *Tiered) {
		if n > 0 {
			t.maxPerTier = n
		}
	}
}

// WithRefreshFunc enables background refresh-before-expiry.
func WithRefreshFunc(fn RefreshFunc) Option {
	return func(t *Tiered) { t.refreshFunc = fn }
}

// WithRefreshCooldown sets the minimum interval between refreshes of the
// same key. Default 10s.
func WithRefreshCooldown(d time.Duration) Option {
	return func(t *Tiered) {
		if d > 0 {
			t.refreshCooldown = d
		}
	}
}

// WithDisabled starts the cache in pass-through mode; Get always misses and
// Set is a no-op until Enable is called.
func WithDisabled() Option {
	return func(t *Tiered) { t.enabled = false }
}

// WithMetrics emits hit/miss counters through m in addition to the internal
// Stats counters.
func WithMetrics(m telemetry.Metrics) Option {
	return func(t *Tiered) { t.metrics = m }
}

// New constructs an enabled Tiered cache.
func New(opts ...Option) *Tiered {
	t := &Tiered{
		enabled:         true,
		maxPerTier:      1000,
		entries:         make(map[string]*tieredEntry),
		lru:             map[Tier]*list.List{TierLive: list.New(), TierDaily: list.New(), TierStatic: list.New()},
		refreshCooldown: 10 * time.Second,
		refreshCh:       make(chan string, 256),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

var _ Cache = (*Tiered)(nil)

// Enable/Disable toggle global pass-through mode.
func (t *Tiered) Enable()  { t.mu.Lock(); t.enabled = true; t.mu.Unlock() }
func (t *Tiered) Disable() { t.mu.Lock(); t.enabled = false; t.mu.Unlock() }

func (t *Tiered) Get(ctx context.Context, key string) (opsmodel.ToolResult, bool, error) {
	t.mu.RLock()
	enabled := t.enabled
	entry, ok := t.entries[key]
	t.mu.RUnlock()

	if !enabled {
		return opsmodel.ToolResult{}, false, nil
	}
	if !ok {
		t.recordMiss()
		return opsmodel.ToolResult{}, false, nil
	}

	now := time.Now()
	if now.After(entry.expiresAt) {
		t.mu.Lock()
		t.removeLocked(key)
		t.mu.Unlock()
		t.recordMiss()
		return opsmodel.ToolResult{}, false, nil
	}

	if t.refreshFunc != nil && entry.ttl > 0 && now.After(entry.expiresAt.Add(-entry.ttl/5)) {
		t.triggerRefresh(key)
	}

	t.mu.Lock()
	t.lru[entry.tier].MoveToFront(entry.elem)
	t.mu.Unlock()

	t.recordHit(entry.tier)
	result := entry.result
	now2 := time.Now().UTC()
	result.Metadata.CachedAt = &now2
	result.Metadata.CacheTier = string(entry.tier)
	return result, true, nil
}

func (t *Tiered) Set(ctx context.Context, key string, tier Tier, result opsmodel.ToolResult) error {
	if tier == TierNone {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return nil
	}

	ttl := DefaultTTL(tier)
	if existing, ok := t.entries[key]; ok {
		t.lru[existing.tier].Remove(existing.elem)
	}
	ring := t.lru[tier]
	if ring == nil {
		ring = list.New()
		t.lru[tier] = ring
	}
	elem := ring.PushFront(key)
	t.entries[key] = &tieredEntry{
		key: key, tier: tier, result: result,
		expiresAt: time.Now().Add(ttl), ttl: ttl, elem: elem,
	}
	t.evictIfOverLocked(tier)
	return nil
}

func (t *Tiered) evictIfOverLocked(tier Tier) {
	ring := t.lru[tier]
	for ring.Len() > t.maxPerTier {
		back := ring.Back()
		if back == nil {
			return
		}
		key := back.Value.(string)
		ring.Remove(back)
		delete(t.entries, key)
	}
}

func (t *Tiered) removeLocked(key string) {
	if e, ok := t.entries[key]; ok {
		t.lru[e.tier].Remove(e.elem)
		delete(t.entries, key)
	}
}

func (t *Tiered) Invalidate(ctx context.Context, sel Selector) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var toRemove []string
	for key, entry := range t.entries {
		if matches(sel, key, entry) {
			toRemove = append(toRemove, key)
		}
	}
	for _, key := range toRemove {
		t.removeLocked(key)
	}
	if len(toRemove) > 0 {
		atomic.AddInt64(&t.invalidations, 1)
	}
	return len(toRemove), nil
}

func matches(sel Selector, key string, entry *tieredEntry) bool {
	if sel.All {
		return true
	}
	if sel.Tier != "" && entry.tier == sel.Tier {
		return true
	}
	if sel.ToolName != "" {
		parts := strings.SplitN(key, ":", 2)
		if len(parts) > 0 && parts[0] == sel.ToolName {
			return true
		}
	}
	if sel.Glob != "" {
		parts := strings.Split(key, ":")
		tail := parts[len(parts)-1]
		if ok, _ := path.Match(sel.Glob, tail); ok {
			return true
		}
	}
	return false
}

func (t *Tiered) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	byTier := make(map[Tier]int, len(t.lru))
	for tier, ring := range t.lru {
		byTier[tier] = ring.Len()
	}
	return Stats{
		Hits:          atomic.LoadInt64(&t.hits),
		Misses:        atomic.LoadInt64(&t.misses),
		Invalidations: atomic.LoadInt64(&t.invalidations),
		EntriesByTier: byTier,
	}
}

func (t *Tiered) recordHit(tier Tier) {
	atomic.AddInt64(&t.hits, 1)
	if t.metrics != nil {
		t.metrics.IncCounter("cache.hits", 1, "tier", string(tier))
	}
}

func (t *Tiered) recordMiss() {
	atomic.AddInt64(&t.misses, 1)
	if t.metrics != nil {
		t.metrics.IncCounter("cache.misses", 1)
	}
}

func (t *Tiered) triggerRefresh(key string) {
	if t.refreshCtx == nil {
		return
	}
	select {
	case t.refreshCh <- key:
	case <-t.refreshCtx.Done():
	default:
	}
}

// StartRefresh starts the background refresh loop.
func (t *Tiered) StartRefresh(ctx context.Context) {
	if t.refreshFunc == nil {
		return
	}
	t.refreshCtx, t.refreshCancel = context.WithCancel(ctx)
	t.refreshWg.Add(1)
	go t.refreshLoop()
}

// StopRefresh stops the background refresh loop and waits for it to exit.
func (t *Tiered) StopRefresh() {
	if t.refreshCancel != nil {
		t.refreshCancel()
		t.refreshWg.Wait()
		t.refreshCancel = nil
	}
}

func (t *Tiered) refreshLoop() {
	defer t.refreshWg.Done()
	lastRefresh := make(map[string]time.Time)
	for {
		select {
		case <-t.refreshCtx.Done():
			return
		case key := <-t.refreshCh:
			if last, ok := lastRefresh[key]; ok && time.Since(last) < t.refreshCooldown {
				continue
			}
			t.mu.RLock()
			entry, exists := t.entries[key]
			t.mu.RUnlock()
			if !exists {
				continue
			}
			result, err := t.refreshFunc(t.refreshCtx, key)
			if err != nil {
				continue
			}
			t.mu.Lock()
			entry.result = result
			entry.expiresAt = time.Now().Add(entry.ttl)
			t.mu.Unlock()
			lastRefresh[key] = time.Now()
		}
	}
}
