package cache

import (
	"context"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/plantops/opsbrief/opsmodel"
	"github.com/plantops/opsbrief/tooling"
)

// TierFor maps a tool name to its default cache tier. Tools not listed
// default to TierDaily.
func TierFor(toolName string) Tier {
	switch toolName {
	case "alert_check", "safety_events", "production_status":
		return TierLive
	case "asset_lookup":
		return TierStatic
	default:
		return TierDaily
	}
}

// Decorator wraps a tooling.Tool with transparent caching: cache tier is
// chosen by TierFor (or an explicit override), force_refresh bypasses the
// read but still writes back, and a wrapped result with
// metadata.cache_tier="none" is never written.
type Decorator struct {
	inner  tooling.Tool
	cache  Cache
	tier   Tier
	userID func(ctx context.Context) string
}

// NewDecorator wraps inner, using TierFor(inner.Name()) unless tier is
// explicitly overridden with WithTier. userIDFn extracts the caller's user
// id from ctx for key scoping; a nil function treats every caller as "".
func NewDecorator(inner tooling.Tool, c Cache, userIDFn func(ctx context.Context) string) *Decorator {
	if userIDFn == nil {
		userIDFn = func(context.Context) string { return "" }
	}
	return &Decorator{inner: inner, cache: c, tier: TierFor(inner.Name()), userID: userIDFn}
}

// WithTier overrides the tier this decorator caches under.
func (d *Decorator) WithTier(tier Tier) *Decorator {
	d.tier = tier
	return d
}

func (d *Decorator) Name() string                   { return d.inner.Name() }
func (d *Decorator) Description() string            { return d.inner.Description() }
func (d *Decorator) ArgsSchema() *jsonschema.Schema { return d.inner.ArgsSchema() }
func (d *Decorator) CitationsRequired() bool        { return d.inner.CitationsRequired() }

// forceRefreshKey is the context key signaling a cache bypass; the args map
// carries the same signal under the "force_refresh" key.
type forceRefreshKey struct{}

// WithForceRefresh marks ctx so Run bypasses the cache read for this call
// while still writing the fresh result back.
func WithForceRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, forceRefreshKey{}, true)
}

func forceRefreshFromCtx(ctx context.Context) bool {
	v, _ := ctx.Value(forceRefreshKey{}).(bool)
	return v
}

func (d *Decorator) Run(ctx context.Context, args map[string]any) opsmodel.ToolResult {
	if d.tier == TierNone {
		return d.inner.Run(ctx, args)
	}

	forceRefresh := forceRefreshFromCtx(ctx) || boolFromArgs(args, "force_refresh")
	key := BuildKey(d.inner.Name(), d.userID(ctx), args)

	if !forceRefresh {
		if cached, ok, _ := d.cache.Get(ctx, key); ok {
			return cached
		}
	}

	result := d.inner.Run(ctx, args)
	tier := d.tier
	if result.Metadata.CacheTier == string(TierNone) {
		tier = TierNone
	}
	if result.Success && tier != TierNone {
		result.Metadata.CacheTier = string(tier)
		_ = d.cache.Set(ctx, key, tier, result)
	}
	return result
}

func boolFromArgs(args map[string]any, key string) bool {
	v, ok := args[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

var _ tooling.Tool = (*Decorator)(nil)
