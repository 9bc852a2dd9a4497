// Package memgateway is an in-memory fixture implementation of
// gateway.Gateway, seeded from plain Go slices. It is the gateway used by
// every capability-tool test in this module and is a reasonable starting
// point for a demo process that has no real operational store configured.
package memgateway

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/plantops/opsbrief/gateway"
	"github.com/plantops/opsbrief/opsmodel"
)

// Store is the seed data backing a Gateway. Every field is optional; nil
// slices behave as empty collections.
type Store struct {
	Assets       []opsmodel.Asset
	Summaries    []opsmodel.DailySummary
	Snapshots    []opsmodel.LiveSnapshot
	SafetyEvents []opsmodel.SafetyEvent
	ShiftTargets []opsmodel.ShiftTarget
	CostCenters  []opsmodel.CostCenter
}

// Gateway is an in-memory gateway.Gateway. It is safe for concurrent use;
// all operations take a read lock and compute their answer from the seed
// Store without mutating it.
type Gateway struct {
	mu    sync.RWMutex
	store Store
	audit []opsmodel.AuditTrailEntry
}

// New constructs a Gateway over the given seed Store. The Store is copied
// by reference; callers should not mutate its slices after constructing.
func New(store Store) *Gateway {
	return &Gateway{store: store}
}

var _ gateway.Gateway = (*Gateway)(nil)

func (g *Gateway) result(data any, table, desc string, n int) opsmodel.DataResult {
	return opsmodel.DataResult{
		Data:             data,
		SourceName:       "memgateway",
		TableName:        table,
		QueryDescription: desc,
		QueryTimestamp:   time.Now().UTC(),
		RowCount:         n,
	}
}

func (g *Gateway) GetAsset(ctx context.Context, id string) (opsmodel.DataResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, a := range g.store.Assets {
		if a.ID == id {
			return g.result(&a, "assets", "asset by id", 1), nil
		}
	}
	return g.result(nil, "assets", "asset by id", 0), nil
}

// normalizeAssetName folds user-entered asset names to a canonical form:
// lower, strip, collapse hyphens/underscores/hashes to spaces, collapse
// repeated whitespace, and separate a trailing digit run from its preceding
// letter ("line3" -> "line 3") so "Line-3" and "line 3" compare equal.
var (
	punctRe  = regexp.MustCompile(`[#\-_]`)
	spacesRe = regexp.MustCompile(`\s+`)
	digitRe  = regexp.MustCompile(`([a-z])(\d+)$`)
)

func normalizeAssetName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = punctRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(spacesRe.ReplaceAllString(s, " "))
	return digitRe.ReplaceAllString(s, "$1 $2")
}

func (g *Gateway) GetAssetByName(ctx context.Context, name string) (opsmodel.DataResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	target := normalizeAssetName(name)
	for _, a := range g.store.Assets {
		if normalizeAssetName(a.Name) == target {
			return g.result(&a, "assets", "asset by name", 1), nil
		}
	}
	return g.result(nil, "assets", "asset by name", 0), nil
}

type scoredAsset struct {
	asset opsmodel.Asset
	score float64
}

// similarityScore is a lightweight token-overlap score (Jaccard over
// whitespace tokens of the normalized names, with one extra match counted
// when either name contains the other), sufficient to rank
// near-miss asset names without pulling in an external fuzzy-match library.
func similarityScore(a, b string) float64 {
	at := strings.Fields(a)
	bt := strings.Fields(b)
	if len(at) == 0 || len(bt) == 0 {
		return 0
	}
	set := make(map[string]bool, len(at))
	for _, t := range at {
		set[t] = true
	}
	matches := 0
	union := map[string]bool{}
	for _, t := range at {
		union[t] = true
	}
	for _, t := range bt {
		union[t] = true
		if set[t] {
			matches++
		}
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		matches++
	}
	return float64(matches) / float64(len(union))
}

func (g *Gateway) GetSimilarAssets(ctx context.Context, name string, limit int) (opsmodel.DataResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if limit <= 0 {
		limit = 5
	}
	target := normalizeAssetName(name)
	scored := make([]scoredAsset, 0, len(g.store.Assets))
	for _, a := range g.store.Assets {
		s := similarityScore(target, normalizeAssetName(a.Name))
		if s > 0 {
			scored = append(scored, scoredAsset{asset: a, score: s})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	out := make([]opsmodel.Asset, len(scored))
	for i, s := range scored {
		out[i] = s.asset
	}
	return g.result(out, "assets", "similar assets", len(out)), nil
}

func (g *Gateway) GetAssetsByArea(ctx context.Context, area string) (opsmodel.DataResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []opsmodel.Asset
	for _, a := range g.store.Assets {
		if strings.EqualFold(a.Area, area) {
			out = append(out, a)
		}
	}
	return g.result(out, "assets", "assets by area", len(out)), nil
}

func (g *Gateway) GetAllAssets(ctx context.Context) (opsmodel.DataResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := append([]opsmodel.Asset(nil), g.store.Assets...)
	return g.result(out, "assets", "all assets", len(out)), nil
}

func inRange(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

// summariesFor filters summaries to one asset and a date window. An empty
// assetID means unscoped (plant-wide), matching the Gateway contract that an
// empty scope selector widens rather than empties a query.
func (g *Gateway) summariesFor(assetID string, start, end time.Time) []opsmodel.DailySummary {
	var out []opsmodel.DailySummary
	for _, s := range g.store.Summaries {
		if assetID != "" && s.AssetID != assetID {
			continue
		}
		if inRange(s.ReportDate, start, end) {
			out = append(out, s)
		}
	}
	return out
}

func (g *Gateway) GetOEE(ctx context.Context, assetID string, start, end time.Time) (opsmodel.DataResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := g.summariesFor(assetID, start, end)
	return g.result(out, "daily_summaries", "oee by asset", len(out)), nil
}

// assetIDsInArea returns the membership set for one area, or nil for an
// empty area, which callers treat as "no area filter".
func (g *Gateway) assetIDsInArea(area string) map[string]bool {
	if area == "" {
		return nil
	}
	ids := map[string]bool{}
	for _, a := range g.store.Assets {
		if strings.EqualFold(a.Area, area) {
			ids[a.ID] = true
		}
	}
	return ids
}

func (g *Gateway) GetOEEByArea(ctx context.Context, area string, start, end time.Time) (opsmodel.DataResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := g.assetIDsInArea(area)
	var out []opsmodel.DailySummary
	for _, s := range g.store.Summaries {
		if ids != nil && !ids[s.AssetID] {
			continue
		}
		if inRange(s.ReportDate, start, end) {
			out = append(out, s)
		}
	}
	return g.result(out, "daily_summaries", "oee by area", len(out)), nil
}

func (g *Gateway) GetDowntime(ctx context.Context, assetID string, start, end time.Time) (opsmodel.DataResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := g.summariesFor(assetID, start, end)
	return g.result(out, "daily_summaries", "downtime by asset", len(out)), nil
}

func (g *Gateway) GetLiveSnapshot(ctx context.Context, assetID string) (opsmodel.DataResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var best *opsmodel.LiveSnapshot
	for i := range g.store.Snapshots {
		s := g.store.Snapshots[i]
		if s.AssetID != assetID {
			continue
		}
		if best == nil || s.SnapshotTimestamp.After(best.SnapshotTimestamp) {
			snap := s
			best = &snap
		}
	}
	if best == nil {
		return g.result(nil, "live_snapshots", "live snapshot", 0), nil
	}
	return g.result(best, "live_snapshots", "live snapshot", 1), nil
}

func (g *Gateway) GetLiveSnapshotsByArea(ctx context.Context, area string) (opsmodel.DataResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := g.assetIDsInArea(area)
	latest := map[string]opsmodel.LiveSnapshot{}
	for _, s := range g.store.Snapshots {
		if ids != nil && !ids[s.AssetID] {
			continue
		}
		if cur, ok := latest[s.AssetID]; !ok || s.SnapshotTimestamp.After(cur.SnapshotTimestamp) {
			latest[s.AssetID] = s
		}
	}
	out := make([]opsmodel.LiveSnapshot, 0, len(latest))
	for _, s := range latest {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return g.result(out, "live_snapshots", "live snapshots by area", len(out)), nil
}

func (g *Gateway) GetShiftTarget(ctx context.Context, assetID string) (opsmodel.DataResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var best *opsmodel.ShiftTarget
	for i := range g.store.ShiftTargets {
		t := g.store.ShiftTargets[i]
		if t.AssetID != assetID {
			continue
		}
		if best == nil || t.EffectiveDate.After(best.EffectiveDate) {
			target := t
			best = &target
		}
	}
	if best == nil {
		return g.result(nil, "shift_targets", "shift target", 0), nil
	}
	return g.result(best, "shift_targets", "shift target", 1), nil
}

func (g *Gateway) GetSafetyEvents(ctx context.Context, q gateway.SafetyEventsQuery) (opsmodel.DataResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	areaIDs := map[string]bool(nil)
	if q.Area != "" {
		areaIDs = g.assetIDsInArea(q.Area)
	}
	var out []opsmodel.SafetyEvent
	for _, e := range g.store.SafetyEvents {
		if q.AssetID != "" && e.AssetID != q.AssetID {
			continue
		}
		if areaIDs != nil && !areaIDs[e.AssetID] {
			continue
		}
		if q.Severity != "" && e.Severity != q.Severity {
			continue
		}
		// Start and End bound independently; a zero End leaves the query open
		// above so still-active events stamped after the window's start match.
		if !q.Start.IsZero() && e.EventTimestamp.Before(q.Start) {
			continue
		}
		if !q.End.IsZero() && !e.EventTimestamp.Before(q.End) {
			continue
		}
		if !q.IncludeResolved && e.IsResolved {
			continue
		}
		out = append(out, e)
	}
	return g.result(out, "safety_events", "safety events", len(out)), nil
}

func (g *Gateway) costCenter(id string) (opsmodel.CostCenter, bool) {
	for _, c := range g.store.CostCenters {
		if c.ID == id {
			return c, true
		}
	}
	return opsmodel.CostCenter{}, false
}

func (g *Gateway) scopedSummaries(q gateway.ScopedDateQuery) []opsmodel.DailySummary {
	var ids map[string]bool
	switch {
	case q.AssetID != "":
		ids = map[string]bool{q.AssetID: true}
	case q.Area != "":
		ids = g.assetIDsInArea(q.Area)
	}
	var out []opsmodel.DailySummary
	for _, s := range g.store.Summaries {
		if ids != nil && !ids[s.AssetID] {
			continue
		}
		if !q.Start.IsZero() && !q.End.IsZero() && !inRange(s.ReportDate, q.Start, q.End) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (g *Gateway) GetFinancialMetrics(ctx context.Context, q gateway.ScopedDateQuery) (opsmodel.DataResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := g.scopedSummaries(q)
	return g.result(out, "daily_summaries", "financial metrics", len(out)), nil
}

func (g *Gateway) GetCostOfLoss(ctx context.Context, q gateway.ScopedDateQuery) (opsmodel.DataResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	summaries := g.scopedSummaries(q)
	assetByID := make(map[string]opsmodel.Asset, len(g.store.Assets))
	for _, a := range g.store.Assets {
		assetByID[a.ID] = a
	}
	out := make([]opsmodel.DailySummary, 0, len(summaries))
	for _, s := range summaries {
		loss := s.FinancialLossDollars
		if loss == 0 {
			if asset, ok := assetByID[s.AssetID]; ok {
				if cc, ok := g.costCenter(asset.CostCenterID); ok {
					loss = float64(s.DowntimeMinutes)/60*cc.StandardHourlyRate + float64(s.WasteCount)*cc.CostPerUnit
				}
			}
		}
		s.FinancialLossDollars = loss
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FinancialLossDollars > out[j].FinancialLossDollars })
	return g.result(out, "daily_summaries", "cost of loss ranking", len(out)), nil
}

func (g *Gateway) GetTrendData(ctx context.Context, q gateway.TrendQuery) (opsmodel.DataResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var ids map[string]bool
	switch {
	case q.AssetID != "":
		ids = map[string]bool{q.AssetID: true}
	case q.Area != "":
		ids = g.assetIDsInArea(q.Area)
	}
	assetByID := make(map[string]opsmodel.Asset, len(g.store.Assets))
	for _, a := range g.store.Assets {
		assetByID[a.ID] = a
	}
	var out []opsmodel.TrendPoint
	for _, s := range g.store.Summaries {
		if ids != nil && !ids[s.AssetID] {
			continue
		}
		if !q.Start.IsZero() && !q.End.IsZero() && !inRange(s.ReportDate, q.Start, q.End) {
			continue
		}
		value := metricValue(q.Metric, s)
		out = append(out, opsmodel.TrendPoint{
			Date:            s.ReportDate,
			Value:           value,
			DowntimeReasons: s.DowntimeReasons,
			AssetName:       assetByID[s.AssetID].Name,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return g.result(out, "daily_summaries", "trend data", len(out)), nil
}

func metricValue(metric string, s opsmodel.DailySummary) float64 {
	switch strings.ToLower(metric) {
	case "availability":
		if s.Availability != nil {
			return *s.Availability
		}
	case "performance":
		if s.Performance != nil {
			return *s.Performance
		}
	case "quality":
		if s.Quality != nil {
			return *s.Quality
		}
	case "financial_loss":
		return s.FinancialLossDollars
	case "downtime_minutes":
		return float64(s.DowntimeMinutes)
	default:
		if s.OEEPercentage != nil {
			return *s.OEEPercentage
		}
	}
	return 0
}

func (g *Gateway) RecordAudit(ctx context.Context, entry opsmodel.AuditTrailEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.audit = append(g.audit, entry)
}

// Audit returns a copy of every entry recorded so far, for test assertions.
func (g *Gateway) Audit() []opsmodel.AuditTrailEntry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]opsmodel.AuditTrailEntry(nil), g.audit...)
}
