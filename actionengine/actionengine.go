// Package actionengine implements the Action Prioritization Engine: a
// deterministic, tiered ranking of safety/OEE/financial issues for a given
// report date, with cross-tier deduplication and in-process caching. Tier
// order is absolute: safety outranks OEE, which outranks financial.
package actionengine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/plantops/opsbrief/gateway"
	"github.com/plantops/opsbrief/idgen"
	"github.com/plantops/opsbrief/opsmodel"
)

// Thresholds configures the priority-band cutoffs for the OEE and financial
// tiers.
type Thresholds struct {
	TargetOEE                float64 // oee_percentage below this is an issue
	LossThreshold            float64 // financial_loss_dollars above this is an issue
	OEEHighGapThreshold      float64
	OEEMediumGapThreshold    float64
	FinancialHighThreshold   float64
	FinancialMediumThreshold float64
}

// DefaultThresholds returns the stock threshold configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TargetOEE:                85,
		LossThreshold:            1000,
		OEEHighGapThreshold:      20,
		OEEMediumGapThreshold:    10,
		FinancialHighThreshold:   5000,
		FinancialMediumThreshold: 1000,
	}
}

// ActionListResponse is the output of GenerateActionList.
type ActionListResponse struct {
	Actions          []opsmodel.ActionItem           `json:"actions"`
	ReportDate       time.Time                       `json:"report_date"`
	TotalCount       int                             `json:"total_count"`
	CountsByCategory map[opsmodel.ActionCategory]int `json:"counts_by_category"`
	GeneratedAt      time.Time                       `json:"generated_at"`
}

// Options parameterizes GenerateActionList.
type Options struct {
	TargetDate     time.Time // zero means "yesterday" relative to Clock
	CategoryFilter opsmodel.ActionCategory
	Limit          int
	ConfigOverride *Thresholds // non-nil bypasses the cache for this call
}

type clock func() time.Time

// Engine is the Action Prioritization Engine. It is safe for concurrent use.
type Engine struct {
	GW         gateway.Gateway
	Thresholds Thresholds
	Clock      clock

	mu            sync.Mutex
	cache         map[string]cachedResponse
	assetCache    map[string]opsmodel.Asset
	assetCachedAt time.Time
}

type cachedResponse struct {
	response  ActionListResponse
	expiresAt time.Time
}

const assetMapTTL = 5 * time.Minute
const actionListTTL = 15 * time.Minute

// New constructs an Engine with the given thresholds (use DefaultThresholds
// if the caller has no override).
func New(gw gateway.Gateway, thresholds Thresholds) *Engine {
	return &Engine{
		GW: gw, Thresholds: thresholds,
		cache:      make(map[string]cachedResponse),
		assetCache: make(map[string]opsmodel.Asset),
	}
}

func (e *Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now().UTC()
}

func cacheKey(date time.Time, categoryFilter opsmodel.ActionCategory) string {
	filter := string(categoryFilter)
	if filter == "" {
		filter = "all"
	}
	return fmt.Sprintf("%s-%s", date.Format("2006-01-02"), filter)
}

// GenerateActionList produces the ranked action list for opts.TargetDate
// (defaulting to yesterday). Any Gateway failure degrades the affected tier
// to empty rather than failing the whole call.
func (e *Engine) GenerateActionList(ctx context.Context, opts Options) ActionListResponse {
	targetDate := opts.TargetDate
	if targetDate.IsZero() {
		targetDate = e.now().AddDate(0, 0, -1)
	}
	targetDate = startOfDay(targetDate)

	key := cacheKey(targetDate, opts.CategoryFilter)
	if opts.ConfigOverride == nil {
		e.mu.Lock()
		if cached, ok := e.cache[key]; ok && e.now().Before(cached.expiresAt) {
			e.mu.Unlock()
			return cached.response
		}
		e.mu.Unlock()
	}

	thresholds := e.Thresholds
	if opts.ConfigOverride != nil {
		thresholds = *opts.ConfigOverride
	}

	safety := e.safetyActions(ctx, targetDate)
	oee := e.oeeActions(ctx, targetDate, thresholds)
	financial := e.financialActions(ctx, targetDate, thresholds)

	merged := mergeAndPrioritize(safety, oee, financial)

	counts := map[opsmodel.ActionCategory]int{
		opsmodel.CategorySafety:    0,
		opsmodel.CategoryOEE:       0,
		opsmodel.CategoryFinancial: 0,
	}
	for _, a := range merged {
		counts[a.Category]++
	}

	actions := merged
	if opts.CategoryFilter != "" {
		actions = filterCategory(merged, opts.CategoryFilter)
	}
	totalCount := len(actions)
	if opts.Limit > 0 && len(actions) > opts.Limit {
		actions = actions[:opts.Limit]
	}

	response := ActionListResponse{
		Actions:          actions,
		ReportDate:       targetDate,
		TotalCount:       totalCount,
		CountsByCategory: counts,
		GeneratedAt:      e.now(),
	}

	if opts.ConfigOverride == nil {
		e.mu.Lock()
		e.cache[key] = cachedResponse{response: response, expiresAt: e.now().Add(actionListTTL)}
		e.mu.Unlock()
	}
	return response
}

func filterCategory(actions []opsmodel.ActionItem, category opsmodel.ActionCategory) []opsmodel.ActionItem {
	var out []opsmodel.ActionItem
	for _, a := range actions {
		if a.Category == category {
			out = append(out, a)
		}
	}
	return out
}

// InvalidateCache clears cached responses. A zero targetDate clears every
// cached report date; callers that ingest new data for a specific date
// should pass that date instead of wiping the whole cache.
func (e *Engine) InvalidateCache(targetDate time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if targetDate.IsZero() {
		e.cache = make(map[string]cachedResponse)
		return
	}
	prefix := startOfDay(targetDate).Format("2006-01-02")
	for k := range e.cache {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(e.cache, k)
		}
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

var severityRank = map[opsmodel.Severity]int{
	opsmodel.SeverityCritical: 1,
	opsmodel.SeverityHigh:     2,
	opsmodel.SeverityMedium:   3,
	opsmodel.SeverityLow:      4,
}

func rankOf(s opsmodel.Severity) int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return 5
}

func (e *Engine) safetyActions(ctx context.Context, targetDate time.Time) []opsmodel.ActionItem {
	// Deliberately unbounded above: every still-active event from the report
	// date onward belongs on the list, including ones stamped after midnight.
	result, err := e.GW.GetSafetyEvents(ctx, gateway.SafetyEventsQuery{Start: targetDate})
	if err != nil {
		return nil
	}
	events, _ := result.Data.([]opsmodel.SafetyEvent)
	var active []opsmodel.SafetyEvent
	for _, ev := range events {
		if ev.Active() {
			active = append(active, ev)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		ri, rj := rankOf(active[i].Severity), rankOf(active[j].Severity)
		if ri != rj {
			return ri < rj
		}
		return active[i].EventTimestamp.After(active[j].EventTimestamp)
	})

	out := make([]opsmodel.ActionItem, 0, len(active))
	for _, ev := range active {
		asset := e.assetName(ctx, ev.AssetID)
		out = append(out, opsmodel.ActionItem{
			ID:                 idgen.New("action"),
			AssetID:            ev.AssetID,
			AssetName:          asset,
			PriorityLevel:      opsmodel.PriorityCritical,
			Category:           opsmodel.CategorySafety,
			PrimaryMetricValue: string(ev.Severity),
			RecommendationText: "address active safety event: " + ev.Description,
			EvidenceSummary:    ev.ReasonCode,
			EvidenceRefs: []opsmodel.EvidenceRef{{
				SourceTable: "safety_events", RecordID: ev.ID,
				MetricName: "severity", MetricValue: string(ev.Severity), Context: ev.Description,
			}},
			CreatedAt: e.now(),
		})
	}
	return out
}

func (e *Engine) oeeActions(ctx context.Context, targetDate time.Time, th Thresholds) []opsmodel.ActionItem {
	result, err := e.GW.GetOEE(ctx, "", targetDate, targetDate.AddDate(0, 0, 1))
	if err != nil {
		return nil
	}
	summaries, _ := result.Data.([]opsmodel.DailySummary)
	type gapped struct {
		s   opsmodel.DailySummary
		gap float64
	}
	var issues []gapped
	for _, s := range summaries {
		if s.OEEPercentage == nil || *s.OEEPercentage >= th.TargetOEE {
			continue
		}
		issues = append(issues, gapped{s: s, gap: th.TargetOEE - *s.OEEPercentage})
	}
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].gap > issues[j].gap })

	out := make([]opsmodel.ActionItem, 0, len(issues))
	for _, iss := range issues {
		priority := opsmodel.PriorityLow
		switch {
		case iss.gap >= th.OEEHighGapThreshold:
			priority = opsmodel.PriorityHigh
		case iss.gap >= th.OEEMediumGapThreshold:
			priority = opsmodel.PriorityMedium
		}
		asset := e.assetName(ctx, iss.s.AssetID)
		out = append(out, opsmodel.ActionItem{
			ID:                 idgen.New("action"),
			AssetID:            iss.s.AssetID,
			AssetName:          asset,
			PriorityLevel:      priority,
			Category:           opsmodel.CategoryOEE,
			PrimaryMetricValue: fmt.Sprintf("%.1f%% OEE (gap %.1f)", *iss.s.OEEPercentage, iss.gap),
			RecommendationText: "investigate OEE shortfall against target",
			EvidenceSummary:    fmt.Sprintf("OEE gap of %.1f points vs target", iss.gap),
			EvidenceRefs: []opsmodel.EvidenceRef{{
				SourceTable: "daily_summaries", RecordID: iss.s.ID,
				MetricName: "oee_percentage", MetricValue: fmt.Sprintf("%.2f", *iss.s.OEEPercentage),
			}},
			CreatedAt: e.now(),
		})
	}
	return out
}

func (e *Engine) financialActions(ctx context.Context, targetDate time.Time, th Thresholds) []opsmodel.ActionItem {
	result, err := e.GW.GetFinancialMetrics(ctx, gateway.ScopedDateQuery{Start: targetDate, End: targetDate.AddDate(0, 0, 1)})
	if err != nil {
		return nil
	}
	summaries, _ := result.Data.([]opsmodel.DailySummary)
	var issues []opsmodel.DailySummary
	for _, s := range summaries {
		if s.FinancialLossDollars > th.LossThreshold {
			issues = append(issues, s)
		}
	}
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].FinancialLossDollars > issues[j].FinancialLossDollars })

	out := make([]opsmodel.ActionItem, 0, len(issues))
	for _, s := range issues {
		priority := opsmodel.PriorityLow
		switch {
		case s.FinancialLossDollars >= th.FinancialHighThreshold:
			priority = opsmodel.PriorityHigh
		case s.FinancialLossDollars >= th.FinancialMediumThreshold:
			priority = opsmodel.PriorityMedium
		}
		asset := e.assetName(ctx, s.AssetID)
		out = append(out, opsmodel.ActionItem{
			ID:                 idgen.New("action"),
			AssetID:            s.AssetID,
			AssetName:          asset,
			PriorityLevel:      priority,
			Category:           opsmodel.CategoryFinancial,
			PrimaryMetricValue: fmt.Sprintf("$%.2f loss", s.FinancialLossDollars),
			RecommendationText: "review financial loss driver",
			EvidenceSummary:    fmt.Sprintf("loss of $%.2f exceeds threshold", s.FinancialLossDollars),
			EvidenceRefs: []opsmodel.EvidenceRef{{
				SourceTable: "daily_summaries", RecordID: s.ID,
				MetricName: "financial_loss_dollars", MetricValue: fmt.Sprintf("%.2f", s.FinancialLossDollars),
			}},
			CreatedAt: e.now(),
		})
	}
	return out
}

// mergeAndPrioritize processes tiers in fixed order [safety, oee, financial];
// the first occurrence of an asset id wins and keeps its category/priority,
// with every later duplicate's evidence appended instead of dropped.
func mergeAndPrioritize(tiers ...[]opsmodel.ActionItem) []opsmodel.ActionItem {
	seen := make(map[string]int) // asset_id -> index into out
	var out []opsmodel.ActionItem
	for _, tier := range tiers {
		for _, item := range tier {
			if idx, ok := seen[item.AssetID]; ok {
				out[idx].EvidenceRefs = append(out[idx].EvidenceRefs, item.EvidenceRefs...)
				continue
			}
			seen[item.AssetID] = len(out)
			out = append(out, item)
		}
	}
	return out
}

func (e *Engine) assetName(ctx context.Context, assetID string) string {
	e.mu.Lock()
	if e.now().Sub(e.assetCachedAt) > assetMapTTL {
		e.assetCache = make(map[string]opsmodel.Asset)
		e.assetCachedAt = e.now()
	}
	if a, ok := e.assetCache[assetID]; ok {
		e.mu.Unlock()
		return a.Name
	}
	e.mu.Unlock()

	result, err := e.GW.GetAsset(ctx, assetID)
	if err != nil {
		return assetID
	}
	a, ok := result.Data.(*opsmodel.Asset)
	if !ok || a == nil {
		return assetID
	}
	e.mu.Lock()
	e.assetCache[assetID] = *a
	e.mu.Unlock()
	return a.Name
}
