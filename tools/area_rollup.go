package tools

import (
	"context"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/plantops/opsbrief/gateway"
	"github.com/plantops/opsbrief/opsmodel"
	"github.com/plantops/opsbrief/tooling"
)

// AreaRollup combines OEE, downtime, and active safety counts for a single
// area in one call. It exists to give the briefing orchestrator's per-area
// fan-out its own cacheable, citeable tool instead of bespoke
// orchestrator-only aggregation logic.
type AreaRollup struct {
	GW     gateway.Gateway
	Clock  clock
	schema *jsonschema.Schema
}

var areaRollupSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"area":       map[string]any{"type": "string", "minLength": 1},
		"time_range": map[string]any{"type": "string"},
		"asset_ids":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
	"required": []any{"area"},
}

func (t *AreaRollup) Name() string { return "area_rollup" }
func (t *AreaRollup) Description() string {
	return "Combine OEE, downtime, and active safety counts for one area."
}

func (t *AreaRollup) CitationsRequired() bool { return true }

func (t *AreaRollup) ArgsSchema() *jsonschema.Schema {
	if t.schema == nil {
		t.schema = tooling.MustCompileSchema("area_rollup.json", areaRollupSchema)
	}
	return t.schema
}

func (t *AreaRollup) Run(ctx context.Context, args map[string]any) opsmodel.ToolResult {
	area := str(args, "area", "")
	rng := resolveRange(str(args, "time_range", ""), t.Clock)
	assetFilter := stringSetArg(args, "asset_ids")
	citations := []opsmodel.Citation{}

	start, end := rangeBounds(rng)
	oeeResult, err := t.GW.GetOEEByArea(ctx, area, start, end)
	if err != nil {
		return tooling.Failure(tooling.WrapGatewayErr(err))
	}
	summaries := summariesData(oeeResult)
	if assetFilter != nil {
		filtered := summaries[:0:0]
		for _, s := range summaries {
			if assetFilter[s.AssetID] {
				filtered = append(filtered, s)
			}
		}
		summaries = filtered
	}
	citations = append(citations, tooling.DatabaseCitation(oeeResult.TableName, area, area, oeeResult.QueryTimestamp, "oee by area"))

	totalDowntime := 0
	for _, s := range summaries {
		totalDowntime += s.DowntimeMinutes
	}

	safetyResult, err := t.GW.GetSafetyEvents(ctx, gateway.SafetyEventsQuery{Area: area})
	if err != nil {
		return tooling.Failure(tooling.WrapGatewayErr(err))
	}
	activeCount := 0
	for _, e := range safetyEventsData(safetyResult) {
		if assetFilter != nil && !assetFilter[e.AssetID] {
			continue
		}
		if e.Active() {
			activeCount++
		}
	}
	citations = append(citations, tooling.DatabaseCitation(safetyResult.TableName, area, area, safetyResult.QueryTimestamp, "safety events by area"))

	out := map[string]any{
		"area":                   area,
		"weighted_mean_oee":      weightedMeanOEE(summaries),
		"total_downtime_minutes": totalDowntime,
		"active_safety_events":   activeCount,
		"time_range":             rng.Description,
	}
	return tooling.Success(out, citations)
}
