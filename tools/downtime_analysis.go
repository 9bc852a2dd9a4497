package tools

import (
	"context"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/plantops/opsbrief/gateway"
	"github.com/plantops/opsbrief/opsmodel"
	"github.com/plantops/opsbrief/tooling"
)

// DowntimeAnalysis aggregates downtime minutes per reason and per asset over
// a parsed time range, surfacing the top three reasons.
type DowntimeAnalysis struct {
	GW     gateway.Gateway
	Clock  clock
	schema *jsonschema.Schema
}

var downtimeAnalysisSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"asset_id":   map[string]any{"type": "string"},
		"time_range": map[string]any{"type": "string"},
	},
}

func (t *DowntimeAnalysis) Name() string { return "downtime_analysis" }
func (t *DowntimeAnalysis) Description() string {
	return "Aggregate downtime minutes by reason for an asset over a time range."
}

func (t *DowntimeAnalysis) CitationsRequired() bool { return true }

func (t *DowntimeAnalysis) ArgsSchema() *jsonschema.Schema {
	if t.schema == nil {
		t.schema = tooling.MustCompileSchema("downtime_analysis.json", downtimeAnalysisSchema)
	}
	return t.schema
}

func (t *DowntimeAnalysis) Run(ctx context.Context, args map[string]any) opsmodel.ToolResult {
	assetID := str(args, "asset_id", "")
	rng := resolveRange(str(args, "time_range", ""), t.Clock)

	start, end := rangeBounds(rng)
	result, err := t.GW.GetDowntime(ctx, assetID, start, end)
	if err != nil {
		return tooling.Failure(tooling.WrapGatewayErr(err))
	}
	summaries := summariesData(result)

	var withDowntime []opsmodel.DailySummary
	totalMinutes := 0
	byAsset := map[string]int{}
	for _, s := range summaries {
		if s.DowntimeMinutes > 0 {
			withDowntime = append(withDowntime, s)
			totalMinutes += s.DowntimeMinutes
			byAsset[s.AssetID] += s.DowntimeMinutes
		}
	}
	reasonTotals := mergeDowntimeReasons(withDowntime)
	topReasons := topDowntimeReasons(reasonTotals, 3)

	insight := "no significant downtime in this window"
	if len(topReasons) > 0 {
		insight = fmt.Sprintf("top downtime driver is %q", topReasons[0])
	}

	out := map[string]any{
		"total_downtime_minutes": totalMinutes,
		"by_reason":              reasonTotals,
		"by_asset":               byAsset,
		"top_reasons":            topReasons,
		"insight":                insight,
		"time_range":             rng.Description,
	}
	if rng.Warning != "" {
		out["warning"] = rng.Warning
	}

	citations := []opsmodel.Citation{
		tooling.DatabaseCitation(result.TableName, assetID, assetID, result.QueryTimestamp, "daily summaries with downtime"),
		tooling.CalculationCitation("downtime minutes aggregated by reason, top 3 surfaced", 0.9),
	}
	return tooling.Success(out, citations)
}
