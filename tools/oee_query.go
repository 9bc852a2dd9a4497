package tools

import (
	"context"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/plantops/opsbrief/gateway"
	"github.com/plantops/opsbrief/opsmodel"
	"github.com/plantops/opsbrief/tooling"
)

// OEEQuery returns per-asset or per-area OEE aggregates, output-weighted
// when aggregating.
type OEEQuery struct {
	GW     gateway.Gateway
	Clock  clock
	schema *jsonschema.Schema
}

var oeeQuerySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"asset_id":   map[string]any{"type": "string"},
		"area":       map[string]any{"type": "string"},
		"time_range": map[string]any{"type": "string"},
	},
}

func (t *OEEQuery) Name() string        { return "oee_query" }
func (t *OEEQuery) Description() string { return "Report OEE for an asset or area over a time range." }

func (t *OEEQuery) CitationsRequired() bool { return true }

func (t *OEEQuery) ArgsSchema() *jsonschema.Schema {
	if t.schema == nil {
		t.schema = tooling.MustCompileSchema("oee_query.json", oeeQuerySchema)
	}
	return t.schema
}

func (t *OEEQuery) Run(ctx context.Context, args map[string]any) opsmodel.ToolResult {
	assetID := str(args, "asset_id", "")
	area := str(args, "area", "")
	rng := resolveRange(str(args, "time_range", ""), t.Clock)

	start, end := rangeBounds(rng)
	var result opsmodel.DataResult
	var err error
	if assetID != "" {
		result, err = t.GW.GetOEE(ctx, assetID, start, end)
	} else {
		result, err = t.GW.GetOEEByArea(ctx, area, start, end)
	}
	if err != nil {
		return tooling.Failure(tooling.WrapGatewayErr(err))
	}
	summaries := summariesData(result)
	sortSummariesByDateDesc(summaries)

	out := map[string]any{
		"weighted_mean_oee": weightedMeanOEE(summaries),
		"simple_mean_oee":   meanOEE(summaries),
		"sample_size":       len(summaries),
		"time_range":        rng.Description,
	}
	if rng.Warning != "" {
		out["warning"] = rng.Warning
	}

	citations := []opsmodel.Citation{
		tooling.DatabaseCitation(result.TableName, assetID, assetID, result.QueryTimestamp, "daily summaries over window"),
		tooling.CalculationCitation("OEE weighted by actual output when aggregating", 0.9),
	}
	return tooling.Success(out, citations)
}
