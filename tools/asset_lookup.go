package tools

import (
	"context"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/plantops/opsbrief/gateway"
	"github.com/plantops/opsbrief/opsmodel"
	"github.com/plantops/opsbrief/tooling"
)

// AssetLookup resolves a user-supplied asset name to its identity, current
// status, and recent performance.
type AssetLookup struct {
	GW     gateway.Gateway
	Clock  clock
	schema *jsonschema.Schema
}

var assetLookupSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"asset_name":          map[string]any{"type": "string", "minLength": 1},
		"include_performance": map[string]any{"type": "boolean"},
		"days_back":           map[string]any{"type": "integer", "minimum": 1},
	},
	"required": []any{"asset_name"},
}

func (t *AssetLookup) Name() string { return "asset_lookup" }
func (t *AssetLookup) Description() string {
	return "Look up an asset by name and report its current status and recent performance."
}

func (t *AssetLookup) CitationsRequired() bool { return true }

func (t *AssetLookup) ArgsSchema() *jsonschema.Schema {
	if t.schema == nil {
		t.schema = tooling.MustCompileSchema("asset_lookup.json", assetLookupSchema)
	}
	return t.schema
}

func (t *AssetLookup) Run(ctx context.Context, args map[string]any) opsmodel.ToolResult {
	name := str(args, "asset_name", "")
	includePerf := boolArg(args, "include_performance", true)
	daysBack := intArg(args, "days_back", 7)

	assetResult, err := t.GW.GetAssetByName(ctx, name)
	if err != nil {
		return tooling.Failure(tooling.WrapGatewayErr(err))
	}
	asset, found := assetData(assetResult)
	if !found {
		similar, err := t.GW.GetSimilarAssets(ctx, name, 5)
		if err != nil {
			return tooling.Failure(tooling.WrapGatewayErr(err))
		}
		suggestions := make([]string, 0, 5)
		for _, a := range assetsData(similar) {
			suggestions = append(suggestions, a.Name)
		}
		result := tooling.NotFound(suggestions)
		result.Citations = []opsmodel.Citation{
			tooling.DatabaseCitation(similar.TableName, "", "", similar.QueryTimestamp, "similar asset names for "+name),
		}
		return result
	}

	citations := []opsmodel.Citation{
		tooling.DatabaseCitation(assetResult.TableName, asset.ID, asset.ID, assetResult.QueryTimestamp, fmt.Sprintf("asset %s", asset.Name)),
	}

	now := defaultClock
	if t.Clock != nil {
		now = t.Clock
	}

	status := "unknown"
	dataStale := false
	var staleMessage string
	snapResult, err := t.GW.GetLiveSnapshot(ctx, asset.ID)
	if err != nil {
		return tooling.Failure(tooling.WrapGatewayErr(err))
	}
	if snap, ok := snapshotData(snapResult); ok {
		status = string(snap.Status)
		if snap.IsStale(now()) {
			dataStale = true
			staleMessage = "live snapshot is more than 30 minutes old"
		}
		citations = append(citations, tooling.DatabaseCitation(snapResult.TableName, asset.ID, asset.ID, snapResult.QueryTimestamp, "live snapshot"))
	}

	currentStatus := map[string]any{
		"status":        status,
		"data_stale":    dataStale,
		"stale_message": staleMessage,
	}

	result := map[string]any{
		"metadata": map[string]any{
			"id":   asset.ID,
			"name": asset.Name,
			"area": asset.Area,
		},
		"current_status": currentStatus,
	}

	if includePerf {
		end := now()
		start := end.AddDate(0, 0, -daysBack)
		oeeResult, err := t.GW.GetOEE(ctx, asset.ID, start, end)
		if err != nil {
			return tooling.Failure(tooling.WrapGatewayErr(err))
		}
		summaries := summariesData(oeeResult)
		sortSummariesByDateAsc(summaries)
		values := make([]float64, 0, len(summaries))
		for _, s := range summaries {
			if s.OEEPercentage != nil {
				values = append(values, *s.OEEPercentage)
			}
		}
		topReason := ""
		reasons := topDowntimeReasons(mergeDowntimeReasons(summaries), 1)
		if len(reasons) > 0 {
			topReason = reasons[0]
		}
		result["performance"] = map[string]any{
			"mean_oee":            meanOEE(summaries),
			"trend":               trendDirection(values),
			"top_downtime_reason": topReason,
			"window_days":         daysBack,
		}
		if len(summaries) > 0 {
			citations = append(citations, tooling.DatabaseCitation(oeeResult.TableName, asset.ID, asset.ID, oeeResult.QueryTimestamp, "daily summaries window"))
		}
		citations = append(citations, tooling.CalculationCitation("mean OEE and trend over window, ±2 point dead-band", 0.9))
	}

	return tooling.Success(result, citations)
}
