package tools

import (
	"context"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/plantops/opsbrief/gateway"
	"github.com/plantops/opsbrief/opsmodel"
	"github.com/plantops/opsbrief/tooling"
)

// FinancialImpact computes downtime and waste costs over a window, falling
// back to a non-financial summary when no cost-center data is configured.
type FinancialImpact struct {
	GW          gateway.Gateway
	Clock       clock
	CostCenters func(assetID string) (opsmodel.CostCenter, bool)
	schema      *jsonschema.Schema
}

var financialImpactSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"asset_id":   map[string]any{"type": "string"},
		"area":       map[string]any{"type": "string"},
		"time_range": map[string]any{"type": "string"},
	},
}

func (t *FinancialImpact) Name() string { return "financial_impact" }
func (t *FinancialImpact) Description() string {
	return "Compute downtime and waste cost impact over a window."
}

func (t *FinancialImpact) CitationsRequired() bool { return true }

func (t *FinancialImpact) ArgsSchema() *jsonschema.Schema {
	if t.schema == nil {
		t.schema = tooling.MustCompileSchema("financial_impact.json", financialImpactSchema)
	}
	return t.schema
}

func (t *FinancialImpact) Run(ctx context.Context, args map[string]any) opsmodel.ToolResult {
	rng := resolveRange(str(args, "time_range", ""), t.Clock)
	start, end := rangeBounds(rng)
	q := gateway.ScopedDateQuery{Start: start, End: end, AssetID: str(args, "asset_id", ""), Area: str(args, "area", "")}

	result, err := t.GW.GetFinancialMetrics(ctx, q)
	if err != nil {
		return tooling.Failure(tooling.WrapGatewayErr(err))
	}
	summaries := summariesData(result)

	haveCostData := false
	var totalDowntimeCost, totalWasteCost float64
	for _, s := range summaries {
		if t.CostCenters == nil {
			continue
		}
		cc, ok := t.CostCenters(s.AssetID)
		if !ok {
			continue
		}
		haveCostData = true
		totalDowntimeCost += float64(s.DowntimeMinutes) / 60 * cc.StandardHourlyRate
		totalWasteCost += float64(s.WasteCount) * cc.CostPerUnit
	}

	out := map[string]any{"time_range": rng.Description}
	citations := []opsmodel.Citation{
		tooling.DatabaseCitation(result.TableName, q.AssetID, q.AssetID, result.QueryTimestamp, "daily summaries in window"),
	}

	if !haveCostData {
		totalMinutes, totalWaste := 0, 0
		for _, s := range summaries {
			totalMinutes += s.DowntimeMinutes
			totalWaste += s.WasteCount
		}
		out["total_loss"] = nil
		out["downtime_minutes"] = totalMinutes
		out["waste_count"] = totalWaste
		out["message"] = "no cost center data configured"
		return tooling.Success(out, citations)
	}

	out["total_loss"] = totalDowntimeCost + totalWasteCost
	out["downtime_cost"] = totalDowntimeCost
	out["waste_cost"] = totalWasteCost
	out["formula"] = "downtime_cost = downtime_minutes * rate_per_hour / 60; waste_cost = waste_count * cost_per_unit"

	trailingQ := gateway.ScopedDateQuery{Start: start.AddDate(0, 0, -30), End: start, AssetID: q.AssetID, Area: q.Area}
	trailingResult, err := t.GW.GetFinancialMetrics(ctx, trailingQ)
	if err == nil {
		trailing := summariesData(trailingResult)
		days := len(trailing)
		if days > 0 {
			var trailingTotal float64
			for _, s := range trailing {
				trailingTotal += s.FinancialLossDollars
			}
			out["trailing_30d_daily_average"] = trailingTotal / float64(days)
		}
	}

	citations = append(citations, tooling.CalculationCitation(out["formula"].(string), 0.95))
	return tooling.Success(out, citations)
}
