package tools

import (
	"context"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/plantops/opsbrief/gateway"
	"github.com/plantops/opsbrief/opsmodel"
	"github.com/plantops/opsbrief/tooling"
)

// CostOfLossRanking decomposes losses into category-tagged line items,
// ranks them by amount, and adds category subtotals.
type CostOfLossRanking struct {
	GW          gateway.Gateway
	Clock       clock
	CostCenters func(assetID string) (opsmodel.CostCenter, bool)
	schema      *jsonschema.Schema
}

var costOfLossRankingSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"area":       map[string]any{"type": "string"},
		"time_range": map[string]any{"type": "string"},
		"limit":      map[string]any{"type": "integer", "minimum": 1},
	},
}

func (t *CostOfLossRanking) Name() string { return "cost_of_loss_ranking" }
func (t *CostOfLossRanking) Description() string {
	return "Rank loss contributors by dollar amount across downtime, waste, and quality."
}

func (t *CostOfLossRanking) CitationsRequired() bool { return true }

func (t *CostOfLossRanking) ArgsSchema() *jsonschema.Schema {
	if t.schema == nil {
		t.schema = tooling.MustCompileSchema("cost_of_loss_ranking.json", costOfLossRankingSchema)
	}
	return t.schema
}

type lossItem struct {
	AssetID   string  `json:"asset_id"`
	Category  string  `json:"category"`
	Amount    float64 `json:"amount"`
	RootCause string  `json:"root_cause,omitempty"`
}

func (t *CostOfLossRanking) Run(ctx context.Context, args map[string]any) opsmodel.ToolResult {
	rng := resolveRange(str(args, "time_range", ""), t.Clock)
	area := str(args, "area", "")
	limit := intArg(args, "limit", 10)

	start, end := rangeBounds(rng)
	result, err := t.GW.GetCostOfLoss(ctx, gateway.ScopedDateQuery{Start: start, End: end, Area: area})
	if err != nil {
		return tooling.Failure(tooling.WrapGatewayErr(err))
	}
	summaries := summariesData(result)

	var items []lossItem
	subtotals := map[string]float64{"downtime": 0, "waste": 0, "quality": 0}
	for _, s := range summaries {
		var downtimeCost, wasteCost float64
		if t.CostCenters != nil {
			if cc, ok := t.CostCenters(s.AssetID); ok {
				downtimeCost = float64(s.DowntimeMinutes) / 60 * cc.StandardHourlyRate
				wasteCost = float64(s.WasteCount) * cc.CostPerUnit
			}
		}
		if downtimeCost > 0 {
			reason := ""
			for r := range s.DowntimeReasons {
				reason = r
				break
			}
			items = append(items, lossItem{AssetID: s.AssetID, Category: "downtime", Amount: downtimeCost, RootCause: reason})
			subtotals["downtime"] += downtimeCost
		}
		if wasteCost > 0 {
			items = append(items, lossItem{AssetID: s.AssetID, Category: "waste", Amount: wasteCost})
			subtotals["waste"] += wasteCost
		}
		qualityLoss := s.FinancialLossDollars - downtimeCost - wasteCost
		if qualityLoss > 0 {
			items = append(items, lossItem{AssetID: s.AssetID, Category: "quality", Amount: qualityLoss})
			subtotals["quality"] += qualityLoss
		}
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Amount > items[j].Amount })
	total := subtotals["downtime"] + subtotals["waste"] + subtotals["quality"]
	percentages := map[string]float64{}
	if total > 0 {
		for k, v := range subtotals {
			percentages[k] = v / total * 100
		}
	}
	if len(items) > limit {
		items = items[:limit]
	}

	out := map[string]any{
		"items":                items,
		"category_subtotals":   subtotals,
		"category_percentages": percentages,
		"total":                total,
		"time_range":           rng.Description,
	}

	citations := []opsmodel.Citation{
		tooling.DatabaseCitation(result.TableName, area, area, result.QueryTimestamp, "daily summaries in window"),
		tooling.CalculationCitation("losses decomposed into downtime/waste/quality and ranked by amount", 0.9),
	}
	return tooling.Success(out, citations)
}
