package tools

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/plantops/opsbrief/gateway"
	"github.com/plantops/opsbrief/opsmodel"
	"github.com/plantops/opsbrief/tooling"
)

// ProductionStatus reports current output vs target per asset from the
// latest live snapshots, plus the overall variance figure the briefing
// narratives lead with.
type ProductionStatus struct {
	GW     gateway.Gateway
	Clock  clock
	schema *jsonschema.Schema
}

var productionStatusSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"area":      map[string]any{"type": "string"},
		"asset_ids": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
}

func (t *ProductionStatus) Name() string { return "production_status" }
func (t *ProductionStatus) Description() string {
	return "Report current output versus target per asset and the overall production variance."
}

func (t *ProductionStatus) CitationsRequired() bool { return true }

func (t *ProductionStatus) ArgsSchema() *jsonschema.Schema {
	if t.schema == nil {
		t.schema = tooling.MustCompileSchema("production_status.json", productionStatusSchema)
	}
	return t.schema
}

type assetStatus struct {
	AssetID        string  `json:"asset_id"`
	Status         string  `json:"status"`
	CurrentOutput  int     `json:"current_output"`
	TargetOutput   int     `json:"target_output"`
	VariancePct    float64 `json:"variance_pct"`
	DataStale      bool    `json:"data_stale"`
	SnapshotAgeMin float64 `json:"snapshot_age_min"`
}

func (t *ProductionStatus) Run(ctx context.Context, args map[string]any) opsmodel.ToolResult {
	now := defaultClock
	if t.Clock != nil {
		now = t.Clock
	}
	area := str(args, "area", "")
	assetFilter := stringSetArg(args, "asset_ids")

	result, err := t.GW.GetLiveSnapshotsByArea(ctx, area)
	if err != nil {
		return tooling.Failure(tooling.WrapGatewayErr(err))
	}

	var statuses []assetStatus
	totalCurrent, totalTarget := 0, 0
	behind := 0
	for _, s := range snapshotsData(result) {
		if assetFilter != nil && !assetFilter[s.AssetID] {
			continue
		}
		variance := 0.0
		if s.TargetOutput > 0 {
			variance = float64(s.CurrentOutput-s.TargetOutput) / float64(s.TargetOutput) * 100
		}
		age := now().Sub(s.SnapshotTimestamp)
		statuses = append(statuses, assetStatus{
			AssetID:        s.AssetID,
			Status:         string(s.Status),
			CurrentOutput:  s.CurrentOutput,
			TargetOutput:   s.TargetOutput,
			VariancePct:    variance,
			DataStale:      s.IsStale(now()),
			SnapshotAgeMin: age.Minutes(),
		})
		totalCurrent += s.CurrentOutput
		totalTarget += s.TargetOutput
		if s.Status == opsmodel.SnapshotBehind || s.Status == opsmodel.SnapshotDown || variance < -5 {
			behind++
		}
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].VariancePct < statuses[j].VariancePct })

	overallVariance := 0.0
	if totalTarget > 0 {
		overallVariance = float64(totalCurrent-totalTarget) / float64(totalTarget) * 100
	}

	message := fmt.Sprintf("output is running %.1f%% vs target", overallVariance)
	if len(statuses) == 0 {
		message = "no live production data available"
	}

	out := map[string]any{
		"assets":               statuses,
		"overall_variance_pct": overallVariance,
		"total_current_output": totalCurrent,
		"total_target_output":  totalTarget,
		"behind_count":         behind,
		"message":              message,
		"as_of":                now().UTC().Format(time.RFC3339),
	}

	citations := []opsmodel.Citation{
		tooling.DatabaseCitation(result.TableName, area, area, result.QueryTimestamp, "latest live snapshots"),
		tooling.CalculationCitation("variance = (current_output - target_output) / target_output * 100", 0.95),
	}
	return tooling.Success(out, citations)
}
