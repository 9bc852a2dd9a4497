package tools

import (
	"context"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/plantops/opsbrief/gateway"
	"github.com/plantops/opsbrief/opsmodel"
	"github.com/plantops/opsbrief/tooling"
)

// ShiftTargetQuery returns the effective ShiftTarget for an asset, a
// standalone lookup supervisors ask independently of an OEE query.
type ShiftTargetQuery struct {
	GW     gateway.Gateway
	schema *jsonschema.Schema
}

var shiftTargetQuerySchema = map[string]any{
	"type":       "object",
	"properties": map[string]any{"asset_id": map[string]any{"type": "string", "minLength": 1}},
	"required":   []any{"asset_id"},
}

func (t *ShiftTargetQuery) Name() string { return "shift_target_query" }
func (t *ShiftTargetQuery) Description() string {
	return "Return the effective shift production target for an asset."
}

func (t *ShiftTargetQuery) CitationsRequired() bool { return true }

func (t *ShiftTargetQuery) ArgsSchema() *jsonschema.Schema {
	if t.schema == nil {
		t.schema = tooling.MustCompileSchema("shift_target_query.json", shiftTargetQuerySchema)
	}
	return t.schema
}

func (t *ShiftTargetQuery) Run(ctx context.Context, args map[string]any) opsmodel.ToolResult {
	assetID := str(args, "asset_id", "")
	result, err := t.GW.GetShiftTarget(ctx, assetID)
	if err != nil {
		return tooling.Failure(tooling.WrapGatewayErr(err))
	}
	target, ok := shiftTargetData(result)
	if !ok {
		return tooling.Success(map[string]any{"found": false}, []opsmodel.Citation{
			tooling.DatabaseCitation(result.TableName, "", assetID, result.QueryTimestamp, "no effective shift target on record"),
		})
	}
	out := map[string]any{
		"found":          true,
		"asset_id":       target.AssetID,
		"target_output":  target.TargetOutput,
		"shift":          target.Shift,
		"effective_date": target.EffectiveDate.Format("2006-01-02"),
	}
	citations := []opsmodel.Citation{
		tooling.DatabaseCitation(result.TableName, assetID, assetID, result.QueryTimestamp, "latest effective shift target"),
	}
	return tooling.Success(out, citations)
}
