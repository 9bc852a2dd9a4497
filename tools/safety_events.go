package tools

import (
	"context"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/plantops/opsbrief/gateway"
	"github.com/plantops/opsbrief/opsmodel"
	"github.com/plantops/opsbrief/tooling"
)

// SafetyEvents lists safety events in a window, optionally filtered by
// area or severity.
type SafetyEvents struct {
	GW     gateway.Gateway
	Clock  clock
	schema *jsonschema.Schema
}

var safetyEventsSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"asset_id":         map[string]any{"type": "string"},
		"area":             map[string]any{"type": "string"},
		"time_range":       map[string]any{"type": "string"},
		"include_resolved": map[string]any{"type": "boolean"},
		"severity":         map[string]any{"type": "string"},
	},
}

func (t *SafetyEvents) Name() string { return "safety_events" }
func (t *SafetyEvents) Description() string {
	return "List safety events in a window, optionally scoped to an area."
}

func (t *SafetyEvents) CitationsRequired() bool { return true }

func (t *SafetyEvents) ArgsSchema() *jsonschema.Schema {
	if t.schema == nil {
		t.schema = tooling.MustCompileSchema("safety_events.json", safetyEventsSchema)
	}
	return t.schema
}

func (t *SafetyEvents) Run(ctx context.Context, args map[string]any) opsmodel.ToolResult {
	rng := resolveRange(str(args, "time_range", ""), t.Clock)
	start, end := rangeBounds(rng)
	q := gateway.SafetyEventsQuery{
		AssetID:         str(args, "asset_id", ""),
		Area:            str(args, "area", ""),
		Start:           start,
		End:             end,
		IncludeResolved: boolArg(args, "include_resolved", false),
		Severity:        opsmodel.Severity(str(args, "severity", "")),
	}
	result, err := t.GW.GetSafetyEvents(ctx, q)
	if err != nil {
		return tooling.Failure(tooling.WrapGatewayErr(err))
	}
	events := safetyEventsData(result)

	out := map[string]any{
		"events":     events,
		"count":      len(events),
		"time_range": rng.Description,
	}
	if rng.Warning != "" {
		out["warning"] = rng.Warning
	}

	citations := []opsmodel.Citation{
		tooling.DatabaseCitation(result.TableName, q.AssetID, q.AssetID, result.QueryTimestamp, "safety events in window"),
	}
	return tooling.Success(out, citations)
}
