package tools

import (
	"context"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/plantops/opsbrief/actionengine"
	"github.com/plantops/opsbrief/opsmodel"
	"github.com/plantops/opsbrief/tooling"
)

// ActionList is a thin delegate onto actionengine.Engine.
type ActionList struct {
	Engine *actionengine.Engine
	schema *jsonschema.Schema
}

var actionListSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"target_date":     map[string]any{"type": "string"},
		"category_filter": map[string]any{"type": "string", "enum": []any{"safety", "oee", "financial"}},
		"limit":           map[string]any{"type": "integer", "minimum": 1},
	},
}

func (t *ActionList) Name() string { return "action_list" }
func (t *ActionList) Description() string {
	return "Return the prioritized daily action list of safety, OEE, and financial issues."
}

func (t *ActionList) CitationsRequired() bool { return true }

func (t *ActionList) ArgsSchema() *jsonschema.Schema {
	if t.schema == nil {
		t.schema = tooling.MustCompileSchema("action_list.json", actionListSchema)
	}
	return t.schema
}

func (t *ActionList) Run(ctx context.Context, args map[string]any) opsmodel.ToolResult {
	opts := actionengine.Options{
		CategoryFilter: opsmodel.ActionCategory(str(args, "category_filter", "")),
		Limit:          intArg(args, "limit", 0),
	}
	if d := str(args, "target_date", ""); d != "" {
		if parsed, err := time.Parse("2006-01-02", d); err == nil {
			opts.TargetDate = parsed
		}
	}

	response := t.Engine.GenerateActionList(ctx, opts)

	citations := []opsmodel.Citation{
		tooling.CalculationCitation("actions ranked safety > oee > financial with cross-tier dedup", 0.95),
	}
	for _, a := range response.Actions {
		for _, ref := range a.EvidenceRefs {
			citations = append(citations, tooling.DatabaseCitation(ref.SourceTable, ref.RecordID, a.AssetID, response.GeneratedAt, ref.Context))
		}
	}

	return tooling.Success(response, citations)
}
