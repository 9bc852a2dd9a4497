package tools

import (
	"context"
	"sort"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/plantops/opsbrief/gateway"
	"github.com/plantops/opsbrief/opsmodel"
	"github.com/plantops/opsbrief/tooling"
)

// AlertCheck merges active safety events and production-variance snapshots
// into one sorted alert list. Equipment status changes are a deferred
// extension point and always contribute zero alerts today; wiring them in
// requires a citation contract for the new source first.
type AlertCheck struct {
	GW     gateway.Gateway
	Clock  clock
	schema *jsonschema.Schema
}

var alertCheckSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"area":      map[string]any{"type": "string"},
		"asset_ids": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
}

func (t *AlertCheck) Name() string { return "alert_check" }
func (t *AlertCheck) Description() string {
	return "Merge active safety events and production variance into one alert list."
}

func (t *AlertCheck) CitationsRequired() bool { return true }

func (t *AlertCheck) ArgsSchema() *jsonschema.Schema {
	if t.schema == nil {
		t.schema = tooling.MustCompileSchema("alert_check.json", alertCheckSchema)
	}
	return t.schema
}

type alert struct {
	Level             string    `json:"level"`
	Source            string    `json:"source"`
	AssetID           string    `json:"asset_id"`
	Message           string    `json:"message"`
	Since             time.Time `json:"since"`
	DurationMinutes   float64   `json:"duration_minutes"`
	RequiresAttention bool      `json:"requires_attention"`
	severityRank      int
}

var safetySeverityToAlertLevel = map[opsmodel.Severity]string{
	opsmodel.SeverityCritical: "critical",
	opsmodel.SeverityHigh:     "critical",
	opsmodel.SeverityMedium:   "warning",
	opsmodel.SeverityLow:      "info",
}

var alertLevelRank = map[string]int{"critical": 1, "warning": 2, "info": 3}

func (t *AlertCheck) Run(ctx context.Context, args map[string]any) opsmodel.ToolResult {
	now := defaultClock
	if t.Clock != nil {
		now = t.Clock
	}
	area := str(args, "area", "")
	assetFilter := stringSetArg(args, "asset_ids")

	// Resolved events are included so the all-clear message can name the last
	// resolved alert time.
	safetyResult, err := t.GW.GetSafetyEvents(ctx, gateway.SafetyEventsQuery{Area: area, IncludeResolved: true})
	if err != nil {
		return tooling.Failure(tooling.WrapGatewayErr(err))
	}
	var alerts []alert
	var lastResolvedAt time.Time
	for _, e := range safetyEventsData(safetyResult) {
		if assetFilter != nil && !assetFilter[e.AssetID] {
			continue
		}
		if !e.Active() {
			if e.ResolvedAt != nil && e.ResolvedAt.After(lastResolvedAt) {
				lastResolvedAt = *e.ResolvedAt
			}
			continue
		}
		level := safetySeverityToAlertLevel[e.Severity]
		if level == "" {
			level = "info"
		}
		duration := now().Sub(e.EventTimestamp).Minutes()
		alerts = append(alerts, alert{
			Level:             level,
			Source:            "safety_event",
			AssetID:           e.AssetID,
			Message:           e.Description,
			Since:             e.EventTimestamp,
			DurationMinutes:   duration,
			RequiresAttention: duration > 60,
			severityRank:      alertLevelRank[level],
		})
	}

	snapResult, err := t.GW.GetLiveSnapshotsByArea(ctx, area)
	if err != nil {
		return tooling.Failure(tooling.WrapGatewayErr(err))
	}
	for _, s := range snapshotsData(snapResult) {
		if assetFilter != nil && !assetFilter[s.AssetID] {
			continue
		}
		if s.TargetOutput == 0 {
			continue
		}
		variance := float64(s.OutputVariance) / float64(s.TargetOutput)
		if variance < -0.20 || variance > 0.20 {
			duration := now().Sub(s.SnapshotTimestamp).Minutes()
			alerts = append(alerts, alert{
				Level:             "warning",
				Source:            "production_variance",
				AssetID:           s.AssetID,
				Message:           "production variance exceeds 20% of target",
				Since:             s.SnapshotTimestamp,
				DurationMinutes:   duration,
				RequiresAttention: duration > 60,
				severityRank:      alertLevelRank["warning"],
			})
		}
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].severityRank != alerts[j].severityRank {
			return alerts[i].severityRank < alerts[j].severityRank
		}
		return alerts[i].DurationMinutes > alerts[j].DurationMinutes
	})

	out := map[string]any{"alerts": alerts, "count": len(alerts)}
	if len(alerts) == 0 {
		msg := "all clear"
		if !lastResolvedAt.IsZero() {
			msg = "all clear since " + lastResolvedAt.UTC().Format(time.RFC3339)
		}
		out["message"] = msg
	}

	citations := []opsmodel.Citation{
		tooling.DatabaseCitation(safetyResult.TableName, area, area, safetyResult.QueryTimestamp, "active safety events"),
		tooling.DatabaseCitation(snapResult.TableName, area, area, snapResult.QueryTimestamp, "live snapshots for variance"),
	}
	return tooling.Success(out, citations)
}
