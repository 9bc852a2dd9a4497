package briefing

import (
	"context"
	"fmt"
	"strings"

	"github.com/plantops/opsbrief/actionengine"
)

// GeneratePlantBriefing runs the plant-wide fan-out: a headline section
// followed by one section per area in areaPref order (falling back to the
// plant's default order), each composed under its own per-tool timeout, all
// bounded by the orchestrator's total budget.
func (o *Orchestrator) GeneratePlantBriefing(ctx context.Context, areaPref []string) Briefing {
	ctx, cancel := context.WithTimeout(ctx, o.totalBudget())
	defer cancel()
	now := o.now()

	areas := o.Plant.ReorderFor(areaPref)
	sections := make([]Section, 0, len(areas)+1)
	sections = append(sections, o.headlineSection(ctx))
	sections = append(sections, o.composeAreaSections(ctx, areas, nil)...)
	return o.finalize(ctx, "plant", sections, now)
}

// headlineSection builds the plant-wide pause-point section via the action
// list, a natural plant-level aggregate: it already ranks safety over OEE
// over financial issues across every asset.
func (o *Orchestrator) headlineSection(ctx context.Context) Section {
	result := o.callTool(ctx, "action_list", map[string]any{"limit": 5}, o.perToolTimeout())
	if !result.Success {
		return Section{
			Type:         "headline",
			Title:        "Plant Headline",
			Body:         "unable to generate plant headline: " + result.ErrorMessage,
			Status:       SectionFailed,
			ToolFailures: []string{"action_list"},
			PausePoint:   true,
		}
	}
	var b strings.Builder
	if resp, ok := result.Data.(actionengine.ActionListResponse); ok {
		if resp.TotalCount == 0 {
			b.WriteString("No outstanding actions flagged plant-wide.")
		} else {
			fmt.Fprintf(&b, "%d action item(s) flagged plant-wide (%d safety, %d OEE, %d financial).",
				resp.TotalCount,
				resp.CountsByCategory["safety"],
				resp.CountsByCategory["oee"],
				resp.CountsByCategory["financial"])
		}
	} else {
		b.WriteString("Review today's action list for details.")
	}
	return Section{
		Type:       "headline",
		Title:      "Plant Headline",
		Body:       strings.TrimSpace(b.String()),
		Status:     SectionOK,
		PausePoint: true,
	}
}

// GenerateSupervisorBriefing scopes the fan-out to assignedAssetIDs: no
// headline section, only areas whose asset set intersects the assignment,
// and no caching, so assignment changes reflect immediately (callers must
// not wrap this path in a cache decorator).
func (o *Orchestrator) GenerateSupervisorBriefing(ctx context.Context, assignedAssetIDs []string) Briefing {
	now := o.now()
	if len(assignedAssetIDs) == 0 {
		return Briefing{
			Sections: []Section{{
				Type:   "error",
				Title:  "No Assets Assigned",
				Body:   "No assets assigned — contact your administrator",
				Status: SectionFailed,
			}},
			CompletionPercentage: 0,
			GeneratedAt:          now,
		}
	}
	ctx, cancel := context.WithTimeout(ctx, o.totalBudget())
	defer cancel()

	assigned := make(map[string]bool, len(assignedAssetIDs))
	for _, id := range assignedAssetIDs {
		assigned[id] = true
	}

	areas := o.Plant.ReorderFor(nil)
	included := make([]string, 0, len(areas))
	scopedByArea := make(map[string][]string, len(areas))
	for _, area := range areas {
		assets := o.Plant.AssetsByArea[area]
		var scoped []string
		for _, a := range assets {
			if assigned[a] {
				scoped = append(scoped, a)
			}
		}
		if len(scoped) == 0 {
			continue
		}
		included = append(included, area)
		scopedByArea[area] = scoped
	}

	sections := o.composeAreaSections(ctx, included, func(area string) []string { return scopedByArea[area] })
	return o.finalize(ctx, "supervisor", sections, now)
}
