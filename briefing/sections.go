package briefing

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/plantops/opsbrief/opsmodel"
)

// areaRollupView narrows an area_rollup tool result's untyped map to the
// fields the narrative templates need.
type areaRollupView struct {
	weightedMeanOEE      float64
	totalDowntimeMinutes int
	activeSafetyEvents   int
	ok                   bool
}

func asAreaRollupView(r opsmodel.ToolResult) areaRollupView {
	if !r.Success {
		return areaRollupView{}
	}
	m, ok := r.Data.(map[string]any)
	if !ok {
		return areaRollupView{}
	}
	v := areaRollupView{ok: true}
	if f, ok := m["weighted_mean_oee"].(float64); ok {
		v.weightedMeanOEE = f
	}
	if n, ok := m["total_downtime_minutes"].(int); ok {
		v.totalDowntimeMinutes = n
	}
	if n, ok := m["active_safety_events"].(int); ok {
		v.activeSafetyEvents = n
	}
	return v
}

type productionStatusView struct {
	overallVariancePct float64
	behindCount        int
	ok                 bool
}

func asProductionStatusView(r opsmodel.ToolResult) productionStatusView {
	if !r.Success {
		return productionStatusView{}
	}
	m, ok := r.Data.(map[string]any)
	if !ok {
		return productionStatusView{}
	}
	v := productionStatusView{ok: true}
	if f, ok := m["overall_variance_pct"].(float64); ok {
		v.overallVariancePct = f
	}
	if n, ok := m["behind_count"].(int); ok {
		v.behindCount = n
	}
	return v
}

type alertCheckView struct {
	count   int
	message string
	ok      bool
}

func asAlertCheckView(r opsmodel.ToolResult) alertCheckView {
	if !r.Success {
		return alertCheckView{}
	}
	m, ok := r.Data.(map[string]any)
	if !ok {
		return alertCheckView{}
	}
	v := alertCheckView{ok: true}
	if n, ok := m["count"].(int); ok {
		v.count = n
	}
	if s, ok := m["message"].(string); ok {
		v.message = s
	}
	return v
}

// composeAreaSections runs one composeAreaSection per area concurrently,
// all bounded by ctx's total budget, and returns the results in declared
// area order regardless of completion order. Areas whose goroutine has not
// finished by the time ctx expires come back as timed_out sections; finished
// sections are preserved as-is.
func (o *Orchestrator) composeAreaSections(ctx context.Context, areas []string, filterFor func(area string) []string) []Section {
	sections := make([]Section, len(areas))
	var wg sync.WaitGroup
	for i, area := range areas {
		wg.Add(1)
		go func(i int, area string) {
			defer wg.Done()
			var filter []string
			if filterFor != nil {
				filter = filterFor(area)
			}
			sections[i] = o.composeAreaSection(ctx, area, filter)
		}(i, area)
	}
	// callTool bounds every branch by min(per-tool timeout, ctx deadline), so
	// this wait cannot outlive the total budget by more than scheduling slack.
	wg.Wait()
	return sections
}

// composeAreaSection fans out the production status, area rollup and alert
// tools scoped to area and composes the fixed narrative template: overall
// variance -> OEE -> alerts -> safety (only if events) -> the area's total
// downtime minutes if > 15 min (no per-reason breakdown).
func (o *Orchestrator) composeAreaSection(ctx context.Context, area string, assetFilter []string) Section {
	scoped := map[string]any{"area": area}
	if len(assetFilter) > 0 {
		ids := make([]any, len(assetFilter))
		for i, id := range assetFilter {
			ids[i] = id
		}
		scoped["asset_ids"] = ids
	}
	args := func() map[string]any {
		m := make(map[string]any, len(scoped))
		for k, v := range scoped {
			m[k] = v
		}
		return m
	}
	calls := []toolCall{
		{name: "production_status", args: args()},
		{name: "area_rollup", args: args()},
		{name: "alert_check", args: args()},
	}
	results := o.runMany(ctx, calls, o.perToolTimeout())

	prod := results["production_status"]
	rollup := results["area_rollup"]
	alerts := results["alert_check"]

	var failures []string
	for _, c := range calls {
		if !results[c.name].Success {
			failures = append(failures, c.name)
		}
	}

	if len(failures) == len(calls) {
		status := sectionStatusFor(prod, rollup, alerts)
		body := "unable to retrieve area data: " + rollup.ErrorMessage
		if status == SectionTimedOut {
			body = "generation timed out for this area"
		}
		return Section{
			Type:         "area",
			Title:        titleCase(area),
			Body:         body,
			Status:       status,
			ToolFailures: failures,
		}
	}

	pv := asProductionStatusView(prod)
	rv := asAreaRollupView(rollup)
	av := asAlertCheckView(alerts)

	var b strings.Builder
	if pv.ok {
		fmt.Fprintf(&b, "Output is running %.1f%% vs target. ", pv.overallVariancePct)
	}
	if rv.ok {
		if rv.weightedMeanOEE > 0 {
			fmt.Fprintf(&b, "OEE is running at %.1f%%. ", rv.weightedMeanOEE)
		}
	}
	if av.ok && av.count > 0 {
		fmt.Fprintf(&b, "%d active alert(s) in %s. ", av.count, area)
	} else if av.ok {
		b.WriteString("No active alerts. ")
	}
	if rv.ok && rv.activeSafetyEvents > 0 {
		fmt.Fprintf(&b, "%d unresolved safety event(s). ", rv.activeSafetyEvents)
	}
	if rv.ok && rv.totalDowntimeMinutes > 15 {
		fmt.Fprintf(&b, "Downtime totals %d minutes for the window.", rv.totalDowntimeMinutes)
	}
	if b.Len() == 0 {
		b.WriteString("No notable activity.")
	}

	return Section{
		Type:         "area",
		Title:        titleCase(area),
		Body:         strings.TrimSpace(b.String()),
		Status:       sectionStatusFor(prod, rollup, alerts),
		ToolFailures: failures,
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func sectionStatusFor(results ...opsmodel.ToolResult) SectionStatus {
	anyFailed, anyTimedOut, anyOK := false, false, false
	for _, r := range results {
		if r.Success {
			anyOK = true
			continue
		}
		if strings.Contains(r.ErrorMessage, "timed out") {
			anyTimedOut = true
		} else {
			anyFailed = true
		}
	}
	switch {
	case anyOK:
		return SectionOK
	case anyTimedOut:
		return SectionTimedOut
	case anyFailed:
		return SectionFailed
	default:
		return SectionOK
	}
}
