package briefing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/plantops/opsbrief/opsmodel"
)

// SynthesizeShiftHandoff fans out to the production-status and alert tools
// (current state) and to the downtime and safety tools (over the last 8
// hours), and composes four sections: overview, issues, ongoing concerns,
// recommended focus.
func (o *Orchestrator) SynthesizeShiftHandoff(ctx context.Context) Briefing {
	budget := o.TotalBudget
	if budget <= 0 {
		budget = 15 * time.Second
	}
	perTool := o.PerToolTimeout
	if perTool <= 0 {
		perTool = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	now := o.now()

	timeRange := "last 8 hours"
	calls := []toolCall{
		{name: "production_status", args: map[string]any{}},
		{name: "alert_check", args: map[string]any{}},
		{name: "downtime_analysis", args: map[string]any{"time_range": timeRange}},
		{name: "safety_events", args: map[string]any{"time_range": timeRange, "include_resolved": true}},
	}
	results := o.runMany(ctx, calls, perTool)

	sections := []Section{
		handoffOverview(results["production_status"], results["alert_check"]),
		handoffIssues(results["downtime_analysis"]),
		handoffOngoingConcerns(results["safety_events"]),
		handoffRecommendedFocus(results["production_status"], results["alert_check"]),
	}
	for i, typ := range []string{"overview", "issues", "ongoing_concerns", "recommended_focus"} {
		sections[i].Type = typ
	}
	return o.finalize(ctx, "handoff", sections, now)
}

func handoffOverview(prod, alerts opsmodel.ToolResult) Section {
	pv := asProductionStatusView(prod)
	av := asAlertCheckView(alerts)
	if !prod.Success && !alerts.Success {
		return Section{
			Title:        "Overview",
			Body:         "unable to retrieve shift state: " + alerts.ErrorMessage,
			Status:       sectionStatusFor(prod, alerts),
			ToolFailures: []string{"production_status", "alert_check"},
		}
	}
	var b strings.Builder
	if pv.ok {
		fmt.Fprintf(&b, "Output is running %.1f%% vs target at handoff. ", pv.overallVariancePct)
	}
	switch {
	case av.ok && av.count == 0:
		b.WriteString("Shift ran clean; " + av.message)
	case av.ok:
		fmt.Fprintf(&b, "%d alert(s) active at handoff.", av.count)
	}
	var failures []string
	if !prod.Success {
		failures = append(failures, "production_status")
	}
	if !alerts.Success {
		failures = append(failures, "alert_check")
	}
	return Section{Title: "Overview", Body: strings.TrimSpace(b.String()), Status: SectionOK, ToolFailures: failures}
}

func handoffIssues(r opsmodel.ToolResult) Section {
	if !r.Success {
		return Section{Title: "Issues", Body: "unable to retrieve downtime: " + r.ErrorMessage, Status: SectionFailed, ToolFailures: []string{"downtime_analysis"}}
	}
	m, ok := r.Data.(map[string]any)
	if !ok {
		return Section{Title: "Issues", Body: "no notable downtime this shift.", Status: SectionOK}
	}
	total, _ := m["total_downtime_minutes"].(int)
	if total == 0 {
		return Section{Title: "Issues", Body: "No notable downtime this shift.", Status: SectionOK}
	}
	return Section{Title: "Issues", Body: fmt.Sprintf("%d minute(s) of downtime logged this shift.", total), Status: SectionOK}
}

func handoffOngoingConcerns(r opsmodel.ToolResult) Section {
	if !r.Success {
		return Section{Title: "Ongoing Concerns", Body: "unable to retrieve safety events: " + r.ErrorMessage, Status: SectionFailed, ToolFailures: []string{"safety_events"}}
	}
	m, ok := r.Data.(map[string]any)
	if !ok {
		return Section{Title: "Ongoing Concerns", Body: "none outstanding.", Status: SectionOK}
	}
	events, _ := m["events"].([]opsmodel.SafetyEvent)
	active := 0
	for _, e := range events {
		if e.Active() {
			active++
		}
	}
	if active == 0 {
		return Section{Title: "Ongoing Concerns", Body: "No unresolved safety concerns to hand off.", Status: SectionOK}
	}
	return Section{Title: "Ongoing Concerns", Body: fmt.Sprintf("%d unresolved safety concern(s) carrying into the next shift.", active), Status: SectionOK}
}

func handoffRecommendedFocus(prod, alerts opsmodel.ToolResult) Section {
	pv := asProductionStatusView(prod)
	av := asAlertCheckView(alerts)
	switch {
	case alerts.Success && av.count > 0:
		return Section{Title: "Recommended Focus", Body: "Prioritize the active alerts above at shift start.", Status: SectionOK}
	case prod.Success && pv.behindCount > 0:
		return Section{Title: "Recommended Focus", Body: fmt.Sprintf("Check on the %d asset(s) running behind target.", pv.behindCount), Status: SectionOK}
	}
	return Section{Title: "Recommended Focus", Body: "No specific handoff focus; continue standard rounds.", Status: SectionOK}
}
