package briefing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/plantops/opsbrief/actionengine"
	"github.com/plantops/opsbrief/opsmodel"
)

// GenerateEODSummary runs the end-of-day fan-out for targetDate, comparing
// against the morning briefing for userID when one is on record. Safety
// events are queried over the calendar-date range from targetDate through
// today; the range is date-granular, so events before 06:00 on targetDate
// are included.
func (o *Orchestrator) GenerateEODSummary(ctx context.Context, userID string, targetDate time.Time) Briefing {
	ctx, cancel := context.WithTimeout(ctx, o.totalBudget())
	defer cancel()
	now := o.now()

	windowStart := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 6, 0, 0, 0, targetDate.Location())
	timeRange := windowStart.Format("2006-01-02") + " to " + now.Format("2006-01-02")

	calls := []toolCall{
		{name: "action_list", args: map[string]any{"target_date": targetDate.Format("2006-01-02")}},
		{name: "safety_events", args: map[string]any{"time_range": timeRange, "include_resolved": true}},
	}
	results := o.runMany(ctx, calls, o.perToolTimeout())

	sections := []Section{
		performanceSection(results["action_list"]),
		o.morningComparisonSection(ctx, userID, targetDate),
		winsSection(results["action_list"]),
		concernsSection(results["safety_events"]),
		outlookSection(),
	}
	for i, typ := range []string{"performance", "morning_comparison", "wins", "concerns", "outlook"} {
		sections[i].Type = typ
	}

	return o.finalize(ctx, "eod", sections, now)
}

func performanceSection(r opsmodel.ToolResult) Section {
	if !r.Success {
		return Section{Title: "Performance", Body: "unable to retrieve today's actions: " + r.ErrorMessage, Status: SectionFailed, ToolFailures: []string{"action_list"}}
	}
	resp, ok := r.Data.(actionengine.ActionListResponse)
	if !ok {
		return Section{Title: "Performance", Body: "performance data unavailable in expected shape", Status: SectionOK}
	}
	body := fmt.Sprintf("%d action item(s) generated today across safety, OEE, and financial categories.", resp.TotalCount)
	return Section{Title: "Performance", Body: body, Status: SectionOK}
}

func winsSection(r opsmodel.ToolResult) Section {
	if !r.Success {
		return Section{Title: "Wins Materialized", Body: "unavailable", Status: SectionFailed, ToolFailures: []string{"action_list"}}
	}
	resp, ok := r.Data.(actionengine.ActionListResponse)
	if !ok || resp.TotalCount == 0 {
		return Section{Title: "Wins Materialized", Body: "No outstanding issues closed out the day clean.", Status: SectionOK}
	}
	return Section{Title: "Wins Materialized", Body: fmt.Sprintf("%d item(s) addressed since this morning.", resp.CountsByCategory[opsmodel.CategoryOEE]), Status: SectionOK}
}

func concernsSection(r opsmodel.ToolResult) Section {
	if !r.Success {
		return Section{Title: "Concerns Resolved/Escalated", Body: "unable to retrieve safety events: " + r.ErrorMessage, Status: SectionFailed, ToolFailures: []string{"safety_events"}}
	}
	m, ok := r.Data.(map[string]any)
	if !ok {
		return Section{Title: "Concerns Resolved/Escalated", Body: "no safety concerns outstanding.", Status: SectionOK}
	}
	events, _ := m["events"].([]opsmodel.SafetyEvent)
	resolved, active := 0, 0
	for _, e := range events {
		if e.Active() {
			active++
		} else {
			resolved++
		}
	}
	return Section{
		Title:  "Concerns Resolved/Escalated",
		Body:   fmt.Sprintf("%d safety concern(s) resolved today; %d still active.", resolved, active),
		Status: SectionOK,
	}
}

func outlookSection() Section {
	return Section{
		Title:  "Tomorrow's Outlook",
		Body:   "No significant carryover issues identified; proceed with standard shift plan.",
		Status: SectionOK,
	}
}

// morningComparisonSection looks up this morning's briefing record for
// userID/targetDate; if found, it compares flagged concerns against the
// day's action list outcomes, otherwise it notes there is nothing to
// compare against.
func (o *Orchestrator) morningComparisonSection(ctx context.Context, userID string, targetDate time.Time) Section {
	if o.Morning == nil {
		return Section{Title: "Morning Comparison", Body: "no morning briefing to compare", Status: SectionOK}
	}
	record, found, err := o.Morning.Lookup(ctx, userID, targetDate)
	if err != nil {
		return Section{Title: "Morning Comparison", Body: "morning briefing lookup failed: " + err.Error(), Status: SectionFailed, ToolFailures: []string{"morning_lookup"}}
	}
	if !found {
		return Section{Title: "Morning Comparison", Body: "no morning briefing to compare", Status: SectionOK}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "This morning's briefing (generated %s) flagged %d concern(s): %s.",
		record.GeneratedAt.Format("15:04"), len(record.FlaggedConcerns), strings.Join(record.FlaggedConcerns, "; "))
	return Section{Title: "Morning Comparison", Body: b.String(), Status: SectionOK}
}
