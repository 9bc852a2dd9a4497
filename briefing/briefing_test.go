package briefing

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/plantops/opsbrief/actionengine"
	"github.com/plantops/opsbrief/opsmodel"
	"github.com/plantops/opsbrief/tooling"
)

// fakeTool responds from a canned result, optionally sleeping per area to
// simulate a slow downstream store. The sleep deliberately ignores ctx: a
// branch that never comes back is exactly the case the orchestrator must
// synthesize a timed-out section for.
type fakeTool struct {
	name    string
	delays  map[string]time.Duration // keyed by the "area" arg; "" matches all
	results map[string]opsmodel.ToolResult
}

func (t *fakeTool) Name() string                   { return t.name }
func (t *fakeTool) Description() string            { return "fake " + t.name }
func (t *fakeTool) ArgsSchema() *jsonschema.Schema { return nil }
func (t *fakeTool) CitationsRequired() bool        { return false }

func (t *fakeTool) Run(ctx context.Context, args map[string]any) opsmodel.ToolResult {
	area, _ := args["area"].(string)
	delay := t.delays[area]
	if delay == 0 {
		delay = t.delays[""]
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if r, ok := t.results[area]; ok {
		return r
	}
	if r, ok := t.results[""]; ok {
		return r
	}
	return opsmodel.ToolResult{Success: true, Data: map[string]any{}}
}

func rollupResult(oee float64, downtime, safety int) opsmodel.ToolResult {
	return opsmodel.ToolResult{Success: true, Data: map[string]any{
		"weighted_mean_oee":      oee,
		"total_downtime_minutes": downtime,
		"active_safety_events":   safety,
	}}
}

func alertResult(count int, message string) opsmodel.ToolResult {
	return opsmodel.ToolResult{Success: true, Data: map[string]any{
		"count":   count,
		"message": message,
	}}
}

func actionListResult(total int) opsmodel.ToolResult {
	return opsmodel.ToolResult{Success: true, Data: actionengine.ActionListResponse{
		TotalCount: total,
		CountsByCategory: map[opsmodel.ActionCategory]int{
			opsmodel.CategorySafety: total,
		},
	}}
}

func prodResult(variance float64, behind int) opsmodel.ToolResult {
	return opsmodel.ToolResult{Success: true, Data: map[string]any{
		"overall_variance_pct": variance,
		"behind_count":         behind,
	}}
}

func testPlant() PlantModel {
	return PlantModel{
		AreaOrder: []string{"stamping", "welding", "assembly"},
		AssetsByArea: map[string][]string{
			"stamping": {"ast-1", "ast-2"},
			"welding":  {"ast-3"},
			"assembly": {"ast-4", "ast-5"},
		},
	}
}

func testOrchestrator(reg *tooling.Registry) *Orchestrator {
	return &Orchestrator{
		Registry:       reg,
		Plant:          testPlant(),
		TotalBudget:    2 * time.Second,
		PerToolTimeout: 500 * time.Millisecond,
	}
}

func baseRegistry(prod, rollup, alerts, actions *fakeTool) *tooling.Registry {
	reg := tooling.NewRegistry()
	reg.Register(prod)
	reg.Register(rollup)
	reg.Register(alerts)
	reg.Register(actions)
	return reg
}

func defaultTools() (*fakeTool, *fakeTool, *fakeTool, *fakeTool) {
	prod := &fakeTool{name: "production_status", results: map[string]opsmodel.ToolResult{"": prodResult(-4.2, 0)}}
	rollup := &fakeTool{name: "area_rollup", results: map[string]opsmodel.ToolResult{"": rollupResult(82.5, 20, 0)}}
	alerts := &fakeTool{name: "alert_check", results: map[string]opsmodel.ToolResult{"": alertResult(0, "all clear")}}
	actions := &fakeTool{name: "action_list", results: map[string]opsmodel.ToolResult{"": actionListResult(2)}}
	return prod, rollup, alerts, actions
}

func TestPlantBriefingSectionOrderAndHeadline(t *testing.T) {
	prod, rollup, alerts, actions := defaultTools()
	o := testOrchestrator(baseRegistry(prod, rollup, alerts, actions))

	b := o.GeneratePlantBriefing(context.Background(), nil)

	if len(b.Sections) != 4 {
		t.Fatalf("want headline + 3 area sections, got %d", len(b.Sections))
	}
	if b.Sections[0].Type != "headline" || !b.Sections[0].PausePoint {
		t.Errorf("first section must be the pause-point headline, got %+v", b.Sections[0])
	}
	wantOrder := []string{"Stamping", "Welding", "Assembly"}
	for i, want := range wantOrder {
		s := b.Sections[i+1]
		if s.Title != want {
			t.Errorf("section %d title = %q, want %q (declared area order)", i+1, s.Title, want)
		}
		if s.Status != SectionOK || s.Body == "" {
			t.Errorf("section %q should be complete with content, got %+v", want, s)
		}
	}
	if b.CompletionPercentage != 100 {
		t.Errorf("completion = %v, want 100", b.CompletionPercentage)
	}
	if b.TotalDurationEstimate < 75 {
		t.Errorf("duration estimate floor is 75s, got %v", b.TotalDurationEstimate)
	}
}

func TestPlantBriefingAreaPreferenceReorder(t *testing.T) {
	prod, rollup, alerts, actions := defaultTools()
	o := testOrchestrator(baseRegistry(prod, rollup, alerts, actions))

	b := o.GeneratePlantBriefing(context.Background(), []string{"assembly", "unknown-area"})

	titles := []string{b.Sections[1].Title, b.Sections[2].Title, b.Sections[3].Title}
	want := []string{"Assembly", "Stamping", "Welding"}
	for i := range want {
		if titles[i] != want[i] {
			t.Errorf("reordered titles = %v, want %v", titles, want)
			break
		}
	}
}

// One slow area must time out without disturbing the others, and the whole
// call must respect the total budget.
func TestPlantBriefingDeadline(t *testing.T) {
	prod, rollup, alerts, actions := defaultTools()
	prod.delays = map[string]time.Duration{"welding": 3 * time.Second}
	rollup.delays = map[string]time.Duration{"welding": 3 * time.Second}
	alerts.delays = map[string]time.Duration{"welding": 3 * time.Second}

	o := testOrchestrator(baseRegistry(prod, rollup, alerts, actions))
	o.TotalBudget = 1 * time.Second
	o.PerToolTimeout = 300 * time.Millisecond

	start := time.Now()
	b := o.GeneratePlantBriefing(context.Background(), nil)
	elapsed := time.Since(start)

	if elapsed > o.TotalBudget+500*time.Millisecond {
		t.Errorf("briefing took %v, budget was %v", elapsed, o.TotalBudget)
	}

	byTitle := map[string]Section{}
	for _, s := range b.Sections {
		byTitle[s.Title] = s
	}
	slow := byTitle["Welding"]
	if slow.Status != SectionTimedOut {
		t.Errorf("slow area status = %q, want timed_out", slow.Status)
	}
	if !strings.Contains(strings.ToLower(slow.Body), "timed out") {
		t.Errorf("timed-out section must say so, got %q", slow.Body)
	}
	for _, title := range []string{"Stamping", "Assembly"} {
		if byTitle[title].Status != SectionOK {
			t.Errorf("%s should be unaffected, got %+v", title, byTitle[title])
		}
	}
	if b.CompletionPercentage >= 100 || b.CompletionPercentage == 0 {
		t.Errorf("completion should reflect the partial result, got %v", b.CompletionPercentage)
	}
	if len(b.ToolFailures) == 0 {
		t.Error("tool_failures must list the timed-out tools")
	}
}

func TestSupervisorBriefingScopesAreas(t *testing.T) {
	prod, rollup, alerts, actions := defaultTools()
	o := testOrchestrator(baseRegistry(prod, rollup, alerts, actions))

	b := o.GenerateSupervisorBriefing(context.Background(), []string{"ast-3"})

	if len(b.Sections) != 1 {
		t.Fatalf("only welding intersects the assignment, got %d sections", len(b.Sections))
	}
	if b.Sections[0].Title != "Welding" {
		t.Errorf("section = %q, want Welding", b.Sections[0].Title)
	}
	for _, s := range b.Sections {
		if s.Type == "headline" {
			t.Error("supervisor briefings must not include a headline section")
		}
	}
}

func TestSupervisorBriefingNoAssignments(t *testing.T) {
	prod, rollup, alerts, actions := defaultTools()
	o := testOrchestrator(baseRegistry(prod, rollup, alerts, actions))

	b := o.GenerateSupervisorBriefing(context.Background(), nil)

	if len(b.Sections) != 1 {
		t.Fatalf("want a single error section, got %d", len(b.Sections))
	}
	s := b.Sections[0]
	if s.Type != "error" || s.Status != SectionFailed {
		t.Errorf("section = %+v, want type=error status=failed", s)
	}
	if s.Body != "No assets assigned — contact your administrator" {
		t.Errorf("body = %q", s.Body)
	}
	if b.CompletionPercentage != 0 {
		t.Errorf("completion = %v, want 0", b.CompletionPercentage)
	}
}

func TestShiftHandoffSections(t *testing.T) {
	reg := tooling.NewRegistry()
	reg.Register(&fakeTool{name: "production_status", results: map[string]opsmodel.ToolResult{"": prodResult(-7.5, 2)}})
	reg.Register(&fakeTool{name: "alert_check", results: map[string]opsmodel.ToolResult{"": alertResult(2, "")}})
	reg.Register(&fakeTool{name: "downtime_analysis", results: map[string]opsmodel.ToolResult{"": {
		Success: true, Data: map[string]any{"total_downtime_minutes": 42},
	}}})
	reg.Register(&fakeTool{name: "safety_events", results: map[string]opsmodel.ToolResult{"": {
		Success: true, Data: map[string]any{"events": []opsmodel.SafetyEvent{
			{ID: "se-1", IsResolved: false},
			{ID: "se-2", IsResolved: true},
		}},
	}}})

	o := testOrchestrator(reg)
	b := o.SynthesizeShiftHandoff(context.Background())

	types := make([]string, len(b.Sections))
	for i, s := range b.Sections {
		types[i] = s.Type
	}
	want := []string{"overview", "issues", "ongoing_concerns", "recommended_focus"}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("section types = %v, want %v", types, want)
		}
	}
	if !strings.Contains(b.Sections[0].Body, "-7.5% vs target") {
		t.Errorf("overview should lead with the production variance, got %q", b.Sections[0].Body)
	}
	if !strings.Contains(b.Sections[1].Body, "42") {
		t.Errorf("issues section should surface downtime minutes, got %q", b.Sections[1].Body)
	}
	if !strings.Contains(b.Sections[2].Body, "1 unresolved") {
		t.Errorf("ongoing concerns should count unresolved events, got %q", b.Sections[2].Body)
	}
}

type fakeMorning struct {
	record MorningBriefingRecord
	found  bool
}

func (f *fakeMorning) Lookup(ctx context.Context, userID string, date time.Time) (MorningBriefingRecord, bool, error) {
	return f.record, f.found, nil
}

func TestEODSummaryMorningComparison(t *testing.T) {
	prod, rollup, alerts, actions := defaultTools()
	reg := baseRegistry(prod, rollup, alerts, actions)
	reg.Register(&fakeTool{name: "safety_events", results: map[string]opsmodel.ToolResult{"": {
		Success: true, Data: map[string]any{"events": []opsmodel.SafetyEvent{}},
	}}})

	o := testOrchestrator(reg)
	o.Morning = &fakeMorning{
		record: MorningBriefingRecord{
			GeneratedAt:     time.Date(2026, 1, 5, 7, 30, 0, 0, time.UTC),
			FlaggedConcerns: []string{"Grinder 5 OEE gap"},
		},
		found: true,
	}

	b := o.GenerateEODSummary(context.Background(), "user-1", time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))

	byType := map[string]Section{}
	for _, s := range b.Sections {
		byType[s.Type] = s
	}
	cmp := byType["morning_comparison"]
	if !strings.Contains(cmp.Body, "Grinder 5 OEE gap") {
		t.Errorf("comparison should restate flagged concerns, got %q", cmp.Body)
	}
	if _, ok := byType["outlook"]; !ok {
		t.Error("EOD summary must include the outlook section")
	}
}

func TestEODSummaryNoMorningRecord(t *testing.T) {
	prod, rollup, alerts, actions := defaultTools()
	reg := baseRegistry(prod, rollup, alerts, actions)
	reg.Register(&fakeTool{name: "safety_events"})

	o := testOrchestrator(reg)
	o.Morning = &fakeMorning{found: false}

	b := o.GenerateEODSummary(context.Background(), "user-1", time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	for _, s := range b.Sections {
		if s.Type == "morning_comparison" && !strings.Contains(s.Body, "no morning briefing") {
			t.Errorf("missing record should produce the fallback, got %q", s.Body)
		}
	}
}

func TestReorderForAppendsMissing(t *testing.T) {
	p := testPlant()
	got := p.ReorderFor([]string{"welding"})
	want := []string{"welding", "stamping", "assembly"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ReorderFor = %v, want %v", got, want)
		}
	}
	if dup := p.ReorderFor([]string{"welding", "welding"}); len(dup) != 3 {
		t.Errorf("duplicate preference entries must collapse, got %v", dup)
	}
}

func TestSectionStatusFor(t *testing.T) {
	okRes := opsmodel.ToolResult{Success: true}
	failRes := opsmodel.ToolResult{Success: false, ErrorMessage: "boom"}
	timeoutRes := opsmodel.ToolResult{Success: false, ErrorMessage: "tool x timed out"}

	if sectionStatusFor(okRes, failRes) != SectionOK {
		t.Error("any success keeps the section complete")
	}
	if sectionStatusFor(timeoutRes, timeoutRes) != SectionTimedOut {
		t.Error("all-timeout must be timed_out")
	}
	if sectionStatusFor(failRes, timeoutRes) != SectionTimedOut {
		t.Error("timeout takes precedence over plain failure")
	}
	if sectionStatusFor(failRes, failRes) != SectionFailed {
		t.Error("all-failed must be failed")
	}
}
