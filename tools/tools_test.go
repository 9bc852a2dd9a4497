package tools

import (
	"testing"
	"time"

	"github.com/plantops/opsbrief/gateway/memgateway"
	"github.com/plantops/opsbrief/opsmodel"
)

// testNow is a Tuesday; "yesterday" resolves to Jan 5.
var testNow = time.Date(2026, 1, 6, 10, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

var yesterday = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func oeePtr(v float64) *float64 { return &v }

// plantStore is a small three-asset plant covering every tool's inputs.
func plantStore() memgateway.Store {
	return memgateway.Store{
		Assets: []opsmodel.Asset{
			{ID: "ast-grinder-5", Name: "Grinder 5", SourceID: "G5", Area: "machining", CostCenterID: "cc-1"},
			{ID: "ast-grinder-4", Name: "Grinder 4", SourceID: "G4", Area: "machining", CostCenterID: "cc-1"},
			{ID: "ast-press-2", Name: "Press 2", SourceID: "P2", Area: "stamping"},
		},
		Summaries: []opsmodel.DailySummary{
			{
				ID: "sum-1", AssetID: "ast-grinder-5", ReportDate: yesterday,
				OEEPercentage: oeePtr(62.5), ActualOutput: 820, TargetOutput: 1000,
				DowntimeMinutes: 47, WasteCount: 12, FinancialLossDollars: 1840,
				DowntimeReasons: map[string]int{"bearing overheat": 35, "changeover": 12},
			},
			{
				ID: "sum-2", AssetID: "ast-grinder-4", ReportDate: yesterday,
				OEEPercentage: oeePtr(88), ActualOutput: 950, TargetOutput: 1000,
				DowntimeMinutes: 5, WasteCount: 1, FinancialLossDollars: 90,
			},
			{
				ID: "sum-3", AssetID: "ast-press-2", ReportDate: yesterday,
				OEEPercentage: oeePtr(74), ActualOutput: 700, TargetOutput: 900,
				DowntimeMinutes: 20, WasteCount: 4, FinancialLossDollars: 600,
				DowntimeReasons: map[string]int{"jam": 20},
			},
		},
		Snapshots: []opsmodel.LiveSnapshot{
			{AssetID: "ast-grinder-5", SnapshotTimestamp: testNow.Add(-5 * time.Minute), CurrentOutput: 410, TargetOutput: 500, OutputVariance: -90, Status: opsmodel.SnapshotBehind},
			{AssetID: "ast-press-2", SnapshotTimestamp: testNow.Add(-45 * time.Minute), CurrentOutput: 300, TargetOutput: 310, OutputVariance: -10, Status: opsmodel.SnapshotRunning},
		},
		SafetyEvents: []opsmodel.SafetyEvent{
			{ID: "se-1", AssetID: "ast-grinder-5", EventTimestamp: testNow.Add(-2 * time.Hour), ReasonCode: "guard-open", Severity: opsmodel.SeverityHigh, Description: "guard interlock bypassed", IsResolved: false},
		},
		ShiftTargets: []opsmodel.ShiftTarget{
			{AssetID: "ast-grinder-5", TargetOutput: 900, Shift: "day", EffectiveDate: yesterday.AddDate(0, 0, -60)},
			{AssetID: "ast-grinder-5", TargetOutput: 1000, Shift: "day", EffectiveDate: yesterday.AddDate(0, 0, -10)},
		},
		CostCenters: []opsmodel.CostCenter{
			{ID: "cc-1", StandardHourlyRate: 240, CostPerUnit: 3.5},
		},
	}
}

func dataMap(t *testing.T, r opsmodel.ToolResult) map[string]any {
	t.Helper()
	if !r.Success {
		t.Fatalf("tool failed: %s", r.ErrorMessage)
	}
	m, ok := r.Data.(map[string]any)
	if !ok {
		t.Fatalf("tool data is %T, want map", r.Data)
	}
	return m
}

func hasCitationTable(r opsmodel.ToolResult, table string) bool {
	for _, c := range r.Citations {
		if c.SourceTable == table {
			return true
		}
	}
	return false
}

func hasCalculationCitation(r opsmodel.ToolResult) bool {
	for _, c := range r.Citations {
		if c.SourceType == opsmodel.SourceCalculation {
			return true
		}
	}
	return false
}

func TestWeightedMeanOEE(t *testing.T) {
	summaries := []opsmodel.DailySummary{
		{OEEPercentage: oeePtr(50), ActualOutput: 100},
		{OEEPercentage: oeePtr(100), ActualOutput: 300},
	}
	if got := weightedMeanOEE(summaries); got != 87.5 {
		t.Errorf("weightedMeanOEE = %v, want 87.5", got)
	}
	if weightedMeanOEE(nil) != 0 {
		t.Error("no data yields 0")
	}
}

func TestTrendDirection(t *testing.T) {
	cases := []struct {
		values []float64
		want   string
	}{
		{[]float64{60, 61, 70, 71}, "improving"},
		{[]float64{80, 81, 70, 71}, "declining"},
		{[]float64{80, 81, 80, 81}, "stable"},
		{[]float64{80, 81, 82}, "insufficient_data"},
	}
	for _, tc := range cases {
		if got := trendDirection(tc.values); got != tc.want {
			t.Errorf("trendDirection(%v) = %q, want %q", tc.values, got, tc.want)
		}
	}
}

func TestTopDowntimeReasonsDeterministicTieBreak(t *testing.T) {
	got := topDowntimeReasons(map[string]int{"b": 10, "a": 10, "c": 20}, 3)
	if got[0] != "c" || got[1] != "a" || got[2] != "b" {
		t.Errorf("topDowntimeReasons = %v, want [c a b]", got)
	}
}
