package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/plantops/opsbrief/gateway/memgateway"
)

func TestComparativeAnalysisDeclaresWinner(t *testing.T) {
	tool := &ComparativeAnalysis{GW: memgateway.New(plantStore()), Clock: testClock}

	m := dataMap(t, tool.Run(context.Background(), map[string]any{
		"subjects":   []any{"ast-grinder-5", "ast-grinder-4"},
		"time_range": "yesterday",
	}))

	scores, _ := m["scores"].([]subjectScore)
	if len(scores) != 2 {
		t.Fatalf("want 2 scored subjects, got %d", len(scores))
	}
	if m["winner"] != "ast-grinder-4" {
		t.Errorf("winner = %v, want ast-grinder-4 (88%% OEE vs 62.5%%)", m["winner"])
	}
	gap, _ := m["gap"].(float64)
	if gap < 5 {
		t.Errorf("declared winner requires gap >= 5, got %v", gap)
	}
}

func TestComparativeAnalysisNoWinnerBelowGap(t *testing.T) {
	store := plantStore()
	// Make the two grinders nearly identical.
	store.Summaries[0].OEEPercentage = oeePtr(87)
	store.Summaries[0].DowntimeMinutes = 5
	store.Summaries[0].WasteCount = 1
	store.Summaries[0].ActualOutput = 945
	tool := &ComparativeAnalysis{GW: memgateway.New(store), Clock: testClock}

	m := dataMap(t, tool.Run(context.Background(), map[string]any{
		"subjects":   []any{"ast-grinder-5", "ast-grinder-4"},
		"time_range": "yesterday",
	}))
	if m["winner"] != nil {
		t.Errorf("near-tied subjects must not declare a winner, got %v", m["winner"])
	}
	msg, _ := m["message"].(string)
	if !strings.Contains(msg, "significance threshold") {
		t.Errorf("message = %q", msg)
	}
}

func TestComparativeAnalysisExpandsAllPattern(t *testing.T) {
	tool := &ComparativeAnalysis{GW: memgateway.New(plantStore()), Clock: testClock}
	m := dataMap(t, tool.Run(context.Background(), map[string]any{
		"subjects":   []any{"all machining"},
		"time_range": "yesterday",
	}))
	scores, _ := m["scores"].([]subjectScore)
	if len(scores) != 2 {
		t.Errorf("\"all machining\" should expand to both grinders, got %v", scores)
	}
}

func TestComparativeAnalysisRejectsSingleSubject(t *testing.T) {
	tool := &ComparativeAnalysis{GW: memgateway.New(plantStore()), Clock: testClock}
	r := tool.Run(context.Background(), map[string]any{"subjects": []any{"ast-grinder-5"}})
	if r.Success {
		t.Error("a single subject cannot be compared")
	}
}
