package tools

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/plantops/opsbrief/gateway/memgateway"
	"github.com/plantops/opsbrief/opsmodel"
)

// recurringStore seeds 20 days across two assets: one healthy, one with a
// recurring "hydraulic leak" on most days and a clearly lower OEE.
func recurringStore() memgateway.Store {
	store := memgateway.Store{
		Assets: []opsmodel.Asset{
			{ID: "ast-good", Name: "Line Good", Area: "assembly"},
			{ID: "ast-bad", Name: "Line Bad", Area: "assembly"},
		},
	}
	for i := 0; i < 10; i++ {
		date := yesterday.AddDate(0, 0, -i)
		var goodReasons map[string]int
		if i < 5 {
			goodReasons = map[string]int{"hydraulic leak": 15}
		}
		store.Summaries = append(store.Summaries, opsmodel.DailySummary{
			ID: fmt.Sprintf("good-%d", i), AssetID: "ast-good", ReportDate: date,
			OEEPercentage: oeePtr(90), ActualOutput: 100, DowntimeReasons: goodReasons,
		})
		store.Summaries = append(store.Summaries, opsmodel.DailySummary{
			ID: fmt.Sprintf("bad-%d", i), AssetID: "ast-bad", ReportDate: date,
			OEEPercentage: oeePtr(55), ActualOutput: 60,
			DowntimeReasons: map[string]int{"hydraulic leak": 45},
		})
	}
	return store
}

func TestRecommendationEngineFindsPatterns(t *testing.T) {
	tool := &RecommendationEngine{GW: memgateway.New(recurringStore()), Clock: testClock}

	m := dataMap(t, tool.Run(context.Background(), map[string]any{
		"area": "assembly", "time_range": "last 15 days",
	}))

	recs, _ := m["recommendations"].([]pattern)
	if len(recs) == 0 || len(recs) > 3 {
		t.Fatalf("want 1-3 recommendations, got %d", len(recs))
	}
	kinds := map[string]bool{}
	for _, r := range recs {
		kinds[r.Kind] = true
		if r.Confidence < 0.60 {
			t.Errorf("kept pattern below confidence floor: %+v", r)
		}
		if r.HighConfidence != (r.Confidence >= 0.80) {
			t.Errorf("high_confidence flag inconsistent: %+v", r)
		}
	}
	if !kinds["recurring_downtime"] {
		t.Errorf("the daily hydraulic leak must surface as recurring downtime, kinds=%v", kinds)
	}
	if !kinds["cross_asset_underperformance"] {
		t.Errorf("ast-bad runs 17.5 points under the mean, kinds=%v", kinds)
	}
	// Ranked by estimated ROI, descending.
	for i := 1; i < len(recs); i++ {
		if recs[i].EstimatedROI > recs[i-1].EstimatedROI {
			t.Errorf("recommendations not ROI-ranked at %d", i)
		}
	}
}

func TestRecommendationEngineInsufficientData(t *testing.T) {
	store := memgateway.Store{
		Assets: []opsmodel.Asset{{ID: "ast-1", Name: "Line 1", Area: "assembly"}},
		Summaries: []opsmodel.DailySummary{
			{ID: "sum-1", AssetID: "ast-1", ReportDate: yesterday, OEEPercentage: oeePtr(70)},
		},
	}
	tool := &RecommendationEngine{GW: memgateway.New(store), Clock: testClock}
	m := dataMap(t, tool.Run(context.Background(), map[string]any{"area": "assembly", "time_range": "yesterday"}))

	if m["insufficient_data"] != true {
		t.Fatal("under 10 points must mark insufficient_data")
	}
	gaps, _ := m["data_gaps"].([]string)
	if len(gaps) == 0 || !strings.Contains(gaps[0], "1 daily summaries") {
		t.Errorf("data gaps must name the shortfall, got %v", gaps)
	}
	if recs, _ := m["recommendations"].([]pattern); len(recs) != 0 {
		t.Error("no recommendations in the insufficient envelope")
	}
}

func TestConfidenceFromFrequencyAndSample(t *testing.T) {
	daily := confidenceFromFrequencyAndSample(1.0, 20)
	rare := confidenceFromFrequencyAndSample(0.1, 20)
	if daily <= rare {
		t.Error("higher frequency must mean higher confidence")
	}
	small := confidenceFromFrequencyAndSample(1.0, 2)
	if daily <= small {
		t.Error("larger samples must mean higher confidence")
	}
	if daily > 1 {
		t.Errorf("confidence capped at 1, got %v", daily)
	}
}
