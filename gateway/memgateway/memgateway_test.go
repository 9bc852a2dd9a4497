package memgateway

import (
	"context"
	"testing"
	"time"

	"github.com/plantops/opsbrief/opsmodel"
)

var day5 = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func fixtureStore() Store {
	return Store{
		Assets: []opsmodel.Asset{
			{ID: "ast-1", Name: "Grinder 5", Area: "machining"},
			{ID: "ast-2", Name: "Grinder 4", Area: "machining"},
			{ID: "ast-3", Name: "Press #2", Area: "stamping"},
		},
		Summaries: []opsmodel.DailySummary{
			{ID: "sum-1", AssetID: "ast-1", ReportDate: day5, DowntimeMinutes: 30},
			{ID: "sum-2", AssetID: "ast-3", ReportDate: day5, DowntimeMinutes: 0},
		},
		Snapshots: []opsmodel.LiveSnapshot{
			{AssetID: "ast-1", SnapshotTimestamp: day5.Add(8 * time.Hour), Status: opsmodel.SnapshotIdle},
			{AssetID: "ast-1", SnapshotTimestamp: day5.Add(10 * time.Hour), Status: opsmodel.SnapshotRunning},
		},
		ShiftTargets: []opsmodel.ShiftTarget{
			{AssetID: "ast-1", TargetOutput: 900, EffectiveDate: day5.AddDate(0, 0, -20)},
			{AssetID: "ast-1", TargetOutput: 1000, EffectiveDate: day5.AddDate(0, 0, -2)},
		},
	}
}

func TestNormalizeAssetName(t *testing.T) {
	cases := map[string]string{
		"Grinder 5": "grinder 5",
		"grinder-5": "grinder 5",
		"GRINDER_5": "grinder 5",
		"Grinder#5": "grinder 5",
		"  line3  ": "line 3",
		"Mixer  12": "mixer 12",
	}
	for input, want := range cases {
		if got := normalizeAssetName(input); got != want {
			t.Errorf("normalizeAssetName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestGetAssetByNameNormalizes(t *testing.T) {
	g := New(fixtureStore())
	result, err := g.GetAssetByName(context.Background(), "press-2")
	if err != nil {
		t.Fatal(err)
	}
	asset, _ := result.Data.(*opsmodel.Asset)
	if asset == nil || asset.ID != "ast-3" {
		t.Errorf("press-2 should resolve to Press #2, got %+v", asset)
	}
}

func TestGetAssetByNameMissYieldsNoError(t *testing.T) {
	g := New(fixtureStore())
	result, err := g.GetAssetByName(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("misses must not error: %v", err)
	}
	if result.HasData() {
		t.Error("miss must report has_data=false")
	}
	if result.TableName == "" || result.SourceName == "" || result.QueryTimestamp.IsZero() {
		t.Error("every DataResult carries source metadata, even on a miss")
	}
}

func TestGetSimilarAssetsCapped(t *testing.T) {
	g := New(fixtureStore())
	result, _ := g.GetSimilarAssets(context.Background(), "grinder", 1)
	assets, _ := result.Data.([]opsmodel.Asset)
	if len(assets) != 1 {
		t.Fatalf("limit 1 must cap the result, got %d", len(assets))
	}
}

func TestGetLiveSnapshotPicksLatest(t *testing.T) {
	g := New(fixtureStore())
	result, _ := g.GetLiveSnapshot(context.Background(), "ast-1")
	snap, _ := result.Data.(*opsmodel.LiveSnapshot)
	if snap == nil || snap.Status != opsmodel.SnapshotRunning {
		t.Errorf("latest snapshot should win, got %+v", snap)
	}
}

func TestGetShiftTargetPicksLatestEffective(t *testing.T) {
	g := New(fixtureStore())
	result, _ := g.GetShiftTarget(context.Background(), "ast-1")
	target, _ := result.Data.(*opsmodel.ShiftTarget)
	if target == nil || target.TargetOutput != 1000 {
		t.Errorf("latest effective target should win, got %+v", target)
	}
}

func TestUnscopedQueriesWiden(t *testing.T) {
	g := New(fixtureStore())
	result, _ := g.GetOEE(context.Background(), "", day5, day5.AddDate(0, 0, 1))
	summaries, _ := result.Data.([]opsmodel.DailySummary)
	if len(summaries) != 2 {
		t.Errorf("empty asset id must mean plant-wide, got %d rows", len(summaries))
	}

	snaps, _ := g.GetLiveSnapshotsByArea(context.Background(), "")
	if list, _ := snaps.Data.([]opsmodel.LiveSnapshot); len(list) != 1 {
		t.Errorf("empty area must mean all areas (latest per asset), got %d", len(list))
	}
}

func TestRecordAuditAccumulates(t *testing.T) {
	g := New(Store{})
	g.RecordAudit(context.Background(), opsmodel.AuditTrailEntry{ID: "aud-1", Action: "briefing_generated"})
	if entries := g.Audit(); len(entries) != 1 || entries[0].ID != "aud-1" {
		t.Errorf("audit entries lost: %+v", entries)
	}
}
