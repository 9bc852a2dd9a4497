package mongogateway

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/plantops/opsbrief/gateway"
	"github.com/plantops/opsbrief/opsmodel"
)

var (
	testMongoClient    *mongo.Client
	testMongoContainer testcontainers.Container
	skipMongoTests     bool
	mongoSetupDone     bool
)

func setupMongoDB(t *testing.T) {
	t.Helper()
	if mongoSetupDone {
		return
	}
	mongoSetupDone = true
	ctx := context.Background()

	var containerErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				containerErr = fmt.Errorf("docker not available: %v", r)
			}
		}()
		req := testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections"),
			Tmpfs:        map[string]string{"/data/db": "rw"},
		}
		testMongoContainer, containerErr = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
	}()
	if containerErr != nil {
		skipMongoTests = true
		return
	}

	host, err := testMongoContainer.Host(ctx)
	if err != nil {
		skipMongoTests = true
		return
	}
	port, err := testMongoContainer.MappedPort(ctx, "27017")
	if err != nil {
		skipMongoTests = true
		return
	}

	uri := fmt.Sprintf("mongodb://%s:%s", host, port.Port())
	testMongoClient, err = mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		skipMongoTests = true
		return
	}
	if err := testMongoClient.Ping(ctx, nil); err != nil {
		skipMongoTests = true
	}
}

func integrationGateway(t *testing.T) *Gateway {
	t.Helper()
	if testing.Short() {
		t.Skip("short mode, skipping MongoDB integration test")
	}
	setupMongoDB(t)
	if skipMongoTests {
		t.Skip("Docker not available, skipping MongoDB integration test")
	}
	db := testMongoClient.Database("opsbrief_test_" + t.Name())
	if err := db.Drop(context.Background()); err != nil {
		t.Fatalf("drop database: %v", err)
	}
	return New(db)
}

func seedIntegrationData(t *testing.T, g *Gateway) time.Time {
	t.Helper()
	ctx := context.Background()
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	if _, err := g.db.Collection("assets").InsertMany(ctx, []any{
		bson.M{"_id": "ast-1", "name": "Grinder 5", "source_id": "G5", "area": "machining"},
		bson.M{"_id": "ast-2", "name": "Press 2", "source_id": "P2", "area": "stamping"},
	}); err != nil {
		t.Fatalf("seed assets: %v", err)
	}
	if _, err := g.db.Collection("daily_summaries").InsertMany(ctx, []any{
		bson.M{"_id": "sum-1", "asset_id": "ast-1", "report_date": day, "oee_percentage": 62.5, "actual_output": 820, "target_output": 1000, "downtime_minutes": 47, "waste_count": 12, "financial_loss_dollars": 1840.0},
		bson.M{"_id": "sum-2", "asset_id": "ast-2", "report_date": day, "oee_percentage": 88.0, "actual_output": 950, "target_output": 1000, "downtime_minutes": 5, "waste_count": 1, "financial_loss_dollars": 90.0},
	}); err != nil {
		t.Fatalf("seed summaries: %v", err)
	}
	if _, err := g.db.Collection("live_snapshots").InsertMany(ctx, []any{
		bson.M{"asset_id": "ast-1", "snapshot_timestamp": day.Add(8 * time.Hour), "current_output": 300, "target_output": 400, "output_variance": -100, "status": "behind"},
		bson.M{"asset_id": "ast-1", "snapshot_timestamp": day.Add(10 * time.Hour), "current_output": 410, "target_output": 500, "output_variance": -90, "status": "running"},
	}); err != nil {
		t.Fatalf("seed snapshots: %v", err)
	}
	if _, err := g.db.Collection("safety_events").InsertOne(ctx, bson.M{
		"_id": "se-1", "asset_id": "ast-1", "event_timestamp": day.Add(9 * time.Hour),
		"reason_code": "guard-open", "severity": "high", "description": "interlock bypass", "is_resolved": false,
	}); err != nil {
		t.Fatalf("seed safety events: %v", err)
	}
	if _, err := g.db.Collection("shift_targets").InsertMany(ctx, []any{
		bson.M{"asset_id": "ast-1", "target_output": 900, "shift": "day", "effective_date": day.AddDate(0, 0, -20)},
		bson.M{"asset_id": "ast-1", "target_output": 1000, "shift": "day", "effective_date": day.AddDate(0, 0, -2)},
	}); err != nil {
		t.Fatalf("seed shift targets: %v", err)
	}
	return day
}

func TestMongoGatewayRoundTrip(t *testing.T) {
	g := integrationGateway(t)
	day := seedIntegrationData(t, g)
	ctx := context.Background()

	assetResult, err := g.GetAsset(ctx, "ast-1")
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	asset, _ := assetResult.Data.(*opsmodel.Asset)
	if asset == nil || asset.Name != "Grinder 5" || asset.Area != "machining" {
		t.Errorf("asset round trip lost fields: %+v", asset)
	}

	oeeResult, err := g.GetOEEByArea(ctx, "machining", day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("GetOEEByArea: %v", err)
	}
	summaries, _ := oeeResult.Data.([]opsmodel.DailySummary)
	if len(summaries) != 1 || summaries[0].DowntimeMinutes != 47 {
		t.Errorf("machining summaries = %+v", summaries)
	}
	if summaries[0].OEEPercentage == nil || *summaries[0].OEEPercentage != 62.5 {
		t.Errorf("oee lost in round trip: %+v", summaries[0])
	}

	snapResult, err := g.GetLiveSnapshot(ctx, "ast-1")
	if err != nil {
		t.Fatalf("GetLiveSnapshot: %v", err)
	}
	snap, _ := snapResult.Data.(*opsmodel.LiveSnapshot)
	if snap == nil || snap.Status != opsmodel.SnapshotRunning {
		t.Errorf("latest snapshot should win, got %+v", snap)
	}

	targetResult, err := g.GetShiftTarget(ctx, "ast-1")
	if err != nil {
		t.Fatalf("GetShiftTarget: %v", err)
	}
	target, _ := targetResult.Data.(*opsmodel.ShiftTarget)
	if target == nil || target.TargetOutput != 1000 {
		t.Errorf("latest effective target should win, got %+v", target)
	}
}

func TestMongoGatewaySafetyEventsOpenAbove(t *testing.T) {
	g := integrationGateway(t)
	day := seedIntegrationData(t, g)
	ctx := context.Background()

	// Start-only query must match the event stamped later the same day.
	result, err := g.GetSafetyEvents(ctx, gateway.SafetyEventsQuery{Start: day})
	if err != nil {
		t.Fatalf("GetSafetyEvents: %v", err)
	}
	events, _ := result.Data.([]opsmodel.SafetyEvent)
	if len(events) != 1 || events[0].Severity != opsmodel.SeverityHigh {
		t.Errorf("open-above safety query = %+v", events)
	}

	// A bounded window that ends before the event excludes it.
	bounded, err := g.GetSafetyEvents(ctx, gateway.SafetyEventsQuery{Start: day, End: day.Add(time.Hour)})
	if err != nil {
		t.Fatalf("GetSafetyEvents bounded: %v", err)
	}
	if boundedEvents, _ := bounded.Data.([]opsmodel.SafetyEvent); len(boundedEvents) != 0 {
		t.Errorf("bounded query should exclude the 09:00 event, got %+v", boundedEvents)
	}
}

func TestMongoGatewayEmptyResultIsNotAnError(t *testing.T) {
	g := integrationGateway(t)
	ctx := context.Background()

	result, err := g.GetAsset(ctx, "missing")
	if err != nil {
		t.Fatalf("misses must not error: %v", err)
	}
	if result.HasData() {
		t.Error("miss must report has_data=false")
	}
}

func TestMongoGatewayRecordAudit(t *testing.T) {
	g := integrationGateway(t)
	ctx := context.Background()

	g.RecordAudit(ctx, opsmodel.AuditTrailEntry{
		ID: "aud-1", OccurredAt: time.Now().UTC(), Actor: "user-1",
		Action: "briefing_generated", SubjectType: "briefing", SubjectID: "plant",
	})
	n, err := g.db.Collection("audit_trail").CountDocuments(ctx, bson.M{"actor": "user-1"})
	if err != nil {
		t.Fatalf("count audit: %v", err)
	}
	if n != 1 {
		t.Errorf("audit entries = %d, want 1", n)
	}
}
