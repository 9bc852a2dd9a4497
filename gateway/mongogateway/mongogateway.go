// Package mongogateway is a reference gateway.Gateway backed by MongoDB,
// for deployments that mirror the operational store into Mongo collections
// rather than serving opsbrief out of an in-memory fixture. It assumes one
// database with collections named assets, daily_summaries, live_snapshots,
// safety_events, shift_targets, audit_trail; no cost_centers collection is
// read.
package mongogateway

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/plantops/opsbrief/errs"
	"github.com/plantops/opsbrief/gateway"
	"github.com/plantops/opsbrief/opsmodel"
)

// Gateway is a gateway.Gateway backed by a *mongo.Database.
type Gateway struct {
	db *mongo.Database
}

// New wraps an already-connected Mongo database. Callers own the client's
// lifecycle (Connect/Disconnect); Gateway never closes it.
func New(db *mongo.Database) *Gateway {
	return &Gateway{db: db}
}

var _ gateway.Gateway = (*Gateway)(nil)

func wrapErr(op string, err error) error {
	if err == nil || err == mongo.ErrNoDocuments {
		return nil
	}
	return errs.Wrap(errs.KindConnectivity, "mongogateway: "+op, err)
}

func (g *Gateway) result(data any, table, desc string, n int) opsmodel.DataResult {
	return opsmodel.DataResult{
		Data:             data,
		SourceName:       "mongogateway",
		TableName:        table,
		QueryDescription: desc,
		QueryTimestamp:   time.Now().UTC(),
		RowCount:         n,
	}
}

func (g *Gateway) GetAsset(ctx context.Context, id string) (opsmodel.DataResult, error) {
	var d assetDoc
	err := g.db.Collection("assets").FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return g.result(nil, "assets", "asset by id", 0), nil
	}
	if err != nil {
		return opsmodel.DataResult{}, wrapErr("GetAsset", err)
	}
	a := d.toModel()
	return g.result(&a, "assets", "asset by id", 1), nil
}

func (g *Gateway) GetAssetByName(ctx context.Context, name string) (opsmodel.DataResult, error) {
	var d assetDoc
	err := g.db.Collection("assets").FindOne(ctx, bson.M{"name": name}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return g.result(nil, "assets", "asset by name", 0), nil
	}
	if err != nil {
		return opsmodel.DataResult{}, wrapErr("GetAssetByName", err)
	}
	a := d.toModel()
	return g.result(&a, "assets", "asset by name", 1), nil
}

func (g *Gateway) GetSimilarAssets(ctx context.Context, name string, limit int) (opsmodel.DataResult, error) {
	if limit <= 0 {
		limit = 5
	}
	cur, err := g.db.Collection("assets").Find(ctx,
		bson.M{"name": bson.M{"$regex": name, "$options": "i"}},
		options.Find().SetLimit(int64(limit)))
	if err != nil {
		return opsmodel.DataResult{}, wrapErr("GetSimilarAssets", err)
	}
	defer cur.Close(ctx)
	var docs []assetDoc
	if err := cur.All(ctx, &docs); err != nil {
		return opsmodel.DataResult{}, wrapErr("GetSimilarAssets", err)
	}
	out := assetsToModel(docs)
	return g.result(out, "assets", "similar assets", len(out)), nil
}

func (g *Gateway) GetAssetsByArea(ctx context.Context, area string) (opsmodel.DataResult, error) {
	cur, err := g.db.Collection("assets").Find(ctx, bson.M{"area": area})
	if err != nil {
		return opsmodel.DataResult{}, wrapErr("GetAssetsByArea", err)
	}
	defer cur.Close(ctx)
	var docs []assetDoc
	if err := cur.All(ctx, &docs); err != nil {
		return opsmodel.DataResult{}, wrapErr("GetAssetsByArea", err)
	}
	out := assetsToModel(docs)
	return g.result(out, "assets", "assets by area", len(out)), nil
}

func (g *Gateway) GetAllAssets(ctx context.Context) (opsmodel.DataResult, error) {
	cur, err := g.db.Collection("assets").Find(ctx, bson.M{})
	if err != nil {
		return opsmodel.DataResult{}, wrapErr("GetAllAssets", err)
	}
	defer cur.Close(ctx)
	var docs []assetDoc
	if err := cur.All(ctx, &docs); err != nil {
		return opsmodel.DataResult{}, wrapErr("GetAllAssets", err)
	}
	out := assetsToModel(docs)
	return g.result(out, "assets", "all assets", len(out)), nil
}

func dateRangeFilter(field string, start, end time.Time) bson.M {
	return bson.M{field: bson.M{"$gte": start, "$lt": end}}
}

func (g *Gateway) summaries(ctx context.Context, filter bson.M) ([]opsmodel.DailySummary, error) {
	cur, err := g.db.Collection("daily_summaries").Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var docs []summaryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return summariesToModel(docs), nil
}

func (g *Gateway) GetOEE(ctx context.Context, assetID string, start, end time.Time) (opsmodel.DataResult, error) {
	filter := dateRangeFilter("report_date", start, end)
	if assetID != "" {
		filter["asset_id"] = assetID
	}
	out, err := g.summaries(ctx, filter)
	if err != nil {
		return opsmodel.DataResult{}, wrapErr("GetOEE", err)
	}
	return g.result(out, "daily_summaries", "oee by asset", len(out)), nil
}

func (g *Gateway) assetIDsInArea(ctx context.Context, area string) ([]string, error) {
	cur, err := g.db.Collection("assets").Find(ctx, bson.M{"area": area}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

func (g *Gateway) GetOEEByArea(ctx context.Context, area string, start, end time.Time) (opsmodel.DataResult, error) {
	filter := dateRangeFilter("report_date", start, end)
	if area != "" {
		ids, err := g.assetIDsInArea(ctx, area)
		if err != nil {
			return opsmodel.DataResult{}, wrapErr("GetOEEByArea", err)
		}
		filter["asset_id"] = bson.M{"$in": ids}
	}
	out, err := g.summaries(ctx, filter)
	if err != nil {
		return opsmodel.DataResult{}, wrapErr("GetOEEByArea", err)
	}
	return g.result(out, "daily_summaries", "oee by area", len(out)), nil
}

func (g *Gateway) GetDowntime(ctx context.Context, assetID string, start, end time.Time) (opsmodel.DataResult, error) {
	filter := dateRangeFilter("report_date", start, end)
	if assetID != "" {
		filter["asset_id"] = assetID
	}
	out, err := g.summaries(ctx, filter)
	if err != nil {
		return opsmodel.DataResult{}, wrapErr("GetDowntime", err)
	}
	return g.result(out, "daily_summaries", "downtime by asset", len(out)), nil
}

func (g *Gateway) GetLiveSnapshot(ctx context.Context, assetID string) (opsmodel.DataResult, error) {
	var d snapshotDoc
	opts := options.FindOne().SetSort(bson.M{"snapshot_timestamp": -1})
	err := g.db.Collection("live_snapshots").FindOne(ctx, bson.M{"asset_id": assetID}, opts).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return g.result(nil, "live_snapshots", "live snapshot", 0), nil
	}
	if err != nil {
		return opsmodel.DataResult{}, wrapErr("GetLiveSnapshot", err)
	}
	s := d.toModel()
	return g.result(&s, "live_snapshots", "live snapshot", 1), nil
}

func (g *Gateway) GetLiveSnapshotsByArea(ctx context.Context, area string) (opsmodel.DataResult, error) {
	match := bson.M{}
	if area != "" {
		ids, err := g.assetIDsInArea(ctx, area)
		if err != nil {
			return opsmodel.DataResult{}, wrapErr("GetLiveSnapshotsByArea", err)
		}
		match["asset_id"] = bson.M{"$in": ids}
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$sort", Value: bson.M{"snapshot_timestamp": -1}}},
		{{Key: "$group", Value: bson.M{"_id": "$asset_id", "doc": bson.M{"$first": "$$ROOT"}}}},
	}
	cur, err := g.db.Collection("live_snapshots").Aggregate(ctx, pipeline)
	if err != nil {
		return opsmodel.DataResult{}, wrapErr("GetLiveSnapshotsByArea", err)
	}
	defer cur.Close(ctx)
	var rows []struct {
		Doc snapshotDoc `bson:"doc"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return opsmodel.DataResult{}, wrapErr("GetLiveSnapshotsByArea", err)
	}
	out := make([]opsmodel.LiveSnapshot, len(rows))
	for i, r := range rows {
		out[i] = r.Doc.toModel()
	}
	return g.result(out, "live_snapshots", "live snapshots by area", len(out)), nil
}

func (g *Gateway) GetShiftTarget(ctx context.Context, assetID string) (opsmodel.DataResult, error) {
	var d targetDoc
	opts := options.FindOne().SetSort(bson.M{"effective_date": -1})
	err := g.db.Collection("shift_targets").FindOne(ctx, bson.M{"asset_id": assetID}, opts).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return g.result(nil, "shift_targets", "shift target", 0), nil
	}
	if err != nil {
		return opsmodel.DataResult{}, wrapErr("GetShiftTarget", err)
	}
	t := d.toModel()
	return g.result(&t, "shift_targets", "shift target", 1), nil
}

func (g *Gateway) GetSafetyEvents(ctx context.Context, q gateway.SafetyEventsQuery) (opsmodel.DataResult, error) {
	filter := bson.M{}
	if q.AssetID != "" {
		filter["asset_id"] = q.AssetID
	}
	if q.Area != "" {
		ids, err := g.assetIDsInArea(ctx, q.Area)
		if err != nil {
			return opsmodel.DataResult{}, wrapErr("GetSafetyEvents", err)
		}
		filter["asset_id"] = bson.M{"$in": ids}
	}
	if q.Severity != "" {
		filter["severity"] = q.Severity
	}
	ts := bson.M{}
	if !q.Start.IsZero() {
		ts["$gte"] = q.Start
	}
	if !q.End.IsZero() {
		ts["$lt"] = q.End
	}
	if len(ts) > 0 {
		filter["event_timestamp"] = ts
	}
	if !q.IncludeResolved {
		filter["is_resolved"] = false
	}
	cur, err := g.db.Collection("safety_events").Find(ctx, filter)
	if err != nil {
		return opsmodel.DataResult{}, wrapErr("GetSafetyEvents", err)
	}
	defer cur.Close(ctx)
	var docs []safetyDoc
	if err := cur.All(ctx, &docs); err != nil {
		return opsmodel.DataResult{}, wrapErr("GetSafetyEvents", err)
	}
	out := make([]opsmodel.SafetyEvent, len(docs))
	for i, d := range docs {
		out[i] = d.toModel()
	}
	return g.result(out, "safety_events", "safety events", len(out)), nil
}

func (g *Gateway) scopedFilter(ctx context.Context, q gateway.ScopedDateQuery) (bson.M, error) {
	filter := bson.M{}
	if !q.Start.IsZero() && !q.End.IsZero() {
		filter["report_date"] = bson.M{"$gte": q.Start, "$lt": q.End}
	}
	switch {
	case q.AssetID != "":
		filter["asset_id"] = q.AssetID
	case q.Area != "":
		ids, err := g.assetIDsInArea(ctx, q.Area)
		if err != nil {
			return nil, err
		}
		filter["asset_id"] = bson.M{"$in": ids}
	}
	return filter, nil
}

func (g *Gateway) GetFinancialMetrics(ctx context.Context, q gateway.ScopedDateQuery) (opsmodel.DataResult, error) {
	filter, err := g.scopedFilter(ctx, q)
	if err != nil {
		return opsmodel.DataResult{}, wrapErr("GetFinancialMetrics", err)
	}
	out, err := g.summaries(ctx, filter)
	if err != nil {
		return opsmodel.DataResult{}, wrapErr("GetFinancialMetrics", err)
	}
	return g.result(out, "daily_summaries", "financial metrics", len(out)), nil
}

func (g *Gateway) GetCostOfLoss(ctx context.Context, q gateway.ScopedDateQuery) (opsmodel.DataResult, error) {
	filter, err := g.scopedFilter(ctx, q)
	if err != nil {
		return opsmodel.DataResult{}, wrapErr("GetCostOfLoss", err)
	}
	cur, err := g.db.Collection("daily_summaries").Find(ctx, filter,
		options.Find().SetSort(bson.M{"financial_loss_dollars": -1}))
	if err != nil {
		return opsmodel.DataResult{}, wrapErr("GetCostOfLoss", err)
	}
	defer cur.Close(ctx)
	var docs []summaryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return opsmodel.DataResult{}, wrapErr("GetCostOfLoss", err)
	}
	out := summariesToModel(docs)
	return g.result(out, "daily_summaries", "cost of loss ranking", len(out)), nil
}

func (g *Gateway) GetTrendData(ctx context.Context, q gateway.TrendQuery) (opsmodel.DataResult, error) {
	filter, err := g.scopedFilter(ctx, gateway.ScopedDateQuery{Start: q.Start, End: q.End, AssetID: q.AssetID, Area: q.Area})
	if err != nil {
		return opsmodel.DataResult{}, wrapErr("GetTrendData", err)
	}
	rows, err := g.summaries(ctx, filter)
	if err != nil {
		return opsmodel.DataResult{}, wrapErr("GetTrendData", err)
	}
	out := make([]opsmodel.TrendPoint, 0, len(rows))
	for _, s := range rows {
		out = append(out, opsmodel.TrendPoint{
			Date:            s.ReportDate,
			Value:           trendValue(q.Metric, s),
			DowntimeReasons: s.DowntimeReasons,
		})
	}
	return g.result(out, "daily_summaries", "trend data", len(out)), nil
}

func trendValue(metric string, s opsmodel.DailySummary) float64 {
	switch metric {
	case "financial_loss":
		return s.FinancialLossDollars
	case "downtime_minutes":
		return float64(s.DowntimeMinutes)
	default:
		if s.OEEPercentage != nil {
			return *s.OEEPercentage
		}
	}
	return 0
}

func (g *Gateway) RecordAudit(ctx context.Context, entry opsmodel.AuditTrailEntry) {
	_, _ = g.db.Collection("audit_trail").InsertOne(ctx, auditFromModel(entry))
}
