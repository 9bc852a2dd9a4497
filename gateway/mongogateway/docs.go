package mongogateway

import (
	"time"

	"github.com/plantops/opsbrief/opsmodel"
)

// Document types mirror the collection schemas the ETL pipelines land, with
// bson tags matching the field names the query filters use. Conversion to
// the opsmodel read models happens at the gateway boundary so nothing above
// it knows about bson.

type assetDoc struct {
	ID           string `bson:"_id"`
	Name         string `bson:"name"`
	SourceID     string `bson:"source_id"`
	Area         string `bson:"area"`
	CostCenterID string `bson:"cost_center_id,omitempty"`
}

func (d assetDoc) toModel() opsmodel.Asset {
	return opsmodel.Asset{ID: d.ID, Name: d.Name, SourceID: d.SourceID, Area: d.Area, CostCenterID: d.CostCenterID}
}

func assetsToModel(docs []assetDoc) []opsmodel.Asset {
	out := make([]opsmodel.Asset, len(docs))
	for i, d := range docs {
		out[i] = d.toModel()
	}
	return out
}

type summaryDoc struct {
	ID                   string         `bson:"_id"`
	AssetID              string         `bson:"asset_id"`
	ReportDate           time.Time      `bson:"report_date"`
	OEEPercentage        *float64       `bson:"oee_percentage,omitempty"`
	Availability         *float64       `bson:"availability,omitempty"`
	Performance          *float64       `bson:"performance,omitempty"`
	Quality              *float64       `bson:"quality,omitempty"`
	ActualOutput         int            `bson:"actual_output"`
	TargetOutput         int            `bson:"target_output"`
	DowntimeMinutes      int            `bson:"downtime_minutes"`
	WasteCount           int            `bson:"waste_count"`
	FinancialLossDollars float64        `bson:"financial_loss_dollars"`
	DowntimeReasons      map[string]int `bson:"downtime_reasons,omitempty"`
}

func (d summaryDoc) toModel() opsmodel.DailySummary {
	return opsmodel.DailySummary{
		ID:                   d.ID,
		AssetID:              d.AssetID,
		ReportDate:           d.ReportDate,
		OEEPercentage:        d.OEEPercentage,
		Availability:         d.Availability,
		Performance:          d.Performance,
		Quality:              d.Quality,
		ActualOutput:         d.ActualOutput,
		TargetOutput:         d.TargetOutput,
		DowntimeMinutes:      d.DowntimeMinutes,
		WasteCount:           d.WasteCount,
		FinancialLossDollars: d.FinancialLossDollars,
		DowntimeReasons:      d.DowntimeReasons,
	}
}

func summariesToModel(docs []summaryDoc) []opsmodel.DailySummary {
	out := make([]opsmodel.DailySummary, len(docs))
	for i, d := range docs {
		out[i] = d.toModel()
	}
	return out
}

type snapshotDoc struct {
	AssetID           string    `bson:"asset_id"`
	SnapshotTimestamp time.Time `bson:"snapshot_timestamp"`
	CurrentOutput     int       `bson:"current_output"`
	TargetOutput      int       `bson:"target_output"`
	OutputVariance    int       `bson:"output_variance"`
	Status            string    `bson:"status"`
}

func (d snapshotDoc) toModel() opsmodel.LiveSnapshot {
	return opsmodel.LiveSnapshot{
		AssetID:           d.AssetID,
		SnapshotTimestamp: d.SnapshotTimestamp,
		CurrentOutput:     d.CurrentOutput,
		TargetOutput:      d.TargetOutput,
		OutputVariance:    d.OutputVariance,
		Status:            opsmodel.SnapshotStatus(d.Status),
	}
}

type safetyDoc struct {
	ID             string     `bson:"_id"`
	AssetID        string     `bson:"asset_id"`
	EventTimestamp time.Time  `bson:"event_timestamp"`
	ReasonCode     string     `bson:"reason_code"`
	Severity       string     `bson:"severity"`
	Description    string     `bson:"description"`
	IsResolved     bool       `bson:"is_resolved"`
	ResolvedAt     *time.Time `bson:"resolved_at,omitempty"`
}

func (d safetyDoc) toModel() opsmodel.SafetyEvent {
	return opsmodel.SafetyEvent{
		ID:             d.ID,
		AssetID:        d.AssetID,
		EventTimestamp: d.EventTimestamp,
		ReasonCode:     d.ReasonCode,
		Severity:       opsmodel.Severity(d.Severity),
		Description:    d.Description,
		IsResolved:     d.IsResolved,
		ResolvedAt:     d.ResolvedAt,
	}
}

type targetDoc struct {
	AssetID       string    `bson:"asset_id"`
	TargetOutput  int       `bson:"target_output"`
	Shift         string    `bson:"shift"`
	EffectiveDate time.Time `bson:"effective_date"`
}

func (d targetDoc) toModel() opsmodel.ShiftTarget {
	return opsmodel.ShiftTarget{AssetID: d.AssetID, TargetOutput: d.TargetOutput, Shift: d.Shift, EffectiveDate: d.EffectiveDate}
}

type auditDoc struct {
	ID          string    `bson:"_id"`
	OccurredAt  time.Time `bson:"occurred_at"`
	Actor       string    `bson:"actor"`
	Action      string    `bson:"action"`
	SubjectType string    `bson:"subject_type"`
	SubjectID   string    `bson:"subject_id"`
	Detail      string    `bson:"detail,omitempty"`
}

func auditFromModel(e opsmodel.AuditTrailEntry) auditDoc {
	return auditDoc{
		ID:          e.ID,
		OccurredAt:  e.OccurredAt,
		Actor:       e.Actor,
		Action:      e.Action,
		SubjectType: e.SubjectType,
		SubjectID:   e.SubjectID,
		Detail:      e.Detail,
	}
}
