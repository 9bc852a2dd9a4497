// Package gateway defines the Data Source Gateway: the only component in
// opsbrief that talks to the operational store. It exposes a narrow,
// read-only set of typed queries over operational entities, each returning a
// uniformly wrapped opsmodel.DataResult. Concrete stores live in
// gateway/memgateway (an in-memory fixture used by tests and capability-tool
// development) and gateway/mongogateway (a reference read-only adapter).
package gateway

import (
	"context"
	"time"

	"github.com/plantops/opsbrief/opsmodel"
)

// Gateway is the read-only query surface every capability tool depends on.
// Every operation is idempotent and safe to retry; empty result sets yield
// a DataResult with no error, never a sentinel error value. An empty asset
// id or area on a scoped query widens it to plant-wide rather than
// selecting nothing.
type Gateway interface {
	GetAsset(ctx context.Context, id string) (opsmodel.DataResult, error)
	GetAssetByName(ctx context.Context, name string) (opsmodel.DataResult, error)
	GetSimilarAssets(ctx context.Context, name string, limit int) (opsmodel.DataResult, error)
	GetAssetsByArea(ctx context.Context, area string) (opsmodel.DataResult, error)
	GetAllAssets(ctx context.Context) (opsmodel.DataResult, error)

	GetOEE(ctx context.Context, assetID string, start, end time.Time) (opsmodel.DataResult, error)
	GetOEEByArea(ctx context.Context, area string, start, end time.Time) (opsmodel.DataResult, error)
	GetDowntime(ctx context.Context, assetID string, start, end time.Time) (opsmodel.DataResult, error)

	GetLiveSnapshot(ctx context.Context, assetID string) (opsmodel.DataResult, error)
	GetLiveSnapshotsByArea(ctx context.Context, area string) (opsmodel.DataResult, error)
	GetShiftTarget(ctx context.Context, assetID string) (opsmodel.DataResult, error)

	GetSafetyEvents(ctx context.Context, q SafetyEventsQuery) (opsmodel.DataResult, error)

	GetFinancialMetrics(ctx context.Context, q ScopedDateQuery) (opsmodel.DataResult, error)
	GetCostOfLoss(ctx context.Context, q ScopedDateQuery) (opsmodel.DataResult, error)
	GetTrendData(ctx context.Context, q TrendQuery) (opsmodel.DataResult, error)

	// RecordAudit is a best-effort hook for recording who asked what and
	// which briefing was generated. The core never reads this back, and
	// implementations drop write failures silently. See opsmodel.AuditTrailEntry.
	RecordAudit(ctx context.Context, entry opsmodel.AuditTrailEntry)
}

// SafetyEventsQuery parameterizes GetSafetyEvents. AssetID, Area, and
// Severity are optional filters; IncludeResolved defaults to false.
type SafetyEventsQuery struct {
	AssetID         string
	Start           time.Time
	End             time.Time
	IncludeResolved bool
	Area            string
	Severity        opsmodel.Severity
}

// ScopedDateQuery parameterizes financial/cost-of-loss queries, optionally
// scoped to a single asset or a single area (mutually exclusive; AssetID
// wins if both are set).
type ScopedDateQuery struct {
	Start   time.Time
	End     time.Time
	AssetID string
	Area    string
}

// TrendQuery parameterizes GetTrendData.
type TrendQuery struct {
	Start   time.Time
	End     time.Time
	Metric  string
	AssetID string
	Area    string
}
