// Package opsmodel defines the logical read-model entities shared across the
// gateway, capability tools, action engine, briefing orchestrator, and
// grounding validator. Persistence of these entities is owned by external
// systems; opsbrief only holds them as immutable, in-memory values for the
// lifetime of a single call.
package opsmodel

import "time"

// Asset identifies a production resource. Assets are created and mutated
// only by external ETL; opsbrief treats them as immutable within a query.
type Asset struct {
	ID           string
	Name         string
	SourceID     string
	Area         string
	CostCenterID string
}

// DailySummary is a per-asset, per-date aggregated performance record.
type DailySummary struct {
	ID                   string
	AssetID              string
	ReportDate           time.Time
	OEEPercentage        *float64
	Availability         *float64
	Performance          *float64
	Quality              *float64
	ActualOutput         int
	TargetOutput         int
	DowntimeMinutes      int
	WasteCount           int
	FinancialLossDollars float64
	DowntimeReasons      map[string]int
}

// SnapshotStatus enumerates the derived state of a LiveSnapshot.
type SnapshotStatus string

const (
	SnapshotRunning  SnapshotStatus = "running"
	SnapshotAhead    SnapshotStatus = "ahead"
	SnapshotBehind   SnapshotStatus = "behind"
	SnapshotOnTarget SnapshotStatus = "on_target"
	SnapshotIdle     SnapshotStatus = "idle"
	SnapshotDown     SnapshotStatus = "down"
	SnapshotUnknown  SnapshotStatus = "unknown"
)

// StaleAfter is the freshness threshold past which a LiveSnapshot is stale.
const StaleAfter = 30 * time.Minute

// LiveSnapshot is the most recent production snapshot for an asset.
type LiveSnapshot struct {
	AssetID           string
	SnapshotTimestamp time.Time
	CurrentOutput     int
	TargetOutput      int
	OutputVariance    int
	Status            SnapshotStatus
}

// IsStale reports whether the snapshot is older than StaleAfter relative to now.
func (s LiveSnapshot) IsStale(now time.Time) bool {
	return now.Sub(s.SnapshotTimestamp) > StaleAfter
}

// Severity enumerates SafetyEvent severities, ordered most to least severe.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// SafetyEvent is an operational safety incident.
type SafetyEvent struct {
	ID             string
	AssetID        string
	EventTimestamp time.Time
	ReasonCode     string
	Severity       Severity
	Description    string
	IsResolved     bool
	ResolvedAt     *time.Time
}

// Active reports whether the event is still unresolved.
func (e SafetyEvent) Active() bool { return !e.IsResolved }

// ShiftTarget is the effective production target for an asset.
type ShiftTarget struct {
	AssetID       string
	TargetOutput  int
	Shift         string
	EffectiveDate time.Time
}

// CostCenter carries per-asset financial rates.
type CostCenter struct {
	ID                 string
	StandardHourlyRate float64
	CostPerUnit        float64
}

// DataResult is the uniform read envelope returned by the Gateway. Data is
// either a single *T, a []T, or nil; callers type-assert based on the
// operation they invoked.
type DataResult struct {
	Data             any
	SourceName       string
	TableName        string
	QueryDescription string
	QueryTimestamp   time.Time
	RowCount         int
}

// HasData reports whether Data carries a non-nil, non-empty payload.
func (r DataResult) HasData() bool {
	if r.Data == nil {
		return false
	}
	switch v := r.Data.(type) {
	case []Asset:
		return len(v) > 0
	case []DailySummary:
		return len(v) > 0
	case []SafetyEvent:
		return len(v) > 0
	case []LiveSnapshot:
		return len(v) > 0
	case []TrendPoint:
		return len(v) > 0
	default:
		return true
	}
}

// SourceType enumerates where a Citation's evidence originated.
type SourceType string

const (
	SourceDatabase    SourceType = "database"
	SourceMemory      SourceType = "memory"
	SourceCalculation SourceType = "calculation"
)

// Citation is a provenance record tied to a produced claim.
type Citation struct {
	SourceType  SourceType
	SourceTable string
	RecordID    string
	MemoryID    string
	AssetID     string
	Timestamp   *time.Time
	Excerpt     string
	Confidence  float64
	DisplayText string
	ClaimText   string
}

// ToolMetadata carries the free-form bookkeeping every ToolResult exposes.
type ToolMetadata struct {
	CacheTier         string
	CachedAt          *time.Time
	TTLSeconds        int
	FollowUpQuestions []string
	QueryTimestamp    time.Time
	Extra             map[string]any
}

// ToolResult is what any capability tool returns.
type ToolResult struct {
	Success      bool
	Data         any
	Citations    []Citation
	ErrorMessage string
	Metadata     ToolMetadata
}

// PriorityLevel enumerates ActionItem urgency tiers.
type PriorityLevel string

const (
	PriorityCritical PriorityLevel = "critical"
	PriorityHigh     PriorityLevel = "high"
	PriorityMedium   PriorityLevel = "medium"
	PriorityLow      PriorityLevel = "low"
)

// ActionCategory enumerates the three action-list tiers, in priority order.
type ActionCategory string

const (
	CategorySafety    ActionCategory = "safety"
	CategoryOEE       ActionCategory = "oee"
	CategoryFinancial ActionCategory = "financial"
)

// EvidenceRef points into a single source row backing part of an ActionItem.
type EvidenceRef struct {
	SourceTable string
	RecordID    string
	MetricName  string
	MetricValue string
	Context     string
}

// ActionItem is one row of the daily action list.
type ActionItem struct {
	ID                 string
	AssetID            string
	AssetName          string
	PriorityLevel      PriorityLevel
	Category           ActionCategory
	PrimaryMetricValue string
	RecommendationText string
	EvidenceSummary    string
	EvidenceRefs       []EvidenceRef
	CreatedAt          time.Time
}

// ClaimType enumerates the rhetorical kind of a grounding Claim.
type ClaimType string

const (
	ClaimFactual        ClaimType = "factual"
	ClaimRecommendation ClaimType = "recommendation"
	ClaimInference      ClaimType = "inference"
	ClaimHistorical     ClaimType = "historical"
)

// Claim is one decomposed assertion extracted from generated prose.
type Claim struct {
	Text              string
	Type              ClaimType
	RequiresGrounding bool
	EntityMentions    []string
	MetricMentions    []float64
	TemporalReference string
}

// GroundingResult is the per-claim outcome of validation.
type GroundingResult struct {
	ClaimText           string
	IsGrounded          bool
	Confidence          float64
	SupportingCitations []Citation
	FallbackText        string
	ValidationTimeMS    int64
}

// CitedResponse is the final output of the grounding validator.
type CitedResponse struct {
	ResponseText     string
	Citations        []Citation
	Claims           []Claim
	GroundingScore   float64
	UngroundedClaims []string
	Meta             map[string]any
}

// TrendPoint is one sample of a time series returned by GetTrendData.
type TrendPoint struct {
	Date            time.Time
	Value           float64
	DowntimeReasons map[string]int
	AssetName       string
}

// AuditTrailEntry records a question asked or briefing generated, for
// callers that want to keep a record of who asked what. opsbrief hands
// entries to gateway.Gateway.RecordAudit and never reads them back; the
// Mongo gateway stores them in the audit_trail collection and the in-memory
// gateway keeps them in memory.
type AuditTrailEntry struct {
	ID          string
	OccurredAt  time.Time
	Actor       string
	Action      string
	SubjectType string
	SubjectID   string
	Detail      string
}
