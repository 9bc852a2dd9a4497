package tools

import (
	"context"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/plantops/opsbrief/gateway"
	"github.com/plantops/opsbrief/opsmodel"
	"github.com/plantops/opsbrief/timerange"
	"github.com/plantops/opsbrief/tooling"
)

// ComparativeAnalysis scores 2-10 subjects (assets or areas) on a weighted
// composite and declares a winner when the gap is wide enough.
type ComparativeAnalysis struct {
	GW     gateway.Gateway
	Clock  clock
	schema *jsonschema.Schema
}

var comparativeAnalysisSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"subjects":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "minItems": 1},
		"time_range": map[string]any{"type": "string"},
	},
	"required": []any{"subjects"},
}

func (t *ComparativeAnalysis) Name() string { return "comparative_analysis" }
func (t *ComparativeAnalysis) Description() string {
	return "Score and rank 2-10 assets or areas on a weighted performance composite."
}

func (t *ComparativeAnalysis) CitationsRequired() bool { return true }

func (t *ComparativeAnalysis) ArgsSchema() *jsonschema.Schema {
	if t.schema == nil {
		t.schema = tooling.MustCompileSchema("comparative_analysis.json", comparativeAnalysisSchema)
	}
	return t.schema
}

type subjectScore struct {
	Subject           string  `json:"subject"`
	Score             float64 `json:"score"`
	OEEComponent      float64 `json:"oee_component"`
	OutputComponent   float64 `json:"output_component"`
	DowntimeComponent float64 `json:"downtime_component"`
	WasteComponent    float64 `json:"waste_component"`
}

func clamp0to100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (t *ComparativeAnalysis) expandSubjects(ctx context.Context, raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if strings.HasPrefix(strings.ToLower(s), "all ") {
			pattern := strings.TrimSpace(s[4:])
			assetsResult, err := t.GW.GetAssetsByArea(ctx, pattern)
			if err == nil && assetsResult.HasData() {
				for _, a := range assetsData(assetsResult) {
					out = append(out, a.ID)
				}
				continue
			}
		}
		out = append(out, s)
	}
	if len(out) > 10 {
		out = out[:10]
	}
	return out
}

// summariesFor treats subject as an asset id first, falling back to an area
// scan if no single asset matches; this lets callers pass either kind of
// subject without declaring which.
func (t *ComparativeAnalysis) summariesFor(ctx context.Context, subject string, rng timerange.Range) ([]opsmodel.DailySummary, opsmodel.DataResult, error) {
	assetResult, err := t.GW.GetAsset(ctx, subject)
	if err == nil {
		if _, ok := assetData(assetResult); ok {
			start, end := rangeBounds(rng)
			result, err := t.GW.GetOEE(ctx, subject, start, end)
			return summariesData(result), result, err
		}
	}
	start, end := rangeBounds(rng)
	result, err := t.GW.GetOEEByArea(ctx, subject, start, end)
	return summariesData(result), result, err
}

func (t *ComparativeAnalysis) scoreSubject(ctx context.Context, subject string, rng timerange.Range) (subjectScore, opsmodel.DataResult, error) {
	summaries, result, err := t.summariesFor(ctx, subject, rng)
	if err != nil {
		return subjectScore{}, result, err
	}
	oeeComponent := clamp0to100(meanOEE(summaries))

	totalActual, totalTarget := 0, 0
	totalDowntime, totalWaste := 0, 0
	for _, s := range summaries {
		totalActual += s.ActualOutput
		totalTarget += s.TargetOutput
		totalDowntime += s.DowntimeMinutes
		totalWaste += s.WasteCount
	}
	var outputPct float64
	if totalTarget > 0 {
		outputPct = clamp0to100(float64(totalActual) / float64(totalTarget) * 100)
	}
	n := maxInt(len(summaries), 1)
	downtimeScore := clamp0to100(100 - float64(totalDowntime)/float64(n)/10)
	wasteScore := clamp0to100(100 - float64(totalWaste)/float64(n)/5)

	score := 0.40*oeeComponent + 0.25*outputPct + 0.20*downtimeScore + 0.15*wasteScore
	return subjectScore{
		Subject: subject, Score: score, OEEComponent: oeeComponent,
		OutputComponent: outputPct, DowntimeComponent: downtimeScore, WasteComponent: wasteScore,
	}, result, nil
}

func (t *ComparativeAnalysis) Run(ctx context.Context, args map[string]any) opsmodel.ToolResult {
	rawSubjects, _ := args["subjects"].([]any)
	subjects := make([]string, 0, len(rawSubjects))
	for _, s := range rawSubjects {
		if str, ok := s.(string); ok {
			subjects = append(subjects, str)
		}
	}
	subjects = t.expandSubjects(ctx, subjects)
	if len(subjects) < 2 {
		return tooling.Failure(&insufficientDataErr{metric: "comparative subjects (need 2-10)", have: len(subjects)})
	}

	rng := resolveRange(str(args, "time_range", ""), t.Clock)
	citations := []opsmodel.Citation{}
	scores := make([]subjectScore, 0, len(subjects))
	for _, subject := range subjects {
		score, result, err := t.scoreSubject(ctx, subject, rng)
		if err != nil {
			continue
		}
		scores = append(scores, score)
		citations = append(citations, tooling.DatabaseCitation(result.TableName, subject, subject, result.QueryTimestamp, "performance window for "+subject))
	}

	if len(scores) == 0 {
		return tooling.Failure(&insufficientDataErr{metric: "comparative subjects with retrievable data", have: 0})
	}

	best, worst := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s.Score > best.Score {
			best = s
		}
		if s.Score < worst.Score {
			worst = s
		}
	}

	out := map[string]any{
		"scores":     scores,
		"time_range": rng.Description,
	}
	if best.Score-worst.Score >= 5.0 {
		out["winner"] = best.Subject
		out["gap"] = best.Score - worst.Score
	} else {
		out["winner"] = nil
		out["message"] = "gap below 5.0 point significance threshold; no winner declared"
	}

	citations = append(citations, tooling.CalculationCitation("composite score = 0.40*oee + 0.25*output% + 0.20*downtime_score + 0.15*waste_score", 0.85))
	return tooling.Success(out, citations)
}
