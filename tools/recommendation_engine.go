package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/plantops/opsbrief/gateway"
	"github.com/plantops/opsbrief/opsmodel"
	"github.com/plantops/opsbrief/tooling"
)

// RecommendationEngine detects recurring downtime, time-of-day, and
// cross-asset underperformance patterns and ranks 2-3 recommendations by
// estimated ROI. Requires at least 10 data points.
type RecommendationEngine struct {
	GW     gateway.Gateway
	Clock  clock
	schema *jsonschema.Schema
}

var recommendationEngineSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"area":       map[string]any{"type": "string"},
		"time_range": map[string]any{"type": "string"},
	},
}

func (t *RecommendationEngine) Name() string { return "recommendation_engine" }
func (t *RecommendationEngine) Description() string {
	return "Detect recurring operational patterns and recommend the highest-ROI fixes."
}

func (t *RecommendationEngine) CitationsRequired() bool { return true }

func (t *RecommendationEngine) ArgsSchema() *jsonschema.Schema {
	if t.schema == nil {
		t.schema = tooling.MustCompileSchema("recommendation_engine.json", recommendationEngineSchema)
	}
	return t.schema
}

type pattern struct {
	Kind           string  `json:"kind"`
	Description    string  `json:"description"`
	Confidence     float64 `json:"confidence"`
	HighConfidence bool    `json:"high_confidence"`
	EstimatedROI   float64 `json:"estimated_roi"`
}

func (t *RecommendationEngine) Run(ctx context.Context, args map[string]any) opsmodel.ToolResult {
	rng := resolveRange(str(args, "time_range", ""), t.Clock)
	area := str(args, "area", "")

	start, end := rangeBounds(rng)
	result, err := t.GW.GetOEEByArea(ctx, area, start, end)
	if err != nil {
		return tooling.Failure(tooling.WrapGatewayErr(err))
	}
	summaries := summariesData(result)
	if len(summaries) < 10 {
		out := map[string]any{
			"insufficient_data": true,
			"message":           fmt.Sprintf("recommendations require at least 10 data points, have %d", len(summaries)),
			"data_gaps":         []string{fmt.Sprintf("only %d daily summaries in %q", len(summaries), rng.Description)},
			"recommendations":   []pattern{},
			"sample_size":       len(summaries),
			"time_range":        rng.Description,
		}
		citations := []opsmodel.Citation{
			tooling.DatabaseCitation(result.TableName, area, area, result.QueryTimestamp, "daily summaries over window"),
		}
		return tooling.Success(out, citations)
	}

	var patterns []pattern

	reasonDays := map[string]int{}
	for _, s := range summaries {
		for reason := range s.DowntimeReasons {
			reasonDays[reason]++
		}
	}
	for reason, days := range reasonDays {
		freq := float64(days) / float64(len(summaries))
		if freq >= 0.10 {
			confidence := confidenceFromFrequencyAndSample(freq, len(summaries))
			if confidence >= 0.60 {
				patterns = append(patterns, pattern{
					Kind:           "recurring_downtime",
					Description:    fmt.Sprintf("%q recurs on %.0f%% of days", reason, freq*100),
					Confidence:     confidence,
					HighConfidence: confidence >= 0.80,
					EstimatedROI:   freq * 1000,
				})
			}
		}
	}

	byWeekday := map[string][]float64{}
	overall := meanOEE(summaries)
	for _, s := range summaries {
		if s.OEEPercentage == nil {
			continue
		}
		wd := s.ReportDate.Weekday().String()
		byWeekday[wd] = append(byWeekday[wd], *s.OEEPercentage)
	}
	for wd, values := range byWeekday {
		m := mean(values)
		if overall > 0 && m <= overall*0.90 {
			confidence := confidenceFromDeviationAndSample(overall-m, len(values))
			if confidence >= 0.60 {
				patterns = append(patterns, pattern{
					Kind:           "time_of_day",
					Description:    fmt.Sprintf("%s OEE runs %.1f points below plant average", wd, overall-m),
					Confidence:     confidence,
					HighConfidence: confidence >= 0.80,
					EstimatedROI:   (overall - m) * 100,
				})
			}
		}
	}

	byAsset := map[string][]float64{}
	for _, s := range summaries {
		if s.OEEPercentage == nil {
			continue
		}
		byAsset[s.AssetID] = append(byAsset[s.AssetID], *s.OEEPercentage)
	}
	for assetID, values := range byAsset {
		m := mean(values)
		if overall > 0 && m <= overall*0.85 {
			confidence := confidenceFromDeviationAndSample(overall-m, len(values))
			if confidence >= 0.60 {
				patterns = append(patterns, pattern{
					Kind:           "cross_asset_underperformance",
					Description:    fmt.Sprintf("asset %s runs %.1f points below plant average", assetID, overall-m),
					Confidence:     confidence,
					HighConfidence: confidence >= 0.80,
					EstimatedROI:   (overall - m) * 150,
				})
			}
		}
	}

	sort.SliceStable(patterns, func(i, j int) bool { return patterns[i].EstimatedROI > patterns[j].EstimatedROI })
	if len(patterns) > 3 {
		patterns = patterns[:3]
	}

	out := map[string]any{
		"recommendations": patterns,
		"sample_size":     len(summaries),
		"time_range":      rng.Description,
	}
	citations := []opsmodel.Citation{
		tooling.DatabaseCitation(result.TableName, area, area, result.QueryTimestamp, "daily summaries over window"),
		tooling.CalculationCitation("pattern confidence from recurrence frequency and sample size, kept at >= 0.60", 0.8),
	}
	return tooling.Success(out, citations)
}

// confidenceFromFrequencyAndSample scores recurrence patterns: how often the
// reason shows up and how much data backs the rate.
func confidenceFromFrequencyAndSample(freq float64, sampleSize int) float64 {
	sampleFactor := float64(sampleSize) / (float64(sampleSize) + 10)
	confidence := freq*0.7 + sampleFactor*0.3
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

// confidenceFromDeviationAndSample scores mean-gap patterns (time-of-day and
// cross-asset): a 20+ point gap with a solid sample saturates at 1.
func confidenceFromDeviationAndSample(gap float64, sampleSize int) float64 {
	deviationFactor := gap / 20
	if deviationFactor > 1 {
		deviationFactor = 1
	}
	sampleFactor := float64(sampleSize) / (float64(sampleSize) + 10)
	confidence := deviationFactor*0.5 + sampleFactor*0.5
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}
