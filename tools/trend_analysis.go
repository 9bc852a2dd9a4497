package tools

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/plantops/opsbrief/gateway"
	"github.com/plantops/opsbrief/opsmodel"
	"github.com/plantops/opsbrief/tooling"
)

// TrendAnalysis fits a linear trend over a time series and flags anomalies.
// Requires at least 7 points.
type TrendAnalysis struct {
	GW     gateway.Gateway
	Clock  clock
	schema *jsonschema.Schema
}

var trendAnalysisSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"asset_id":   map[string]any{"type": "string"},
		"area":       map[string]any{"type": "string"},
		"metric":     map[string]any{"type": "string"},
		"time_range": map[string]any{"type": "string"},
	},
	"required": []any{"metric"},
}

var inverseMetrics = map[string]bool{"downtime_minutes": true, "waste_count": true, "financial_loss": true}

func (t *TrendAnalysis) Name() string { return "trend_analysis" }
func (t *TrendAnalysis) Description() string {
	return "Analyze the trend of a metric over time, with anomaly detection."
}

func (t *TrendAnalysis) CitationsRequired() bool { return true }

func (t *TrendAnalysis) ArgsSchema() *jsonschema.Schema {
	if t.schema == nil {
		t.schema = tooling.MustCompileSchema("trend_analysis.json", trendAnalysisSchema)
	}
	return t.schema
}

type anomalyPoint struct {
	Date      string  `json:"date"`
	Value     float64 `json:"value"`
	Deviation float64 `json:"deviation"`
	TopReason string  `json:"top_reason,omitempty"`
}

func (t *TrendAnalysis) Run(ctx context.Context, args map[string]any) opsmodel.ToolResult {
	metric := str(args, "metric", "oee_percentage")
	rng := resolveRange(str(args, "time_range", ""), t.Clock)
	start, end := rangeBounds(rng)

	result, err := t.GW.GetTrendData(ctx, gateway.TrendQuery{
		Start: start, End: end, Metric: metric,
		AssetID: str(args, "asset_id", ""), Area: str(args, "area", ""),
	})
	if err != nil {
		return tooling.Failure(tooling.WrapGatewayErr(err))
	}
	points := trendPointsData(result)
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	if len(points) < 7 {
		// Not an error: callers get whatever data exists plus an explicit
		// insufficient-data marker, with statistics and anomalies empty.
		out := map[string]any{
			"insufficient_data": true,
			"message":           fmt.Sprintf("trend analysis requires at least 7 data points for %s, have %d", metric, len(points)),
			"statistics":        nil,
			"anomalies":         []anomalyPoint{},
			"points":            points,
			"sample_size":       len(points),
			"time_range":        rng.Description,
		}
		citations := []opsmodel.Citation{
			tooling.DatabaseCitation(result.TableName, str(args, "asset_id", ""), str(args, "asset_id", ""), result.QueryTimestamp, "trend series"),
		}
		return tooling.Success(out, citations)
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	m := mean(values)
	sd := stddev(values, m)
	minV, maxV := values[0], values[0]
	var minDate, maxDate string
	for i, v := range values {
		if v < minV {
			minV = v
			minDate = points[i].Date.Format("2006-01-02")
		}
		if v > maxV {
			maxV = v
			maxDate = points[i].Date.Format("2006-01-02")
		}
	}

	slope := olsSlope(values)
	directionScore := 0.0
	if m != 0 {
		directionScore = slope * float64(len(values)) / m
	}
	direction := "stable"
	switch {
	case directionScore > 0.05:
		direction = "improving"
	case directionScore < -0.05:
		direction = "declining"
	}
	if inverseMetrics[metric] {
		switch direction {
		case "improving":
			direction = "declining"
		case "declining":
			direction = "improving"
		}
	}

	var anomalies []anomalyPoint
	if sd > 0 {
		for i, v := range values {
			dev := math.Abs(v-m) / sd
			if dev > 2 {
				topReason := ""
				reasons := topDowntimeReasons(points[i].DowntimeReasons, 1)
				if len(reasons) > 0 {
					topReason = reasons[0]
				}
				anomalies = append(anomalies, anomalyPoint{
					Date: points[i].Date.Format("2006-01-02"), Value: v, Deviation: dev, TopReason: topReason,
				})
			}
		}
	}
	sort.Slice(anomalies, func(i, j int) bool { return anomalies[i].Deviation > anomalies[j].Deviation })
	if len(anomalies) > 5 {
		anomalies = anomalies[:5]
	}

	baselineN := 7
	if len(values) < 2*baselineN {
		baselineN = len(values) / 2
	}
	baselineFirst := mean(values[:baselineN])
	baselineLast := mean(values[len(values)-baselineN:])

	out := map[string]any{
		"mean":                  m,
		"std":                   sd,
		"min":                   minV,
		"min_date":              minDate,
		"max":                   maxV,
		"max_date":              maxDate,
		"slope":                 slope,
		"direction":             direction,
		"anomalies":             anomalies,
		"baseline_first_window": baselineFirst,
		"baseline_last_window":  baselineLast,
		"sample_size":           len(values),
		"time_range":            rng.Description,
	}

	citations := []opsmodel.Citation{
		tooling.DatabaseCitation(result.TableName, str(args, "asset_id", ""), str(args, "asset_id", ""), result.QueryTimestamp, "trend series"),
		tooling.CalculationCitation("OLS linear trend with ±5% direction threshold, ±2σ anomaly flagging", 0.85),
	}
	return tooling.Success(out, citations)
}

func olsSlope(values []float64) float64 {
	n := float64(len(values))
	if n == 0 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

type insufficientDataErr struct {
	metric string
	have   int
}

func (e *insufficientDataErr) Error() string {
	return "trend analysis requires at least 7 data points for " + e.metric
}
