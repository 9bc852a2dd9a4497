// Package tools implements every capability tool over a gateway.Gateway: one
// read-only query pattern per tool, each returning an opsmodel.ToolResult
// with citations attached for every DataResult it consumed.
package tools

import (
	"math"
	"sort"
	"time"

	"github.com/plantops/opsbrief/opsmodel"
	"github.com/plantops/opsbrief/timerange"
)

// clock lets tests override "now"; production tools default to time.Now.
type clock func() time.Time

func defaultClock() time.Time { return time.Now().UTC() }

func resolveRange(description string, now clock) timerange.Range {
	if now == nil {
		now = defaultClock
	}
	return timerange.Parse(description, time.UTC, timerange.Clock(now))
}

// rangeBounds converts a parsed range's inclusive calendar-day End into the
// exclusive instant the Gateway's date windows expect.
func rangeBounds(rng timerange.Range) (start, end time.Time) {
	return rng.Start, rng.End.AddDate(0, 0, 1)
}

func weightedMeanOEE(summaries []opsmodel.DailySummary) float64 {
	var weightedSum, totalWeight float64
	for _, s := range summaries {
		if s.OEEPercentage == nil {
			continue
		}
		weight := float64(s.ActualOutput)
		if weight <= 0 {
			weight = 1
		}
		weightedSum += *s.OEEPercentage * weight
		totalWeight += weight
	}
	if totalWeight == 0 {
		return 0
	}
	return weightedSum / totalWeight
}

func meanOEE(summaries []opsmodel.DailySummary) float64 {
	var sum float64
	n := 0
	for _, s := range summaries {
		if s.OEEPercentage == nil {
			continue
		}
		sum += *s.OEEPercentage
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// trendDirection compares the mean of the first half of a chronological
// series against its second half with a +/-2 point dead-band. Requires at
// least 4 points.
func trendDirection(values []float64) string {
	if len(values) < 4 {
		return "insufficient_data"
	}
	mid := len(values) / 2
	first := mean(values[:mid])
	second := mean(values[mid:])
	delta := second - first
	switch {
	case delta > 2:
		return "improving"
	case delta < -2:
		return "declining"
	default:
		return "stable"
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64, m float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sumSq float64
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

func topDowntimeReasons(reasonTotals map[string]int, n int) []string {
	type kv struct {
		reason  string
		minutes int
	}
	kvs := make([]kv, 0, len(reasonTotals))
	for r, m := range reasonTotals {
		kvs = append(kvs, kv{r, m})
	}
	sort.Slice(kvs, func(i, j int) bool {
		if kvs[i].minutes != kvs[j].minutes {
			return kvs[i].minutes > kvs[j].minutes
		}
		return kvs[i].reason < kvs[j].reason
	})
	if len(kvs) > n {
		kvs = kvs[:n]
	}
	out := make([]string, len(kvs))
	for i, k := range kvs {
		out[i] = k.reason
	}
	return out
}

func mergeDowntimeReasons(summaries []opsmodel.DailySummary) map[string]int {
	totals := map[string]int{}
	for _, s := range summaries {
		for reason, minutes := range s.DowntimeReasons {
			totals[reason] += minutes
		}
	}
	return totals
}

func sortSummariesByDateDesc(summaries []opsmodel.DailySummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].ReportDate.After(summaries[j].ReportDate)
	})
}

func sortSummariesByDateAsc(summaries []opsmodel.DailySummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].ReportDate.Before(summaries[j].ReportDate)
	})
}

func assetData(r opsmodel.DataResult) (*opsmodel.Asset, bool) {
	a, ok := r.Data.(*opsmodel.Asset)
	if !ok || a == nil {
		return nil, false
	}
	return a, true
}

func assetsData(r opsmodel.DataResult) []opsmodel.Asset {
	a, _ := r.Data.([]opsmodel.Asset)
	return a
}

func summariesData(r opsmodel.DataResult) []opsmodel.DailySummary {
	s, _ := r.Data.([]opsmodel.DailySummary)
	return s
}

func snapshotData(r opsmodel.DataResult) (*opsmodel.LiveSnapshot, bool) {
	s, ok := r.Data.(*opsmodel.LiveSnapshot)
	if !ok || s == nil {
		return nil, false
	}
	return s, true
}

func snapshotsData(r opsmodel.DataResult) []opsmodel.LiveSnapshot {
	s, _ := r.Data.([]opsmodel.LiveSnapshot)
	return s
}

func safetyEventsData(r opsmodel.DataResult) []opsmodel.SafetyEvent {
	s, _ := r.Data.([]opsmodel.SafetyEvent)
	return s
}

func shiftTargetData(r opsmodel.DataResult) (*opsmodel.ShiftTarget, bool) {
	t, ok := r.Data.(*opsmodel.ShiftTarget)
	if !ok || t == nil {
		return nil, false
	}
	return t, true
}

func trendPointsData(r opsmodel.DataResult) []opsmodel.TrendPoint {
	t, _ := r.Data.([]opsmodel.TrendPoint)
	return t
}

// str reads a string field from a loosely-typed args map, returning def when
// absent or of the wrong type.
func str(args map[string]any, key, def string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

func boolArg(args map[string]any, key string, def bool) bool {
	if v, ok := args[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func intArg(args map[string]any, key string, def int) int {
	if v, ok := args[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return def
}

// stringSetArg reads an optional list-of-strings arg into a membership set.
// A nil return means the arg was absent and no filtering applies.
func stringSetArg(args map[string]any, key string) map[string]bool {
	v, ok := args[key]
	if !ok {
		return nil
	}
	var out map[string]bool
	switch list := v.(type) {
	case []any:
		out = make(map[string]bool, len(list))
		for _, e := range list {
			if s, ok := e.(string); ok {
				out[s] = true
			}
		}
	case []string:
		out = make(map[string]bool, len(list))
		for _, s := range list {
			out[s] = true
		}
	}
	return out
}
