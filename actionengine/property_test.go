package actionengine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/plantops/opsbrief/gateway/memgateway"
	"github.com/plantops/opsbrief/opsmodel"
)

type tierSeed struct {
	SafetyAssets   []int
	LowOEEAssets   []int
	HighLossAssets []int
}

func genTierSeed() gopter.Gen {
	assetIdx := gen.IntRange(0, 9)
	return gopter.CombineGens(
		gen.SliceOf(assetIdx),
		gen.SliceOf(assetIdx),
		gen.SliceOf(assetIdx),
	).Map(func(vals []interface{}) tierSeed {
		return tierSeed{
			SafetyAssets:   vals[0].([]int),
			LowOEEAssets:   vals[1].([]int),
			HighLossAssets: vals[2].([]int),
		}
	})
}

func storeFromSeed(seed tierSeed) memgateway.Store {
	store := memgateway.Store{}
	for i := 0; i < 10; i++ {
		store.Assets = append(store.Assets, opsmodel.Asset{
			ID:   fmt.Sprintf("asset-%d", i),
			Name: fmt.Sprintf("Asset %d", i),
		})
	}
	for n, idx := range seed.SafetyAssets {
		store.SafetyEvents = append(store.SafetyEvents, opsmodel.SafetyEvent{
			ID:             fmt.Sprintf("se-%d", n),
			AssetID:        fmt.Sprintf("asset-%d", idx),
			EventTimestamp: reportDate.Add(time.Duration(n) * time.Minute),
			Severity:       opsmodel.SeverityHigh,
		})
	}
	summarized := map[int]bool{}
	for n, idx := range seed.LowOEEAssets {
		if summarized[idx] {
			continue
		}
		summarized[idx] = true
		low := 40.0 + float64(n)
		store.Summaries = append(store.Summaries, opsmodel.DailySummary{
			ID:            fmt.Sprintf("sum-oee-%d", idx),
			AssetID:       fmt.Sprintf("asset-%d", idx),
			ReportDate:    reportDate,
			OEEPercentage: &low,
		})
	}
	for _, idx := range seed.HighLossAssets {
		if summarized[idx] {
			continue
		}
		summarized[idx] = true
		store.Summaries = append(store.Summaries, opsmodel.DailySummary{
			ID:                   fmt.Sprintf("sum-fin-%d", idx),
			AssetID:              fmt.Sprintf("asset-%d", idx),
			ReportDate:           reportDate,
			FinancialLossDollars: 2500,
		})
	}
	return store
}

func tierRank(c opsmodel.ActionCategory) int {
	switch c {
	case opsmodel.CategorySafety:
		return 0
	case opsmodel.CategoryOEE:
		return 1
	default:
		return 2
	}
}

// The merged action list upholds its three structural invariants for any
// combination of tier inputs: safety items are always critical, each asset
// appears at most once, and tiers appear as contiguous ordered blocks.
func TestMergedListInvariantsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("safety implies critical, assets unique, tiers ordered", prop.ForAll(
		func(seed tierSeed) bool {
			e := newEngine(storeFromSeed(seed))
			resp := e.GenerateActionList(context.Background(), Options{TargetDate: reportDate})

			seen := map[string]bool{}
			lastRank := -1
			for _, a := range resp.Actions {
				if a.Category == opsmodel.CategorySafety && a.PriorityLevel != opsmodel.PriorityCritical {
					return false
				}
				if seen[a.AssetID] {
					return false
				}
				seen[a.AssetID] = true
				r := tierRank(a.Category)
				if r < lastRank {
					return false
				}
				lastRank = r
			}
			return resp.TotalCount == len(resp.Actions)
		},
		genTierSeed(),
	))

	properties.TestingRun(t)
}
