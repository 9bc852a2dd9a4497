// Package briefing composes multi-section narratives under a hard wall-clock
// budget by fanning out to capability tools in parallel. Each tool call runs
// in a goroutine that writes its result to a buffered channel the caller
// selects against alongside ctx.Done(), widened to an n-way WaitGroup
// fan-in for the per-area sections.
package briefing

import (
	"context"
	"sort"
	"time"

	"github.com/plantops/opsbrief/telemetry"
	"github.com/plantops/opsbrief/tooling"
)

// PlantModel is the fixed ordered set of production areas and the asset ids
// that belong to each.
type PlantModel struct {
	AreaOrder    []string
	AssetsByArea map[string][]string
}

// DefaultPlantModel returns the seven-area layout used when no deployment
// configuration overrides it.
func DefaultPlantModel() PlantModel {
	return PlantModel{
		AreaOrder: []string{
			"stamping", "welding", "paint", "assembly", "machining", "packaging", "shipping",
		},
	}
}

// ReorderFor applies a user's preferred area ordering: known areas from pref
// come first in that order, any area from the base model not mentioned is
// appended afterward in its default order.
func (p PlantModel) ReorderFor(pref []string) []string {
	if len(pref) == 0 {
		return append([]string(nil), p.AreaOrder...)
	}
	known := make(map[string]bool, len(p.AreaOrder))
	for _, a := range p.AreaOrder {
		known[a] = true
	}
	seen := make(map[string]bool, len(p.AreaOrder))
	out := make([]string, 0, len(p.AreaOrder))
	for _, a := range pref {
		if known[a] && !seen[a] {
			out = append(out, a)
			seen[a] = true
		}
	}
	for _, a := range p.AreaOrder {
		if !seen[a] {
			out = append(out, a)
			seen[a] = true
		}
	}
	return out
}

// SectionStatus enumerates the lifecycle outcome of one briefing section.
type SectionStatus string

const (
	SectionOK       SectionStatus = "complete"
	SectionFailed   SectionStatus = "failed"
	SectionTimedOut SectionStatus = "timed_out"
)

// Section is one composed part of a Briefing. Type names the section's role
// in the briefing ("headline", "area", "error", ...); Title is the
// human-facing heading.
type Section struct {
	Type         string
	Title        string
	Body         string
	Status       SectionStatus
	ToolFailures []string
	PausePoint   bool
}

// Briefing is the full composed result of one orchestrator call.
type Briefing struct {
	Sections              []Section
	CompletionPercentage  float64
	ToolFailures          []string
	TotalDurationEstimate float64
	GeneratedAt           time.Time
}

// charsPerSecond approximates 150 wpm at 5 characters/word.
const charsPerSecond = 150.0 * 5.0 / 60.0

func estimateDuration(sections []Section) float64 {
	total := 0
	for _, s := range sections {
		total += len(s.Body)
	}
	est := float64(total) / charsPerSecond
	if est < 75 {
		est = 75
	}
	return est
}

func completionPercentage(sections []Section) float64 {
	if len(sections) == 0 {
		return 0
	}
	ok := 0
	for _, s := range sections {
		if s.Status == SectionOK {
			ok++
		}
	}
	return 100 * float64(ok) / float64(len(sections))
}

func collectToolFailures(sections []Section) []string {
	var out []string
	for _, s := range sections {
		out = append(out, s.ToolFailures...)
	}
	sort.Strings(out)
	return out
}

func (o *Orchestrator) finalize(ctx context.Context, kind string, sections []Section, now time.Time) Briefing {
	b := Briefing{
		Sections:              sections,
		CompletionPercentage:  completionPercentage(sections),
		ToolFailures:          collectToolFailures(sections),
		TotalDurationEstimate: estimateDuration(sections),
		GeneratedAt:           now,
	}
	o.log().Info(ctx, "briefing composed",
		"kind", kind,
		"sections", len(b.Sections),
		"completion_percentage", b.CompletionPercentage,
		"tool_failures", len(b.ToolFailures))
	o.metrics().RecordGauge("briefing.completion_percentage", b.CompletionPercentage, "kind", kind)
	o.metrics().IncCounter("briefing.tool_failures", float64(len(b.ToolFailures)), "kind", kind)
	return b
}

// Orchestrator fans out to a tooling.Registry under per-branch deadlines and
// an overall budget, composing section-based briefings.
type Orchestrator struct {
	Registry *tooling.Registry
	Plant    PlantModel
	Clock    func() time.Time
	Morning  MorningBriefingLookup

	// Log and Metrics are optional; nil means no-op observability.
	Log     telemetry.Logger
	Metrics telemetry.Metrics

	// TotalBudget bounds the whole briefing; PerToolTimeout bounds each
	// branch of an area's fan-out.
	TotalBudget    time.Duration
	PerToolTimeout time.Duration
}

func (o *Orchestrator) log() telemetry.Logger {
	if o.Log != nil {
		return o.Log
	}
	logger, _, _ := telemetry.NewNoop()
	return logger
}

func (o *Orchestrator) metrics() telemetry.Metrics {
	if o.Metrics != nil {
		return o.Metrics
	}
	_, m, _ := telemetry.NewNoop()
	return m
}

// MorningBriefingRecord is a minimal record of a previously generated
// morning briefing, used by the EOD comparison lookup.
type MorningBriefingRecord struct {
	GeneratedAt     time.Time
	FlaggedConcerns []string
}

// MorningBriefingLookup resolves "this morning's briefing" for a user/date.
// Implementations own their own storage; opsbrief's core never persists
// briefing history itself.
type MorningBriefingLookup interface {
	Lookup(ctx context.Context, userID string, date time.Time) (MorningBriefingRecord, bool, error)
}

func (o *Orchestrator) now() time.Time {
	if o.Clock != nil {
		return o.Clock()
	}
	return time.Now()
}

func (o *Orchestrator) totalBudget() time.Duration {
	if o.TotalBudget > 0 {
		return o.TotalBudget
	}
	return 30 * time.Second
}

func (o *Orchestrator) perToolTimeout() time.Duration {
	if o.PerToolTimeout > 0 {
		return o.PerToolTimeout
	}
	return 4 * time.Second
}
