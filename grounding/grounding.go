// Package grounding validates free-form narrative text against the pool of
// source rows (and optional resident memory) it was generated from, injecting
// inline citations and falling back to a disclaimer or refusal when evidence
// is thin. Claim extraction goes through the narrow llmclient.Client seam
// with a deterministic local fallback when the model call fails.
package grounding

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/plantops/opsbrief/llmclient"
	"github.com/plantops/opsbrief/memory"
	"github.com/plantops/opsbrief/opsmodel"
)

// MinGroundingThreshold is the per-claim confidence a best candidate must
// reach for the claim to be considered grounded.
const MinGroundingThreshold = 0.6

// disclaimerThreshold is the lower bound of the "append a disclaimer" band.
const disclaimerThreshold = 0.3

// EvidenceRow is one candidate source row a claim can be matched against.
// SourceFields holds named field values (strings or numbers) keyed by field
// name, mirroring the columns a Gateway query returned.
type EvidenceRow struct {
	SourceType  opsmodel.SourceType
	SourceTable string
	RecordID    string
	AssetID     string
	Timestamp   *time.Time
	Fields      map[string]any
	Excerpt     string
}

// MemoryEntry is one resident-memory candidate a claim can be matched
// against.
type MemoryEntry struct {
	ID             string
	Entities       []string
	MetricKeywords []string
	Words          []string
	Excerpt        string
}

// Pool is the full evidence set available for one validation pass.
type Pool struct {
	Rows   []EvidenceRow
	Memory []MemoryEntry
}

// Validator extracts claims from generated text and validates each against a
// Pool, producing a CitedResponse. When Memory is set, Validate augments the
// pool with a best-effort memory search for MemoryUser before validating.
type Validator struct {
	LLM        llmclient.Client
	Memory     memory.Source
	MemoryUser string
	Clock      func() time.Time
}

// New builds a Validator. A nil llm falls back to the heuristic single-claim
// extractor for every call.
func New(llm llmclient.Client) *Validator {
	return &Validator{LLM: llm, Clock: time.Now}
}

func (v *Validator) now() time.Time {
	if v.Clock != nil {
		return v.Clock()
	}
	return time.Now()
}

// Validate runs claim extraction, per-claim validation, citation injection,
// and fallback selection over responseText against pool.
func (v *Validator) Validate(ctx context.Context, responseText string, pool Pool) opsmodel.CitedResponse {
	for _, entry := range memory.SearchBestEffort(ctx, v.Memory, responseText, v.MemoryUser, 5, 0.3) {
		pool.Memory = append(pool.Memory, memoryEntryFromSource(entry))
	}

	claims := v.extractClaims(ctx, responseText)

	groundable := make([]opsmodel.Claim, 0, len(claims))
	results := make([]opsmodel.GroundingResult, 0, len(claims))
	for _, c := range claims {
		if !c.RequiresGrounding {
			continue
		}
		groundable = append(groundable, c)
		results = append(results, v.validateClaim(c, pool))
	}

	score := groundingScore(results)

	citations := make([]opsmodel.Citation, 0, len(results))
	for _, r := range results {
		citations = append(citations, r.SupportingCitations...)
	}

	text := responseText
	var ungrounded []string
	switch {
	case score >= MinGroundingThreshold:
		text = injectCitations(text, results)
	case score >= disclaimerThreshold:
		text = injectCitations(text, results)
		for _, r := range results {
			if !r.IsGrounded {
				ungrounded = append(ungrounded, truncate(r.ClaimText, 120))
			}
		}
		text = appendDisclaimer(text, ungrounded)
	default:
		text = "I cannot provide a reliable answer grounded in the available data for this request. " +
			"Try narrowing the time range or asset scope and asking again."
	}

	return opsmodel.CitedResponse{
		ResponseText:     text,
		Citations:        citations,
		Claims:           claims,
		GroundingScore:   score,
		UngroundedClaims: ungrounded,
		Meta: map[string]any{
			"groundable_claims": len(groundable),
			"validated_at":      v.now(),
		},
	}
}

func (v *Validator) extractClaims(ctx context.Context, responseText string) []opsmodel.Claim {
	if v.LLM != nil {
		if claims, err := v.LLM.ExtractClaims(ctx, responseText); err == nil && len(claims) > 0 {
			return claims
		}
	}
	return []opsmodel.Claim{heuristicClaim(responseText)}
}

// heuristicClaim treats the whole response (truncated to 200 characters) as
// a single factual claim.
func heuristicClaim(responseText string) opsmodel.Claim {
	text := truncate(responseText, 200)
	return opsmodel.Claim{
		Text:              text,
		Type:              opsmodel.ClaimFactual,
		RequiresGrounding: true,
		EntityMentions:    extractCapitalizedTokens(text),
		MetricMentions:    extractNumbers(text),
	}
}

func (v *Validator) validateClaim(claim opsmodel.Claim, pool Pool) opsmodel.GroundingResult {
	start := time.Now()

	type scored struct {
		citation   opsmodel.Citation
		confidence float64
	}
	var candidates []scored

	for _, row := range pool.Rows {
		conf := 0.0
		for _, entity := range claim.EntityMentions {
			if fieldsContainString(row.Fields, entity) {
				conf += 0.4
			}
		}
		for _, metric := range claim.MetricMentions {
			if fieldsContainNumber(row.Fields, metric) {
				conf += 0.4
			}
		}
		if claim.TemporalReference != "" && row.Timestamp != nil {
			if temporalAligns(claim.TemporalReference, *row.Timestamp) {
				conf += 0.2
			}
		}
		if conf <= 0 {
			continue
		}
		if conf > 1.0 {
			conf = 1.0
		}
		candidates = append(candidates, scored{
			citation:   rowCitation(row, claim.Text, conf),
			confidence: conf,
		})
	}

	for _, mem := range pool.Memory {
		conf := 0.0
		if overlapCount(claim.EntityMentions, mem.Entities) > 0 {
			conf += 0.3
		}
		metricWords := metricKeywordsFromNumbers(claim.MetricMentions)
		conf += 0.2 * float64(overlapCount(metricWords, mem.MetricKeywords))
		conf += 0.3 * jaccard(words(claim.Text), mem.Words)
		if conf <= 0 {
			continue
		}
		if conf > 1.0 {
			conf = 1.0
		}
		candidates = append(candidates, scored{
			citation:   memoryCitation(mem, claim.Text, conf),
			confidence: conf,
		})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].confidence > candidates[j].confidence })

	best := 0.0
	var supporting []opsmodel.Citation
	const maxSupporting = 3
	for i, c := range candidates {
		if i == 0 {
			best = c.confidence
		}
		if i >= maxSupporting {
			break
		}
		supporting = append(supporting, c.citation)
	}

	return opsmodel.GroundingResult{
		ClaimText:           claim.Text,
		IsGrounded:          best >= MinGroundingThreshold,
		Confidence:          best,
		SupportingCitations: supporting,
		ValidationTimeMS:    time.Since(start).Milliseconds(),
	}
}

func groundingScore(results []opsmodel.GroundingResult) float64 {
	if len(results) == 0 {
		return 1.0
	}
	sum := 0.0
	for _, r := range results {
		sum += r.Confidence
	}
	score := sum / float64(len(results))
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// injectCitations appends the best citation's display text to the sentence
// it best matches, by word overlap >= 30%, skipping claims with no
// candidates and avoiding duplicate insertions into the same sentence.
func injectCitations(text string, results []opsmodel.GroundingResult) string {
	sentences := splitSentences(text)
	used := make(map[int]bool)

	for _, r := range results {
		if len(r.SupportingCitations) == 0 {
			continue
		}
		best := r.SupportingCitations[0]
		claimWords := words(r.ClaimText)
		bestIdx, bestOverlap := -1, 0.0
		for i, s := range sentences {
			ov := jaccard(claimWords, words(s))
			if ov > bestOverlap {
				bestOverlap = ov
				bestIdx = i
			}
		}
		if bestIdx < 0 || bestOverlap < 0.3 {
			continue
		}
		if used[bestIdx] {
			continue
		}
		if strings.Contains(sentences[bestIdx], best.DisplayText) {
			continue
		}
		sentences[bestIdx] = strings.TrimRight(sentences[bestIdx], " ") + " " + best.DisplayText
		used[bestIdx] = true
	}
	return strings.Join(sentences, " ")
}

func appendDisclaimer(text string, ungrounded []string) string {
	if len(ungrounded) == 0 {
		return text
	}
	if len(ungrounded) > 3 {
		ungrounded = ungrounded[:3]
	}
	var sb strings.Builder
	sb.WriteString(text)
	sb.WriteString("\n\nNote: the following statements could not be confirmed against available data:\n")
	for _, u := range ungrounded {
		sb.WriteString("- ")
		sb.WriteString(u)
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

// rowCitation builds a database Citation with display text of the form
// "[Source: <table>/<YYYY-MM-DD>/asset-<slug>]", eliding absent parts.
func rowCitation(row EvidenceRow, claimText string, confidence float64) opsmodel.Citation {
	var parts []string
	if row.SourceTable != "" {
		parts = append(parts, row.SourceTable)
	}
	if row.Timestamp != nil {
		parts = append(parts, row.Timestamp.UTC().Format("2006-01-02"))
	}
	if row.AssetID != "" {
		parts = append(parts, "asset-"+slugify(row.AssetID))
	}
	display := "[Source: " + strings.Join(parts, "/") + "]"
	return opsmodel.Citation{
		SourceType:  opsmodel.SourceDatabase,
		SourceTable: row.SourceTable,
		RecordID:    row.RecordID,
		AssetID:     row.AssetID,
		Timestamp:   row.Timestamp,
		Excerpt:     row.Excerpt,
		Confidence:  confidence,
		DisplayText: display,
		ClaimText:   claimText,
	}
}

// memoryEntryFromSource derives the matchable fields of a raw memory record.
func memoryEntryFromSource(entry memory.Entry) MemoryEntry {
	return MemoryEntry{
		ID:             entry.ID,
		Entities:       extractCapitalizedTokens(entry.Content),
		MetricKeywords: metricKeywordsFromNumbers(extractNumbers(entry.Content)),
		Words:          words(entry.Content),
		Excerpt:        truncate(entry.Content, 160),
	}
}

func memoryCitation(mem MemoryEntry, claimText string, confidence float64) opsmodel.Citation {
	prefix := mem.ID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return opsmodel.Citation{
		SourceType:  opsmodel.SourceMemory,
		MemoryID:    mem.ID,
		Excerpt:     mem.Excerpt,
		Confidence:  confidence,
		DisplayText: "[Memory: " + prefix + "…]",
		ClaimText:   claimText,
	}
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteByte('-')
		}
	}
	return strings.Trim(sb.String(), "-")
}

var sentenceSplitRe = regexp.MustCompile(`(?s)[^.!?]+[.!?]*`)

func splitSentences(text string) []string {
	matches := sentenceSplitRe.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if strings.TrimSpace(m) != "" {
			out = append(out, strings.TrimSpace(m))
		}
	}
	if len(out) == 0 {
		return []string{text}
	}
	return out
}

func words(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return fields
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(b))
	for _, w := range b {
		set[w] = true
	}
	inter := 0
	union := make(map[string]bool, len(a)+len(b))
	for _, w := range a {
		union[w] = true
		if set[w] {
			inter++
		}
	}
	for _, w := range b {
		union[w] = true
	}
	if len(union) == 0 {
		return 0
	}
	return float64(inter) / float64(len(union))
}

func overlapCount(a, b []string) int {
	set := make(map[string]bool, len(b))
	for _, w := range b {
		set[strings.ToLower(w)] = true
	}
	n := 0
	for _, w := range a {
		if set[strings.ToLower(w)] {
			n++
		}
	}
	return n
}

var numberRe = regexp.MustCompile(`-?\d+(\.\d+)?`)

func extractNumbers(text string) []float64 {
	matches := numberRe.FindAllString(text, -1)
	out := make([]float64, 0, len(matches))
	for _, m := range matches {
		if f, err := strconv.ParseFloat(m, 64); err == nil {
			out = append(out, f)
		}
	}
	return out
}

func metricKeywordsFromNumbers(nums []float64) []string {
	out := make([]string, 0, len(nums))
	for _, n := range nums {
		out = append(out, strconv.FormatFloat(n, 'f', -1, 64))
	}
	return out
}

var capitalizedRe = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9\-]{2,}\b`)

func extractCapitalizedTokens(text string) []string {
	return capitalizedRe.FindAllString(text, -1)
}

func fieldsContainString(fields map[string]any, entity string) bool {
	needle := strings.ToLower(strings.TrimSpace(entity))
	if needle == "" {
		return false
	}
	for _, v := range fields {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

func fieldsContainNumber(fields map[string]any, metric float64) bool {
	for _, v := range fields {
		f, ok := numericValue(v)
		if !ok {
			continue
		}
		if math.Abs(f-metric) <= 0.5 {
			return true
		}
		if metric != 0 && math.Abs(f-metric)/math.Abs(metric) <= 0.01 {
			return true
		}
	}
	return false
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func temporalAligns(ref string, ts time.Time) bool {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if ref == "" {
		return false
	}
	return strings.Contains(ref, ts.UTC().Format("2006-01-02")) ||
		strings.Contains(ref, ts.UTC().Format("Jan 2")) ||
		strings.Contains(ref, strings.ToLower(ts.UTC().Format("Monday")))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
