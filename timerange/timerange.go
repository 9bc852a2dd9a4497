// Package timerange parses the small vocabulary of time-range descriptions
// capability tools accept: "today", "yesterday" (the default), "this week",
// "last N days", and explicit "YYYY-MM-DD to YYYY-MM-DD" ranges. Any token
// the parser does not recognize degrades to "yesterday" with a warning
// instead of failing the caller's request.
package timerange

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Range is the parsed result of a time-range description: the inclusive
// [Start, End] calendar-day window and a human-readable Description used in
// result envelopes and citations.
type Range struct {
	Start       time.Time
	End         time.Time
	Description string
	// Warning is set when the input token was not recognized and the parser
	// fell back to the default ("yesterday").
	Warning string
}

// Clock abstracts "now" so callers can parse deterministically in tests.
type Clock func() time.Time

// Parse interprets description against loc's local calendar, using now() as
// the reference instant. A nil now defaults to time.Now. Parse is
// idempotent on its own canonical Description output.
func Parse(description string, loc *time.Location, now Clock) Range {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	ref := now().In(loc)
	today := startOfDay(ref)

	raw := strings.TrimSpace(description)
	lower := strings.ToLower(raw)

	switch {
	case lower == "" || lower == "yesterday":
		y := today.AddDate(0, 0, -1)
		return Range{Start: y, End: y, Description: "yesterday"}

	case lower == "today":
		return Range{Start: today, End: today, Description: "today"}

	case lower == "this week":
		monday := today.AddDate(0, 0, -weekdayOffset(today))
		return Range{Start: monday, End: today, Description: "this week"}

	case strings.HasPrefix(lower, "last ") && strings.HasSuffix(lower, " days"):
		middle := strings.TrimSuffix(strings.TrimPrefix(lower, "last "), " days")
		n, err := strconv.Atoi(strings.TrimSpace(middle))
		if err == nil && n > 0 {
			start := today.AddDate(0, 0, -(n - 1))
			return Range{Start: start, End: today, Description: fmt.Sprintf("last %d days", n)}
		}

	case strings.HasPrefix(lower, "last ") && strings.HasSuffix(lower, " hours"):
		middle := strings.TrimSuffix(strings.TrimPrefix(lower, "last "), " hours")
		n, err := strconv.Atoi(strings.TrimSpace(middle))
		if err == nil && n > 0 {
			// Sub-day windows (shift handoffs) carry an instant Start rather
			// than a calendar day; End stays on today's calendar day.
			return Range{Start: ref.Add(-time.Duration(n) * time.Hour), End: today, Description: fmt.Sprintf("last %d hours", n)}
		}

	case strings.Contains(lower, " to "):
		parts := strings.SplitN(raw, " to ", 2)
		if len(parts) == 2 {
			start, errStart := time.ParseInLocation("2006-01-02", strings.TrimSpace(parts[0]), loc)
			end, errEnd := time.ParseInLocation("2006-01-02", strings.TrimSpace(parts[1]), loc)
			if errStart == nil && errEnd == nil && !end.Before(start) {
				return Range{
					Start:       start,
					End:         end,
					Description: fmt.Sprintf("%s to %s", start.Format("2006-01-02"), end.Format("2006-01-02")),
				}
			}
		}
	}

	y := today.AddDate(0, 0, -1)
	return Range{
		Start:       y,
		End:         y,
		Description: "yesterday",
		Warning:     fmt.Sprintf("unrecognized time range %q, defaulted to yesterday", description),
	}
}

// weekdayOffset returns how many days t is past Monday (Monday -> 0).
func weekdayOffset(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 { // Sunday
		return 6
	}
	return wd - 1
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
