// Package memory defines the narrow contract opsbrief consumes resident
// memory through. The backing service (vector store, embedding provider,
// long-term memory) is external; opsbrief only ever reads opaque entries,
// and every failure degrades to an empty result rather than an error a
// caller must handle.
package memory

import "context"

// Entry is one opaque memory record.
type Entry struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]any
}

// Source is the read-only memory surface. Both operations are best-effort.
type Source interface {
	Search(ctx context.Context, query, userID string, limit int, threshold float64) ([]Entry, error)
	GetAll(ctx context.Context, userID string) ([]Entry, error)
}

// SearchBestEffort runs src.Search and swallows failures, returning an
// empty slice whenever the source is nil, errors, or finds nothing.
func SearchBestEffort(ctx context.Context, src Source, query, userID string, limit int, threshold float64) []Entry {
	if src == nil {
		return nil
	}
	entries, err := src.Search(ctx, query, userID, limit, threshold)
	if err != nil {
		return nil
	}
	return entries
}
