// Package llmclient defines the narrow seam the rest of opsbrief depends on
// for text generation and claim extraction. The LLM is an opaque text
// collaborator: nothing outside this package and its adapters knows which
// model or vendor API backs a Client.
package llmclient

import (
	"context"

	"github.com/plantops/opsbrief/opsmodel"
)

// Client is the interface every briefing narrative and grounding claim
// extraction call goes through.
type Client interface {
	// Generate produces free-form prose from a prompt, used to compose
	// briefing section narratives.
	Generate(ctx context.Context, prompt string) (string, error)
	// ExtractClaims decomposes response text into typed claims for the
	// grounding validator. Implementations should keep this fast and
	// deterministic where possible; callers fall back to a heuristic
	// single-claim extraction when this returns an error.
	ExtractClaims(ctx context.Context, responseText string) ([]opsmodel.Claim, error)
}
