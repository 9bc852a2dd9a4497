// Package anthropicclient implements llmclient.Client on top of the Anthropic
// Claude Messages API using github.com/anthropics/anthropic-sdk-go, narrowed
// to opsbrief's two operations: free-form narrative generation and claim
// extraction.
package anthropicclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/plantops/opsbrief/llmclient"
	"github.com/plantops/opsbrief/opsmodel"
)

// MessagesClient captures the subset of the Anthropic SDK used here, so tests
// can substitute a fake without a live API key.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures the adapter.
type Options struct {
	// Model is the Claude model identifier used for every call. Prefer the
	// typed constants in github.com/anthropics/anthropic-sdk-go, e.g.
	// string(sdk.ModelClaudeSonnet4_5_20250929).
	Model string
	// MaxTokens bounds narrative completions. Claim extraction always uses a
	// fixed 1024-token cap since it only returns structured JSON.
	MaxTokens int
	// Temperature controls narrative generation only; claim extraction runs
	// at temperature 0 for determinism.
	Temperature float64
}

// Client adapts MessagesClient to llmclient.Client.
type Client struct {
	msg   MessagesClient
	model string
	maxTk int
	temp  float64
}

var _ llmclient.Client = (*Client)(nil)

// New builds a Client from an already-configured Anthropic Messages client.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropicclient: messages client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("anthropicclient: model identifier is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Client{msg: msg, model: opts.Model, maxTk: maxTokens, temp: opts.Temperature}, nil
}

// NewFromAPIKey builds a Client using the default Anthropic HTTP client,
// reading ANTHROPIC_API_KEY-style defaults via option.WithAPIKey.
func NewFromAPIKey(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropicclient: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{Model: model})
}

// Generate issues a single-turn completion request and concatenates the
// assistant's text blocks into one narrative string.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("anthropicclient: prompt is required")
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: int64(c.maxTk),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}
	if c.temp > 0 {
		params.Temperature = sdk.Float(c.temp)
	}
	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropicclient: messages.new: %w", err)
	}
	return concatText(msg), nil
}

// extractClaimsPrompt instructs the model to return a JSON array matching
// opsmodel.Claim's shape; no thinking, no prose, no markdown fence.
const extractClaimsPrompt = `Decompose the following operations briefing text into
discrete factual claims. Return ONLY a JSON array, no prose, no markdown fences.
Each element: {"text": string, "type": "factual"|"recommendation"|"inference"|"historical",
"requires_grounding": bool, "entity_mentions": [string], "metric_mentions": [number],
"temporal_reference": string}.

Text:
%s`

// ExtractClaims asks the model to decompose response text into typed claims
// and parses the resulting JSON array into opsmodel.Claim values.
func (c *Client) ExtractClaims(ctx context.Context, responseText string) ([]opsmodel.Claim, error) {
	if strings.TrimSpace(responseText) == "" {
		return nil, nil
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens:   int64(1024),
		Temperature: sdk.Float(0),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(fmt.Sprintf(extractClaimsPrompt, responseText))),
		},
	}
	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropicclient: messages.new: %w", err)
	}
	raw := strings.TrimSpace(concatText(msg))
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var decoded []struct {
		Text              string    `json:"text"`
		Type              string    `json:"type"`
		RequiresGrounding bool      `json:"requires_grounding"`
		EntityMentions    []string  `json:"entity_mentions"`
		MetricMentions    []float64 `json:"metric_mentions"`
		TemporalReference string    `json:"temporal_reference"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("anthropicclient: decode claims: %w", err)
	}
	claims := make([]opsmodel.Claim, 0, len(decoded))
	for _, d := range decoded {
		claims = append(claims, opsmodel.Claim{
			Text:              d.Text,
			Type:              opsmodel.ClaimType(d.Type),
			RequiresGrounding: d.RequiresGrounding,
			EntityMentions:    d.EntityMentions,
			MetricMentions:    d.MetricMentions,
			TemporalReference: d.TemporalReference,
		})
	}
	return claims, nil
}

func concatText(msg *sdk.Message) string {
	if msg == nil {
		return ""
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}
