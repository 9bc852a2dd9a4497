// Package openaiclient implements llmclient.Client on top of the OpenAI Chat
// Completions API using github.com/openai/openai-go. It follows the same
// thin-seam shape as llmclient/anthropicclient so either adapter can back
// the same interface.
package openaiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/plantops/opsbrief/llmclient"
	"github.com/plantops/opsbrief/opsmodel"
)

// ChatClient captures the subset of the OpenAI SDK used here.
type ChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Options configures the adapter.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Client adapts ChatClient to llmclient.Client.
type Client struct {
	chat  ChatClient
	model string
	maxTk int
	temp  float64
}

var _ llmclient.Client = (*Client)(nil)

// New builds a Client from an already-configured OpenAI chat completions
// client.
func New(chat ChatClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openaiclient: chat client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("openaiclient: model identifier is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Client{chat: chat, model: opts.Model, maxTk: maxTokens, temp: opts.Temperature}, nil
}

// NewFromAPIKey builds a Client using the default OpenAI HTTP client,
// reading OPENAI_API_KEY-style defaults via option.WithAPIKey.
func NewFromAPIKey(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openaiclient: api key is required")
	}
	oc := openai.NewClient(option.WithAPIKey(apiKey))
	return New(&oc.Chat.Completions, Options{Model: model})
}

// Generate issues a single-turn chat completion and returns the first
// choice's message content.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("openaiclient: prompt is required")
	}
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxTokens: openai.Int(int64(c.maxTk)),
	}
	if c.temp > 0 {
		params.Temperature = openai.Float(c.temp)
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openaiclient: chat.completions.new: %w", err)
	}
	return firstChoiceText(resp), nil
}

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
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(fmt.Sprintf(extractClaimsPrompt, responseText)),
		},
		MaxTokens: openai.Int(1024),
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openaiclient: chat.completions.new: %w", err)
	}
	raw := strings.TrimSpace(firstChoiceText(resp))
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
		return nil, fmt.Errorf("openaiclient: decode claims: %w", err)
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

func firstChoiceText(resp *openai.ChatCompletion) string {
	if resp == nil || len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Message.Content
}
