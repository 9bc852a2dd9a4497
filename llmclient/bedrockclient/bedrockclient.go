// Package bedrockclient implements llmclient.Client on top of the AWS
// Bedrock Converse API, following the same thin-seam shape as
// llmclient/anthropicclient and llmclient/openaiclient so any of the three
// adapters can back the same interface.
package bedrockclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"

	"github.com/plantops/opsbrief/errs"
	"github.com/plantops/opsbrief/llmclient"
	"github.com/plantops/opsbrief/opsmodel"
)

// RuntimeClient mirrors the subset of the AWS Bedrock runtime client used
// here. It matches *bedrockruntime.Client so callers can pass either the
// real client or a fake in tests.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Options configures the adapter.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float32
}

// Client adapts RuntimeClient to llmclient.Client.
type Client struct {
	runtime RuntimeClient
	model   string
	maxTk   int
	temp    float32
}

var _ llmclient.Client = (*Client)(nil)

// New builds a Client from an already-configured Bedrock runtime client.
func New(runtime RuntimeClient, opts Options) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrockclient: runtime client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("bedrockclient: model identifier is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Client{runtime: runtime, model: opts.Model, maxTk: maxTokens, temp: opts.Temperature}, nil
}

// NewFromRegion builds a Client over a Bedrock runtime client for region.
// Production deployments that resolve AWS credentials through the full
// config loader should construct the runtime themselves and use New.
func NewFromRegion(region, model string) (*Client, error) {
	if region == "" {
		return nil, errors.New("bedrockclient: region is required")
	}
	return New(bedrockruntime.New(bedrockruntime.Options{Region: region}), Options{Model: model})
}

// Generate issues a single-turn Converse request and concatenates the
// response message's text blocks.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("bedrockclient: prompt is required")
	}
	out, err := c.converse(ctx, prompt, c.temp)
	if err != nil {
		return "", err
	}
	return concatText(out), nil
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
	out, err := c.converse(ctx, fmt.Sprintf(extractClaimsPrompt, responseText), 0)
	if err != nil {
		return nil, err
	}
	raw := strings.TrimSpace(concatText(out))
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
		return nil, fmt.Errorf("bedrockclient: decode claims: %w", err)
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

func (c *Client) converse(ctx context.Context, prompt string, temp float32) (*bedrockruntime.ConverseOutput, error) {
	cfg := &brtypes.InferenceConfiguration{MaxTokens: aws.Int32(int32(c.maxTk))}
	if temp > 0 {
		cfg.Temperature = aws.Float32(temp)
	}
	out, err := c.runtime.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.model),
		Messages: []brtypes.Message{{
			Role:    brtypes.ConversationRoleUser,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: prompt}},
		}},
		InferenceConfig: cfg,
	})
	if err != nil {
		return nil, classifyErr(err)
	}
	return out, nil
}

// classifyErr maps provider throttling onto the connectivity kind so the
// caller's retry/backoff machinery treats it as transient.
func classifyErr(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ThrottlingException" {
		return errs.Wrap(errs.KindConnectivity, "bedrockclient: throttled", err)
	}
	return fmt.Errorf("bedrockclient: converse: %w", err)
}

func concatText(out *bedrockruntime.ConverseOutput) string {
	if out == nil {
		return ""
	}
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	var sb strings.Builder
	for _, block := range msg.Value.Content {
		text, ok := block.(*brtypes.ContentBlockMemberText)
		if !ok || text.Value == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(text.Value)
	}
	return sb.String()
}
