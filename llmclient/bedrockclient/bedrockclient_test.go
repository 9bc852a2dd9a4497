package bedrockclient

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"

	"github.com/plantops/opsbrief/errs"
)

// fakeRuntime returns a canned text response, recording the last request.
type fakeRuntime struct {
	text string
	err  error
	last *bedrockruntime.ConverseInput
}

func (f *fakeRuntime) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.last = params
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: f.text}},
			},
		},
	}, nil
}

func TestGenerate(t *testing.T) {
	rt := &fakeRuntime{text: "Grinder 5 ran clean."}
	c, err := New(rt, Options{Model: "anthropic.claude-3-5-sonnet-20241022-v2:0"})
	if err != nil {
		t.Fatal(err)
	}

	got, err := c.Generate(context.Background(), "Summarize yesterday.")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Grinder 5 ran clean." {
		t.Errorf("Generate = %q", got)
	}
	if rt.last == nil || *rt.last.ModelId != "anthropic.claude-3-5-sonnet-20241022-v2:0" {
		t.Errorf("model id not forwarded: %+v", rt.last)
	}
}

func TestExtractClaimsParsesJSON(t *testing.T) {
	rt := &fakeRuntime{text: "```json\n[{\"text\":\"Grinder 5 had 47 minutes of downtime.\",\"type\":\"factual\",\"requires_grounding\":true,\"entity_mentions\":[\"Grinder 5\"],\"metric_mentions\":[47]}]\n```"}
	c, _ := New(rt, Options{Model: "m"})

	claims, err := c.ExtractClaims(context.Background(), "Grinder 5 had 47 minutes of downtime.")
	if err != nil {
		t.Fatalf("ExtractClaims: %v", err)
	}
	if len(claims) != 1 || !claims[0].RequiresGrounding || claims[0].MetricMentions[0] != 47 {
		t.Errorf("claims = %+v", claims)
	}
}

func TestExtractClaimsMalformedJSONErrors(t *testing.T) {
	rt := &fakeRuntime{text: "sorry, here are the claims in prose"}
	c, _ := New(rt, Options{Model: "m"})
	if _, err := c.ExtractClaims(context.Background(), "some text"); err == nil {
		t.Error("non-JSON output must error so the validator falls back")
	}
}

func TestThrottlingClassifiedAsConnectivity(t *testing.T) {
	rt := &fakeRuntime{err: &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}}
	c, _ := New(rt, Options{Model: "m"})
	_, err := c.Generate(context.Background(), "prompt")
	if errs.KindOf(err) != errs.KindConnectivity {
		t.Errorf("throttling must classify as connectivity, got %v", errs.KindOf(err))
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, Options{Model: "m"}); err == nil {
		t.Error("nil runtime must be rejected")
	}
	if _, err := New(&fakeRuntime{}, Options{}); err == nil {
		t.Error("empty model must be rejected")
	}
}
