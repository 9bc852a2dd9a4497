package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/plantops/opsbrief/errs"
	"github.com/plantops/opsbrief/opsmodel"
)

// flakyGateway fails GetAsset with the configured error until failures runs
// out, then succeeds.
type flakyGateway struct {
	Gateway
	failures int
	err      error
	calls    int
}

func (g *flakyGateway) GetAsset(ctx context.Context, id string) (opsmodel.DataResult, error) {
	g.calls++
	if g.calls <= g.failures {
		return opsmodel.DataResult{}, g.err
	}
	return opsmodel.DataResult{Data: &opsmodel.Asset{ID: id}, TableName: "assets", RowCount: 1}, nil
}

func TestRetryPolicyRetriesConnectivity(t *testing.T) {
	flaky := &flakyGateway{failures: 2, err: errs.New(errs.KindConnectivity, "dial refused")}
	p := NewRetryPolicy(flaky, WithMaxAttempts(3), WithBaseDelay(time.Millisecond))

	result, err := p.GetAsset(context.Background(), "ast-1")
	if err != nil {
		t.Fatalf("third attempt should succeed: %v", err)
	}
	if flaky.calls != 3 {
		t.Errorf("calls = %d, want 3", flaky.calls)
	}
	if asset, _ := result.Data.(*opsmodel.Asset); asset == nil || asset.ID != "ast-1" {
		t.Errorf("result lost through retries: %+v", result)
	}
}

func TestRetryPolicyGivesUpAfterMaxAttempts(t *testing.T) {
	flaky := &flakyGateway{failures: 10, err: errs.New(errs.KindConnectivity, "dial refused")}
	p := NewRetryPolicy(flaky, WithMaxAttempts(2), WithBaseDelay(time.Millisecond))

	_, err := p.GetAsset(context.Background(), "ast-1")
	if err == nil {
		t.Fatal("exhausted retries must surface the error")
	}
	if flaky.calls != 2 {
		t.Errorf("calls = %d, want 2", flaky.calls)
	}
}

func TestRetryPolicyNeverRetriesQueryErrors(t *testing.T) {
	flaky := &flakyGateway{failures: 10, err: errs.New(errs.KindQuery, "bad filter")}
	p := NewRetryPolicy(flaky, WithMaxAttempts(3), WithBaseDelay(time.Millisecond))

	if _, err := p.GetAsset(context.Background(), "ast-1"); err == nil {
		t.Fatal("query errors surface immediately")
	}
	if flaky.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", flaky.calls)
	}
}

func TestRetryPolicyRespectsContextCancellation(t *testing.T) {
	flaky := &flakyGateway{failures: 10, err: errs.New(errs.KindConnectivity, "dial refused")}
	p := NewRetryPolicy(flaky, WithMaxAttempts(5), WithBaseDelay(50*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.GetAsset(ctx, "ast-1")
	if err == nil {
		t.Fatal("cancelled retries must error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancellation should stop the backoff promptly, took %v", elapsed)
	}
}

func TestRetryPolicyBoundedByMaxElapsed(t *testing.T) {
	flaky := &flakyGateway{failures: 100, err: errs.New(errs.KindConnectivity, "dial refused")}
	p := NewRetryPolicy(flaky, WithMaxAttempts(100), WithBaseDelay(20*time.Millisecond), WithMaxElapsed(60*time.Millisecond))

	start := time.Now()
	_, _ = p.GetAsset(context.Background(), "ast-1")
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("max elapsed must bound the retry loop, took %v", elapsed)
	}
	if flaky.calls >= 100 {
		t.Error("elapsed bound should cut attempts short")
	}
}
