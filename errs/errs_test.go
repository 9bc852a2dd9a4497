package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	if KindOf(nil) != "" {
		t.Error("KindOf(nil) must be empty")
	}
	if KindOf(errors.New("plain")) != KindQuery {
		t.Error("unclassified errors default to KindQuery")
	}
	if KindOf(New(KindConfiguration, "no store")) != KindConfiguration {
		t.Error("KindOf must read the Error's kind")
	}
	wrapped := fmt.Errorf("outer: %w", New(KindConnectivity, "timeout"))
	if KindOf(wrapped) != KindConnectivity {
		t.Error("KindOf must traverse wrapping")
	}
}

func TestIsMatchesByKind(t *testing.T) {
	err := Wrap(KindConnectivity, "dial failed", errors.New("refused"))
	if !errors.Is(err, New(KindConnectivity, "")) {
		t.Error("errors.Is must match on kind")
	}
	if errors.Is(err, New(KindQuery, "")) {
		t.Error("errors.Is must not match a different kind")
	}
}

func TestUnwrapChain(t *testing.T) {
	cause := errors.New("root")
	err := Wrap(KindQuery, "select failed", cause)
	if !errors.Is(err, cause) {
		t.Error("cause must be reachable through Unwrap")
	}
	if err.Error() != "query_error: select failed: root" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestWrapDefaultsMessageToCause(t *testing.T) {
	err := Wrap(KindConnectivity, "", errors.New("refused"))
	if err.Message != "refused" {
		t.Errorf("empty message should default to cause text, got %q", err.Message)
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(New(KindConnectivity, "blip")) {
		t.Error("connectivity errors are retryable")
	}
	for _, kind := range []Kind{KindConfiguration, KindQuery, KindValidation, KindDeadlineExceeded, KindAmbiguousReference} {
		if Retryable(New(kind, "x")) {
			t.Errorf("%s must not be retryable", kind)
		}
	}
}
