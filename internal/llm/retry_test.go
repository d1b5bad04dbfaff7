package llm

import (
	"context"
	"testing"

	"github.com/harvestcore/harvest/internal/errs"
)

type flakyProvider struct {
	failuresLeft int
	failKind     errs.Kind
	calls        int
}

func (f *flakyProvider) Name() string                         { return "flaky" }
func (f *flakyProvider) DefaultModel() string                 { return "test" }
func (f *flakyProvider) Initialize(Config) error               { return nil }
func (f *flakyProvider) GenerateCompletion(context.Context, []Message, CompletionOptions) (Completion, error) {
	return Completion{}, nil
}

func (f *flakyProvider) CallFunction(ctx context.Context, messages []Message, fn FunctionDef, result any) error {
	f.calls++
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return errs.New(f.failKind, "transient")
	}
	return nil
}

func TestWithRetryRetriesTransportErrors(t *testing.T) {
	p := &flakyProvider{failuresLeft: 2, failKind: errs.KindLlmUnavailable}
	wrapped := WithRetry(p, 3)
	err := wrapped.CallFunction(context.Background(), nil, FunctionDef{Name: "f"}, &struct{}{})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if p.calls != 3 {
		t.Fatalf("expected 3 calls (1 + 2 retries), got %d", p.calls)
	}
}

func TestWithRetryDoesNotRetryMissingAPIKey(t *testing.T) {
	p := &flakyProvider{failuresLeft: 5, failKind: errs.KindMissingApiKey}
	wrapped := WithRetry(p, 3)
	err := wrapped.CallFunction(context.Background(), nil, FunctionDef{Name: "f"}, &struct{}{})
	if err == nil {
		t.Fatal("expected error")
	}
	if p.calls != 1 {
		t.Fatalf("expected exactly 1 call, no retries, got %d", p.calls)
	}
}

func TestWithRetryDoesNotRetryUnknownFunction(t *testing.T) {
	p := &unknownFnProvider{}
	wrapped := WithRetry(p, 3)
	err := wrapped.CallFunction(context.Background(), nil, FunctionDef{Name: "f"}, &struct{}{})
	if err == nil {
		t.Fatal("expected error")
	}
	if p.calls != 1 {
		t.Fatalf("expected exactly 1 call, no retries, got %d", p.calls)
	}
}

type unknownFnProvider struct{ calls int }

func (u *unknownFnProvider) Name() string         { return "unknown" }
func (u *unknownFnProvider) DefaultModel() string { return "test" }
func (u *unknownFnProvider) Initialize(Config) error { return nil }
func (u *unknownFnProvider) GenerateCompletion(context.Context, []Message, CompletionOptions) (Completion, error) {
	return Completion{}, nil
}
func (u *unknownFnProvider) CallFunction(context.Context, []Message, FunctionDef, any) error {
	u.calls++
	return ErrUnknownFunction
}
