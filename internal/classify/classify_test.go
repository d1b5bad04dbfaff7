package classify

import (
	"context"
	"testing"

	"github.com/harvestcore/harvest/internal/llm"
)

type stubProvider struct {
	parts []string
	err   error
}

func (s *stubProvider) Name() string                 { return "stub" }
func (s *stubProvider) DefaultModel() string         { return "stub" }
func (s *stubProvider) Initialize(llm.Config) error  { return nil }
func (s *stubProvider) GenerateCompletion(context.Context, []llm.Message, llm.CompletionOptions) (llm.Completion, error) {
	return llm.Completion{}, nil
}
func (s *stubProvider) CallFunction(ctx context.Context, messages []llm.Message, fn llm.FunctionDef, result any) error {
	if s.err != nil {
		return s.err
	}
	out := result.(*functionResult)
	out.DynamicParts = s.parts
	return nil
}

func TestClassifySkipsJSAssets(t *testing.T) {
	p := &stubProvider{parts: []string{"abc123token"}}
	got, err := Classify(context.Background(), p, "curl -X GET 'https://example.com/app.js'", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no parts for .js asset, got %v", got)
	}
}

func TestClassifyPostFiltersStaticAndInputVariables(t *testing.T) {
	p := &stubProvider{parts: []string{"abc123token", "application/json", "x", "myuser", "abc123token"}}
	got, err := Classify(context.Background(), p, "curl -X GET 'https://example.com/api/search'", map[string]string{"username": "myuser"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(got) != 1 || got[0] != "abc123token" {
		t.Fatalf("expected only abc123token to survive filtering, got %v", got)
	}
}
