package inputvars

import (
	"context"
	"testing"

	"github.com/harvestcore/harvest/internal/llm"
)

type stubProvider struct{ names []string }

func (s *stubProvider) Name() string                { return "stub" }
func (s *stubProvider) DefaultModel() string        { return "stub" }
func (s *stubProvider) Initialize(llm.Config) error { return nil }
func (s *stubProvider) GenerateCompletion(context.Context, []llm.Message, llm.CompletionOptions) (llm.Completion, error) {
	return llm.Completion{}, nil
}
func (s *stubProvider) CallFunction(ctx context.Context, messages []llm.Message, fn llm.FunctionDef, result any) error {
	out := result.(*functionResult)
	out.VariableNames = s.names
	return nil
}

func TestBindEmptyVariablesShortCircuits(t *testing.T) {
	res, err := Bind(context.Background(), nil, "curl -X GET 'https://x'", nil, []string{"a", "b"})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if len(res.Bound) != 0 || len(res.Remaining) != 2 {
		t.Fatalf("expected short-circuit with all parts remaining, got %+v", res)
	}
}

func TestBindRemovesMatchedValues(t *testing.T) {
	p := &stubProvider{names: []string{"username"}}
	res, err := Bind(context.Background(), p, "curl -X GET 'https://x?u=myuser'", map[string]string{"username": "myuser"}, []string{"myuser", "other-token"})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if res.Bound["username"] != "myuser" {
		t.Fatalf("expected username bound, got %+v", res.Bound)
	}
	if len(res.Remaining) != 1 || res.Remaining[0] != "other-token" {
		t.Fatalf("expected only other-token remaining, got %v", res.Remaining)
	}
}
