package workflow

import (
	"context"
	"testing"

	"github.com/harvestcore/harvest/internal/har"
	"github.com/harvestcore/harvest/internal/llm"
)

type stubProvider struct {
	url string
	err error
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
	out.URL = s.url
	return nil
}

func TestIdentifyReturnsModelChoice(t *testing.T) {
	summaries := []har.URLSummary{
		{Method: "GET", URL: "https://example.com/static"},
		{Method: "POST", URL: "https://example.com/api/login", ResponseType: "application/json"},
	}
	got, err := Identify(context.Background(), &stubProvider{url: "https://example.com/api/login"}, "log in", summaries)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if got.URL != "https://example.com/api/login" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestIdentifyFallsBackToFirstAPITagged(t *testing.T) {
	summaries := []har.URLSummary{
		{Method: "GET", URL: "https://example.com/static"},
		{Method: "POST", URL: "https://example.com/api/login", ResponseType: "application/json"},
	}
	got, err := Identify(context.Background(), &stubProvider{url: "https://not-in-list.example.com"}, "log in", summaries)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if got.URL != "https://example.com/api/login" {
		t.Fatalf("expected API fallback, got %+v", got)
	}
}

func TestIdentifyNoCandidates(t *testing.T) {
	_, err := Identify(context.Background(), &stubProvider{}, "log in", nil)
	if err == nil {
		t.Fatal("expected NoCandidates error")
	}
}
