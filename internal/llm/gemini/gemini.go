// Package gemini is a minimal, SDK-free reference implementation of
// llm.Provider against the Google Gemini generateContent function-calling
// API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/harvestcore/harvest/internal/errs"
	"github.com/harvestcore/harvest/internal/llm"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

// Provider talks to the Gemini generateContent endpoint directly over
// HTTP, matching the teacher's explicit-timeout HTTP client posture.
type Provider struct {
	apiKey  string
	model   string
	client  *http.Client
	baseURL string
}

func New() llm.Provider {
	return &Provider{baseURL: defaultBaseURL}
}

func init() {
	llm.Register("gemini", New)
}

func (p *Provider) Name() string         { return "gemini" }
func (p *Provider) DefaultModel() string { return "gemini-1.5-flash" }

func (p *Provider) Initialize(cfg llm.Config) error {
	if cfg.APIKey == "" {
		return errs.New(errs.KindMissingApiKey, "gemini: API key required")
	}
	p.apiKey = cfg.APIKey
	p.model = cfg.Model
	if p.model == "" {
		p.model = p.DefaultModel()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	p.client = &http.Client{Timeout: timeout}
	return nil
}

type geminiPart struct {
	Text         string        `json:"text,omitempty"`
	FunctionCall *geminiFnCall `json:"functionCall,omitempty"`
}

type geminiFnCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type functionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type geminiTool struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations"`
}

type geminiRequest struct {
	Contents         []geminiContent      `json:"contents"`
	Tools            []geminiTool         `json:"tools,omitempty"`
	GenerationConfig *generationConfig    `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	Temperature float64 `json:"temperature"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func toGeminiContents(messages []llm.Message) []geminiContent {
	out := make([]geminiContent, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		out = append(out, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	return out
}

func (p *Provider) CallFunction(ctx context.Context, messages []llm.Message, fn llm.FunctionDef, result any) error {
	reqBody := geminiRequest{
		Contents: toGeminiContents(messages),
		Tools: []geminiTool{{
			FunctionDeclarations: []functionDeclaration{{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  fn.Parameters,
			}},
		}},
	}
	resp, err := p.do(ctx, reqBody)
	if err != nil {
		return err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return errs.New(errs.KindLlmMalformedResponse, "gemini: no candidates returned")
	}
	var call *geminiFnCall
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.FunctionCall != nil {
			call = part.FunctionCall
			break
		}
	}
	if call == nil {
		return errs.New(errs.KindLlmMalformedResponse, "gemini: no function call in response")
	}
	if call.Name != fn.Name {
		return llm.ErrUnknownFunction
	}
	raw, err := json.Marshal(call.Args)
	if err != nil {
		return fmt.Errorf("%w: %v", llm.ErrArgumentParse, err)
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("%w: %v", llm.ErrArgumentParse, err)
	}
	return nil
}

func (p *Provider) GenerateCompletion(ctx context.Context, messages []llm.Message, opts llm.CompletionOptions) (llm.Completion, error) {
	reqBody := geminiRequest{
		Contents:         toGeminiContents(messages),
		GenerationConfig: &generationConfig{Temperature: opts.Temperature},
	}
	resp, err := p.do(ctx, reqBody)
	if err != nil {
		return llm.Completion{}, err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return llm.Completion{}, errs.New(errs.KindLlmMalformedResponse, "gemini: empty candidates")
	}
	return llm.Completion{Content: resp.Candidates[0].Content.Parts[0].Text}, nil
}

func (p *Provider) do(ctx context.Context, body geminiRequest) (*geminiResponse, error) {
	model := p.model
	if model == "" {
		model = p.DefaultModel()
	}
	url := fmt.Sprintf("%s/%s:generateContent?key=%s", p.baseURL, model, p.apiKey)

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.Wrap(errs.KindLlmTimeout, err, "gemini: request deadline exceeded")
		}
		return nil, errs.Wrap(errs.KindLlmUnavailable, err, "gemini: transport error")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, errs.New(errs.KindLlmUnavailable, "gemini: server error %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, errs.New(errs.KindLlmMalformedResponse, "gemini: status %d", resp.StatusCode)
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errs.Wrap(errs.KindLlmMalformedResponse, err, "gemini: malformed response body")
	}
	return &out, nil
}
