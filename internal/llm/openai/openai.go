// Package openai is a minimal, SDK-free reference implementation of
// llm.Provider against the OpenAI chat-completions function-calling API.
package openai

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

const defaultBaseURL = "https://api.openai.com/v1/chat/completions"

// Provider talks to the OpenAI chat-completions endpoint directly over
// HTTP, matching the teacher's upstreamClient posture: an explicit
// &http.Client{Timeout: ...}, never http.DefaultClient.
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
	llm.Register("openai", New)
}

func (p *Provider) Name() string         { return "openai" }
func (p *Provider) DefaultModel() string { return "gpt-4o-mini" }

func (p *Provider) Initialize(cfg llm.Config) error {
	if cfg.APIKey == "" {
		return errs.New(errs.KindMissingApiKey, "openai: API key required")
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

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type toolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type tool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []tool        `json:"tools,omitempty"`
	ToolChoice  any           `json:"tool_choice,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

func toChatMessages(messages []llm.Message) []chatMessage {
	out := make([]chatMessage, len(messages))
	for i, m := range messages {
		out[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

func (p *Provider) CallFunction(ctx context.Context, messages []llm.Message, fn llm.FunctionDef, result any) error {
	reqBody := chatRequest{
		Model:    p.model,
		Messages: toChatMessages(messages),
		Tools: []tool{{
			Type: "function",
			Function: toolFunction{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  fn.Parameters,
			},
		}},
		ToolChoice: map[string]any{"type": "function", "function": map[string]string{"name": fn.Name}},
	}
	resp, err := p.do(ctx, reqBody)
	if err != nil {
		return err
	}
	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return errs.New(errs.KindLlmMalformedResponse, "openai: no tool call returned")
	}
	call := resp.Choices[0].Message.ToolCalls[0]
	if call.Function.Name != fn.Name {
		return llm.ErrUnknownFunction
	}
	if err := json.Unmarshal([]byte(call.Function.Arguments), result); err != nil {
		return fmt.Errorf("%w: %v", llm.ErrArgumentParse, err)
	}
	return nil
}

func (p *Provider) GenerateCompletion(ctx context.Context, messages []llm.Message, opts llm.CompletionOptions) (llm.Completion, error) {
	model := opts.Model
	if model == "" {
		model = p.model
	}
	temp := opts.Temperature
	reqBody := chatRequest{Model: model, Messages: toChatMessages(messages), Temperature: &temp}
	resp, err := p.do(ctx, reqBody)
	if err != nil {
		return llm.Completion{}, err
	}
	if len(resp.Choices) == 0 {
		return llm.Completion{}, errs.New(errs.KindLlmMalformedResponse, "openai: empty choices")
	}
	return llm.Completion{Content: resp.Choices[0].Message.Content}, nil
}

func (p *Provider) do(ctx context.Context, body chatRequest) (*chatResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.Wrap(errs.KindLlmTimeout, err, "openai: request deadline exceeded")
		}
		return nil, errs.Wrap(errs.KindLlmUnavailable, err, "openai: transport error")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, errs.New(errs.KindLlmUnavailable, "openai: server error %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, errs.New(errs.KindLlmMalformedResponse, "openai: status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errs.Wrap(errs.KindLlmMalformedResponse, err, "openai: malformed response body")
	}
	return &out, nil
}
