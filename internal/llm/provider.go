// Package llm pins the external LLM provider contract (spec.md §6.3) that
// the analysis core depends on, plus the provider-selection and retry
// policy layered on top of any concrete implementation.
package llm

import (
	"context"
	"strings"
	"time"
)

// Role is the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat-style prompt.
type Message struct {
	Role    Role
	Content string
}

// FunctionDef declares a single callable function and its JSON-schema
// parameter shape, per spec.md §6.3.
type FunctionDef struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema object
}

// CompletionOptions configures a free-form generation call.
type CompletionOptions struct {
	Temperature float64
	Model       string
}

// Completion is the result of GenerateCompletion.
type Completion struct {
	Content string
}

// Config configures a Provider instance, per spec.md §6.4's
// llm.providers.{name}.* surface.
type Config struct {
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// Provider is the external collaborator contract the analysis core
// depends on. The core never depends on a concrete implementation.
type Provider interface {
	Name() string
	DefaultModel() string
	Initialize(cfg Config) error
	// CallFunction invokes functionDef and unmarshals the model's function
	// arguments into result (a pointer).
	CallFunction(ctx context.Context, messages []Message, fn FunctionDef, result any) error
	GenerateCompletion(ctx context.Context, messages []Message, opts CompletionOptions) (Completion, error)
}

// Factory constructs a fresh, uninitialized Provider by name.
type Factory func() Provider

var registry = map[string]Factory{}

// Register adds a provider constructor under name, called by adapter
// packages' init() functions.
func Register(name string, f Factory) {
	registry[name] = f
}

// KeyShape classifies an API key's provider by its literal prefix, per
// spec.md §6.3: "sk-*" ⇒ openai, "AIza*" ⇒ gemini, otherwise openai.
func KeyShape(apiKey string) string {
	switch {
	case strings.HasPrefix(apiKey, "sk-"):
		return "openai"
	case strings.HasPrefix(apiKey, "AIza"):
		return "gemini"
	default:
		return "openai"
	}
}

// SelectionInput carries every signal the precedence rule in spec.md §6.3
// considers, highest-priority field first.
type SelectionInput struct {
	ExplicitOverride string // per-call override
	CLIFlag          string // tool-parameter/CLI value
	EnvProvider      string // LLM_PROVIDER
	AvailableKeys    map[string]string // provider name -> API key, for auto-detect
}

// Select resolves which provider name to use, per spec.md §6.3's
// precedence: explicit override > CLI flag > environment > auto-detect.
// Returns "" if none of the signals resolve to a usable provider.
func Select(in SelectionInput) string {
	if in.ExplicitOverride != "" {
		return in.ExplicitOverride
	}
	if in.CLIFlag != "" {
		return in.CLIFlag
	}
	if in.EnvProvider != "" {
		return in.EnvProvider
	}
	for name, key := range in.AvailableKeys {
		if key == "" {
			continue
		}
		if KeyShape(key) == name {
			return name
		}
	}
	for name, key := range in.AvailableKeys {
		if key != "" {
			return name
		}
	}
	return ""
}

// New constructs the named provider, initializes it with cfg, and wraps it
// with WithRetry(cfg.MaxRetries).
func New(name string, cfg Config) (Provider, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, errNoProviderConfigured(name)
	}
	p := factory()
	if err := p.Initialize(cfg); err != nil {
		return nil, err
	}
	return WithRetry(p, cfg.MaxRetries), nil
}
