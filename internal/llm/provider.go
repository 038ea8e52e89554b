package llm

import (
	"context"
	"fmt"
)

// Message is one conversation turn sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options are per-request generation parameters. Zero values fall back to
// provider defaults.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Usage reports token consumption when the provider exposes it.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Completion is the provider's response to one generation request.
type Completion struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

// Provider dispatches chat completions to a language model backend. The
// system prompt travels separately from the conversation turns because
// providers differ in how they accept it.
type Provider interface {
	Complete(ctx context.Context, systemPrompt string, messages []Message, opts Options) (*Completion, error)
	Name() string
}

// ProviderConfig carries the settings needed to construct any provider.
type ProviderConfig struct {
	Provider        string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OllamaBaseURL   string
	DefaultModel    string
}

// NewProvider constructs the provider named in the configuration. The choice
// is explicit configuration, not environment probing; an unknown name is an
// error, not a fallback.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key")
		}
		return NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.DefaultModel), nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.DefaultModel), nil
	case "ollama":
		return NewOllamaProvider(cfg.OllamaBaseURL, cfg.DefaultModel), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
}
