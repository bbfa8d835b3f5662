// Package adapter turns a chat-completion provider into the reasoning
// backend of the diagnostic engine.
//
// Supported providers all speak the OpenAI chat-completions dialect:
//  1. Groq: the default, llama-3.3-70b-versatile
//  2. OpenAI: gpt-4o and friends
//  3. Custom: any compatible endpoint (vLLM, LocalAI, LM Studio) via base_url
//
// Conversation entries map onto chat messages as follows:
//
//	system/user          → system/user message
//	assistant            → assistant message, a capability request becomes a tool call
//	observation          → tool message answering the call, or a user message when
//	                       the request carried no call ID
package adapter

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kpoilly/AIOps-Agent-Experiments/internal/llm/provider/openai"
	"github.com/kpoilly/AIOps-Agent-Experiments/internal/llm/types"
)

// ProviderType identifies the configured LLM provider.
type ProviderType string

const (
	ProviderGroq   ProviderType = "groq"
	ProviderOpenAI ProviderType = "openai"
	ProviderCustom ProviderType = "custom"
)

// Config holds LLM provider configuration.
type Config struct {
	Provider    ProviderType
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Observer receives one call per provider request.
type Observer interface {
	ObserveLLMRequest(provider, model, status string, duration time.Duration, usage types.TokenUsage)
}

// Option configures a Backend.
type Option func(*Backend)

// WithObserver reports every request to o.
func WithObserver(o Observer) Option {
	return func(b *Backend) { b.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithTokenCounter estimates prompt tokens when the provider reports no usage.
func WithTokenCounter(c TokenCounter) Option {
	return func(b *Backend) { b.counter = c }
}

// New builds the provider client described by cfg and wraps it as a Backend.
func New(cfg Config, opts ...Option) (*Backend, error) {
	provider := ProviderType(strings.ToLower(string(cfg.Provider)))
	if provider == "" {
		provider = ProviderGroq
	}

	clientOpts := openai.Options{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout,
	}

	switch provider {
	case ProviderGroq:
		if clientOpts.BaseURL == "" {
			clientOpts.BaseURL = openai.GroqBaseURL
		}
		if clientOpts.Model == "" {
			clientOpts.Model = openai.DefaultGroqModel
		}
	case ProviderOpenAI:
		if clientOpts.BaseURL == "" {
			clientOpts.BaseURL = openai.DefaultBaseURL
		}
	case ProviderCustom:
		if clientOpts.BaseURL == "" {
			return nil, fmt.Errorf("custom provider requires a base URL")
		}
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}

	client, err := openai.NewClient(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", provider, err)
	}
	return NewBackend(client, provider, opts...), nil
}
