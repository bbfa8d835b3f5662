package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kpoilly/AIOps-Agent-Experiments/internal/capability"
	"github.com/kpoilly/AIOps-Agent-Experiments/internal/llm/types"
	"github.com/kpoilly/AIOps-Agent-Experiments/internal/reasoning/engine"
)

// Completer is a chat-completion client. *openai.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, messages []types.Message, tools []types.Tool) (*types.CompletionResponse, error)
	Model() string
}

// Backend implements engine.Backend over a Completer.
type Backend struct {
	client   Completer
	provider ProviderType
	observer Observer
	counter  TokenCounter
	logger   *zap.Logger
}

var _ engine.Backend = (*Backend)(nil)

// NewBackend wraps an existing client.
func NewBackend(client Completer, provider ProviderType, opts ...Option) *Backend {
	b := &Backend{
		client:   client,
		provider: provider,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Provider returns the provider name.
func (b *Backend) Provider() ProviderType { return b.provider }

// Model returns the model name.
func (b *Backend) Model() string { return b.client.Model() }

// Complete sends the conversation and returns the raw assistant turn. Every
// failure is wrapped in engine.ErrReasoningUnavailable.
func (b *Backend) Complete(ctx context.Context, history []engine.Entry, descriptors []capability.Descriptor) (engine.Reply, error) {
	messages, err := ToMessages(history)
	if err != nil {
		return engine.Reply{}, fmt.Errorf("%w: %v", engine.ErrReasoningUnavailable, err)
	}
	tools := ToTools(descriptors)

	estimated := 0
	if b.counter != nil {
		estimated = b.counter.Count(messages)
	}

	start := time.Now()
	resp, err := b.client.Complete(ctx, messages, tools)
	duration := time.Since(start)

	status := "success"
	var usage types.TokenUsage
	if err != nil {
		status = "error"
	} else {
		usage = resp.Usage
		if usage.TotalTokens == 0 && estimated > 0 {
			usage.PromptTokens = estimated
			usage.TotalTokens = estimated
		}
	}
	if b.observer != nil {
		b.observer.ObserveLLMRequest(string(b.provider), b.client.Model(), status, duration, usage)
	}

	if err != nil {
		b.logger.Warn("llm request failed",
			zap.String("provider", string(b.provider)),
			zap.String("model", b.client.Model()),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return engine.Reply{}, fmt.Errorf("%w: %v", engine.ErrReasoningUnavailable, err)
	}

	b.logger.Debug("llm request completed",
		zap.String("model", b.client.Model()),
		zap.Int("tools", len(tools)),
		zap.Int("tool_calls", len(resp.ToolCalls)),
		zap.Int("total_tokens", usage.TotalTokens),
		zap.Duration("duration", duration),
	)

	reply := engine.Reply{Content: resp.Content}
	for _, tc := range resp.ToolCalls {
		reply.Requests = append(reply.Requests, engine.CapabilityRequest{
			ID:        tc.ID,
			Name:      tc.Name,
			Arguments: tc.Arguments,
		})
	}
	return reply, nil
}

// ToTools converts capability descriptors into tool definitions.
func ToTools(descriptors []capability.Descriptor) []types.Tool {
	if len(descriptors) == 0 {
		return nil
	}
	tools := make([]types.Tool, len(descriptors))
	for i, d := range descriptors {
		tools[i] = types.Tool{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
	}
	return tools
}

// ToMessages converts conversation entries into chat messages.
func ToMessages(history []engine.Entry) ([]types.Message, error) {
	messages := make([]types.Message, 0, len(history))
	for _, e := range history {
		switch e.Role {
		case engine.RoleSystem:
			messages = append(messages, types.Message{Role: types.RoleSystem, Content: e.Content})
		case engine.RoleUser:
			messages = append(messages, types.Message{Role: types.RoleUser, Content: e.Content})
		case engine.RoleAssistant:
			m := types.Message{Role: types.RoleAssistant, Content: e.Content}
			if req := e.Request; req != nil {
				if req.ID != "" {
					m.ToolCalls = []types.ToolCall{{ID: req.ID, Type: "function", Name: req.Name, Arguments: req.Arguments}}
				} else {
					args, err := json.Marshal(req.Arguments)
					if err != nil {
						return nil, fmt.Errorf("encode arguments of %s: %w", req.Name, err)
					}
					m.Content = strings.TrimSpace(fmt.Sprintf("%s\nCalling %s with %s", e.Content, req.Name, args))
				}
			}
			messages = append(messages, m)
		case engine.RoleObservation:
			if e.RequestID != "" {
				messages = append(messages, types.Message{Role: types.RoleTool, ToolCallID: e.RequestID, Content: e.Content})
			} else {
				messages = append(messages, types.Message{Role: types.RoleUser, Content: "Observation: " + e.Content})
			}
		default:
			return nil, fmt.Errorf("unknown entry role %q", e.Role)
		}
	}
	return messages, nil
}
