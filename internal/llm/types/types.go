// Package types holds the provider-neutral chat-completion wire model shared
// by the LLM providers and the reasoning adapter.
package types

// Roles understood by chat-completion providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a message in a conversation
type Message struct {
	Role       string     `json:"role"`                   // system, user, assistant, tool
	Content    string     `json:"content"`                // message text
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // calls requested by an assistant message
	ToolCallID string     `json:"tool_call_id,omitempty"` // call answered by a tool message
}

// Tool represents a tool/function definition that can be called by the LLM
type Tool struct {
	Name        string                 `json:"name"`        // tool name
	Description string                 `json:"description"` // what the tool does
	Parameters  map[string]interface{} `json:"parameters"`  // JSON schema for parameters
}

// ToolCall represents a tool call made by the LLM
type ToolCall struct {
	ID        string                 `json:"id"`        // unique call ID
	Type      string                 `json:"type"`      // always "function" for OpenAI-compatible APIs
	Name      string                 `json:"name"`      // tool name
	Arguments map[string]interface{} `json:"arguments"` // tool arguments
}

// CompletionResponse represents a completion response
type CompletionResponse struct {
	Content      string     `json:"content"`       // generated text
	ToolCalls    []ToolCall `json:"tool_calls"`    // tools called
	Usage        TokenUsage `json:"usage"`         // token usage
	FinishReason string     `json:"finish_reason"` // stop, tool_calls, length
	Model        string     `json:"model"`         // model that served the request
}

// TokenUsage tracks token usage
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`     // input tokens
	CompletionTokens int `json:"completion_tokens"` // output tokens
	TotalTokens      int `json:"total_tokens"`      // total tokens
}
