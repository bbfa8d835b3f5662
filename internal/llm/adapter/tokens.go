package adapter

import (
	"encoding/json"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/kpoilly/AIOps-Agent-Experiments/internal/llm/types"
)

// TokenCounter estimates the prompt size of a message list.
type TokenCounter interface {
	Count(messages []types.Message) int
}

// CounterFunc adapts a function into a TokenCounter.
type CounterFunc func(messages []types.Message) int

func (f CounterFunc) Count(messages []types.Message) int { return f(messages) }

// Per-message framing overhead of the chat format.
const (
	tokensPerMessage = 4
	tokensPerReply   = 3
)

type tiktokenCounter struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// NewTokenCounter returns a tiktoken counter for model, falling back to
// cl100k_base for models tiktoken does not know (llama, mixtral).
func NewTokenCounter(model string) (TokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	return &tiktokenCounter{enc: enc}, nil
}

func (c *tiktokenCounter) Count(messages []types.Message) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := tokensPerReply
	for _, m := range messages {
		n += tokensPerMessage
		n += len(c.enc.Encode(m.Content, nil, nil))
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			n += len(c.enc.Encode(tc.Name, nil, nil))
			n += len(c.enc.Encode(string(args), nil, nil))
		}
	}
	return n
}
