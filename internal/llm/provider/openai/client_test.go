package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kpoilly/AIOps-Agent-Experiments/internal/llm/types"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		wantError bool
		wantModel string
	}{
		{name: "Valid configuration", opts: Options{APIKey: "gsk-test", Model: DefaultGroqModel, BaseURL: GroqBaseURL}, wantModel: DefaultGroqModel},
		{name: "Empty API key", opts: Options{Model: "gpt-4o"}, wantError: true},
		{name: "Default model", opts: Options{APIKey: "sk-test"}, wantModel: DefaultModel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.opts)
			if tt.wantError {
				if err == nil {
					t.Errorf("NewClient() expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewClient() unexpected error: %v", err)
			}
			if client.Model() != tt.wantModel {
				t.Errorf("Expected model %s, got %s", tt.wantModel, client.Model())
			}
		})
	}
}

// captureServer records the last request body and replies with reply.
func captureServer(t *testing.T, status int, reply string, got *chatRequest) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		if got != nil {
			if err := json.Unmarshal(body, got); err != nil {
				t.Errorf("request is not JSON: %v", err)
			}
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Options{APIKey: "sk-test", Model: "test-model", Temperature: 0.1})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	client.SetBaseURL(srv.URL + "/")
	return client
}

func TestComplete_ToolCall(t *testing.T) {
	reply := `{
	  "id": "chatcmpl-1",
	  "model": "test-model",
	  "choices": [{
	    "index": 0,
	    "message": {
	      "role": "assistant",
	      "content": null,
	      "tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "PrometheusQuery", "arguments": "{\"query\":\"model_rmse\",\"time_range_minutes\":15}"}}]
	    },
	    "finish_reason": "tool_calls"
	  }],
	  "usage": {"prompt_tokens": 120, "completion_tokens": 30, "total_tokens": 150}
	}`

	var req chatRequest
	client := captureServer(t, http.StatusOK, reply, &req)

	resp, err := client.Complete(context.Background(),
		[]types.Message{{Role: types.RoleUser, Content: "Diagnose this alert"}},
		[]types.Tool{{Name: "PrometheusQuery", Description: "query", Parameters: map[string]interface{}{"type": "object"}}},
	)
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}

	if req.Model != "test-model" || req.Temperature != 0.1 {
		t.Errorf("unexpected request model/temperature: %s %v", req.Model, req.Temperature)
	}
	if len(req.Tools) != 1 || req.Tools[0].Type != "function" || req.ToolChoice != "auto" {
		t.Errorf("tools not sent as functions: %+v", req.Tools)
	}

	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	call := resp.ToolCalls[0]
	if call.ID != "call_1" || call.Name != "PrometheusQuery" {
		t.Errorf("unexpected tool call %+v", call)
	}
	if call.Arguments["query"] != "model_rmse" || call.Arguments["time_range_minutes"] != float64(15) {
		t.Errorf("unexpected arguments %+v", call.Arguments)
	}
	if resp.Usage.TotalTokens != 150 || resp.FinishReason != "tool_calls" {
		t.Errorf("unexpected usage/finish: %+v %s", resp.Usage, resp.FinishReason)
	}
}

func TestComplete_NoToolsOmitsTools(t *testing.T) {
	reply := `{"model":"test-model","choices":[{"message":{"role":"assistant","content":"The model is drifting."},"finish_reason":"stop"}]}`

	var req chatRequest
	client := captureServer(t, http.StatusOK, reply, &req)

	resp, err := client.Complete(context.Background(), []types.Message{{Role: types.RoleUser, Content: "summarize"}}, nil)
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if len(req.Tools) != 0 || req.ToolChoice != "" {
		t.Errorf("expected no tools, got %+v", req.Tools)
	}
	if resp.Content != "The model is drifting." {
		t.Errorf("unexpected content %q", resp.Content)
	}
}

func TestComplete_EncodesToolHistory(t *testing.T) {
	reply := `{"choices":[{"message":{"role":"assistant","content":"done"}}]}`

	var req chatRequest
	client := captureServer(t, http.StatusOK, reply, &req)

	history := []types.Message{
		{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{{ID: "call_1", Name: "LokiLogSearch", Arguments: map[string]interface{}{"query": `{job="x"}`}}}},
		{Role: types.RoleTool, ToolCallID: "call_1", Content: "no logs"},
	}
	if _, err := client.Complete(context.Background(), history, nil); err != nil {
		t.Fatalf("Complete() error: %v", err)
	}

	if len(req.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(req.Messages))
	}
	sent := req.Messages[0].ToolCalls
	if len(sent) != 1 || sent[0].Function.Arguments != `{"query":"{job=\"x\"}"}` {
		t.Errorf("tool call arguments not JSON-encoded: %+v", sent)
	}
	if req.Messages[1].ToolCallID != "call_1" {
		t.Errorf("tool message lost its call ID")
	}
}

func TestComplete_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		reply     string
		malformed bool
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, reply: `{"error":"slow down"}`},
		{name: "no choices", status: http.StatusOK, reply: `{"choices":[]}`, malformed: true},
		{name: "not json", status: http.StatusOK, reply: `<html>`, malformed: true},
		{name: "bad tool arguments", status: http.StatusOK, malformed: true,
			reply: `{"choices":[{"message":{"tool_calls":[{"id":"c","type":"function","function":{"name":"X","arguments":"{oops"}}]}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := captureServer(t, tt.status, tt.reply, nil)
			_, err := client.Complete(context.Background(), []types.Message{{Role: types.RoleUser, Content: "x"}}, nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.malformed != errors.Is(err, ErrMalformedResponse) {
				t.Errorf("errors.Is(ErrMalformedResponse) = %v, want %v (%v)", !tt.malformed, tt.malformed, err)
			}
			var se *StatusError
			if !tt.malformed && (!errors.As(err, &se) || se.StatusCode != tt.status) {
				t.Errorf("expected StatusError %d, got %v", tt.status, err)
			}
		})
	}
}
