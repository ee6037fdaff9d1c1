// Package llm routes completion requests to model providers by task type,
// with failover and extended-thinking support.
package llm

import (
	"context"
	"encoding/json"

	"github.com/kilohq/kilo/pkg/models"
)

// ThinkingConfig enables provider-side extended reasoning. Mutually
// exclusive with temperature on the request that carries it.
type ThinkingConfig struct {
	BudgetTokens int64
}

// ToolDef declares a callable tool for the model.
type ToolDef struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// ToolCall is the model's request to invoke a declared tool.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult feeds a tool's output back into the conversation.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// Message is one conversation turn in provider-neutral form.
type Message struct {
	Role        models.Role
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// Request is a provider-neutral completion request. Model is filled in by
// the gateway from the route; callers set only the content.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolDef
	MaxTokens   int64
	Temperature *float64
	Thinking    *ThinkingConfig
}

// Response is the provider's answer plus usage accounting.
type Response struct {
	Content          string
	ToolCalls        []ToolCall
	ThinkingSummary  string
	Provider         string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	StopReason       string
}

// Provider is a single model backend.
type Provider interface {
	Name() string
	// Available reports whether the provider is configured and usable.
	Available() bool
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// Port is the gateway abstraction the orchestrator depends on.
type Port interface {
	Complete(ctx context.Context, task models.TaskType, req *Request) (*Response, error)
}
