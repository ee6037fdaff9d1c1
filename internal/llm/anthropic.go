package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kilohq/kilo/internal/kiloerr"
	"github.com/kilohq/kilo/pkg/models"
)

const (
	defaultThinkingBudget = 10000
	thinkingSummaryMax    = 500

	// Interleaved thinking with tool use requires an opt-in beta header.
	interleavedThinkingBeta = "interleaved-thinking-2025-05-14"
)

// AnthropicProvider backs completions with the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	apiKey string
}

func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		apiKey: apiKey,
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Available() bool { return p.apiKey != "" }

func (p *AnthropicProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  convertMessages(req.Messages),
		MaxTokens: req.MaxTokens,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}

	var opts []option.RequestOption
	if req.Thinking != nil {
		budget := req.Thinking.BudgetTokens
		if budget < 1024 {
			budget = defaultThinkingBudget
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
		// Temperature is mutually exclusive with thinking; req.Temperature
		// is ignored here by contract.
		if len(req.Tools) > 0 {
			opts = append(opts, option.WithHeaderAdd("anthropic-beta", interleavedThinkingBeta))
		}
	} else if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	msg, err := p.client.Messages.New(ctx, params, opts...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, kiloerr.Wrap(err, kiloerr.CodeLLMTimeout, "anthropic request timed out")
		}
		return nil, kiloerr.Wrap(err, kiloerr.CodeLLM, "anthropic request failed").
			WithDetail("provider", p.Name()).
			WithDetail("model", req.Model)
	}
	return convertResponse(msg, req.Model), nil
}

func convertMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			continue
		}
		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, tr := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
		}
		for _, tc := range msg.ToolCalls {
			var input map[string]any
			if err := json.Unmarshal(tc.Input, &input); err != nil {
				input = map[string]any{}
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}
		if msg.Role == models.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(content...))
		} else {
			out = append(out, anthropic.NewUserMessage(content...))
		}
	}
	return out
}

func convertTools(tools []ToolDef) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Parameters, &schema); err != nil {
			return nil, kiloerr.Wrap(err, kiloerr.CodeLLM, "invalid tool schema: "+tool.Name)
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool != nil {
			param.OfTool.Description = anthropic.String(tool.Description)
		}
		out = append(out, param)
	}
	return out, nil
}

func convertResponse(msg *anthropic.Message, model string) *Response {
	resp := &Response{
		Provider:         "anthropic",
		Model:            model,
		PromptTokens:     msg.Usage.InputTokens,
		CompletionTokens: msg.Usage.OutputTokens,
		StopReason:       string(msg.StopReason),
	}
	var text, thinking strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "thinking":
			thinking.WriteString(block.Thinking)
		case "tool_use":
			tu := block.AsToolUse()
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:    tu.ID,
				Name:  tu.Name,
				Input: json.RawMessage(tu.Input),
			})
		}
	}
	resp.Content = text.String()
	resp.ThinkingSummary = truncateThinking(thinking.String())
	return resp
}

// truncateThinking bounds the opaque thinking summary attached to responses.
func truncateThinking(s string) string {
	if len(s) <= thinkingSummaryMax {
		return s
	}
	return s[:thinkingSummaryMax]
}
