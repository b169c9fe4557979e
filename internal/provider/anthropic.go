package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// AnthropicProvider implements Provider for the Anthropic Messages API.
// Structurally mirrors OpenAIProvider: build request params, start a
// streaming call, and assemble unified Events from vendor-specific deltas
// in a background goroutine.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

func NewAnthropicProvider(apiKey, baseURL, model string) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = "claude-sonnet-4-5-20250929"
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

func (p *AnthropicProvider) Name() string         { return "anthropic" }
func (p *AnthropicProvider) Models() []string      { return []string{p.model} }
func (p *AnthropicProvider) DefaultModel() string { return p.model }

func (p *AnthropicProvider) ContextWindow() int {
	switch {
	case strings.Contains(p.model, "claude-3-5"), strings.Contains(p.model, "claude-3-7"):
		return 200000
	case strings.Contains(p.model, "claude-sonnet-4"), strings.Contains(p.model, "claude-opus-4"):
		return 200000
	default:
		return 200000
	}
}

func (p *AnthropicProvider) Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error) {
	msgs := p.buildMessages(req)
	tools := p.buildTools(req.Tools)

	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if len(tools) > 0 {
		params.Tools = tools
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = anthropic.Float(*req.TopP)
	}

	stream := p.client.Messages.NewStreaming(ctx, params)

	ch := make(chan Event, 16)
	go p.processStream(ctx, stream, ch)
	return ch, nil
}

// processStream reads the Anthropic SSE stream and emits unified events.
//
// Anthropic streaming tool use key behavior (mirrors OpenAI's index-keyed
// assembly in openai.go, but keyed by content block index instead):
//   - content_block_start carries the tool_use block's id/name with an
//     empty input
//   - content_block_delta carries incremental partial_json fragments for
//     that same index, concatenated until content_block_stop
//   - message_delta carries cumulative usage; arrives before message_stop
func (p *AnthropicProvider) processStream(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], ch chan<- Event) {
	defer close(ch)

	type pendingCall struct {
		id      string
		name    string
		jsonBuf strings.Builder
	}
	pending := make(map[int64]*pendingCall)
	var callOrder []int64
	var usage Usage

	for stream.Next() {
		select {
		case <-ctx.Done():
			ch <- Event{Type: EventError, Error: ctx.Err()}
			return
		default:
		}

		event := stream.Current()
		switch event.Type {
		case "message_start":
			if u := event.Message.Usage; u.InputTokens > 0 {
				usage.InputTokens = int(u.InputTokens)
			}

		case "content_block_start":
			if tu := event.ContentBlock.AsToolUse(); tu.Type == "tool_use" {
				idx := event.Index
				pending[idx] = &pendingCall{id: tu.ID, name: tu.Name}
				callOrder = append(callOrder, idx)
			}

		case "content_block_delta":
			switch delta := event.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text != "" {
					ch <- Event{Type: EventTextDelta, TextDelta: delta.Text}
				}
			case anthropic.InputJSONDelta:
				if pc, ok := pending[event.Index]; ok {
					pc.jsonBuf.WriteString(delta.PartialJSON)
				}
			}

		case "message_delta":
			if event.Usage.OutputTokens > 0 {
				usage.OutputTokens = int(event.Usage.OutputTokens)
			}

		case "message_stop":
			for _, idx := range callOrder {
				pc := pending[idx]
				inputJSON := pc.jsonBuf.String()
				if inputJSON == "" {
					inputJSON = "{}"
				}
				ch <- Event{
					Type: EventToolCallDone,
					ToolCall: &ToolCallRequest{
						ID:    pc.id,
						Name:  pc.name,
						Input: json.RawMessage(inputJSON),
					},
				}
			}
			ch <- Event{Type: EventDone, Usage: &usage}
			return
		}
	}

	if err := stream.Err(); err != nil {
		ch <- Event{Type: EventError, Error: fmt.Errorf("anthropic streaming error: %w", err)}
		return
	}

	for _, idx := range callOrder {
		pc := pending[idx]
		inputJSON := pc.jsonBuf.String()
		if inputJSON == "" {
			inputJSON = "{}"
		}
		ch <- Event{
			Type: EventToolCallDone,
			ToolCall: &ToolCallRequest{
				ID:    pc.id,
				Name:  pc.name,
				Input: json.RawMessage(inputJSON),
			},
		}
	}
	ch <- Event{Type: EventDone, Usage: &usage}
}

// buildMessages converts unified Message types to Anthropic API params.
func (p *AnthropicProvider) buildMessages(req *ChatRequest) []anthropic.MessageParam {
	var params []anthropic.MessageParam

	for _, msg := range req.Messages {
		var blocks []anthropic.ContentBlockParamUnion
		for _, c := range msg.Content {
			switch c.Type {
			case ContentTypeText:
				if c.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(c.Text))
				}
			case ContentTypeToolUse:
				blocks = append(blocks, anthropic.NewToolUseBlock(c.ToolUseID, json.RawMessage(c.ToolInput), c.ToolName))
			case ContentTypeToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(c.ToolUseID, c.ToolResult, c.IsError))
			case ContentTypeImage:
				blocks = append(blocks, anthropic.NewImageBlockBase64(c.ImageMediaType, c.ImageData))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		switch msg.Role {
		case RoleUser:
			params = append(params, anthropic.NewUserMessage(blocks...))
		case RoleAssistant:
			params = append(params, anthropic.NewAssistantMessage(blocks...))
		}
	}
	return params
}

// buildTools converts unified ToolSchema to Anthropic tool params.
func (p *AnthropicProvider) buildTools(tools []ToolSchema) []anthropic.ToolUnionParam {
	var result []anthropic.ToolUnionParam
	for _, t := range tools {
		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: t.Parameters,
				},
			},
		})
	}
	return result
}
