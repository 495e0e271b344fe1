// Package anthropic provides a model.LanguageModel backed by the Anthropic
// Messages API. Streaming content-block events are translated into canonical
// stream parts.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/tidwall/gjson"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/model"
	"github.com/hupe1980/agentstream/stream"
)

// Options configures the Anthropic model adapter (temperature, model id,
// max tokens, API key). Per-call model.Settings take precedence.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	BaseURL     string
}

// Model wraps the Anthropic Messages API behind model.LanguageModel.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates a new Anthropic model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions(optFns...)

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	return &Model{client: client, opts: defaultOptions(optFns...)}
}

func defaultOptions(optFns ...func(o *Options)) Options {
	opts := Options{
		Model:       anthropic.ModelClaudeSonnet4_5,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return opts
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Provider:      "anthropic",
		ModelID:       string(m.opts.Model),
		SupportsTools: true,
	}
}

// DoStream implements model.LanguageModel.
func (m *Model) DoStream(ctx context.Context, opts model.CallOptions) (*model.StreamResult, error) {
	params, err := m.buildParams(opts)
	if err != nil {
		return nil, err
	}

	src := func(yield func(stream.Event, error) bool) {
		sdkStream := m.client.Messages.NewStreaming(ctx, params, requestOptions(opts.Settings)...)
		defer sdkStream.Close()

		tr := newTranslator()

		for sdkStream.Next() {
			for _, ev := range tr.event(sdkStream.Current(), opts.IncludeRaw) {
				if !yield(ev, nil) {
					return
				}
			}
		}

		if err := sdkStream.Err(); err != nil {
			yield(stream.Event{}, fmt.Errorf("anthropic streaming error: %w", err))
		}
	}

	return &model.StreamResult{Stream: src}, nil
}

// DoGenerate implements model.LanguageModel with a non-streaming request.
func (m *Model) DoGenerate(ctx context.Context, opts model.CallOptions) (*model.GenerateResult, error) {
	params, err := m.buildParams(opts)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Messages.New(ctx, params, requestOptions(opts.Settings)...)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var parts []core.Part

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				parts = append(parts, core.TextPart{Text: block.Text})
			}
		case "thinking":
			parts = append(parts, core.ReasoningPart{Text: block.Thinking})
		case "tool_use", "server_tool_use":
			input := string(block.Input)
			if input == "" {
				input = "{}"
			}
			parts = append(parts, core.ToolCallPart{
				ToolCallID:       block.ID,
				ToolName:         block.Name,
				Input:            input,
				ProviderExecuted: block.Type == "server_tool_use",
			})
		case "web_search_tool_result":
			parts = append(parts, core.ToolResultPart{
				ToolCallID: block.ToolUseID,
				ToolName:   "web_search",
				Output:     core.JSONOutput(gjson.Get(block.RawJSON(), "content").Value()),
			})
		}
	}

	usage := core.Usage{
		InputTokens:       resp.Usage.InputTokens,
		OutputTokens:      resp.Usage.OutputTokens,
		TotalTokens:       resp.Usage.InputTokens + resp.Usage.OutputTokens,
		CachedInputTokens: resp.Usage.CacheReadInputTokens,
	}

	return &model.GenerateResult{
		Content:      parts,
		FinishReason: mapStopReason(string(resp.StopReason)),
		Usage:        usage,
		Response:     stream.ResponseMetadata{ID: resp.ID, ModelID: string(resp.Model)},
	}, nil
}

type blockState struct {
	kind     string
	id       string
	toolName string
	input    strings.Builder
	initial  string
	provider bool
}

// translator maps message stream events onto canonical parts. Content
// blocks are keyed by their index within the message.
type translator struct {
	blocks map[int64]*blockState
	reason string
	usage  core.Usage
}

func newTranslator() *translator {
	return &translator{blocks: map[int64]*blockState{}}
}

func (t *translator) event(ev anthropic.MessageStreamEventUnion, includeRaw bool) []stream.Event {
	raw := stream.Event{Native: ev}
	if !includeRaw {
		raw.Native = nil
	}

	switch ev.Type {
	case "message_start":
		t.usage.InputTokens = ev.Message.Usage.InputTokens
		t.usage.CachedInputTokens = ev.Message.Usage.CacheReadInputTokens

		return []stream.Event{
			{Part: stream.StreamStart{}},
			{Part: stream.ResponseMetadata{ID: ev.Message.ID, ModelID: string(ev.Message.Model)}},
		}
	case "content_block_start":
		return t.blockStart(ev.Index, ev.ContentBlock)
	case "content_block_delta":
		return t.blockDelta(ev.Index, ev.Delta, raw)
	case "content_block_stop":
		return t.blockStop(ev.Index)
	case "message_delta":
		if ev.Delta.StopReason != "" {
			t.reason = string(ev.Delta.StopReason)
		}
		t.usage.OutputTokens = ev.Usage.OutputTokens
		if ev.Usage.InputTokens > 0 {
			t.usage.InputTokens = ev.Usage.InputTokens
		}
		return nil
	case "message_stop":
		t.usage.TotalTokens = t.usage.InputTokens + t.usage.OutputTokens
		return []stream.Event{{Part: stream.Finish{Reason: mapStopReason(t.reason), Usage: t.usage}}}
	}

	return []stream.Event{raw}
}

func (t *translator) blockStart(idx int64, cb anthropic.ContentBlockStartEventContentBlockUnion) []stream.Event {
	id := strconv.FormatInt(idx, 10)

	switch cb.Type {
	case "text":
		t.blocks[idx] = &blockState{kind: "text", id: id}
		return []stream.Event{{Part: stream.TextStart{ID: id}}}
	case "thinking", "redacted_thinking":
		t.blocks[idx] = &blockState{kind: "reasoning", id: id}
		return []stream.Event{{Part: stream.ReasoningStart{ID: id}}}
	case "tool_use", "server_tool_use":
		bs := &blockState{
			kind:     "tool",
			id:       cb.ID,
			toolName: cb.Name,
			provider: cb.Type == "server_tool_use",
		}
		if in := gjson.Get(cb.RawJSON(), "input"); in.IsObject() && len(in.Map()) > 0 {
			bs.initial = in.Raw
		}
		t.blocks[idx] = bs

		return []stream.Event{{Part: stream.ToolInputStart{ID: cb.ID, ToolName: cb.Name, ProviderExecuted: bs.provider}}}
	case "web_search_tool_result":
		return []stream.Event{{Part: stream.ToolResult{
			ToolCallID:       cb.ToolUseID,
			ToolName:         "web_search",
			Result:           gjson.Get(cb.RawJSON(), "content").Value(),
			ProviderExecuted: true,
		}}}
	}

	return nil
}

func (t *translator) blockDelta(idx int64, d anthropic.MessageStreamEventUnionDelta, raw stream.Event) []stream.Event {
	bs, ok := t.blocks[idx]
	if !ok {
		return []stream.Event{raw}
	}

	switch d.Type {
	case "text_delta":
		return []stream.Event{{Part: stream.TextDelta{ID: bs.id, Delta: d.Text}}}
	case "thinking_delta":
		return []stream.Event{{Part: stream.ReasoningDelta{ID: bs.id, Delta: d.Thinking}}}
	case "input_json_delta":
		if d.PartialJSON == "" {
			return nil
		}
		bs.input.WriteString(d.PartialJSON)
		return []stream.Event{{Part: stream.ToolCallDelta{ID: bs.id, Delta: d.PartialJSON}}}
	}

	return []stream.Event{raw}
}

func (t *translator) blockStop(idx int64) []stream.Event {
	bs, ok := t.blocks[idx]
	if !ok {
		return nil
	}

	delete(t.blocks, idx)

	switch bs.kind {
	case "text":
		return []stream.Event{{Part: stream.TextEnd{ID: bs.id}}}
	case "reasoning":
		return []stream.Event{{Part: stream.ReasoningEnd{ID: bs.id}}}
	}

	input := bs.input.String()
	if input == "" {
		input = bs.initial
	}

	if input == "" {
		input = "{}"
	}

	return []stream.Event{
		{Part: stream.ToolInputEnd{ID: bs.id}},
		{Part: stream.ToolCall{
			ToolCallID:       bs.id,
			ToolName:         bs.toolName,
			Input:            input,
			ProviderExecuted: bs.provider,
		}},
	}
}

func mapStopReason(raw string) stream.ReportedFinishReason {
	unified := core.FinishReasonUnknown

	switch anthropic.StopReason(raw) {
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence, anthropic.StopReasonPauseTurn:
		unified = core.FinishReasonStop
	case anthropic.StopReasonMaxTokens:
		unified = core.FinishReasonLength
	case anthropic.StopReasonToolUse:
		unified = core.FinishReasonToolCalls
	case anthropic.StopReasonRefusal:
		unified = core.FinishReasonContentFilter
	}

	return stream.ReportedFinishReason{Unified: string(unified), Raw: raw}
}

func requestOptions(s model.Settings) []option.RequestOption {
	var out []option.RequestOption
	for k, v := range s.Headers {
		out = append(out, option.WithHeader(k, v))
	}

	if s.MaxRetries != nil {
		out = append(out, option.WithMaxRetries(*s.MaxRetries))
	}

	return out
}

func (m *Model) buildParams(opts model.CallOptions) (anthropic.MessageNewParams, error) {
	messages, err := buildMessages(opts.Prompt)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	s := opts.Settings
	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		Messages:    messages,
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
	}

	if s.MaxOutputTokens != nil {
		params.MaxTokens = *s.MaxOutputTokens
	}

	if s.Temperature != nil {
		params.Temperature = anthropic.Float(*s.Temperature)
	}

	if s.TopP != nil {
		params.TopP = anthropic.Float(*s.TopP)
	}

	if s.TopK != nil {
		params.TopK = anthropic.Int(*s.TopK)
	}

	if len(s.StopSequences) > 0 {
		params.StopSequences = s.StopSequences
	}

	if systemBlocks := extractSystem(opts.Prompt); len(systemBlocks) > 0 {
		params.System = systemBlocks
	}

	if len(opts.Tools) > 0 {
		params.Tools = buildTools(opts.Tools)
	}

	if tc := opts.ToolChoice; tc != nil {
		switch tc.Type {
		case model.ToolChoiceAuto:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
		case model.ToolChoiceRequired:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
		case model.ToolChoiceNone:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
		case model.ToolChoiceTool:
			params.ToolChoice = anthropic.ToolChoiceParamOfTool(tc.ToolName)
		}
	}

	return params, nil
}

// buildMessages converts the prompt to Anthropic messages. System messages
// travel separately; tool results are sent in a user turn.
func buildMessages(prompt core.Prompt) ([]anthropic.MessageParam, error) {
	var messages []anthropic.MessageParam

	for _, msg := range prompt {
		var content []anthropic.ContentBlockParamUnion

		switch msg.Role {
		case core.RoleSystem:
			continue
		case core.RoleUser:
			for _, p := range msg.Parts {
				switch part := p.(type) {
				case core.TextPart:
					if part.Text != "" {
						content = append(content, anthropic.NewTextBlock(part.Text))
					}
				case core.FilePart:
					if strings.HasPrefix(part.MediaType, "image/") {
						content = append(content, anthropic.NewImageBlockBase64(part.MediaType, part.Data))
					}
				}
			}
			if len(content) > 0 {
				messages = append(messages, anthropic.NewUserMessage(content...))
			}
		case core.RoleAssistant:
			for _, p := range msg.Parts {
				switch part := p.(type) {
				case core.TextPart:
					if part.Text != "" {
						content = append(content, anthropic.NewTextBlock(part.Text))
					}
				case core.ToolCallPart:
					input, err := toolInput(part.Input)
					if err != nil {
						return nil, fmt.Errorf("tool call %s: %w", part.ToolCallID, err)
					}
					content = append(content, anthropic.NewToolUseBlock(part.ToolCallID, input, part.ToolName))
				}
			}
			if len(content) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(content...))
			}
		case core.RoleTool:
			for _, r := range msg.ToolResults() {
				content = append(content, anthropic.NewToolResultBlock(r.ToolCallID, r.Output.String(), r.Output.IsError()))
			}
			if len(content) > 0 {
				messages = append(messages, anthropic.NewUserMessage(content...))
			}
		}
	}

	return messages, nil
}

func toolInput(input any) (any, error) {
	s, ok := input.(string)
	if !ok {
		if input == nil {
			return map[string]any{}, nil
		}
		return input, nil
	}

	if s == "" {
		return map[string]any{}, nil
	}

	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}

	return v, nil
}

func extractSystem(prompt core.Prompt) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam

	for _, msg := range prompt {
		if msg.Role != core.RoleSystem {
			continue
		}
		if text := msg.Text(); text != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: text})
		}
	}

	return blocks
}

// buildTools converts tool definitions to Anthropic tool params.
func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))

	for i, tool := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if props, ok := tool.InputSchema["properties"]; ok {
			inputSchema.Properties = props
		}

		switch req := tool.InputSchema["required"].(type) {
		case []string:
			inputSchema.Required = req
		case []any:
			for _, r := range req {
				if s, ok := r.(string); ok {
					inputSchema.Required = append(inputSchema.Required, s)
				}
			}
		}

		out[i] = anthropic.ToolUnionParamOfTool(inputSchema, tool.Name)
		if tool.Description != "" && out[i].OfTool != nil {
			out[i].OfTool.Description = anthropic.String(tool.Description)
		}
	}

	return out
}
