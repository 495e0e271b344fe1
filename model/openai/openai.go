// Package openai provides a model.LanguageModel backed by the OpenAI Chat
// Completions API. Streaming chunks (text deltas, incremental tool call
// arguments, finish reason and usage) are translated into canonical stream
// parts; non-streaming completions are mapped into a model.GenerateResult.
package openai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/model"
	"github.com/hupe1980/agentstream/stream"
)

// aggCall aggregates partial tool call deltas (id, name, arguments) keyed by
// the choice-local tool call index.
type aggCall struct {
	id, name string
	args     strings.Builder
	started  bool
}

// Options configure the OpenAI model adapter. Per-call model.Settings take
// precedence over these defaults.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
	BaseURL             string
}

// Model wraps the OpenAI Chat Completions API behind model.LanguageModel.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions(optFns...)

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := openai.NewClient(clientOpts...)

	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new OpenAI model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	return &Model{client: client, opts: defaultOptions(optFns...)}
}

func defaultOptions(optFns ...func(o *Options)) Options {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return opts
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Provider:      "openai",
		ModelID:       m.opts.Model,
		SupportsTools: true,
	}
}

// DoStream implements model.LanguageModel. The returned source owns the SDK
// stream and closes it when iteration ends.
func (m *Model) DoStream(ctx context.Context, opts model.CallOptions) (*model.StreamResult, error) {
	params, err := m.buildParams(opts)
	if err != nil {
		return nil, err
	}

	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

	src := func(yield func(stream.Event, error) bool) {
		sdkStream := m.client.Chat.Completions.NewStreaming(ctx, params, requestOptions(opts.Settings)...)
		defer sdkStream.Close()

		tr := newTranslator()

		for sdkStream.Next() {
			ck := sdkStream.Current()
			for _, ev := range tr.chunk(ck, opts.IncludeRaw) {
				if !yield(ev, nil) {
					return
				}
			}
		}

		if err := sdkStream.Err(); err != nil {
			yield(stream.Event{}, fmt.Errorf("openai streaming error: %w", err))
			return
		}

		for _, ev := range tr.finish() {
			if !yield(ev, nil) {
				return
			}
		}
	}

	return &model.StreamResult{Stream: src}, nil
}

// DoGenerate implements model.LanguageModel with a non-streaming completion.
func (m *Model) DoGenerate(ctx context.Context, opts model.CallOptions) (*model.GenerateResult, error) {
	params, err := m.buildParams(opts)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Chat.Completions.New(ctx, params, requestOptions(opts.Settings)...)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, core.NewProtocolError("openai", "no choices returned", nil)
	}

	ch0 := resp.Choices[0]
	parts := make([]core.Part, 0, len(ch0.Message.ToolCalls)+1)

	if ch0.Message.Content != "" {
		parts = append(parts, core.TextPart{Text: ch0.Message.Content})
	}

	for _, tc := range ch0.Message.ToolCalls {
		parts = append(parts, core.ToolCallPart{
			ToolCallID: tc.ID,
			ToolName:   tc.Function.Name,
			Input:      tc.Function.Arguments,
		})
	}

	return &model.GenerateResult{
		Content:      parts,
		FinishReason: mapFinishReason(ch0.FinishReason),
		Usage:        mapUsage(resp.Usage),
		Response: stream.ResponseMetadata{
			ID:        resp.ID,
			ModelID:   resp.Model,
			Timestamp: time.Unix(resp.Created, 0),
		},
	}, nil
}

// translator turns a sequence of chunks into canonical parts. Text is kept in
// one block; tool calls are completed when the stream ends.
type translator struct {
	started  bool
	textID   string
	textOpen bool
	calls    map[int64]*aggCall
	reason   string
	usage    core.Usage
}

func newTranslator() *translator {
	return &translator{calls: map[int64]*aggCall{}}
}

func (t *translator) chunk(ck openai.ChatCompletionChunk, includeRaw bool) []stream.Event {
	var evs []stream.Event

	if !t.started {
		t.started = true
		evs = append(evs,
			stream.Event{Part: stream.StreamStart{}},
			stream.Event{Part: stream.ResponseMetadata{
				ID:        ck.ID,
				ModelID:   ck.Model,
				Timestamp: time.Unix(ck.Created, 0),
			}},
		)
	}

	if includeRaw {
		evs = append(evs, stream.Event{Native: ck})
	}

	if ck.Usage.TotalTokens > 0 {
		t.usage = mapUsage(ck.Usage)
	}

	for _, ch := range ck.Choices {
		if ch.Delta.Content != "" {
			if !t.textOpen {
				t.textOpen = true
				t.textID = uuid.NewString()
				evs = append(evs, stream.Event{Part: stream.TextStart{ID: t.textID}})
			}
			evs = append(evs, stream.Event{Part: stream.TextDelta{ID: t.textID, Delta: ch.Delta.Content}})
		}

		for _, tc := range ch.Delta.ToolCalls {
			ac, ok := t.calls[tc.Index]
			if !ok {
				ac = &aggCall{}
				t.calls[tc.Index] = ac
			}

			if tc.ID != "" {
				ac.id = tc.ID
			}

			if tc.Function.Name != "" {
				ac.name = tc.Function.Name
			}

			if !ac.started && ac.name != "" {
				if ac.id == "" {
					ac.id = uuid.NewString()
				}
				ac.started = true
				evs = append(evs, stream.Event{Part: stream.ToolInputStart{ID: ac.id, ToolName: ac.name}})
			}

			if tc.Function.Arguments != "" {
				ac.args.WriteString(tc.Function.Arguments)
				if ac.started {
					evs = append(evs, stream.Event{Part: stream.ToolCallDelta{ID: ac.id, Delta: tc.Function.Arguments}})
				}
			}
		}

		if ch.FinishReason != "" {
			t.reason = ch.FinishReason
		}
	}

	return evs
}

// finish closes open blocks, emits completed tool calls in index order and
// the finish part. A stream that never reported a finish reason gets no
// finish part.
func (t *translator) finish() []stream.Event {
	var evs []stream.Event

	if t.textOpen {
		t.textOpen = false
		evs = append(evs, stream.Event{Part: stream.TextEnd{ID: t.textID}})
	}

	idx := make([]int64, 0, len(t.calls))
	for i := range t.calls {
		idx = append(idx, i)
	}

	sort.Slice(idx, func(a, b int) bool { return idx[a] < idx[b] })

	for _, i := range idx {
		ac := t.calls[i]
		if ac.id == "" {
			ac.id = uuid.NewString()
		}

		evs = append(evs, stream.Event{Part: stream.ToolCall{
			ToolCallID: ac.id,
			ToolName:   ac.name,
			Input:      ac.args.String(),
		}})
	}

	if t.reason != "" {
		evs = append(evs, stream.Event{Part: stream.Finish{Reason: mapFinishReason(t.reason), Usage: t.usage}})
	}

	return evs
}

func mapFinishReason(raw string) stream.ReportedFinishReason {
	unified := core.FinishReasonUnknown

	switch raw {
	case "stop":
		unified = core.FinishReasonStop
	case "length":
		unified = core.FinishReasonLength
	case "tool_calls", "function_call":
		unified = core.FinishReasonToolCalls
	case "content_filter":
		unified = core.FinishReasonContentFilter
	}

	return stream.ReportedFinishReason{Unified: string(unified), Raw: raw}
}

func mapUsage(u openai.CompletionUsage) core.Usage {
	return core.Usage{
		InputTokens:       u.PromptTokens,
		OutputTokens:      u.CompletionTokens,
		TotalTokens:       u.TotalTokens,
		ReasoningTokens:   u.CompletionTokensDetails.ReasoningTokens,
		CachedInputTokens: u.PromptTokensDetails.CachedTokens,
	}
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

// buildParams assembles the request parameters including tool definitions.
func (m *Model) buildParams(opts model.CallOptions) (openai.ChatCompletionNewParams, error) {
	messages, err := buildMessages(opts.Prompt)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}

	s := opts.Settings
	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}

	if s.Temperature != nil {
		params.Temperature = openai.Float(*s.Temperature)
	}

	if s.MaxOutputTokens != nil {
		params.MaxCompletionTokens = openai.Int(*s.MaxOutputTokens)
	}

	if s.TopP != nil {
		params.TopP = openai.Float(*s.TopP)
	}

	if s.PresencePenalty != nil {
		params.PresencePenalty = openai.Float(*s.PresencePenalty)
	}

	if s.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*s.FrequencyPenalty)
	}

	if s.Seed != nil {
		params.Seed = openai.Int(*s.Seed)
	}

	if len(s.StopSequences) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: s.StopSequences}
	}

	if rf := opts.ResponseFormat; rf != nil && rf.Type == "json" {
		params.ResponseFormat = responseFormat(rf)
	}

	if len(opts.Tools) == 0 {
		return params, nil
	}

	tools := make([]openai.ChatCompletionToolParam, len(opts.Tools))
	for i, tdef := range opts.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        tdef.Name,
				Description: openai.String(tdef.Description),
				Parameters:  tdef.InputSchema,
			},
		}
	}

	params.Tools = tools

	if tc := opts.ToolChoice; tc != nil {
		switch tc.Type {
		case model.ToolChoiceTool:
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionParamOfChatCompletionNamedToolChoice(
				openai.ChatCompletionNamedToolChoiceFunctionParam{Name: tc.ToolName},
			)
		default:
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String(string(tc.Type))}
		}
	}

	return params, nil
}

func responseFormat(rf *model.ResponseFormat) openai.ChatCompletionNewParamsResponseFormatUnion {
	if rf.Schema == nil {
		return openai.ChatCompletionNewParamsResponseFormatUnion{OfJSONObject: &shared.ResponseFormatJSONObjectParam{}}
	}

	name := rf.Name
	if name == "" {
		name = "response"
	}

	schema := shared.ResponseFormatJSONSchemaJSONSchemaParam{Name: name, Schema: rf.Schema}
	if rf.Description != "" {
		schema.Description = openai.String(rf.Description)
	}

	return openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{JSONSchema: schema},
	}
}

// buildMessages converts the prompt into chat messages. Tool messages expand
// into one chat message per result, in order.
func buildMessages(prompt core.Prompt) ([]openai.ChatCompletionMessageParamUnion, error) {
	var messages []openai.ChatCompletionMessageParamUnion

	for _, msg := range prompt {
		switch msg.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Text()))
		case core.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Text()))
		case core.RoleAssistant:
			calls := msg.ToolCalls()
			if len(calls) == 0 {
				messages = append(messages, openai.AssistantMessage(msg.Text()))
				continue
			}

			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(calls))
			for _, c := range calls {
				args, err := model.InputJSON(c.Input)
				if err != nil {
					return nil, fmt.Errorf("tool call %s: %w", c.ToolCallID, err)
				}
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
					ID:   c.ToolCallID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      c.ToolName,
						Arguments: args,
					},
				})
			}

			assistant := &openai.ChatCompletionAssistantMessageParam{
				Role:      "assistant",
				ToolCalls: toolCalls,
			}
			if text := msg.Text(); text != "" {
				assistant.Content.OfString = openai.String(text)
			}

			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: assistant})
		case core.RoleTool:
			for _, r := range msg.ToolResults() {
				messages = append(messages, openai.ToolMessage(r.Output.String(), r.ToolCallID))
			}
		}
	}

	return messages, nil
}
