package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/model"
	"github.com/hupe1980/agentstream/stream"
)

var events = []string{
	`{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-test","content":[],"stop_reason":null,"usage":{"input_tokens":10,"output_tokens":0}}}`,
	`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
	`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Let me "}}`,
	`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"check."}}`,
	`{"type":"content_block_stop","index":0}`,
	`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"lookup","input":{}}}`,
	`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"q\":"}}`,
	`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"1}"}}`,
	`{"type":"content_block_stop","index":1}`,
	`{"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":6}}`,
	`{"type":"message_stop"}`,
}

func translate(t *testing.T, raw []string) []stream.Part {
	t.Helper()

	tr := newTranslator()

	var evs []stream.Event
	for _, r := range raw {
		var ev anthropic.MessageStreamEventUnion
		require.NoError(t, json.Unmarshal([]byte(r), &ev))
		evs = append(evs, tr.event(ev, false)...)
	}

	return stream.Collect(stream.Canonicalize(stream.FromEvents(evs, nil)).All())
}

func TestTranslator(t *testing.T) {
	parts := translate(t, events)

	assert.Equal(t, stream.ResponseMetadata{ID: "msg_1", ModelID: "claude-test"}, parts[1])

	var text string
	var calls []stream.ToolCall
	for _, p := range parts {
		switch v := p.(type) {
		case stream.TextDelta:
			text += v.Delta
		case stream.ToolCall:
			calls = append(calls, v)
		}
	}

	assert.Equal(t, "Let me check.", text)
	require.Len(t, calls, 1)
	assert.Equal(t, stream.ToolCall{ToolCallID: "toolu_1", ToolName: "lookup", Input: `{"q":1}`}, calls[0])

	fin, ok := parts[len(parts)-1].(stream.Finish)
	require.True(t, ok)
	assert.Equal(t, stream.ReportedFinishReason{Unified: "tool-calls", Raw: "tool_use"}, fin.Reason)
	assert.Equal(t, core.Usage{InputTokens: 10, OutputTokens: 6, TotalTokens: 16}, fin.Usage)
}

func TestTranslator_EmptyToolInput(t *testing.T) {
	parts := translate(t, []string{
		`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_2","name":"now","input":{}}}`,
		`{"type":"content_block_stop","index":0}`,
	})

	require.Len(t, parts, 3)
	assert.Equal(t, stream.ToolCall{ToolCallID: "toolu_2", ToolName: "now", Input: "{}"}, parts[2])
}

func TestMapStopReason(t *testing.T) {
	tests := map[string]string{
		"end_turn":      "stop",
		"stop_sequence": "stop",
		"max_tokens":    "length",
		"tool_use":      "tool-calls",
		"refusal":       "content-filter",
		"":              "unknown",
	}

	for raw, want := range tests {
		assert.Equal(t, want, mapStopReason(raw).Unified, raw)
	}
}

func TestBuildMessages(t *testing.T) {
	prompt := core.Prompt{
		core.SystemMessage("sys"),
		core.UserMessage("hi"),
		core.AssistantMessage(core.ToolCallPart{ToolCallID: "t1", ToolName: "lookup", Input: `{"q":1}`}),
		core.ToolMessage(core.ToolResultPart{ToolCallID: "t1", ToolName: "lookup", Output: core.ErrorTextOutput("failed")}),
	}

	msgs, err := buildMessages(prompt)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[2].Role)

	assert.Len(t, extractSystem(prompt), 1)
}

func TestBuildTools(t *testing.T) {
	tools := buildTools([]model.ToolDefinition{{
		Name:        "lookup",
		Description: "find things",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"q": map[string]any{"type": "string"}},
			"required":   []any{"q"},
		},
	}})

	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, []string{"q"}, tools[0].OfTool.InputSchema.Required)
	assert.Equal(t, "find things", tools[0].OfTool.Description.Value)
}
