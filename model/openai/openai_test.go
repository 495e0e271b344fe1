package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/model"
	"github.com/hupe1980/agentstream/stream"
)

var sseChunks = []string{
	`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"},"finish_reason":null}]}`,
	`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":null}]}`,
	`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"lookup","arguments":"{\"q\":"}}]},"finish_reason":null}]}`,
	`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"1}"}}]},"finish_reason":null}]}`,
	`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
	`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[],"usage":{"prompt_tokens":5,"completion_tokens":7,"total_tokens":12}}`,
}

func newTestModel(t *testing.T, handler http.HandlerFunc) *Model {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := openai.NewClient(option.WithBaseURL(srv.URL+"/"), option.WithAPIKey("test"), option.WithMaxRetries(0))

	return NewModelFromClient(&client, func(o *Options) { o.Model = "gpt-test" })
}

func TestModel_DoStream(t *testing.T) {
	var body map[string]any

	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range sseChunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	res, err := m.DoStream(context.Background(), model.CallOptions{
		Prompt: core.Prompt{core.UserMessage("hi")},
		Tools:  []model.ToolDefinition{{Name: "lookup", InputSchema: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)

	parts := stream.Collect(stream.Canonicalize(res.Stream).All())

	var text string
	var calls []stream.ToolCall
	for _, p := range parts {
		switch v := p.(type) {
		case stream.TextDelta:
			text += v.Delta
		case stream.ToolCall:
			calls = append(calls, v)
		case stream.Error:
			t.Fatalf("unexpected error part: %v", v.Err)
		}
	}

	assert.Equal(t, "Hello", text)
	require.Len(t, calls, 1)
	assert.Equal(t, stream.ToolCall{ToolCallID: "call_1", ToolName: "lookup", Input: `{"q":1}`}, calls[0])

	fin, ok := parts[len(parts)-1].(stream.Finish)
	require.True(t, ok)
	assert.Equal(t, stream.ReportedFinishReason{Unified: "tool-calls", Raw: "tool_calls"}, fin.Reason)
	assert.Equal(t, int64(12), fin.Usage.TotalTokens)

	assert.Equal(t, true, body["stream"])
	assert.Len(t, body["tools"], 1)
}

func TestModel_DoStreamTransportError(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"nope"}}`, http.StatusInternalServerError)
	})

	res, err := m.DoStream(context.Background(), model.CallOptions{Prompt: core.Prompt{core.UserMessage("hi")}})
	require.NoError(t, err)

	parts := stream.Collect(stream.Canonicalize(res.Stream).All())
	require.Len(t, parts, 1)

	e, ok := parts[0].(stream.Error)
	require.True(t, ok)
	assert.Equal(t, core.KindTransport, core.KindOf(e.Err))
}

func TestBuildMessages(t *testing.T) {
	prompt := core.Prompt{
		core.SystemMessage("be brief"),
		core.UserMessage("hi"),
		core.AssistantMessage(core.ToolCallPart{ToolCallID: "t1", ToolName: "lookup", Input: map[string]any{"q": 1}}),
		core.ToolMessage(core.ToolResultPart{ToolCallID: "t1", ToolName: "lookup", Output: core.TextOutput("42")}),
	}

	msgs, err := buildMessages(prompt)
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	require.NotNil(t, msgs[2].OfAssistant)
	assert.Equal(t, `{"q":1}`, msgs[2].OfAssistant.ToolCalls[0].Function.Arguments)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "t1", msgs[3].OfTool.ToolCallID)
}

func TestMapFinishReason(t *testing.T) {
	tests := map[string]string{
		"stop":           "stop",
		"length":         "length",
		"tool_calls":     "tool-calls",
		"content_filter": "content-filter",
		"weird":          "unknown",
	}

	for raw, want := range tests {
		t.Run(raw, func(t *testing.T) {
			assert.Equal(t, want, mapFinishReason(raw).Unified)
		})
	}
}
