package uistream

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/stream"
)

func decodeAll(t *testing.T, b []byte) []Chunk {
	t.Helper()

	var out []Chunk
	for c, err := range NewDecoder(bytes.NewReader(b)).All() {
		require.NoError(t, err)
		out = append(out, c)
	}
	return out
}

func TestWriterRun(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(func(_ context.Context, b []byte) error {
		buf.Write(b)
		return nil
	})
	ctx := context.Background()

	require.NoError(t, w.StartRun(ctx, "msg-1"))
	require.NoError(t, w.StartStep(ctx))
	for _, p := range []stream.Part{
		stream.StreamStart{},
		stream.ResponseMetadata{ID: "resp"},
		stream.ToolInputStart{ID: "c1", ToolName: "lookup"},
		stream.ToolCallDelta{ID: "c1", Delta: `{"q":"x"}`},
		stream.ToolInputEnd{ID: "c1"},
		stream.ToolCall{ToolCallID: "c1", ToolName: "lookup", Input: `{"q":"x"}`},
		stream.Finish{Reason: stream.Reason("tool-calls")},
	} {
		require.NoError(t, w.WritePart(ctx, p))
	}
	require.NoError(t, w.FinishStep(ctx, core.FinishReasonToolCalls, core.Usage{}))
	require.NoError(t, w.WriteToolOutputs(ctx, []core.ToolResultPart{
		{ToolCallID: "c1", Output: core.JSONOutput(map[string]any{"answer": float64(42)})},
		{ToolCallID: "c2", Output: core.ExecutionDenied("user said no")},
		{ToolCallID: "c3", Output: core.ErrorTextOutput("failed")},
	}))
	require.NoError(t, w.StartStep(ctx))
	require.NoError(t, w.WritePart(ctx, stream.TextDelta{ID: "t", Delta: "done"}))
	require.NoError(t, w.FinishStep(ctx, core.FinishReasonStop, core.Usage{}))
	require.NoError(t, w.FinishRun(ctx, core.FinishReasonStop, core.Usage{}))
	require.NoError(t, w.Close(ctx))
	require.NoError(t, w.Close(ctx))

	assert.Equal(t, []Chunk{
		Start{MessageID: "msg-1"},
		StartStep{},
		ToolInputStart{ToolCallID: "c1", ToolName: "lookup"},
		ToolInputDelta{ToolCallID: "c1", InputTextDelta: `{"q":"x"}`},
		ToolInputAvailable{ToolCallID: "c1", ToolName: "lookup", Input: map[string]any{"q": "x"}},
		FinishStep{},
		ToolOutputAvailable{ToolCallID: "c1", Output: map[string]any{"answer": float64(42)}},
		ToolOutputAvailable{ToolCallID: "c2", Output: map[string]any{"type": "execution-denied", "reason": "user said no"}},
		ToolOutputError{ToolCallID: "c3", ErrorText: "failed"},
		StartStep{},
		TextDelta{ID: "t", Delta: "done"},
		FinishStep{},
		Finish{FinishReason: "stop"},
	}, decodeAll(t, buf.Bytes()))
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("[DONE]")))
}

func TestFromPartOptions(t *testing.T) {
	opts := WriterOptions{OnError: func(error) string { return "masked" }}

	assert.Nil(t, FromPart(stream.ReasoningDelta{ID: "r", Delta: "x"}, opts))
	assert.Nil(t, FromPart(stream.Source{ID: "s", SourceType: "url", URL: "u"}, opts))
	assert.Nil(t, FromPart(stream.Raw{Value: 1}, opts))
	assert.Equal(t, Error{ErrorText: "masked"}, FromPart(stream.Error{Err: errors.New("secret")}, opts))

	opts.SendSources = true
	assert.Equal(t, SourceDocument{SourceID: "s", MediaType: "application/pdf", Title: "T"},
		FromPart(stream.Source{ID: "s", SourceType: "document", MediaType: "application/pdf", Title: "T"}, opts))
	assert.Equal(t, File{URL: "data:image/png;base64,AAA=", MediaType: "image/png"},
		FromPart(stream.File{MediaType: "image/png", Data: "AAA="}, opts))
	assert.Equal(t, ToolOutputAvailable{ToolCallID: "p1", Output: "web result", ProviderExecuted: true},
		FromPart(stream.ToolResult{ToolCallID: "p1", Result: "web result", ProviderExecuted: true}, opts))
}

func TestWriterCloseAfterError(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(func(_ context.Context, b []byte) error {
		buf.Write(b)
		return nil
	})
	ctx := context.Background()

	require.NoError(t, w.WritePart(ctx, stream.Error{Err: errors.New("reset")}))
	require.NoError(t, w.Close(ctx))

	assert.Equal(t, []Chunk{Error{ErrorText: "reset"}}, decodeAll(t, buf.Bytes()))
}

func TestWriterWriteErrorUsesOnError(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(func(_ context.Context, b []byte) error {
		buf.Write(b)
		return nil
	}, func(o *WriterOptions) {
		o.OnError = func(error) string { return "something went wrong" }
	})
	ctx := context.Background()

	require.NoError(t, w.WriteError(ctx, errors.New("secret detail")))
	require.NoError(t, w.Close(ctx))

	assert.Equal(t, []Chunk{Error{ErrorText: "something went wrong"}}, decodeAll(t, buf.Bytes()))
}
