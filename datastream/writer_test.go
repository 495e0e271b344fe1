package datastream

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/stream"
)

func TestWriterMapsCanonicalParts(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(func(_ context.Context, b []byte) error {
		buf.Write(b)
		return nil
	}, func(o *WriterOptions) {
		o.NewID = func() string { return "1" }
	})

	ctx := context.Background()
	require.NoError(t, w.StartRun(ctx, "m"))
	require.NoError(t, w.StartStep(ctx))
	for _, p := range []stream.Part{
		stream.StreamStart{},
		stream.TextStart{ID: "t"},
		stream.TextDelta{ID: "t", Delta: "hi"},
		stream.TextEnd{ID: "t"},
		stream.ToolInputStart{ID: "c1", ToolName: "lookup"},
		stream.ToolCallDelta{ID: "c1", Delta: `{"q":1}`},
		stream.ToolInputEnd{ID: "c1"},
		stream.ToolCall{ToolCallID: "c1", ToolName: "lookup", Input: `{"q":1}`},
		stream.Finish{Reason: stream.Reason("tool-calls")},
	} {
		require.NoError(t, w.WritePart(ctx, p))
	}
	require.NoError(t, w.FinishStep(ctx, core.FinishReasonToolCalls, core.Usage{OutputTokens: 5}))
	require.NoError(t, w.WriteToolOutputs(ctx, []core.ToolResultPart{
		{ToolCallID: "c1", Output: core.TextOutput("42")},
		{ToolCallID: "c2", Output: core.ExecutionDenied("not allowed")},
	}))
	require.NoError(t, w.FinishRun(ctx, core.FinishReasonUndefined, core.Usage{}))

	want := `f:{"messageId":"msg-1"}
0:"hi"
b:{"toolCallId":"c1","toolName":"lookup"}
c:{"toolCallId":"c1","argsTextDelta":"{\"q\":1}"}
9:{"toolCallId":"c1","toolName":"lookup","args":{"q":1}}
e:{"isContinued":false,"finishReason":"tool-calls","usage":{"outputTokens":5}}
a:{"toolCallId":"c1","result":"42"}
a:{"toolCallId":"c2","result":{"reason":"not allowed","type":"execution-denied"}}
d:{"finishReason":"unknown","usage":{}}
`
	assert.Equal(t, want, buf.String())
}

func TestWriterErrorPart(t *testing.T) {
	var lines [][]byte
	w := NewWriter(func(_ context.Context, b []byte) error {
		lines = append(lines, b)
		return nil
	})

	require.NoError(t, w.WritePart(context.Background(), stream.Error{Err: core.NewTransportError("stream", assert.AnError)}))
	require.Len(t, lines, 1)

	p, err := Decode(lines[0])
	require.NoError(t, err)
	assert.IsType(t, ErrorPart{}, p)
}

func TestWriterWriteError(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(func(_ context.Context, b []byte) error {
		buf.Write(b)
		return nil
	})

	require.NoError(t, w.WriteError(context.Background(), assert.AnError))
	assert.Equal(t, "3:\"assert.AnError general error for testing\"\n", buf.String())
}
