package agent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/internal/testutil"
	"github.com/hupe1980/agentstream/model"
	"github.com/hupe1980/agentstream/tool"
)

func testTools() *tool.Set {
	lookup := tool.NewFunctionTool("lookup", "Look up a value", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"q": map[string]any{"type": "string"},
		},
	}, func(_ *tool.Context, args map[string]any) (any, error) {
		if args["q"] == "fail" {
			return nil, errors.New("lookup failed")
		}
		return "42", nil
	})

	now := tool.NewFunctionTool("now", "Current time", map[string]any{"type": "object"}, func(*tool.Context, map[string]any) (any, error) {
		return map[string]any{"time": "noon"}, nil
	})

	return tool.MustNewSet(lookup, now)
}

func TestRun_ExecutesToolsAndContinues(t *testing.T) {
	parts := testutil.NewStepBuilder().
		ToolCall("t1", "lookup", `{"q":"x"}`).
		ToolCall("t2", "now", `{}`).
		Usage(3, 2).
		Finish("tool-calls").
		Parts()
	mock := model.NewMockModel(model.MockStep{Parts: parts}, textStep("answer is 42", "stop"))

	res, err := Run(context.Background(), mock, userPrompt(), func(o *RunOptions) {
		o.Tools = testTools()
		o.MaxSteps = 5
	})
	require.NoError(t, err)

	assert.Len(t, res.Steps, 2)
	assert.Equal(t, "answer is 42", res.Text)
	assert.Equal(t, core.FinishReasonStop, res.FinishReason)
	assert.Equal(t, int64(7), res.TotalUsage.TotalTokens)

	results := res.Messages[2].ToolResults()
	require.Len(t, results, 2)
	assert.Equal(t, core.TextOutput("42"), results[0].Output)
	assert.Equal(t, core.JSONOutput(map[string]any{"time": "noon"}), results[1].Output)
}

func TestRun_ToolErrorDoesNotEndRun(t *testing.T) {
	mock := model.NewMockModel(toolStep("t1", "lookup", `{"q":"fail"}`), textStep("sorry", "stop"))

	res, err := Run(context.Background(), mock, userPrompt(), func(o *RunOptions) { o.Tools = testTools() })
	require.NoError(t, err)

	out := res.Messages[2].ToolResults()[0].Output
	assert.True(t, out.IsError())
	assert.Equal(t, "sorry", res.Text)
}

func TestRun_UnknownToolBecomesErrorOutput(t *testing.T) {
	mock := model.NewMockModel(toolStep("t1", "missing", `{}`), textStep("ok", "stop"))

	res, err := Run(context.Background(), mock, userPrompt(), func(o *RunOptions) { o.Tools = testTools() })
	require.NoError(t, err)

	out := res.Messages[2].ToolResults()[0].Output
	assert.Equal(t, core.OutputErrorText, out.Type)
}

func TestRun_ApprovalDenied(t *testing.T) {
	mock := model.NewMockModel(toolStep("t1", "lookup", `{}`), textStep("ok", "stop"))

	res, err := Run(context.Background(), mock, userPrompt(), func(o *RunOptions) {
		o.Tools = testTools()
		o.Approve = func(context.Context, core.ToolCallPart) (bool, string, error) { return false, "not allowed", nil }
	})
	require.NoError(t, err)

	out := res.Messages[2].ToolResults()[0].Output
	assert.Equal(t, core.ExecutionDenied("not allowed"), out)
}

func TestRun_ProviderExecutedOnly(t *testing.T) {
	parts := testutil.NewStepBuilder().
		ProviderToolCall("p1", "web_search", `{}`, "results").
		Finish("tool-calls").
		Parts()
	mock := model.NewMockModel(model.MockStep{Parts: parts}, textStep("found it", "stop"))

	var calls atomic.Int32
	res, err := Run(context.Background(), mock, userPrompt(), func(o *RunOptions) {
		o.Approve = func(context.Context, core.ToolCallPart) (bool, string, error) {
			calls.Add(1)
			return true, "", nil
		}
	})
	require.NoError(t, err)

	assert.Zero(t, calls.Load())
	assert.Equal(t, "found it", res.Text)
	assert.Equal(t, core.TextOutput("results"), res.Messages[2].ToolResults()[0].Output)
}

func TestRun_ToolCallsFinishWithoutCalls(t *testing.T) {
	parts := testutil.NewStepBuilder().Text("thinking").Finish("tool-calls").Parts()
	mock := model.NewMockModel(model.MockStep{Parts: parts}, textStep("done", "stop"))

	res, err := Run(context.Background(), mock, userPrompt(), func(o *RunOptions) {
		o.Tools = testTools()
	})
	require.NoError(t, err)

	require.Len(t, res.Steps, 1)
	assert.Len(t, mock.Calls(), 1)
	assert.Equal(t, core.FinishReasonToolCalls, res.FinishReason)
	for _, m := range res.Messages {
		assert.NotEqual(t, core.RoleTool, m.Role)
	}
}

func TestRun_StepCeilingSurfacesFinalToolStep(t *testing.T) {
	mock := model.NewMockModel(toolStep("t1", "lookup", `{}`), toolStep("t2", "lookup", `{}`))

	res, err := Run(context.Background(), mock, userPrompt(), func(o *RunOptions) {
		o.Tools = testTools()
		o.MaxSteps = 1
	})
	require.NoError(t, err)

	require.Len(t, res.Steps, 1)
	assert.Equal(t, core.FinishReasonToolCalls, res.FinalStep.FinishReason)
	assert.Len(t, res.Messages, 3)
	assert.Len(t, mock.Calls(), 1)
}

func TestRun_ModelFailure(t *testing.T) {
	boom := errors.New("unavailable")
	mock := model.NewMockModel(model.MockStep{Err: boom})

	res, err := Run(context.Background(), mock, userPrompt())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, res.Steps)
	assert.Len(t, res.Messages, 1)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Run(ctx, model.NewMockModel(textStep("x", "stop")), userPrompt())
	require.Error(t, err)
	assert.True(t, core.IsCancellation(err))
	assert.Empty(t, res.Steps)
}
