package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/internal/testutil"
	"github.com/hupe1980/agentstream/model"
	"github.com/hupe1980/agentstream/step"
)

func textStep(text, reason string) model.MockStep {
	return model.MockStep{Parts: testutil.NewStepBuilder().Text(text).Usage(1, 1).Finish(reason).Parts()}
}

func toolStep(id, name, input string) model.MockStep {
	return model.MockStep{Parts: testutil.NewStepBuilder().ToolCall(id, name, input).Usage(1, 1).Finish("tool-calls").Parts()}
}

func userPrompt() core.Prompt { return core.Prompt{core.UserMessage("hi")} }

func roles(p core.Prompt) []core.Role {
	out := make([]core.Role, len(p))
	for i, m := range p {
		out[i] = m.Role
	}
	return out
}

func TestLoop_StopAfterOneStep(t *testing.T) {
	w := &testutil.RecordingWriter{}
	l := NewLoop(model.NewMockModel(textStep("hello", "stop")), userPrompt(), func(o *Options) { o.Writer = w })

	y, err := l.Next(context.Background())
	require.NoError(t, err)

	assert.True(t, y.Final)
	assert.Equal(t, core.FinishReasonStop, y.Step.FinishReason)
	assert.Len(t, y.Messages, 2)
	assert.Equal(t, "hello", y.Messages[1].Text())
	assert.Equal(t, StateDone, l.State())
	assert.Len(t, l.Steps(), 1)

	_, err = l.Next(context.Background())
	assert.ErrorIs(t, err, ErrDone)

	events := w.Events()
	assert.Equal(t, "start-run", events[0])
	assert.Equal(t, "finish-run:stop", events[len(events)-1])
}

func TestLoop_ToolCallRoundTrip(t *testing.T) {
	mock := model.NewMockModel(toolStep("t1", "lookup", `{"q":"answer"}`), textStep("it is 42", "stop"))
	w := &testutil.RecordingWriter{}
	l := NewLoop(mock, userPrompt(), func(o *Options) { o.Writer = w })

	y, err := l.Next(context.Background())
	require.NoError(t, err)
	require.False(t, y.Final)
	require.Len(t, y.ToolCalls, 1)
	assert.Equal(t, "t1", y.ToolCalls[0].ToolCallID)
	assert.Equal(t, map[string]any{"q": "answer"}, y.ToolCalls[0].Input)
	assert.Equal(t, StatePendingToolCalls, l.State())

	_, err = l.Next(context.Background())
	assert.ErrorIs(t, err, ErrPendingToolCalls)

	require.NoError(t, l.Resume(context.Background(), []core.ToolResultPart{
		{ToolCallID: "t1", Output: core.TextOutput("42")},
	}))

	y, err = l.Next(context.Background())
	require.NoError(t, err)
	require.True(t, y.Final)

	msgs := l.Messages()
	assert.Equal(t, []core.Role{core.RoleUser, core.RoleAssistant, core.RoleTool, core.RoleAssistant}, roles(msgs))

	calls := msgs[1].ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "t1", calls[0].ToolCallID)

	results := msgs[2].ToolResults()
	require.Len(t, results, 1)
	assert.Equal(t, "lookup", results[0].ToolName)
	assert.Equal(t, core.TextOutput("42"), results[0].Output)
	assert.Equal(t, "it is 42", msgs[3].Text())

	assert.Contains(t, w.Events(), "tool-outputs:1")
	assert.Equal(t, int64(4), l.TotalUsage().TotalTokens)

	// The second call sees the integrated result.
	second := mock.Calls()[1].Prompt
	assert.Len(t, second, 3)
}

func TestLoop_ResumeOrdersResultsByCall(t *testing.T) {
	parts := testutil.NewStepBuilder().
		ToolCall("a", "first", `{}`).
		ToolCall("b", "second", `{}`).
		Finish("tool-calls").
		Parts()
	l := NewLoop(model.NewMockModel(model.MockStep{Parts: parts}, textStep("done", "stop")), userPrompt())

	_, err := l.Next(context.Background())
	require.NoError(t, err)

	require.NoError(t, l.Resume(context.Background(), []core.ToolResultPart{
		{ToolCallID: "b", Output: core.TextOutput("2")},
		{ToolCallID: "a", Output: core.TextOutput("1")},
	}))

	results := l.Messages()[2].ToolResults()
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ToolCallID)
	assert.Equal(t, "b", results[1].ToolCallID)
}

func TestLoop_ResumeRejectsInvalidResults(t *testing.T) {
	tests := []struct {
		name    string
		results []core.ToolResultPart
		want    string
	}{
		{"missing", nil, "missing result"},
		{"unknown", []core.ToolResultPart{
			{ToolCallID: "t1", Output: core.TextOutput("x")},
			{ToolCallID: "zz", Output: core.TextOutput("x")},
		}, "unknown tool call"},
		{"duplicate", []core.ToolResultPart{
			{ToolCallID: "t1", Output: core.TextOutput("x")},
			{ToolCallID: "t1", Output: core.TextOutput("y")},
		}, "duplicate result"},
		{"invalid output", []core.ToolResultPart{
			{ToolCallID: "t1", Output: core.ToolResultOutput{Type: core.OutputText, Value: 1}},
		}, "expects a string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLoop(model.NewMockModel(toolStep("t1", "lookup", `{}`)), userPrompt())

			_, err := l.Next(context.Background())
			require.NoError(t, err)

			err = l.Resume(context.Background(), tt.results)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, StatePendingToolCalls, l.State())
			assert.Len(t, l.Messages(), 2)
		})
	}
}

func TestLoop_ResumeWhenNotPending(t *testing.T) {
	l := NewLoop(model.NewMockModel(), userPrompt())
	assert.ErrorIs(t, l.Resume(context.Background(), nil), ErrNotPending)
}

func TestLoop_ProviderExecutedResultsCountAsSupplied(t *testing.T) {
	parts := testutil.NewStepBuilder().
		ProviderToolCall("p1", "web_search", `{"query":"go"}`, map[string]any{"hits": 3.0}).
		ToolCall("t1", "lookup", `{}`).
		Finish("tool-calls").
		Parts()
	w := &testutil.RecordingWriter{}
	l := NewLoop(model.NewMockModel(model.MockStep{Parts: parts}, textStep("ok", "stop")), userPrompt(), func(o *Options) { o.Writer = w })

	y, err := l.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, y.ToolCalls, 1)
	assert.Equal(t, "t1", y.ToolCalls[0].ToolCallID)
	require.Len(t, y.ProviderExecutedResults, 1)

	require.NoError(t, l.Resume(context.Background(), []core.ToolResultPart{
		{ToolCallID: "t1", Output: core.TextOutput("local")},
	}))

	results := l.Messages()[2].ToolResults()
	require.Len(t, results, 2)
	assert.Equal(t, "p1", results[0].ToolCallID)
	assert.Equal(t, core.JSONOutput(map[string]any{"hits": 3.0}), results[0].Output)
	assert.Equal(t, "t1", results[1].ToolCallID)

	outputs := w.Outputs()
	require.Len(t, outputs, 1)
	assert.Equal(t, "t1", outputs[0].ToolCallID)
}

func TestLoop_StepCeiling(t *testing.T) {
	mock := model.NewMockModel(
		toolStep("t1", "lookup", `{}`),
		toolStep("t2", "lookup", `{}`),
		toolStep("t3", "lookup", `{}`),
	)
	l := NewLoop(mock, userPrompt(), func(o *Options) { o.MaxSteps = 2 })

	for i := 0; i < 2; i++ {
		y, err := l.Next(context.Background())
		require.NoError(t, err)
		require.False(t, y.Final)
		require.NoError(t, l.Resume(context.Background(), []core.ToolResultPart{
			{ToolCallID: y.ToolCalls[0].ToolCallID, Output: core.TextOutput("x")},
		}))
	}

	y, err := l.Next(context.Background())
	require.NoError(t, err)
	assert.True(t, y.Final)
	assert.Equal(t, core.FinishReasonToolCalls, y.Step.FinishReason)
	assert.Equal(t, 1, y.Step.StepNumber)
	assert.Len(t, mock.Calls(), 2)

	_, err = l.Next(context.Background())
	assert.ErrorIs(t, err, ErrDone)
}

func TestLoop_StopConditions(t *testing.T) {
	t.Run("has tool call", func(t *testing.T) {
		mock := model.NewMockModel(toolStep("t1", "finalize", `{}`), textStep("unreached", "stop"))
		l := NewLoop(mock, userPrompt(), func(o *Options) { o.StopWhen = []StopCondition{HasToolCall("finalize")} })

		_, err := l.Next(context.Background())
		require.NoError(t, err)
		require.NoError(t, l.Resume(context.Background(), []core.ToolResultPart{{ToolCallID: "t1", Output: core.TextOutput("ok")}}))

		assert.Equal(t, StateDone, l.State())
		y, err := l.Next(context.Background())
		require.NoError(t, err)
		assert.True(t, y.Final)
		assert.Len(t, y.Messages, 3)
		assert.Len(t, mock.Calls(), 1)
	})

	t.Run("step count", func(t *testing.T) {
		assert.False(t, StepCountIs(2)([]*step.Result{{}}))
		assert.True(t, StepCountIs(2)([]*step.Result{{}, {}}))
		assert.False(t, HasToolCall("x")(nil))
	})
}

func TestLoop_AbortBetweenSteps(t *testing.T) {
	mock := model.NewMockModel(toolStep("t1", "lookup", `{}`), textStep("unreached", "stop"))
	ctx, cancel := context.WithCancel(context.Background())
	l := NewLoop(mock, userPrompt())

	_, err := l.Next(ctx)
	require.NoError(t, err)
	require.NoError(t, l.Resume(ctx, []core.ToolResultPart{{ToolCallID: "t1", Output: core.TextOutput("x")}}))
	before := l.Messages()

	cancel()

	_, err = l.Next(ctx)
	require.Error(t, err)
	assert.True(t, core.IsCancellation(err))
	assert.Len(t, mock.Calls(), 1)
	assert.Equal(t, before, l.Messages())
	assert.Equal(t, StateDone, l.State())
}

func TestLoop_UnknownFinishReasonIsFatal(t *testing.T) {
	l := NewLoop(model.NewMockModel(textStep("hm", "mystery")), userPrompt())

	_, err := l.Next(context.Background())
	require.Error(t, err)
	assert.Equal(t, core.KindProtocol, core.KindOf(err))
	assert.Len(t, l.Messages(), 1)
	assert.Empty(t, l.Steps())
	assert.Equal(t, StateDone, l.State())
}

func TestLoop_MissingFinishIsSilentStop(t *testing.T) {
	parts := testutil.NewStepBuilder().Text("trunc").Parts()
	l := NewLoop(model.NewMockModel(model.MockStep{Parts: parts}), userPrompt())

	y, err := l.Next(context.Background())
	require.NoError(t, err)
	assert.True(t, y.Final)
	assert.Equal(t, core.FinishReasonUndefined, y.Step.FinishReason)
	assert.Len(t, y.Messages, 2)
}

func TestLoop_ToolCallsFinishWithoutCallsStops(t *testing.T) {
	parts := testutil.NewStepBuilder().Text("thinking").Finish("tool-calls").Parts()
	mock := model.NewMockModel(model.MockStep{Parts: parts}, textStep("never", "stop"))

	var finished int
	l := NewLoop(mock, userPrompt(), func(o *Options) {
		o.OnStepFinish = func(context.Context, *step.Result) error {
			finished++
			return nil
		}
	})

	y, err := l.Next(context.Background())
	require.NoError(t, err)
	assert.True(t, y.Final)
	assert.Equal(t, StateDone, l.State())
	assert.Equal(t, 1, finished)
	assert.Equal(t, []core.Role{core.RoleUser, core.RoleAssistant}, roles(y.Messages))
	assert.Equal(t, "thinking", y.Messages[1].Text())

	_, err = l.Next(context.Background())
	assert.ErrorIs(t, err, ErrDone)
	assert.Len(t, mock.Calls(), 1)
}

func TestLoop_StepFailurePreservesPartial(t *testing.T) {
	boom := errors.New("connection reset")
	parts := testutil.NewStepBuilder().Text("par").Parts()
	l := NewLoop(model.NewMockModel(model.MockStep{Parts: parts, StreamErr: boom}), userPrompt())

	_, err := l.Next(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, l.Partial())
	assert.Equal(t, "par", l.Partial().Text)
	assert.Len(t, l.Messages(), 1)
}

func TestLoop_OnStepFinishErrorPropagates(t *testing.T) {
	boom := errors.New("hook failed")
	var seen []int
	l := NewLoop(model.NewMockModel(textStep("hello", "stop")), userPrompt(), func(o *Options) {
		o.OnStepFinish = func(_ context.Context, res *step.Result) error {
			seen = append(seen, res.StepNumber)
			return boom
		}
	})

	_, err := l.Next(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{0}, seen)
	assert.Equal(t, StateDone, l.State())
}

func TestLoop_OnStepFinishCalledForToolSteps(t *testing.T) {
	var seen []core.FinishReason
	l := NewLoop(model.NewMockModel(toolStep("t1", "lookup", `{}`), textStep("done", "stop")), userPrompt(), func(o *Options) {
		o.OnStepFinish = func(_ context.Context, res *step.Result) error {
			seen = append(seen, res.FinishReason)
			return nil
		}
	})

	_, err := l.Next(context.Background())
	require.NoError(t, err)
	assert.Empty(t, seen)

	require.NoError(t, l.Resume(context.Background(), []core.ToolResultPart{{ToolCallID: "t1", Output: core.TextOutput("x")}}))
	_, err = l.Next(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []core.FinishReason{core.FinishReasonToolCalls, core.FinishReasonStop}, seen)
}

func TestLoop_PrepareStepOverrides(t *testing.T) {
	base := model.NewMockModel(toolStep("t1", "lookup", `{}`))
	alt := model.NewMockModel(textStep("from alt", "stop"))
	tools := testTools()

	var inputs []PrepareStepInput
	l := NewLoop(base, userPrompt(), func(o *Options) {
		o.Tools = tools
		o.Settings = model.Settings{Temperature: model.Ptr(0.2), MaxOutputTokens: model.Ptr[int64](100)}
		o.PrepareStep = func(_ context.Context, in PrepareStepInput) (*StepOverrides, error) {
			inputs = append(inputs, in)
			if in.StepNumber == 0 {
				return nil, nil
			}
			return &StepOverrides{
				Model:       alt,
				System:      model.Ptr("be brief"),
				ActiveTools: []string{"now"},
				ToolChoice:  &model.ToolChoice{Type: model.ToolChoiceRequired},
				Settings:    model.Settings{Temperature: model.Ptr(0.9)},
			}, nil
		}
	})

	_, err := l.Next(context.Background())
	require.NoError(t, err)
	require.NoError(t, l.Resume(context.Background(), []core.ToolResultPart{{ToolCallID: "t1", Output: core.TextOutput("x")}}))
	y, err := l.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from alt", y.Step.Text)

	first := base.Calls()[0]
	assert.Len(t, first.Tools, 2)
	assert.Nil(t, first.ToolChoice)

	second := alt.Calls()[0]
	require.Len(t, second.Tools, 1)
	assert.Equal(t, "now", second.Tools[0].Name)
	assert.Equal(t, model.ToolChoiceRequired, second.ToolChoice.Type)
	assert.Equal(t, 0.9, *second.Settings.Temperature)
	assert.Equal(t, int64(100), *second.Settings.MaxOutputTokens)
	assert.Equal(t, core.RoleSystem, second.Prompt[0].Role)
	assert.Equal(t, "be brief", second.Prompt[0].Text())

	require.Len(t, inputs, 2)
	assert.Len(t, inputs[1].Steps, 1)
	assert.Len(t, inputs[1].Messages, 3)

	// The override only applies to the call, not the conversation.
	assert.Equal(t, core.RoleUser, l.Messages()[0].Role)
}

func TestLoop_PrepareStepMessagesReplaceCallPrompt(t *testing.T) {
	mock := model.NewMockModel(textStep("ok", "stop"))
	l := NewLoop(mock, userPrompt(), func(o *Options) {
		o.PrepareStep = func(context.Context, PrepareStepInput) (*StepOverrides, error) {
			return &StepOverrides{Messages: core.Prompt{core.UserMessage("replaced")}}, nil
		}
	})

	_, err := l.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "replaced", mock.Calls()[0].Prompt[0].Text())
}

func TestLoop_PrepareStepError(t *testing.T) {
	boom := errors.New("nope")
	mock := model.NewMockModel(textStep("ok", "stop"))
	l := NewLoop(mock, userPrompt(), func(o *Options) {
		o.PrepareStep = func(context.Context, PrepareStepInput) (*StepOverrides, error) { return nil, boom }
	})

	_, err := l.Next(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, mock.Calls())
}

func TestLoop_InstructionInstallsSystem(t *testing.T) {
	mock := model.NewMockModel(textStep("ok", "stop"))
	l := NewLoop(mock, core.Prompt{core.SystemMessage("old"), core.UserMessage("hi")}, func(o *Options) {
		o.Instruction = NewInstructionFromText("new")
	})

	_, err := l.Next(context.Background())
	require.NoError(t, err)

	call := mock.Calls()[0]
	require.Len(t, call.Prompt, 2)
	assert.Equal(t, "new", call.Prompt[0].Text())
}

func TestLoop_PrepareStepSystemWinsOverInstruction(t *testing.T) {
	mock := model.NewMockModel(textStep("ok", "stop"))
	l := NewLoop(mock, userPrompt(), func(o *Options) {
		o.Instruction = NewInstructionFromTemplate("step {{.step_number}}", nil)
		o.PrepareStep = func(context.Context, PrepareStepInput) (*StepOverrides, error) {
			return &StepOverrides{System: model.Ptr("override")}, nil
		}
	})

	_, err := l.Next(context.Background())
	require.NoError(t, err)

	call := mock.Calls()[0]
	require.Len(t, call.Prompt, 2)
	assert.Equal(t, core.RoleSystem, call.Prompt[0].Role)
	assert.Equal(t, "override", call.Prompt[0].Text())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "pending-tool-calls", StatePendingToolCalls.String())
	assert.Equal(t, "done", StateDone.String())
}
