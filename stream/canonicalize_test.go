package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentstream/core"
)

func seqIDs() func(o *CanonicalizeOptions) {
	n := 0
	return func(o *CanonicalizeOptions) {
		o.NewID = func() string {
			n++
			return fmt.Sprintf("gen-%d", n)
		}
	}
}

func TestCanonicalizePreservesOrder(t *testing.T) {
	src := FromParts(
		StreamStart{},
		TextStart{ID: "t"},
		TextDelta{ID: "t", Delta: "hel"},
		TextDelta{ID: "t", Delta: "lo"},
		TextEnd{ID: "t"},
		Finish{Reason: Reason("stop"), Usage: core.Usage{OutputTokens: 2}},
	)

	parts := Collect(Canonicalize(src).All())

	assert.Equal(t, []Part{
		StreamStart{},
		TextStart{ID: "t"},
		TextDelta{ID: "t", Delta: "hel"},
		TextDelta{ID: "t", Delta: "lo"},
		TextEnd{ID: "t"},
		Finish{Reason: Reason("stop"), Usage: core.Usage{OutputTokens: 2}},
	}, parts)
}

func TestCanonicalizeSynthesizesStart(t *testing.T) {
	src := FromParts(
		TextDelta{Delta: "a"},
		TextDelta{Delta: "b"},
		ReasoningDelta{ID: "r", Delta: "think"},
		ToolCallDelta{ID: "c1", Delta: `{"q":`},
	)

	parts := Collect(Canonicalize(src, seqIDs()).All())

	assert.Equal(t, []Part{
		TextStart{ID: "gen-1"},
		TextDelta{ID: "gen-1", Delta: "a"},
		TextDelta{ID: "gen-1", Delta: "b"},
		ReasoningStart{ID: "r"},
		ReasoningDelta{ID: "r", Delta: "think"},
		ToolInputStart{ID: "c1"},
		ToolCallDelta{ID: "c1", Delta: `{"q":`},
	}, parts)
}

func TestCanonicalizeDeltaAfterEndIsTerminalError(t *testing.T) {
	src := FromParts(
		TextStart{ID: "t"},
		TextEnd{ID: "t"},
		TextDelta{ID: "t", Delta: "late"},
		TextDelta{ID: "x", Delta: "never"},
	)

	parts := Collect(Canonicalize(src).All())

	require.Len(t, parts, 3)
	errPart, ok := parts[2].(Error)
	require.True(t, ok)
	assert.Equal(t, core.KindProtocol, core.KindOf(errPart.Err))
}

func TestCanonicalizeDuplicateStartAndOrphanEnd(t *testing.T) {
	for name, src := range map[string]EventSource{
		"duplicate start": FromParts(TextStart{ID: "t"}, TextStart{ID: "t"}),
		"orphan end":      FromParts(ReasoningEnd{ID: "r"}),
	} {
		t.Run(name, func(t *testing.T) {
			parts := Collect(Canonicalize(src).All())
			last, ok := parts[len(parts)-1].(Error)
			require.True(t, ok)
			assert.Equal(t, core.KindProtocol, core.KindOf(last))
		})
	}
}

func TestCanonicalizeClosesToolInputOnToolCall(t *testing.T) {
	src := FromParts(
		ToolInputStart{ID: "c1", ToolName: "lookup"},
		ToolCallDelta{ID: "c1", Delta: "{}"},
		ToolCall{ToolCallID: "c1", ToolName: "lookup", Input: "{}"},
	)

	parts := Collect(Canonicalize(src).All())

	assert.Equal(t, []Part{
		ToolInputStart{ID: "c1", ToolName: "lookup"},
		ToolCallDelta{ID: "c1", Delta: "{}"},
		ToolInputEnd{ID: "c1"},
		ToolCall{ToolCallID: "c1", ToolName: "lookup", Input: "{}"},
	}, parts)
}

func TestCanonicalizeRawOptIn(t *testing.T) {
	events := []Event{
		{Native: map[string]any{"type": "ping"}},
		{Part: Raw{Value: "x"}},
		{Part: TextDelta{ID: "t", Delta: "a"}},
	}

	dropped := Collect(Canonicalize(FromEvents(events, nil)).All())
	assert.Equal(t, []Part{TextStart{ID: "t"}, TextDelta{ID: "t", Delta: "a"}}, dropped)

	kept := Collect(Canonicalize(FromEvents(events, nil), func(o *CanonicalizeOptions) {
		o.IncludeRaw = true
	}).All())
	require.Len(t, kept, 4)
	assert.Equal(t, Raw{Value: map[string]any{"type": "ping"}}, kept[0])
	assert.Equal(t, Raw{Value: "x"}, kept[1])
}

func TestCanonicalizeTransportErrorIsTerminal(t *testing.T) {
	cause := errors.New("connection reset")
	src := FromEvents([]Event{{Part: TextDelta{ID: "t", Delta: "a"}}}, cause)

	parts := Collect(Canonicalize(src).All())

	require.Len(t, parts, 3)
	errPart, ok := parts[2].(Error)
	require.True(t, ok)
	assert.ErrorIs(t, errPart, cause)
	assert.Equal(t, core.KindTransport, core.KindOf(errPart.Err))
}

func TestCanonicalizeStopsAfterFinish(t *testing.T) {
	pulled := 0
	src := func(yield func(Event, error) bool) {
		for _, p := range []Part{Finish{Reason: Reason("stop")}, TextDelta{ID: "t", Delta: "x"}} {
			pulled++
			if !yield(Event{Part: p}, nil) {
				return
			}
		}
	}

	parts := Collect(Canonicalize(src).All())

	assert.Len(t, parts, 1)
	assert.Equal(t, 1, pulled)
}

func TestCanonicalizeNotRestartable(t *testing.T) {
	s := Canonicalize(FromParts(TextDelta{ID: "t", Delta: "a"}))
	first := Collect(s.All())
	second := Collect(s.All())

	assert.Len(t, first, 2)
	require.Len(t, second, 1)
	assert.ErrorIs(t, second[0].(Error), ErrConsumed)
}

func TestReportedFinishReasonUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want ReportedFinishReason
	}{
		{in: `"stop"`, want: ReportedFinishReason{Unified: "stop"}},
		{in: `{"unified":"tool-calls","raw":"tool_use"}`, want: ReportedFinishReason{Unified: "tool-calls", Raw: "tool_use"}},
		{in: `{"type":"length"}`, want: ReportedFinishReason{Unified: "length"}},
		{in: `{"raw":"weird"}`, want: ReportedFinishReason{Unified: "other", Raw: "weird"}},
		{in: `null`, want: ReportedFinishReason{}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var r ReportedFinishReason
			require.NoError(t, json.Unmarshal([]byte(tt.in), &r))
			assert.Equal(t, tt.want, r)
		})
	}

	_, err := Reason("bogus").Normalize()
	assert.Error(t, err)

	fr, err := ReportedFinishReason{Unified: "stop", Raw: "end_turn"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, core.FinishReasonStop, fr)
}
