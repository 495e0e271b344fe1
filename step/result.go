package step

import (
	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/stream"
)

// Result is the aggregated outcome of one step. It is not modified after
// Execute returns.
type Result struct {
	StepNumber int
	// Content holds text, reasoning, tool call, provider tool result and file
	// parts in stream order. Tool call inputs are the serialized JSON.
	Content   []core.Part
	Text      string
	Reasoning string
	// FinishReason is undefined when the stream ended without a finish part.
	FinishReason    core.FinishReason
	RawFinishReason string
	Usage           core.Usage
	// ToolCalls lists every call of the step, including provider executed
	// ones, in stream order. Empty inputs are reported as "{}".
	ToolCalls []stream.ToolCall
	// ProviderExecutedResults holds results the provider supplied itself.
	ProviderExecutedResults []core.ToolResultPart
	Sources                 []stream.Source
	Response                stream.ResponseMetadata
	Warnings                []string
}

// LocalToolCalls returns the calls that need a locally produced result.
// Provider executed calls are excluded.
func (r *Result) LocalToolCalls() []stream.ToolCall {
	var out []stream.ToolCall
	for _, c := range r.ToolCalls {
		if !c.ProviderExecuted {
			out = append(out, c)
		}
	}

	return out
}

// HasToolCall reports whether the step requested a call of the named tool.
func (r *Result) HasToolCall(name string) bool {
	for _, c := range r.ToolCalls {
		if c.ToolName == name {
			return true
		}
	}

	return false
}
