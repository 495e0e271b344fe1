package testutil

import (
	"fmt"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/stream"
)

// StepBuilder provides a fluent helper for scripting the canonical parts of
// one model step. Example:
//
//	parts := NewStepBuilder().Text("hello").Finish("stop").Parts()
//
// Each Text or Reasoning call produces its own start/delta/end block.
type StepBuilder struct {
	parts  []stream.Part
	blocks int
	usage  core.Usage
}

// NewStepBuilder creates a builder whose script begins with stream-start.
func NewStepBuilder() *StepBuilder {
	return &StepBuilder{parts: []stream.Part{stream.StreamStart{}}}
}

// Metadata appends response metadata (chainable).
func (b *StepBuilder) Metadata(id, modelID string) *StepBuilder {
	b.parts = append(b.parts, stream.ResponseMetadata{ID: id, ModelID: modelID})
	return b
}

// Text appends a text block split into the given fragments (chainable).
func (b *StepBuilder) Text(fragments ...string) *StepBuilder {
	id := b.nextID("txt")
	b.parts = append(b.parts, stream.TextStart{ID: id})
	for _, f := range fragments {
		b.parts = append(b.parts, stream.TextDelta{ID: id, Delta: f})
	}
	b.parts = append(b.parts, stream.TextEnd{ID: id})
	return b
}

// Reasoning appends a reasoning block (chainable).
func (b *StepBuilder) Reasoning(fragments ...string) *StepBuilder {
	id := b.nextID("rsn")
	b.parts = append(b.parts, stream.ReasoningStart{ID: id})
	for _, f := range fragments {
		b.parts = append(b.parts, stream.ReasoningDelta{ID: id, Delta: f})
	}
	b.parts = append(b.parts, stream.ReasoningEnd{ID: id})
	return b
}

// ToolCall appends a streamed tool input followed by the complete call (chainable).
func (b *StepBuilder) ToolCall(id, name, input string) *StepBuilder {
	b.parts = append(b.parts,
		stream.ToolInputStart{ID: id, ToolName: name},
		stream.ToolCallDelta{ID: id, Delta: input},
		stream.ToolInputEnd{ID: id},
		stream.ToolCall{ToolCallID: id, ToolName: name, Input: input},
	)
	return b
}

// ProviderToolCall appends a provider-executed call and its result (chainable).
func (b *StepBuilder) ProviderToolCall(id, name, input string, result any) *StepBuilder {
	b.parts = append(b.parts,
		stream.ToolCall{ToolCallID: id, ToolName: name, Input: input, ProviderExecuted: true},
		stream.ToolResult{ToolCallID: id, ToolName: name, Result: result, ProviderExecuted: true},
	)
	return b
}

// Usage sets the usage reported by Finish (chainable).
func (b *StepBuilder) Usage(in, out int64) *StepBuilder {
	b.usage = core.Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out}
	return b
}

// Part appends an arbitrary part (chainable).
func (b *StepBuilder) Part(p stream.Part) *StepBuilder {
	b.parts = append(b.parts, p)
	return b
}

// Finish appends the finish part (chainable).
func (b *StepBuilder) Finish(reason string) *StepBuilder {
	b.parts = append(b.parts, stream.Finish{Reason: stream.Reason(reason), Usage: b.usage})
	return b
}

// Parts returns a copy of the scripted parts.
func (b *StepBuilder) Parts() []stream.Part {
	out := make([]stream.Part, len(b.parts))
	copy(out, b.parts)
	return out
}

func (b *StepBuilder) nextID(prefix string) string {
	b.blocks++
	return fmt.Sprintf("%s-%d", prefix, b.blocks)
}
