package stream

import (
	"context"

	"github.com/hupe1980/agentstream/core"
)

// Writer receives the canonical parts of a run framed by run and step
// boundaries. Wire codecs implement it to encode parts for a sink.
type Writer interface {
	// StartRun is called once before the first step.
	StartRun(ctx context.Context, messageID string) error
	// StartStep is called before the parts of each step.
	StartStep(ctx context.Context) error
	// WritePart forwards one canonical part in arrival order.
	WritePart(ctx context.Context, p Part) error
	// FinishStep is called after the last part of a step.
	FinishStep(ctx context.Context, reason core.FinishReason, usage core.Usage) error
	// WriteToolOutputs forwards locally executed tool results after a resume.
	WriteToolOutputs(ctx context.Context, results []core.ToolResultPart) error
	// FinishRun is called once when the run completes normally.
	FinishRun(ctx context.Context, reason core.FinishReason, usage core.Usage) error
}

// NopWriter discards everything.
type NopWriter struct{}

func (NopWriter) StartRun(context.Context, string) error { return nil }
func (NopWriter) StartStep(context.Context) error        { return nil }
func (NopWriter) WritePart(context.Context, Part) error  { return nil }
func (NopWriter) FinishStep(context.Context, core.FinishReason, core.Usage) error {
	return nil
}
func (NopWriter) WriteToolOutputs(context.Context, []core.ToolResultPart) error { return nil }
func (NopWriter) FinishRun(context.Context, core.FinishReason, core.Usage) error {
	return nil
}
