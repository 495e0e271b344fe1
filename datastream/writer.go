package datastream

import (
	"context"

	"github.com/google/uuid"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/internal/util"
	"github.com/hupe1980/agentstream/stream"
)

// Headers are the response headers of a legacy data stream.
var Headers = map[string]string{
	"Content-Type":            "text/plain; charset=utf-8",
	"X-Vercel-Ai-Data-Stream": "v1",
}

// WriterOptions configures a Writer.
type WriterOptions struct {
	// SendReasoning forwards reasoning fragments. Defaults to true.
	SendReasoning bool
	// SendUsage attaches usage to finish parts. Defaults to true.
	SendUsage bool
	// NewID generates step message ids.
	NewID func() string
	// OnError maps a stream error to the message sent to the client.
	OnError func(err error) string
}

// Writer maps canonical parts onto legacy lines and hands each encoded line
// to emit. It implements stream.Writer.
type Writer struct {
	emit func(ctx context.Context, b []byte) error
	opts WriterOptions
}

var _ stream.Writer = (*Writer)(nil)

// NewWriter creates a legacy protocol writer.
func NewWriter(emit func(ctx context.Context, b []byte) error, optFns ...func(o *WriterOptions)) *Writer {
	opts := WriterOptions{
		SendReasoning: true,
		SendUsage:     true,
		NewID:         uuid.NewString,
		OnError:       func(err error) string { return err.Error() },
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.OnError == nil {
		opts.OnError = func(err error) string { return err.Error() }
	}

	return &Writer{emit: emit, opts: opts}
}

// StartRun implements stream.Writer. The legacy protocol has no run header.
func (w *Writer) StartRun(context.Context, string) error { return nil }

// StartStep implements stream.Writer.
func (w *Writer) StartStep(ctx context.Context) error {
	return w.write(ctx, StartStepPart{MessageID: "msg-" + w.opts.NewID()})
}

// WritePart implements stream.Writer.
func (w *Writer) WritePart(ctx context.Context, p stream.Part) error {
	lp, err := fromCanonical(p, w.opts)
	if err != nil || lp == nil {
		return err
	}

	return w.write(ctx, lp)
}

// FinishStep implements stream.Writer.
func (w *Writer) FinishStep(ctx context.Context, reason core.FinishReason, usage core.Usage) error {
	return w.write(ctx, FinishStepPart{
		FinishReason: reasonString(reason),
		Usage:        w.usage(usage),
	})
}

// WriteToolOutputs implements stream.Writer.
func (w *Writer) WriteToolOutputs(ctx context.Context, results []core.ToolResultPart) error {
	for _, r := range results {
		if err := w.write(ctx, ToolResultPart{ToolCallID: r.ToolCallID, Result: r.Output.WireValue()}); err != nil {
			return err
		}
	}

	return nil
}

// FinishRun implements stream.Writer.
func (w *Writer) FinishRun(ctx context.Context, reason core.FinishReason, usage core.Usage) error {
	return w.write(ctx, FinishMessagePart{
		FinishReason: reasonString(reason),
		Usage:        w.usage(usage),
	})
}

// WriteError emits an error line.
func (w *Writer) WriteError(ctx context.Context, err error) error {
	return w.write(ctx, ErrorPart{Message: w.opts.OnError(err)})
}

func (w *Writer) usage(u core.Usage) *core.Usage {
	if !w.opts.SendUsage {
		return nil
	}
	return &u
}

func (w *Writer) write(ctx context.Context, p Part) error {
	b, err := Encode(p)
	if err != nil {
		return err
	}

	return w.emit(ctx, b)
}

// fromCanonical returns nil for parts that have no legacy representation.
func fromCanonical(p stream.Part, opts WriterOptions) (Part, error) {
	switch v := p.(type) {
	case stream.TextDelta:
		return TextPart{Text: v.Delta}, nil
	case stream.ReasoningDelta:
		if !opts.SendReasoning {
			return nil, nil
		}
		return ReasoningPart{Text: v.Delta}, nil
	case stream.ToolInputStart:
		return ToolCallStreamingStartPart{ToolCallID: v.ID, ToolName: v.ToolName}, nil
	case stream.ToolCallDelta:
		return ToolCallDeltaPart{ToolCallID: v.ID, ArgsTextDelta: v.Delta}, nil
	case stream.ToolCall:
		args, err := util.ToolInputObject(v.Input)
		if err != nil {
			return nil, core.NewProtocolError("datastream", "tool call "+v.ToolCallID, err)
		}
		return ToolCallPart{ToolCallID: v.ToolCallID, ToolName: v.ToolName, Args: args}, nil
	case stream.ToolResult:
		return ToolResultPart{ToolCallID: v.ToolCallID, Result: v.Result}, nil
	case stream.File:
		return FilePart{Data: v.Data, MimeType: v.MediaType}, nil
	case stream.Source:
		src := map[string]any{"sourceType": v.SourceType, "id": v.ID}
		if v.URL != "" {
			src["url"] = v.URL
		}
		if v.Title != "" {
			src["title"] = v.Title
		}
		return SourcePart{Source: src}, nil
	case stream.Error:
		onError := opts.OnError
		if onError == nil {
			onError = func(err error) string { return err.Error() }
		}
		return ErrorPart{Message: onError(v)}, nil
	case stream.StreamStart, stream.ResponseMetadata,
		stream.TextStart, stream.TextEnd,
		stream.ReasoningStart, stream.ReasoningEnd,
		stream.ToolInputEnd, stream.Finish, stream.Raw:
		return nil, nil
	default:
		return nil, nil
	}
}

func reasonString(r core.FinishReason) string {
	if !r.IsDefined() {
		return string(core.FinishReasonUnknown)
	}
	return string(r)
}
