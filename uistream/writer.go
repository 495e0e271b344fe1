package uistream

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/internal/util"
	"github.com/hupe1980/agentstream/stream"
)

// WriterOptions configures a Writer.
type WriterOptions struct {
	// SendStart emits the start chunk carrying the message id. Defaults to true.
	SendStart bool
	// SendFinish emits the finish chunk when the run completes. Defaults to true.
	SendFinish bool
	// SendReasoning forwards reasoning blocks. Defaults to true.
	SendReasoning bool
	// SendSources forwards source citations. Defaults to false.
	SendSources bool
	// OnError maps a stream error to the text sent to the client.
	OnError func(err error) string
}

// Writer maps canonical parts onto UI message chunks and hands each encoded
// frame to emit. It implements stream.Writer. Close emits the [DONE]
// sentinel exactly once.
type Writer struct {
	emit      func(ctx context.Context, b []byte) error
	opts      WriterOptions
	closeOnce sync.Once
}

var _ stream.Writer = (*Writer)(nil)

// NewWriter creates a UI message stream writer.
func NewWriter(emit func(ctx context.Context, b []byte) error, optFns ...func(o *WriterOptions)) *Writer {
	opts := WriterOptions{
		SendStart:     true,
		SendFinish:    true,
		SendReasoning: true,
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

// StartRun implements stream.Writer.
func (w *Writer) StartRun(ctx context.Context, messageID string) error {
	if !w.opts.SendStart {
		return nil
	}
	return w.Write(ctx, Start{MessageID: messageID})
}

// StartStep implements stream.Writer.
func (w *Writer) StartStep(ctx context.Context) error {
	return w.Write(ctx, StartStep{})
}

// WritePart implements stream.Writer.
func (w *Writer) WritePart(ctx context.Context, p stream.Part) error {
	c := FromPart(p, w.opts)
	if c == nil {
		return nil
	}
	return w.Write(ctx, c)
}

// FinishStep implements stream.Writer.
func (w *Writer) FinishStep(ctx context.Context, _ core.FinishReason, _ core.Usage) error {
	return w.Write(ctx, FinishStep{})
}

// WriteToolOutputs implements stream.Writer.
func (w *Writer) WriteToolOutputs(ctx context.Context, results []core.ToolResultPart) error {
	for _, r := range results {
		if err := w.Write(ctx, ToolOutput(r)); err != nil {
			return err
		}
	}
	return nil
}

// FinishRun implements stream.Writer.
func (w *Writer) FinishRun(ctx context.Context, reason core.FinishReason, _ core.Usage) error {
	if !w.opts.SendFinish {
		return nil
	}
	return w.Write(ctx, Finish{FinishReason: string(reason)})
}

// Write encodes and emits one chunk.
func (w *Writer) Write(ctx context.Context, c Chunk) error {
	b, err := Encode(c)
	if err != nil {
		return err
	}
	return w.emit(ctx, b)
}

// WriteError emits an error chunk with the text produced by OnError.
func (w *Writer) WriteError(ctx context.Context, err error) error {
	return w.Write(ctx, Error{ErrorText: w.opts.OnError(err)})
}

// Close emits the [DONE] sentinel. Subsequent calls do nothing.
func (w *Writer) Close(ctx context.Context) error {
	var err error
	w.closeOnce.Do(func() {
		err = w.emit(ctx, DoneFrame)
	})
	return err
}

// ToolOutput maps a locally executed tool result onto its chunk. Failed
// executions become tool-output-error; execution-denied is an output.
func ToolOutput(r core.ToolResultPart) Chunk {
	switch r.Output.Type {
	case core.OutputErrorText, core.OutputErrorJSON:
		return ToolOutputError{ToolCallID: r.ToolCallID, ErrorText: r.Output.String()}
	default:
		return ToolOutputAvailable{ToolCallID: r.ToolCallID, Output: r.Output.WireValue()}
	}
}

// FromPart maps a canonical part onto a chunk. It returns nil for parts that
// produce no chunk (stream-start, response-metadata, tool-input-end, finish
// and raw) and for parts disabled by opts.
func FromPart(p stream.Part, opts WriterOptions) Chunk {
	switch v := p.(type) {
	case stream.TextStart:
		return TextStart{ID: v.ID}
	case stream.TextDelta:
		return TextDelta{ID: v.ID, Delta: v.Delta}
	case stream.TextEnd:
		return TextEnd{ID: v.ID}
	case stream.ReasoningStart:
		if opts.SendReasoning {
			return ReasoningStart{ID: v.ID}
		}
	case stream.ReasoningDelta:
		if opts.SendReasoning {
			return ReasoningDelta{ID: v.ID, Delta: v.Delta}
		}
	case stream.ReasoningEnd:
		if opts.SendReasoning {
			return ReasoningEnd{ID: v.ID}
		}
	case stream.ToolInputStart:
		return ToolInputStart{ToolCallID: v.ID, ToolName: v.ToolName, ProviderExecuted: v.ProviderExecuted}
	case stream.ToolCallDelta:
		return ToolInputDelta{ToolCallID: v.ID, InputTextDelta: v.Delta}
	case stream.ToolCall:
		var input any = v.Input
		if parsed, err := util.ParseToolInput(v.Input); err == nil {
			input = parsed
		}
		return ToolInputAvailable{ToolCallID: v.ToolCallID, ToolName: v.ToolName, Input: input, ProviderExecuted: v.ProviderExecuted}
	case stream.ToolResult:
		if v.IsError {
			return ToolOutputError{ToolCallID: v.ToolCallID, ErrorText: fmt.Sprint(v.Result), ProviderExecuted: v.ProviderExecuted}
		}
		return ToolOutputAvailable{ToolCallID: v.ToolCallID, Output: v.Result, ProviderExecuted: v.ProviderExecuted}
	case stream.File:
		return File{URL: "data:" + v.MediaType + ";base64," + v.Data, MediaType: v.MediaType}
	case stream.Source:
		if !opts.SendSources {
			return nil
		}
		if v.SourceType == "document" {
			return SourceDocument{SourceID: v.ID, MediaType: v.MediaType, Title: v.Title, Filename: v.Filename}
		}
		return SourceURL{SourceID: v.ID, URL: v.URL, Title: v.Title}
	case stream.Error:
		onError := opts.OnError
		if onError == nil {
			onError = func(err error) string { return err.Error() }
		}
		return Error{ErrorText: onError(v)}
	case stream.StreamStart, stream.ResponseMetadata, stream.ToolInputEnd, stream.Finish, stream.Raw:
	}

	return nil
}
