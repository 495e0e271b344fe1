package step

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/logging"
	"github.com/hupe1980/agentstream/model"
	"github.com/hupe1980/agentstream/stream"
)

// Options configures an Executor.
type Options struct {
	Logger logging.Logger
	// IncludeRaw surfaces untranslated provider events as raw parts.
	IncludeRaw bool
	// NewID generates ids for blocks a provider left anonymous.
	NewID func() string
}

// Executor performs single model steps.
type Executor struct {
	opts Options
}

// NewExecutor creates a step executor.
func NewExecutor(optFns ...func(o *Options)) *Executor {
	opts := Options{NewID: uuid.NewString}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Executor{opts: opts}
}

// Request describes one step.
type Request struct {
	StepNumber int
	Model      model.LanguageModel
	Call       model.CallOptions
	// Writer receives the step framing and every canonical part. Optional.
	Writer stream.Writer
}

// Execute calls the model exactly once and aggregates the streamed parts.
// On failure the partial result is returned alongside the error.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	w := req.Writer
	if w == nil {
		w = stream.NopWriter{}
	}

	call := req.Call
	call.IncludeRaw = call.IncludeRaw || e.opts.IncludeRaw

	info := req.Model.Info()
	start := time.Now()

	e.opts.Logger.Debug("step.start", "step", req.StepNumber, "provider", info.Provider, "model", info.ModelID, "messages", len(call.Prompt))

	agg := newAggregator(req.StepNumber)

	if err := w.StartStep(ctx); err != nil {
		return agg.result(), err
	}

	res, err := req.Model.DoStream(ctx, call)
	if err != nil {
		err = core.Classify("model.stream", err)
		e.logFailure(req.StepNumber, start, err)

		return agg.result(), e.writeError(ctx, w, err)
	}

	parts := stream.Canonicalize(res.Stream, func(o *stream.CanonicalizeOptions) {
		o.IncludeRaw = call.IncludeRaw
		o.NewID = e.opts.NewID
	})

	for p := range parts.All() {
		switch v := p.(type) {
		case stream.Error:
			e.logFailure(req.StepNumber, start, v.Err)

			if core.IsCancellation(v.Err) {
				return agg.result(), v.Err
			}
			if werr := w.WritePart(ctx, v); werr != nil {
				return agg.result(), werr
			}

			return agg.result(), v.Err
		case stream.Finish:
			reason, nerr := v.Reason.Normalize()
			if nerr != nil {
				e.logFailure(req.StepNumber, start, nerr)
				return agg.result(), e.writeError(ctx, w, nerr)
			}
			agg.finish(reason, v)
		default:
			agg.add(p)
		}

		if err := w.WritePart(ctx, p); err != nil {
			return agg.result(), err
		}
	}

	if err := ctx.Err(); err != nil && !agg.reason.IsDefined() {
		err = core.NewCancelledError("step", err)
		e.logFailure(req.StepNumber, start, err)

		return agg.result(), err
	}

	result := agg.result()

	if err := w.FinishStep(ctx, result.FinishReason, result.Usage); err != nil {
		return result, err
	}

	e.opts.Logger.Info(
		"step.finish",
		"step", req.StepNumber,
		"finish_reason", string(result.FinishReason),
		"tool_calls", len(result.ToolCalls),
		"input_tokens", result.Usage.InputTokens,
		"output_tokens", result.Usage.OutputTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}

// writeError forwards err as an error part. Cancellation is not a failure
// and produces no part.
func (e *Executor) writeError(ctx context.Context, w stream.Writer, err error) error {
	if core.IsCancellation(err) {
		return err
	}
	if werr := w.WritePart(ctx, stream.Error{Err: err}); werr != nil {
		return werr
	}

	return err
}

func (e *Executor) logFailure(step int, start time.Time, err error) {
	if core.IsCancellation(err) {
		e.opts.Logger.Info("step.cancelled", "step", step, "duration_ms", time.Since(start).Milliseconds())
		return
	}

	e.opts.Logger.Error("step.error", "step", step, "kind", string(core.KindOf(err)), "error", err.Error())
}

// aggregator folds canonical parts into a Result.
type aggregator struct {
	res       Result
	blocks    map[string]*strings.Builder
	order     []contentEntry
	text      strings.Builder
	reasoning strings.Builder
	reason    core.FinishReason
}

// contentEntry is either a finished part or a text/reasoning block still
// being filled.
type contentEntry struct {
	part      core.Part
	block     *strings.Builder
	reasoning bool
}

func newAggregator(n int) *aggregator {
	return &aggregator{
		res:    Result{StepNumber: n},
		blocks: map[string]*strings.Builder{},
	}
}

func (a *aggregator) add(p stream.Part) {
	switch v := p.(type) {
	case stream.StreamStart:
		a.res.Warnings = append(a.res.Warnings, v.Warnings...)
	case stream.ResponseMetadata:
		a.res.Response = v
	case stream.TextStart:
		a.open("text:"+v.ID, false)
	case stream.TextDelta:
		a.block("text:"+v.ID, false).WriteString(v.Delta)
		a.text.WriteString(v.Delta)
	case stream.ReasoningStart:
		a.open("reasoning:"+v.ID, true)
	case stream.ReasoningDelta:
		a.block("reasoning:"+v.ID, true).WriteString(v.Delta)
		a.reasoning.WriteString(v.Delta)
	case stream.ToolCall:
		if strings.TrimSpace(v.Input) == "" {
			v.Input = "{}"
		}
		a.res.ToolCalls = append(a.res.ToolCalls, v)
		a.order = append(a.order, contentEntry{part: core.ToolCallPart{
			ToolCallID:       v.ToolCallID,
			ToolName:         v.ToolName,
			Input:            v.Input,
			ProviderExecuted: v.ProviderExecuted,
			ProviderOptions:  v.ProviderMetadata,
		}})
	case stream.ToolResult:
		tr := core.ToolResultPart{
			ToolCallID: v.ToolCallID,
			ToolName:   v.ToolName,
			Output:     providerOutput(v),
		}
		a.res.ProviderExecutedResults = append(a.res.ProviderExecutedResults, tr)
		a.order = append(a.order, contentEntry{part: tr})
	case stream.File:
		a.order = append(a.order, contentEntry{part: core.FilePart{Data: v.Data, MediaType: v.MediaType}})
	case stream.Source:
		a.res.Sources = append(a.res.Sources, v)
	}
}

func (a *aggregator) open(key string, reasoning bool) *strings.Builder {
	b := &strings.Builder{}
	a.blocks[key] = b
	a.order = append(a.order, contentEntry{block: b, reasoning: reasoning})

	return b
}

func (a *aggregator) block(key string, reasoning bool) *strings.Builder {
	if b, ok := a.blocks[key]; ok {
		return b
	}

	return a.open(key, reasoning)
}

func (a *aggregator) finish(reason core.FinishReason, f stream.Finish) {
	a.reason = reason
	a.res.FinishReason = reason
	a.res.RawFinishReason = f.Reason.Raw
	a.res.Usage = f.Usage
}

func (a *aggregator) result() *Result {
	r := a.res
	r.Text = a.text.String()
	r.Reasoning = a.reasoning.String()

	for _, e := range a.order {
		switch {
		case e.block == nil:
			r.Content = append(r.Content, e.part)
		case e.block.Len() == 0:
		case e.reasoning:
			r.Content = append(r.Content, core.ReasoningPart{Text: e.block.String()})
		default:
			r.Content = append(r.Content, core.TextPart{Text: e.block.String()})
		}
	}

	return &r
}

func providerOutput(tr stream.ToolResult) core.ToolResultOutput {
	if s, ok := tr.Result.(string); ok {
		if tr.IsError {
			return core.ErrorTextOutput(s)
		}
		return core.TextOutput(s)
	}

	if tr.IsError {
		return core.ErrorJSONOutput(tr.Result)
	}

	return core.JSONOutput(tr.Result)
}
