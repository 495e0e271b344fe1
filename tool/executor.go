package tool

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/internal/util"
	"github.com/hupe1980/agentstream/logging"
)

// ApprovalFunc decides whether a call may run. A denied call produces an
// execution-denied output carrying reason.
type ApprovalFunc func(ctx context.Context, call core.ToolCallPart) (approved bool, reason string, err error)

// ExecutorOptions configures the parallel executor.
type ExecutorOptions struct {
	// MaxParallel bounds concurrent calls. 0 or less means no limit.
	MaxParallel int
	// Approve, when set, is consulted before every call.
	Approve ApprovalFunc
	Logger  logging.Logger
}

// Executor runs a batch of tool calls concurrently and returns exactly one
// result per call, in call order, regardless of completion order. Tool
// failures, unknown tools and panics become error outputs; only cancellation
// and approval failures abort the batch.
type Executor struct {
	set  *Set
	opts ExecutorOptions
}

// NewExecutor constructs an executor over set.
func NewExecutor(set *Set, optFns ...func(o *ExecutorOptions)) *Executor {
	opts := ExecutorOptions{}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Executor{set: set, opts: opts}
}

// Execute runs calls and returns their results in call order.
func (e *Executor) Execute(ctx context.Context, calls []core.ToolCallPart, messages core.Prompt) ([]core.ToolResultPart, error) {
	results := make([]core.ToolResultPart, len(calls))
	if len(calls) == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if e.opts.MaxParallel > 0 {
		g.SetLimit(e.opts.MaxParallel)
	}

	batchStart := time.Now()

	for i, call := range calls {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			out, err := e.executeOne(gctx, call, messages)
			if err != nil {
				return err
			}

			results[i] = core.ToolResultPart{ToolCallID: call.ToolCallID, ToolName: call.ToolName, Output: out}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if core.IsCancellation(err) {
			return nil, core.NewCancelledError("tool.execute", err)
		}
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, core.NewCancelledError("tool.execute", err)
	}

	e.opts.Logger.Debug(
		"tool.batch.complete",
		"count", len(calls),
		"parallelism", e.opts.MaxParallel,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results, nil
}

func (e *Executor) executeOne(ctx context.Context, call core.ToolCallPart, messages core.Prompt) (core.ToolResultOutput, error) {
	if e.opts.Approve != nil {
		ok, reason, err := e.opts.Approve(ctx, call)
		if err != nil {
			return core.ToolResultOutput{}, fmt.Errorf("approve tool call %s: %w", call.ToolCallID, err)
		}
		if !ok {
			e.opts.Logger.Info("tool.call.denied", "tool", call.ToolName, "tool_call_id", call.ToolCallID, "reason", reason)
			return core.ExecutionDenied(reason), nil
		}
	}

	start := time.Now()
	result, err := e.call(ctx, call, messages)

	e.opts.Logger.Info(
		"tool.call.executed",
		"tool", call.ToolName,
		"tool_call_id", call.ToolCallID,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	if err != nil && core.IsCancellation(err) && ctx.Err() != nil {
		return core.ToolResultOutput{}, err
	}

	return ToOutput(result, err), nil
}

func (e *Executor) call(ctx context.Context, call core.ToolCallPart, messages core.Prompt) (result any, err error) {
	impl, ok := e.set.Get(call.ToolName)
	if !ok {
		return nil, NewToolError(call.ToolName, fmt.Sprintf("tool %s not found", call.ToolName), CodeNotFound)
	}

	args, err := argMap(call.Input)
	if err != nil {
		return nil, &ToolError{Tool: call.ToolName, Message: err.Error(), Code: CodeInvalidArg, Details: err}
	}

	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
			e.opts.Logger.Error("tool.call.panic", "tool", call.ToolName, "recover", r)
		}
	}()

	return impl.Call(NewContext(ctx, call, messages, e.opts.Logger), args)
}

// argMap accepts already parsed input or its serialized form.
func argMap(input any) (map[string]any, error) {
	switch v := input.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	case string:
		return util.ToolInputObject(v)
	}

	return nil, fmt.Errorf("tool input must be an object, got %T", input)
}

// ToOutput converts a tool's return values into a tool result output.
func ToOutput(result any, err error) core.ToolResultOutput {
	if err != nil {
		return core.ErrorTextOutput(err.Error())
	}

	switch v := result.(type) {
	case core.ToolResultOutput:
		if verr := v.Validate(); verr != nil {
			return core.ErrorTextOutput(verr.Error())
		}
		return v
	case string:
		return core.TextOutput(v)
	}

	return core.JSONOutput(result)
}

// panicError converts a recovered panic value to an error.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }

