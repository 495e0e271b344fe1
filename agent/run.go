package agent

import (
	"context"
	"errors"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/model"
	"github.com/hupe1980/agentstream/step"
	"github.com/hupe1980/agentstream/tool"
)

// RunOptions configures Run.
type RunOptions struct {
	Options
	// MaxParallel bounds concurrent tool executions per step. 0 means no limit.
	MaxParallel int
	// Approve is consulted before every local tool call.
	Approve tool.ApprovalFunc
}

// Result is the outcome of a completed run.
type Result struct {
	Steps    []*step.Result
	Messages core.Prompt
	// FinalStep is the last executed step, which may have ended with tool calls
	// when a stop condition or the step limit ended the run.
	FinalStep    *step.Result
	Text         string
	FinishReason core.FinishReason
	TotalUsage   core.Usage
}

// Run drives a Loop to completion, executing local tool calls with the
// configured tool set. Provider executed results are reused as supplied. On
// failure the steps completed so far are returned with the error.
func Run(ctx context.Context, m model.LanguageModel, prompt core.Prompt, optFns ...func(o *RunOptions)) (*Result, error) {
	opts := RunOptions{}

	for _, fn := range optFns {
		fn(&opts)
	}

	loop := NewLoop(m, prompt, func(o *Options) { *o = opts.Options })

	exec := tool.NewExecutor(opts.Tools, func(o *tool.ExecutorOptions) {
		o.MaxParallel = opts.MaxParallel
		o.Approve = opts.Approve
		o.Logger = loop.opts.Logger
	})

	for {
		y, err := loop.Next(ctx)
		if errors.Is(err, ErrDone) {
			break
		}
		if err != nil {
			return collect(loop), err
		}
		if y.Final {
			break
		}

		results, err := exec.Execute(ctx, y.ToolCalls, y.Messages)
		if err != nil {
			return collect(loop), err
		}

		if err := loop.Resume(ctx, results); err != nil {
			return collect(loop), err
		}
	}

	return collect(loop), nil
}

func collect(l *Loop) *Result {
	res := &Result{
		Steps:      l.Steps(),
		Messages:   l.Messages(),
		TotalUsage: l.TotalUsage(),
	}

	if n := len(res.Steps); n > 0 {
		res.FinalStep = res.Steps[n-1]
		res.Text = res.FinalStep.Text
		res.FinishReason = res.FinalStep.FinishReason
	}

	return res
}
