package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/internal/util"
	"github.com/hupe1980/agentstream/logging"
	"github.com/hupe1980/agentstream/model"
	"github.com/hupe1980/agentstream/step"
	"github.com/hupe1980/agentstream/stream"
	"github.com/hupe1980/agentstream/tool"
)

var (
	// ErrPendingToolCalls is returned by Next while tool results are outstanding.
	ErrPendingToolCalls = errors.New("agent: tool calls pending, call Resume")
	// ErrDone is returned by Next once the run has ended.
	ErrDone = errors.New("agent: run is done")
	// ErrNotPending is returned by Resume when no tool calls are outstanding.
	ErrNotPending = errors.New("agent: no tool calls pending")
)

// State is the position of a Loop in its lifecycle.
type State int

const (
	StateReady State = iota
	StatePendingToolCalls
	StateDone
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StatePendingToolCalls:
		return "pending-tool-calls"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Options configures a Loop.
type Options struct {
	// Instruction is resolved before every step and installed as the system
	// message when non-empty, unless PrepareStep overrides the system message.
	Instruction Instruction
	Tools       *tool.Set
	// ActiveTools restricts the exposed tools. Nil exposes all.
	ActiveTools    []string
	ToolChoice     *model.ToolChoice
	Settings       model.Settings
	ResponseFormat *model.ResponseFormat
	// MaxSteps caps the number of model calls. 0 means unbounded.
	MaxSteps int
	// StopWhen conditions are evaluated after tool results are integrated.
	StopWhen    []StopCondition
	PrepareStep PrepareStepFunc
	// OnStepFinish runs synchronously after each step. Its error ends the run.
	OnStepFinish func(ctx context.Context, res *step.Result) error
	// Writer receives run framing and every canonical part.
	Writer stream.Writer
	// MessageID identifies the assistant message on the wire. Generated when empty.
	MessageID    string
	IncludeRaw   bool
	StepExecutor *step.Executor
	Logger       logging.Logger
}

// Yield is handed to the caller after each step.
type Yield struct {
	Step *step.Result
	// ToolCalls are the calls that need a locally produced result, with
	// parsed inputs.
	ToolCalls []core.ToolCallPart
	// ProviderExecutedResults were supplied by the provider and count as
	// results on Resume.
	ProviderExecutedResults []core.ToolResultPart
	// Messages is a snapshot of the conversation.
	Messages core.Prompt
	// Final marks the last yield of the run.
	Final bool
}

// Loop is the multi-step state machine. It is not safe for concurrent use.
type Loop struct {
	opts    Options
	model   model.LanguageModel
	prompt  core.Prompt
	steps   []*step.Result
	state   State
	started bool
	usage   core.Usage

	// pending holds every call of the paused step in call order.
	pending         []core.ToolCallPart
	providerResults []core.ToolResultPart
	// final is a stop decided on Resume, delivered by the next Next.
	final   *Yield
	partial *step.Result
}

// NewLoop creates a loop over the given conversation. The prompt is copied.
func NewLoop(m model.LanguageModel, prompt core.Prompt, optFns ...func(o *Options)) *Loop {
	opts := Options{}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.Writer == nil {
		opts.Writer = stream.NopWriter{}
	}
	if opts.MessageID == "" {
		opts.MessageID = uuid.NewString()
	}
	if opts.StepExecutor == nil {
		opts.StepExecutor = step.NewExecutor(func(o *step.Options) {
			o.Logger = opts.Logger
			o.IncludeRaw = opts.IncludeRaw
		})
	}

	return &Loop{
		opts:   opts,
		model:  m,
		prompt: prompt.Clone(),
	}
}

// State reports the current state.
func (l *Loop) State() State { return l.state }

// Messages returns a copy of the conversation.
func (l *Loop) Messages() core.Prompt { return l.prompt.Clone() }

// Steps returns the completed steps in order.
func (l *Loop) Steps() []*step.Result { return append([]*step.Result(nil), l.steps...) }

// TotalUsage sums the usage of all completed steps.
func (l *Loop) TotalUsage() core.Usage { return l.usage }

// Partial returns what was aggregated by a step that failed, if anything.
func (l *Loop) Partial() *step.Result { return l.partial }

// Next executes the next step. It returns ErrPendingToolCalls while results
// are outstanding and ErrDone after the final yield was delivered.
func (l *Loop) Next(ctx context.Context) (*Yield, error) {
	switch l.state {
	case StatePendingToolCalls:
		return nil, ErrPendingToolCalls
	case StateDone:
		if y := l.final; y != nil {
			l.final = nil
			return y, nil
		}
		return nil, ErrDone
	}

	if !l.started {
		l.started = true
		l.opts.Logger.Info("agent.run.start", "message_id", l.opts.MessageID, "max_steps", l.opts.MaxSteps)

		if err := l.opts.Writer.StartRun(ctx, l.opts.MessageID); err != nil {
			return nil, l.fail(err)
		}
	}

	n := len(l.steps)

	if err := ctx.Err(); err != nil {
		l.opts.Logger.Info("agent.run.aborted", "step", n)
		return nil, l.fail(core.NewCancelledError("agent.next", err))
	}

	if l.opts.MaxSteps > 0 && n >= l.opts.MaxSteps {
		return l.stop(ctx, "max-steps"), nil
	}

	req, err := l.prepare(ctx, n)
	if err != nil {
		return nil, l.fail(err)
	}

	res, err := l.opts.StepExecutor.Execute(ctx, req)
	if err != nil {
		l.partial = res
		return nil, l.fail(err)
	}

	l.steps = append(l.steps, res)
	l.usage = l.usage.Add(res.Usage)

	// A tool-calls finish without any call has nothing to resume with and
	// ends the run like any other finish reason.
	if res.FinishReason == core.FinishReasonToolCalls {
		if len(res.ToolCalls) > 0 {
			return l.pause(ctx, res)
		}
		l.opts.Logger.Info("agent.step.no_tool_calls", "step", n)
	}

	if !res.FinishReason.IsDefined() {
		l.opts.Logger.Info("agent.step.inconclusive", "step", n)
	}

	if msg, ok := responseMessage(res); ok {
		l.prompt = append(l.prompt, msg)
	}

	if err := l.stepFinished(ctx, res); err != nil {
		return nil, err
	}

	y := l.stop(ctx, "finish-reason")
	l.final = nil

	return y, nil
}

// Resume supplies the results of the pending tool calls. Results may arrive
// in any order; they are appended in call order. Provider executed results
// need not be repeated. An invalid result set leaves the loop pending.
func (l *Loop) Resume(ctx context.Context, results []core.ToolResultPart) error {
	if l.state != StatePendingToolCalls {
		return ErrNotPending
	}

	ordered, err := orderResults(l.pending, l.providerResults, results)
	if err != nil {
		return err
	}

	l.prompt = append(l.prompt, core.ToolMessage(ordered...))
	l.state = StateReady
	l.pending, l.providerResults = nil, nil

	l.opts.Logger.Debug("agent.resume", "step", len(l.steps)-1, "results", len(ordered))

	if len(results) > 0 {
		if err := l.opts.Writer.WriteToolOutputs(ctx, localOrder(ordered, results)); err != nil {
			return l.fail(err)
		}
	}

	last := l.steps[len(l.steps)-1]
	if err := l.stepFinished(ctx, last); err != nil {
		return err
	}

	switch {
	case l.opts.MaxSteps > 0 && len(l.steps) >= l.opts.MaxSteps:
		l.stop(ctx, "max-steps")
	case l.shouldStop():
		l.stop(ctx, "stop-condition")
	}

	return nil
}

func (l *Loop) prepare(ctx context.Context, n int) (step.Request, error) {
	m := l.model
	prompt := l.prompt.Clone()
	active := l.opts.ActiveTools
	choice := l.opts.ToolChoice
	settings := l.opts.Settings
	systemSet := false

	if l.opts.PrepareStep != nil {
		o, err := l.opts.PrepareStep(ctx, PrepareStepInput{
			Model:      m,
			StepNumber: n,
			Steps:      l.Steps(),
			Messages:   l.prompt.Clone(),
		})
		if err != nil {
			return step.Request{}, fmt.Errorf("prepare step %d: %w", n, err)
		}

		if o != nil {
			if o.Model != nil {
				m = o.Model
			}
			if o.Messages != nil {
				prompt = o.Messages.Clone()
			}
			if o.System != nil {
				prompt = prompt.WithSystem(*o.System)
				systemSet = true
			}
			if o.ActiveTools != nil {
				active = o.ActiveTools
			}
			if o.ToolChoice != nil {
				choice = o.ToolChoice
			}
			settings = mergeSettings(settings, o.Settings)
		}
	}

	// A system override from PrepareStep wins over the instruction.
	if !systemSet {
		system, err := l.opts.Instruction.Resolve(ctx, StepInfo{StepNumber: n, ModelID: m.Info().ModelID})
		if err != nil {
			return step.Request{}, fmt.Errorf("resolve instruction: %w", err)
		}
		if system != "" {
			prompt = prompt.WithSystem(system)
		}
	}

	return step.Request{
		StepNumber: n,
		Model:      m,
		Writer:     l.opts.Writer,
		Call: model.CallOptions{
			Prompt:         prompt,
			Settings:       settings,
			Tools:          l.opts.Tools.Definitions(active),
			ToolChoice:     choice,
			ResponseFormat: l.opts.ResponseFormat,
			IncludeRaw:     l.opts.IncludeRaw,
		},
	}, nil
}

// pause appends the assistant message for a tool-calls step and waits for
// results. The prompt is left as it was before the step when a call input
// cannot be parsed.
func (l *Loop) pause(ctx context.Context, res *step.Result) (*Yield, error) {
	parts := make([]core.Part, 0, len(res.Content))
	calls := make([]core.ToolCallPart, 0, len(res.ToolCalls))

	for _, p := range res.Content {
		switch v := p.(type) {
		case core.ToolCallPart:
			s, _ := v.Input.(string)
			input, err := util.ParseToolInput(s)
			if err != nil {
				return nil, l.fail(core.NewProtocolError("agent.tool-call", fmt.Sprintf("tool call %s has invalid input", v.ToolCallID), err))
			}
			v.Input = input
			parts = append(parts, v)
			calls = append(calls, v)
		case core.ToolResultPart:
		default:
			parts = append(parts, p)
		}
	}

	l.prompt = append(l.prompt, core.AssistantMessage(parts...))
	l.pending = calls
	l.providerResults = res.ProviderExecutedResults
	l.state = StatePendingToolCalls

	var local []core.ToolCallPart
	for _, c := range calls {
		if !c.ProviderExecuted {
			local = append(local, c)
		}
	}

	l.opts.Logger.Debug("agent.tool_calls.pending", "step", res.StepNumber, "calls", len(calls), "local", len(local))

	return &Yield{
		Step:                    res,
		ToolCalls:               local,
		ProviderExecutedResults: res.ProviderExecutedResults,
		Messages:                l.prompt.Clone(),
	}, nil
}

func (l *Loop) stepFinished(ctx context.Context, res *step.Result) error {
	if l.opts.OnStepFinish == nil {
		return nil
	}

	if err := l.opts.OnStepFinish(ctx, res); err != nil {
		return l.fail(fmt.Errorf("on step finish: %w", err))
	}

	return nil
}

func (l *Loop) shouldStop() bool {
	for _, cond := range l.opts.StopWhen {
		if cond(l.steps) {
			return true
		}
	}

	return false
}

// stop ends the run normally and stores the final yield.
func (l *Loop) stop(ctx context.Context, cause string) *Yield {
	l.state = StateDone

	var last *step.Result
	reason := core.FinishReasonUndefined
	if len(l.steps) > 0 {
		last = l.steps[len(l.steps)-1]
		reason = last.FinishReason
	}

	l.opts.Logger.Info(
		"agent.run.finish",
		"cause", cause,
		"steps", len(l.steps),
		"finish_reason", string(reason),
		"input_tokens", l.usage.InputTokens,
		"output_tokens", l.usage.OutputTokens,
	)

	y := &Yield{Step: last, Messages: l.prompt.Clone(), Final: true}
	l.final = y

	if err := l.opts.Writer.FinishRun(ctx, reason, l.usage); err != nil {
		l.opts.Logger.Warn("agent.run.finish.write", "error", err.Error())
	}

	return y
}

// fail ends the run with err.
func (l *Loop) fail(err error) error {
	l.state = StateDone
	l.pending, l.providerResults, l.final = nil, nil, nil

	if core.IsCancellation(err) {
		l.opts.Logger.Info("agent.run.cancelled", "steps", len(l.steps))
	} else {
		l.opts.Logger.Error("agent.run.error", "steps", len(l.steps), "kind", string(core.KindOf(err)), "error", err.Error())
	}

	return err
}

// responseMessage builds the assistant message of a terminal step.
func responseMessage(res *step.Result) (core.Message, bool) {
	var parts []core.Part

	for _, p := range res.Content {
		switch p.(type) {
		case core.TextPart, core.ReasoningPart, core.FilePart:
			parts = append(parts, p)
		}
	}

	if len(parts) == 0 {
		return core.Message{}, false
	}

	return core.AssistantMessage(parts...), true
}

// orderResults matches results to calls and returns them in call order.
func orderResults(calls []core.ToolCallPart, provided, supplied []core.ToolResultPart) ([]core.ToolResultPart, error) {
	expected := make(map[string]bool, len(calls))
	for _, c := range calls {
		expected[c.ToolCallID] = true
	}

	byID := make(map[string]core.ToolResultPart, len(calls))

	for _, r := range append(append([]core.ToolResultPart(nil), provided...), supplied...) {
		if !expected[r.ToolCallID] {
			return nil, fmt.Errorf("agent: result for unknown tool call %q", r.ToolCallID)
		}
		if _, dup := byID[r.ToolCallID]; dup {
			return nil, fmt.Errorf("agent: duplicate result for tool call %q", r.ToolCallID)
		}
		if err := r.Output.Validate(); err != nil {
			return nil, fmt.Errorf("agent: result for tool call %q: %w", r.ToolCallID, err)
		}
		byID[r.ToolCallID] = r
	}

	ordered := make([]core.ToolResultPart, 0, len(calls))

	for _, c := range calls {
		r, ok := byID[c.ToolCallID]
		if !ok {
			return nil, fmt.Errorf("agent: missing result for tool call %q", c.ToolCallID)
		}
		if r.ToolName == "" {
			r.ToolName = c.ToolName
		}
		ordered = append(ordered, r)
	}

	return ordered, nil
}

// localOrder returns the caller supplied results in call order.
func localOrder(ordered, supplied []core.ToolResultPart) []core.ToolResultPart {
	ids := make(map[string]bool, len(supplied))
	for _, r := range supplied {
		ids[r.ToolCallID] = true
	}

	out := make([]core.ToolResultPart, 0, len(supplied))
	for _, r := range ordered {
		if ids[r.ToolCallID] {
			out = append(out, r)
		}
	}

	return out
}
