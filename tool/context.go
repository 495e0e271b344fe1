package tool

import (
	"context"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/logging"
)

// Context is handed to a tool invocation. It carries the cancellation context
// of the run, the id of the call being served and a read-only view of the
// conversation as it was when the model requested the call.
type Context struct {
	ctx        context.Context
	toolCallID string
	toolName   string
	messages   core.Prompt
	logger     logging.Logger
}

// NewContext constructs a tool context for one call.
func NewContext(ctx context.Context, call core.ToolCallPart, messages core.Prompt, logger logging.Logger) *Context {
	return &Context{
		ctx:        ctx,
		toolCallID: call.ToolCallID,
		toolName:   call.ToolName,
		messages:   messages,
		logger:     logging.OrNoOp(logger),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *Context) Context() context.Context { return tc.ctx }

// ToolCallID returns the id of the call being executed.
func (tc *Context) ToolCallID() string { return tc.toolCallID }

// ToolName returns the name of the tool being executed.
func (tc *Context) ToolName() string { return tc.toolName }

// Messages returns the conversation snapshot at the time of the call.
func (tc *Context) Messages() core.Prompt { return tc.messages }

// Logger returns the logger associated with the tool invocation.
func (tc *Context) Logger() logging.Logger { return tc.logger }

// LogDebug logs a debug message.
func (tc *Context) LogDebug(msg string, args ...any) { tc.logger.Debug(msg, args...) }

// LogInfo logs an info message.
func (tc *Context) LogInfo(msg string, args ...any) { tc.logger.Info(msg, args...) }

// LogWarn logs a warning message.
func (tc *Context) LogWarn(msg string, args ...any) { tc.logger.Warn(msg, args...) }

// LogError logs an error message.
func (tc *Context) LogError(msg string, args ...any) { tc.logger.Error(msg, args...) }
