package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/logging"
	"github.com/hupe1980/agentstream/model"
)

// LogLevel controls how much detail the logging middleware emits per call.
type LogLevel int

const (
	// LogLevelMinimal logs the model, duration and token counts.
	LogLevelMinimal LogLevel = iota
	// LogLevelStandard adds the message count, tool count and finish reason.
	LogLevelStandard
	// LogLevelVerbose adds the last user message, truncated. It may log
	// sensitive prompt content and is meant for local debugging only.
	LogLevelVerbose
)

const truncateLen = 500

// NewLoggingMiddleware logs every generate and stream call. Stream calls are
// reported when the event source ends.
func NewLoggingMiddleware(logger *logging.PipelineLogger, level LogLevel) model.Middleware {
	if logger == nil {
		logger = logging.NewLogger(nil)
	}

	return model.Middleware{
		WrapGenerate: func(ctx context.Context, call model.Call) (*model.GenerateResult, error) {
			info := call.Model.Info()
			logger.Slog().InfoContext(ctx, "model.call.start", requestAttrs(info, "generate", call.Params, level)...)

			start := time.Now()
			res, err := call.DoGenerate(ctx)

			var tokens int64
			if res != nil {
				tokens = res.Usage.TotalTokens
				if level >= LogLevelStandard {
					logger.Debug("model.call.result", "model", info.ModelID, "finish_reason", res.FinishReason.Unified)
				}
			}
			logger.LogModelCall(info.ModelID, tokens, time.Since(start), core.IsCancellation(err), err)

			return res, err
		},
		WrapStream: func(ctx context.Context, call model.Call) (*model.StreamResult, error) {
			info := call.Model.Info()
			logger.Slog().InfoContext(ctx, "model.call.start", requestAttrs(info, "stream", call.Params, level)...)

			start := time.Now()
			res, err := call.DoStream(ctx)
			if err != nil {
				logger.LogModelCall(info.ModelID, 0, time.Since(start), core.IsCancellation(err), err)
				return nil, err
			}

			src := observe(res.Stream, nil, func(o outcome) {
				if o.Abandoned {
					logger.Info("model.stream.abandoned", "model", info.ModelID, "parts", o.Parts)
				}
				if level >= LogLevelStandard && o.Err == nil {
					logger.Debug("model.call.result", "model", info.ModelID, "finish_reason", o.FinishReason, "parts", o.Parts)
				}
				logger.LogModelCall(info.ModelID, o.Usage.TotalTokens, time.Since(start), core.IsCancellation(o.Err), o.Err)
			})

			return &model.StreamResult{Stream: src}, nil
		},
	}
}

func requestAttrs(info model.Info, mode string, params model.CallOptions, level LogLevel) []any {
	attrs := []any{
		slog.String("provider", info.Provider),
		slog.String("model", info.ModelID),
		slog.String("mode", mode),
	}

	if level >= LogLevelStandard {
		attrs = append(attrs,
			slog.Int("message_count", len(params.Prompt)),
			slog.Int("tool_count", len(params.Tools)),
		)
	}

	if level >= LogLevelVerbose {
		attrs = append(attrs, slog.String("last_user_message", truncate(lastUserText(params.Prompt))))
	}

	return attrs
}

func lastUserText(p core.Prompt) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i].Role == core.RoleUser {
			return p[i].Text()
		}
	}

	return ""
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= truncateLen {
		return s
	}

	return string(r[:truncateLen]) + "..."
}
