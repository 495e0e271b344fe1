package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hupe1980/agentstream"
	"github.com/hupe1980/agentstream/agent"
	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/logging"
	"github.com/hupe1980/agentstream/model"
	"github.com/hupe1980/agentstream/tool"
)

// ChatMessage is one message of a chat request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
	// Protocol is "ui" (default) or "data".
	Protocol string `json:"protocol"`
	// MaxSteps lowers the configured step ceiling for this request.
	MaxSteps int `json:"maxSteps"`
}

// Handler holds the HTTP handlers
type Handler struct {
	streamer    *agentstream.Streamer
	model       model.LanguageModel
	tools       *tool.Set
	instruction agent.Instruction
	maxSteps    int
	maxParallel int
	logger      logging.Logger
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Chat handles POST /api/chat
func (h *Handler) Chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	protocol, err := agentstream.ParseProtocol(req.Protocol)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	prompt, err := toPrompt(req.Messages)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	maxSteps := h.maxSteps
	if req.MaxSteps > 0 && (maxSteps == 0 || req.MaxSteps < maxSteps) {
		maxSteps = req.MaxSteps
	}

	ctx := c.Request().Context()

	_, err = h.streamer.Stream(ctx, c.Response(), protocol, h.model, prompt, func(o *agent.RunOptions) {
		o.Tools = h.tools
		o.Instruction = h.instruction
		o.MaxSteps = maxSteps
		o.MaxParallel = h.maxParallel
	})
	if err == nil {
		return nil
	}

	if !c.Response().Committed {
		if core.IsCancellation(err) {
			return errorJSON(c, http.StatusServiceUnavailable, "server busy")
		}
		return errorJSON(c, http.StatusInternalServerError, "an unexpected error occurred")
	}

	// Headers are sent; the failure was reported in-band.
	if core.IsCancellation(err) {
		h.logger.Info("chat.cancelled")
	} else {
		h.logger.Warn("chat.failed", "error", err.Error())
	}

	return nil
}

func toPrompt(msgs []ChatMessage) (core.Prompt, error) {
	if len(msgs) == 0 {
		return nil, errors.New("messages must not be empty")
	}

	prompt := make(core.Prompt, 0, len(msgs))

	for i, m := range msgs {
		switch core.Role(m.Role) {
		case core.RoleSystem:
			prompt = append(prompt, core.SystemMessage(m.Content))
		case core.RoleUser:
			prompt = append(prompt, core.UserMessage(m.Content))
		case core.RoleAssistant:
			prompt = append(prompt, core.AssistantMessage(core.TextPart{Text: m.Content}))
		default:
			return nil, fmt.Errorf("messages[%d]: unsupported role %q", i, m.Role)
		}
	}

	return prompt, nil
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]any{
		"error": map[string]any{"message": msg},
	})
}
