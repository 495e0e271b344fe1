package model

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/stream"
)

// SimulateStreaming returns a middleware that serves DoStream by calling
// DoGenerate and replaying the complete result as a canonical stream. It lets
// models without native streaming run through the step executor.
func SimulateStreaming() Middleware {
	return Middleware{
		WrapStream: func(ctx context.Context, call Call) (*StreamResult, error) {
			res, err := call.DoGenerate(ctx)
			if err != nil {
				return nil, err
			}

			parts, err := GenerateParts(res)
			if err != nil {
				return nil, err
			}

			return &StreamResult{Stream: stream.FromParts(parts...)}, nil
		},
	}
}

// GenerateParts expands a complete result into the canonical part sequence a
// streaming call would have produced.
func GenerateParts(res *GenerateResult) ([]stream.Part, error) {
	parts := []stream.Part{
		stream.StreamStart{Warnings: res.Warnings},
		res.Response,
	}

	for _, c := range res.Content {
		switch p := c.(type) {
		case core.TextPart:
			if p.Text == "" {
				continue
			}
			id := uuid.NewString()
			parts = append(parts, stream.TextStart{ID: id}, stream.TextDelta{ID: id, Delta: p.Text}, stream.TextEnd{ID: id})
		case core.ReasoningPart:
			id := uuid.NewString()
			parts = append(parts, stream.ReasoningStart{ID: id}, stream.ReasoningDelta{ID: id, Delta: p.Text}, stream.ReasoningEnd{ID: id})
		case core.ToolCallPart:
			input, err := InputJSON(p.Input)
			if err != nil {
				return nil, fmt.Errorf("tool call %s: %w", p.ToolCallID, err)
			}
			parts = append(parts, stream.ToolCall{
				ToolCallID:       p.ToolCallID,
				ToolName:         p.ToolName,
				Input:            input,
				ProviderExecuted: p.ProviderExecuted,
			})
		case core.ToolResultPart:
			parts = append(parts, stream.ToolResult{
				ToolCallID:       p.ToolCallID,
				ToolName:         p.ToolName,
				Result:           p.Output.WireValue(),
				IsError:          p.Output.IsError(),
				ProviderExecuted: true,
			})
		case core.FilePart:
			parts = append(parts, stream.File{MediaType: p.MediaType, Data: p.Data})
		}
	}

	return append(parts, stream.Finish{Reason: res.FinishReason, Usage: res.Usage}), nil
}

// InputJSON serializes parsed tool input for a provider request. Strings and
// raw messages pass through; nil becomes an empty object.
func InputJSON(input any) (string, error) {
	switch v := input.(type) {
	case nil:
		return "{}", nil
	case string:
		return v, nil
	case json.RawMessage:
		return string(v), nil
	}

	b, err := json.Marshal(input)
	if err != nil {
		return "", err
	}

	return string(b), nil
}
