package model

import (
	"context"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/stream"
)

// ToolDefinition exposes a callable tool to the model. InputSchema is a JSON
// Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolChoiceType selects how the model may use tools.
type ToolChoiceType string

const (
	ToolChoiceAuto     ToolChoiceType = "auto"
	ToolChoiceNone     ToolChoiceType = "none"
	ToolChoiceRequired ToolChoiceType = "required"
	ToolChoiceTool     ToolChoiceType = "tool"
)

// ToolChoice constrains tool usage. ToolName is set when Type is ToolChoiceTool.
type ToolChoice struct {
	Type     ToolChoiceType `json:"type"`
	ToolName string         `json:"toolName,omitempty"`
}

// ResponseFormat constrains the model output.
type ResponseFormat struct {
	Type        string         `json:"type"` // text or json
	Schema      map[string]any `json:"schema,omitempty"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
}

// Settings are the per-call generation settings. Nil pointers leave the
// provider default in place.
type Settings struct {
	MaxOutputTokens  *int64            `json:"maxOutputTokens,omitempty"`
	Temperature      *float64          `json:"temperature,omitempty"`
	TopP             *float64          `json:"topP,omitempty"`
	TopK             *int64            `json:"topK,omitempty"`
	PresencePenalty  *float64          `json:"presencePenalty,omitempty"`
	FrequencyPenalty *float64          `json:"frequencyPenalty,omitempty"`
	StopSequences    []string          `json:"stopSequences,omitempty"`
	Seed             *int64            `json:"seed,omitempty"`
	MaxRetries       *int              `json:"maxRetries,omitempty"`
	Headers          map[string]string `json:"headers,omitempty"`
	ProviderOptions  map[string]any    `json:"providerOptions,omitempty"`
}

// CallOptions is the normalized input of one model call.
type CallOptions struct {
	Prompt         core.Prompt
	Settings       Settings
	Tools          []ToolDefinition
	ToolChoice     *ToolChoice
	ResponseFormat *ResponseFormat
	// IncludeRaw asks the adapter to attach provider-native events.
	IncludeRaw bool
}

// Info contains metadata about a model implementation.
type Info struct {
	Provider      string `json:"provider"`
	ModelID       string `json:"modelId"`
	SupportsTools bool   `json:"supportsTools"`
}

// GenerateResult is the complete output of a non-streaming call.
type GenerateResult struct {
	Content      []core.Part
	FinishReason stream.ReportedFinishReason
	Usage        core.Usage
	Response     stream.ResponseMetadata
	Warnings     []string
}

// StreamResult holds the lazy event source of a streaming call.
type StreamResult struct {
	Stream stream.EventSource
}

// LanguageModel is the provider adapter interface. DoStream must return a
// source that terminates in finite time once ctx is done.
type LanguageModel interface {
	Info() Info
	DoGenerate(ctx context.Context, opts CallOptions) (*GenerateResult, error)
	DoStream(ctx context.Context, opts CallOptions) (*StreamResult, error)
}

// Ptr returns a pointer to v. It is a convenience for filling Settings.
func Ptr[T any](v T) *T { return &v }
