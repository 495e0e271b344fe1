package core

// Part represents a polymorphic segment of role-based message content.
// Concrete part types implement the unexported isPart marker enabling a
// closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text            string         `json:"text"`
	ProviderOptions map[string]any `json:"providerOptions,omitempty"`
}

// isPart implements the Part interface for TextPart.
func (TextPart) isPart() {}

// ReasoningPart carries model reasoning text returned alongside an answer.
type ReasoningPart struct {
	Text            string         `json:"text"`
	ProviderOptions map[string]any `json:"providerOptions,omitempty"`
}

// isPart implements the Part interface for ReasoningPart.
func (ReasoningPart) isPart() {}

// FilePart is a file attachment segment. Data holds base64 encoded bytes or a URL.
type FilePart struct {
	Data      string `json:"data"`
	MediaType string `json:"mediaType"`
	Filename  string `json:"filename,omitempty"`
}

// isPart implements the Part interface for FilePart.
func (FilePart) isPart() {}

// ToolCallPart is a tool invocation requested by the assistant. Input holds
// the parsed arguments.
type ToolCallPart struct {
	ToolCallID       string         `json:"toolCallId"`
	ToolName         string         `json:"toolName"`
	Input            any            `json:"input"`
	ProviderExecuted bool           `json:"providerExecuted,omitempty"`
	ProviderOptions  map[string]any `json:"providerOptions,omitempty"`
}

// isPart implements the Part interface for ToolCallPart.
func (ToolCallPart) isPart() {}

// ToolResultPart is the outcome of a tool call, matched by ToolCallID.
type ToolResultPart struct {
	ToolCallID string           `json:"toolCallId"`
	ToolName   string           `json:"toolName"`
	Output     ToolResultOutput `json:"output"`
}

// isPart implements the Part interface for ToolResultPart.
func (ToolResultPart) isPart() {}
