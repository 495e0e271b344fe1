// Package datastream implements the legacy line-oriented data stream
// protocol. Every line is "<type-char>:<JSON>\n" where the type character
// selects one of a fixed set of part types.
package datastream

import "github.com/hupe1980/agentstream/core"

// Code is the single-character type selector of a line.
type Code byte

const (
	CodeText                   Code = '0'
	CodeData                   Code = '2'
	CodeError                  Code = '3'
	CodeMessageAnnotations     Code = '8'
	CodeToolCall               Code = '9'
	CodeToolResult             Code = 'a'
	CodeToolCallStreamingStart Code = 'b'
	CodeToolCallDelta          Code = 'c'
	CodeFinishMessage          Code = 'd'
	CodeFinishStep             Code = 'e'
	CodeStartStep              Code = 'f'
	CodeReasoning              Code = 'g'
	CodeSource                 Code = 'h'
	CodeRedactedReasoning      Code = 'i'
	CodeReasoningSignature     Code = 'j'
	CodeFile                   Code = 'k'
)

// Part is a legacy stream part. The set of implementations is closed.
type Part interface {
	Code() Code
	payload() any
}

// TextPart carries a text fragment.
type TextPart struct{ Text string }

// DataPart carries an array of arbitrary JSON values.
type DataPart struct{ Data []any }

// ErrorPart carries an error message.
type ErrorPart struct{ Message string }

// MessageAnnotationsPart carries message annotations.
type MessageAnnotationsPart struct{ Annotations []any }

// ToolCallPart is a complete tool call.
type ToolCallPart struct {
	ToolCallID string         `json:"toolCallId"`
	ToolName   string         `json:"toolName"`
	Args       map[string]any `json:"args"`
}

// ToolResultPart is the result of a tool call.
type ToolResultPart struct {
	ToolCallID string `json:"toolCallId"`
	Result     any    `json:"result"`
}

// ToolCallStreamingStartPart opens streaming of a tool call's arguments.
type ToolCallStreamingStartPart struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
}

// ToolCallDeltaPart carries a fragment of a tool call's arguments.
type ToolCallDeltaPart struct {
	ToolCallID    string `json:"toolCallId"`
	ArgsTextDelta string `json:"argsTextDelta"`
}

// FinishMessagePart ends the message.
type FinishMessagePart struct {
	FinishReason string      `json:"finishReason"`
	Usage        *core.Usage `json:"usage,omitempty"`
}

// FinishStepPart ends a step.
type FinishStepPart struct {
	IsContinued  bool        `json:"isContinued"`
	FinishReason string      `json:"finishReason"`
	Usage        *core.Usage `json:"usage,omitempty"`
}

// StartStepPart starts a step.
type StartStepPart struct {
	MessageID string `json:"messageId"`
}

// ReasoningPart carries a reasoning fragment.
type ReasoningPart struct{ Text string }

// SourcePart carries a source object.
type SourcePart struct{ Source map[string]any }

// RedactedReasoningPart carries provider-redacted reasoning data.
type RedactedReasoningPart struct {
	Data string `json:"data"`
}

// ReasoningSignaturePart carries a reasoning signature.
type ReasoningSignaturePart struct {
	Signature string `json:"signature"`
}

// FilePart carries a base64 encoded file.
type FilePart struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

func (TextPart) Code() Code                   { return CodeText }
func (DataPart) Code() Code                   { return CodeData }
func (ErrorPart) Code() Code                  { return CodeError }
func (MessageAnnotationsPart) Code() Code     { return CodeMessageAnnotations }
func (ToolCallPart) Code() Code               { return CodeToolCall }
func (ToolResultPart) Code() Code             { return CodeToolResult }
func (ToolCallStreamingStartPart) Code() Code { return CodeToolCallStreamingStart }
func (ToolCallDeltaPart) Code() Code          { return CodeToolCallDelta }
func (FinishMessagePart) Code() Code          { return CodeFinishMessage }
func (FinishStepPart) Code() Code             { return CodeFinishStep }
func (StartStepPart) Code() Code              { return CodeStartStep }
func (ReasoningPart) Code() Code              { return CodeReasoning }
func (SourcePart) Code() Code                 { return CodeSource }
func (RedactedReasoningPart) Code() Code      { return CodeRedactedReasoning }
func (ReasoningSignaturePart) Code() Code     { return CodeReasoningSignature }
func (FilePart) Code() Code                   { return CodeFile }

func (p TextPart) payload() any                   { return p.Text }
func (p DataPart) payload() any                   { return nonNil(p.Data) }
func (p ErrorPart) payload() any                  { return p.Message }
func (p MessageAnnotationsPart) payload() any     { return nonNil(p.Annotations) }
func (p ToolCallPart) payload() any               { return p.withArgs() }
func (p ToolResultPart) payload() any             { return p }
func (p ToolCallStreamingStartPart) payload() any { return p }
func (p ToolCallDeltaPart) payload() any          { return p }
func (p FinishMessagePart) payload() any          { return p }
func (p FinishStepPart) payload() any             { return p }
func (p StartStepPart) payload() any              { return p }
func (p ReasoningPart) payload() any              { return p.Text }
func (p SourcePart) payload() any                 { return nonNilMap(p.Source) }
func (p RedactedReasoningPart) payload() any      { return p }
func (p ReasoningSignaturePart) payload() any     { return p }
func (p FilePart) payload() any                   { return p }

func (p ToolCallPart) withArgs() ToolCallPart {
	if p.Args == nil {
		p.Args = map[string]any{}
	}
	return p
}

func nonNil(v []any) []any {
	if v == nil {
		return []any{}
	}
	return v
}

func nonNilMap(v map[string]any) map[string]any {
	if v == nil {
		return map[string]any{}
	}
	return v
}
