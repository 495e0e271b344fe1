// Package stream defines the canonical vocabulary of streamed model output and
// the canonicalizer that turns provider events into an ordered, validated
// part sequence.
package stream

import (
	"time"

	"github.com/hupe1980/agentstream/core"
)

// PartType is the discriminator of a canonical part.
type PartType string

const (
	TypeStreamStart      PartType = "stream-start"
	TypeResponseMetadata PartType = "response-metadata"
	TypeTextStart        PartType = "text-start"
	TypeTextDelta        PartType = "text-delta"
	TypeTextEnd          PartType = "text-end"
	TypeReasoningStart   PartType = "reasoning-start"
	TypeReasoningDelta   PartType = "reasoning-delta"
	TypeReasoningEnd     PartType = "reasoning-end"
	TypeToolInputStart   PartType = "tool-input-start"
	TypeToolCallDelta    PartType = "tool-call-delta"
	TypeToolInputEnd     PartType = "tool-input-end"
	TypeToolCall         PartType = "tool-call"
	TypeToolResult       PartType = "tool-result"
	TypeFile             PartType = "file"
	TypeSource           PartType = "source"
	TypeFinish           PartType = "finish"
	TypeError            PartType = "error"
	TypeRaw              PartType = "raw"
)

// Part is a canonical stream part. The set of implementations is closed.
type Part interface {
	Type() PartType
	isPart()
}

// StreamStart opens a provider stream.
type StreamStart struct {
	Warnings []string
}

// ResponseMetadata carries provider response identifiers.
type ResponseMetadata struct {
	ID        string
	ModelID   string
	Timestamp time.Time
}

// TextStart opens a text block identified by ID.
type TextStart struct{ ID string }

// TextDelta appends to the text block identified by ID.
type TextDelta struct {
	ID    string
	Delta string
}

// TextEnd closes the text block identified by ID.
type TextEnd struct{ ID string }

// ReasoningStart opens a reasoning block identified by ID.
type ReasoningStart struct{ ID string }

// ReasoningDelta appends to the reasoning block identified by ID.
type ReasoningDelta struct {
	ID    string
	Delta string
}

// ReasoningEnd closes the reasoning block identified by ID.
type ReasoningEnd struct{ ID string }

// ToolInputStart opens streaming of a tool call's serialized input. ID is the
// tool call id.
type ToolInputStart struct {
	ID               string
	ToolName         string
	ProviderExecuted bool
}

// ToolCallDelta appends a fragment of serialized tool input.
type ToolCallDelta struct {
	ID    string
	Delta string
}

// ToolInputEnd closes streaming of a tool call's input.
type ToolInputEnd struct{ ID string }

// ToolCall is a complete tool invocation. Input is the serialized JSON
// arguments as produced by the model.
type ToolCall struct {
	ToolCallID       string
	ToolName         string
	Input            string
	ProviderExecuted bool
	ProviderMetadata map[string]any
}

// ToolResult is a tool outcome supplied by the provider itself.
type ToolResult struct {
	ToolCallID       string
	ToolName         string
	Result           any
	IsError          bool
	ProviderExecuted bool
}

// File is a generated file. Data is base64 encoded.
type File struct {
	MediaType string
	Data      string
}

// Source references a citation produced by the model.
type Source struct {
	ID         string
	SourceType string // url or document
	URL        string
	Title      string
	MediaType  string
	Filename   string
}

// Finish ends a stream with a reason and usage.
type Finish struct {
	Reason ReportedFinishReason
	Usage  core.Usage
}

// Error terminates a stream with a failure.
type Error struct{ Err error }

// Raw wraps a provider-native event that has no canonical translation.
type Raw struct{ Value any }

func (StreamStart) Type() PartType      { return TypeStreamStart }
func (ResponseMetadata) Type() PartType { return TypeResponseMetadata }
func (TextStart) Type() PartType        { return TypeTextStart }
func (TextDelta) Type() PartType        { return TypeTextDelta }
func (TextEnd) Type() PartType          { return TypeTextEnd }
func (ReasoningStart) Type() PartType   { return TypeReasoningStart }
func (ReasoningDelta) Type() PartType   { return TypeReasoningDelta }
func (ReasoningEnd) Type() PartType     { return TypeReasoningEnd }
func (ToolInputStart) Type() PartType   { return TypeToolInputStart }
func (ToolCallDelta) Type() PartType    { return TypeToolCallDelta }
func (ToolInputEnd) Type() PartType     { return TypeToolInputEnd }
func (ToolCall) Type() PartType         { return TypeToolCall }
func (ToolResult) Type() PartType       { return TypeToolResult }
func (File) Type() PartType             { return TypeFile }
func (Source) Type() PartType           { return TypeSource }
func (Finish) Type() PartType           { return TypeFinish }
func (Error) Type() PartType            { return TypeError }
func (Raw) Type() PartType              { return TypeRaw }

func (StreamStart) isPart()      {}
func (ResponseMetadata) isPart() {}
func (TextStart) isPart()        {}
func (TextDelta) isPart()        {}
func (TextEnd) isPart()          {}
func (ReasoningStart) isPart()   {}
func (ReasoningDelta) isPart()   {}
func (ReasoningEnd) isPart()     {}
func (ToolInputStart) isPart()   {}
func (ToolCallDelta) isPart()    {}
func (ToolInputEnd) isPart()     {}
func (ToolCall) isPart()         {}
func (ToolResult) isPart()       {}
func (File) isPart()             {}
func (Source) isPart()           {}
func (Finish) isPart()           {}
func (Error) isPart()            {}
func (Raw) isPart()              {}

// Error implements the error interface so an Error part can be returned directly.
func (e Error) Error() string {
	if e.Err == nil {
		return "stream error"
	}
	return e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e Error) Unwrap() error { return e.Err }
