// Package uistream implements the UI message stream: a projection of
// canonical parts onto typed chunks, framed as server-sent events and
// terminated by a [DONE] sentinel.
package uistream

// ChunkType is the value of a chunk's "type" field on the wire.
type ChunkType string

const (
	TypeStart               ChunkType = "start"
	TypeFinish              ChunkType = "finish"
	TypeStartStep           ChunkType = "start-step"
	TypeFinishStep          ChunkType = "finish-step"
	TypeTextStart           ChunkType = "text-start"
	TypeTextDelta           ChunkType = "text-delta"
	TypeTextEnd             ChunkType = "text-end"
	TypeReasoningStart      ChunkType = "reasoning-start"
	TypeReasoningDelta      ChunkType = "reasoning-delta"
	TypeReasoningEnd        ChunkType = "reasoning-end"
	TypeToolInputStart      ChunkType = "tool-input-start"
	TypeToolInputDelta      ChunkType = "tool-input-delta"
	TypeToolInputAvailable  ChunkType = "tool-input-available"
	TypeToolOutputAvailable ChunkType = "tool-output-available"
	TypeToolOutputError     ChunkType = "tool-output-error"
	TypeError               ChunkType = "error"
	TypeFile                ChunkType = "file"
	TypeSourceURL           ChunkType = "source-url"
	TypeSourceDocument      ChunkType = "source-document"
	TypeAbort               ChunkType = "abort"
	TypeMessageMetadata     ChunkType = "message-metadata"
)

// Chunk is a UI message chunk. The set of implementations is closed.
// Chunks are never mutated after emission.
type Chunk interface {
	ChunkType() ChunkType
	isChunk()
}

type Start struct {
	MessageID       string `json:"messageId,omitempty"`
	MessageMetadata any    `json:"messageMetadata,omitempty"`
}

type Finish struct {
	FinishReason    string `json:"finishReason,omitempty"`
	MessageMetadata any    `json:"messageMetadata,omitempty"`
}

type StartStep struct{}

type FinishStep struct{}

type TextStart struct {
	ID string `json:"id"`
}

type TextDelta struct {
	ID    string `json:"id"`
	Delta string `json:"delta"`
}

type TextEnd struct {
	ID string `json:"id"`
}

type ReasoningStart struct {
	ID string `json:"id"`
}

type ReasoningDelta struct {
	ID    string `json:"id"`
	Delta string `json:"delta"`
}

type ReasoningEnd struct {
	ID string `json:"id"`
}

type ToolInputStart struct {
	ToolCallID       string `json:"toolCallId"`
	ToolName         string `json:"toolName"`
	ProviderExecuted bool   `json:"providerExecuted,omitempty"`
}

type ToolInputDelta struct {
	ToolCallID     string `json:"toolCallId"`
	InputTextDelta string `json:"inputTextDelta"`
}

type ToolInputAvailable struct {
	ToolCallID       string `json:"toolCallId"`
	ToolName         string `json:"toolName"`
	Input            any    `json:"input"`
	ProviderExecuted bool   `json:"providerExecuted,omitempty"`
}

type ToolOutputAvailable struct {
	ToolCallID       string `json:"toolCallId"`
	Output           any    `json:"output"`
	ProviderExecuted bool   `json:"providerExecuted,omitempty"`
}

type ToolOutputError struct {
	ToolCallID       string `json:"toolCallId"`
	ErrorText        string `json:"errorText"`
	ProviderExecuted bool   `json:"providerExecuted,omitempty"`
}

type Error struct {
	ErrorText string `json:"errorText"`
}

type File struct {
	URL       string `json:"url"`
	MediaType string `json:"mediaType"`
}

type SourceURL struct {
	SourceID string `json:"sourceId"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
}

type SourceDocument struct {
	SourceID  string `json:"sourceId"`
	MediaType string `json:"mediaType"`
	Title     string `json:"title"`
	Filename  string `json:"filename,omitempty"`
}

type Abort struct{}

type MessageMetadata struct {
	MessageMetadata any `json:"messageMetadata"`
}

func (Start) ChunkType() ChunkType               { return TypeStart }
func (Finish) ChunkType() ChunkType              { return TypeFinish }
func (StartStep) ChunkType() ChunkType           { return TypeStartStep }
func (FinishStep) ChunkType() ChunkType          { return TypeFinishStep }
func (TextStart) ChunkType() ChunkType           { return TypeTextStart }
func (TextDelta) ChunkType() ChunkType           { return TypeTextDelta }
func (TextEnd) ChunkType() ChunkType             { return TypeTextEnd }
func (ReasoningStart) ChunkType() ChunkType      { return TypeReasoningStart }
func (ReasoningDelta) ChunkType() ChunkType      { return TypeReasoningDelta }
func (ReasoningEnd) ChunkType() ChunkType        { return TypeReasoningEnd }
func (ToolInputStart) ChunkType() ChunkType      { return TypeToolInputStart }
func (ToolInputDelta) ChunkType() ChunkType      { return TypeToolInputDelta }
func (ToolInputAvailable) ChunkType() ChunkType  { return TypeToolInputAvailable }
func (ToolOutputAvailable) ChunkType() ChunkType { return TypeToolOutputAvailable }
func (ToolOutputError) ChunkType() ChunkType     { return TypeToolOutputError }
func (Error) ChunkType() ChunkType               { return TypeError }
func (File) ChunkType() ChunkType                { return TypeFile }
func (SourceURL) ChunkType() ChunkType           { return TypeSourceURL }
func (SourceDocument) ChunkType() ChunkType      { return TypeSourceDocument }
func (Abort) ChunkType() ChunkType               { return TypeAbort }
func (MessageMetadata) ChunkType() ChunkType     { return TypeMessageMetadata }

func (Start) isChunk()               {}
func (Finish) isChunk()              {}
func (StartStep) isChunk()           {}
func (FinishStep) isChunk()          {}
func (TextStart) isChunk()           {}
func (TextDelta) isChunk()           {}
func (TextEnd) isChunk()             {}
func (ReasoningStart) isChunk()      {}
func (ReasoningDelta) isChunk()      {}
func (ReasoningEnd) isChunk()        {}
func (ToolInputStart) isChunk()      {}
func (ToolInputDelta) isChunk()      {}
func (ToolInputAvailable) isChunk()  {}
func (ToolOutputAvailable) isChunk() {}
func (ToolOutputError) isChunk()     {}
func (Error) isChunk()               {}
func (File) isChunk()                {}
func (SourceURL) isChunk()           {}
func (SourceDocument) isChunk()      {}
func (Abort) isChunk()               {}
func (MessageMetadata) isChunk()     {}
