package core

import "slices"

// Role identifies the author of a message in the conversation prompt.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message holds a role and its ordered content parts.
type Message struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// SystemMessage builds a system message with a single text part.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Parts: []Part{TextPart{Text: text}}}
}

// UserMessage builds a user message with a single text part.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Parts: []Part{TextPart{Text: text}}}
}

// AssistantMessage builds an assistant message from the given parts.
func AssistantMessage(parts ...Part) Message {
	return Message{Role: RoleAssistant, Parts: parts}
}

// ToolMessage builds a tool message carrying the given results in order.
func ToolMessage(results ...ToolResultPart) Message {
	parts := make([]Part, 0, len(results))
	for _, r := range results {
		parts = append(parts, r)
	}

	return Message{Role: RoleTool, Parts: parts}
}

// Text concatenates all text parts of the message.
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if tp, ok := p.(TextPart); ok {
			out += tp.Text
		}
	}

	return out
}

// ToolCalls returns the tool call parts of the message in order.
func (m Message) ToolCalls() []ToolCallPart {
	var calls []ToolCallPart
	for _, p := range m.Parts {
		if tc, ok := p.(ToolCallPart); ok {
			calls = append(calls, tc)
		}
	}

	return calls
}

// ToolResults returns the tool result parts of the message in order.
func (m Message) ToolResults() []ToolResultPart {
	var results []ToolResultPart
	for _, p := range m.Parts {
		if tr, ok := p.(ToolResultPart); ok {
			results = append(results, tr)
		}
	}

	return results
}

// Prompt is the ordered conversation handed to a model step.
type Prompt []Message

// Clone returns a copy of the prompt whose message and part slices can be
// modified without affecting the receiver.
func (p Prompt) Clone() Prompt {
	if p == nil {
		return nil
	}

	out := make(Prompt, len(p))
	for i, m := range p {
		out[i] = Message{Role: m.Role, Parts: slices.Clone(m.Parts)}
	}

	return out
}

// WithSystem replaces a leading system message or prepends one.
func (p Prompt) WithSystem(text string) Prompt {
	out := p.Clone()
	if len(out) > 0 && out[0].Role == RoleSystem {
		out[0] = SystemMessage(text)
		return out
	}

	return append(Prompt{SystemMessage(text)}, out...)
}
