package core

import (
	"encoding/json"
	"fmt"
)

// OutputType discriminates the shapes a tool result output may take.
type OutputType string

const (
	OutputText            OutputType = "text"
	OutputJSON            OutputType = "json"
	OutputContent         OutputType = "content"
	OutputErrorText       OutputType = "error-text"
	OutputErrorJSON       OutputType = "error-json"
	OutputExecutionDenied OutputType = "execution-denied"
)

// ToolResultOutput is the serialized form of a tool outcome. Value holds a
// string for text and error-text, any JSON value for json and error-json, and
// a list of content items for content. Reason is only set for
// execution-denied.
type ToolResultOutput struct {
	Type   OutputType `json:"type"`
	Value  any        `json:"value,omitempty"`
	Reason string     `json:"reason,omitempty"`
}

// TextOutput wraps a plain string result.
func TextOutput(s string) ToolResultOutput { return ToolResultOutput{Type: OutputText, Value: s} }

// JSONOutput wraps a structured result.
func JSONOutput(v any) ToolResultOutput { return ToolResultOutput{Type: OutputJSON, Value: v} }

// ContentOutput wraps a list of multi-modal content items.
func ContentOutput(items ...any) ToolResultOutput {
	return ToolResultOutput{Type: OutputContent, Value: items}
}

// ErrorTextOutput wraps a failure message.
func ErrorTextOutput(msg string) ToolResultOutput {
	return ToolResultOutput{Type: OutputErrorText, Value: msg}
}

// ErrorJSONOutput wraps a structured failure.
func ErrorJSONOutput(v any) ToolResultOutput {
	return ToolResultOutput{Type: OutputErrorJSON, Value: v}
}

// ExecutionDenied marks a call that was not executed.
func ExecutionDenied(reason string) ToolResultOutput {
	return ToolResultOutput{Type: OutputExecutionDenied, Reason: reason}
}

// IsError reports whether the output represents a failed or denied execution.
func (o ToolResultOutput) IsError() bool {
	switch o.Type {
	case OutputErrorText, OutputErrorJSON, OutputExecutionDenied:
		return true
	default:
		return false
	}
}

// Validate checks that Value matches the declared Type.
func (o ToolResultOutput) Validate() error {
	switch o.Type {
	case OutputText, OutputErrorText:
		if _, ok := o.Value.(string); !ok {
			return fmt.Errorf("tool output %q expects a string value, got %T", o.Type, o.Value)
		}
	case OutputContent:
		if _, ok := o.Value.([]any); !ok {
			return fmt.Errorf("tool output %q expects a list value, got %T", o.Type, o.Value)
		}
	case OutputJSON, OutputErrorJSON, OutputExecutionDenied:
	default:
		return fmt.Errorf("unknown tool output type %q", o.Type)
	}

	return nil
}

// String renders the output as text suitable for providers that only accept
// string tool results.
func (o ToolResultOutput) String() string {
	switch o.Type {
	case OutputText, OutputErrorText:
		s, _ := o.Value.(string)
		return s
	case OutputExecutionDenied:
		if o.Reason == "" {
			return "Tool execution denied."
		}
		return o.Reason
	default:
		b, err := json.Marshal(o.Value)
		if err != nil {
			return fmt.Sprint(o.Value)
		}
		return string(b)
	}
}

// WireValue is the value sent to clients for this output: the plain value,
// or a {type, reason} object for execution-denied.
func (o ToolResultOutput) WireValue() any {
	if o.Type == OutputExecutionDenied {
		v := map[string]any{"type": string(OutputExecutionDenied)}
		if o.Reason != "" {
			v["reason"] = o.Reason
		}
		return v
	}

	return o.Value
}
