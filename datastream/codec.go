package datastream

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// ParseError reports a line that could not be decoded. Expected names the
// shape the type selector requires when the failure is a shape mismatch.
type ParseError struct {
	Line     string
	Expected string
	Err      error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	switch {
	case e.Expected != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Expected, e.Err)
	case e.Expected != "":
		return e.Expected
	case e.Err != nil:
		return e.Err.Error()
	default:
		return "invalid data stream line"
	}
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error { return e.Err }

type entry struct {
	name     string
	expected string
	check    func(gjson.Result) bool
}

// registry is the fixed type-character table. It is never mutated.
var registry = map[Code]entry{
	CodeText: {
		name: "text", expected: `"text" parts expect a string value.`,
		check: isString,
	},
	CodeData: {
		name: "data", expected: `"data" parts expect an array value.`,
		check: isArray,
	},
	CodeError: {
		name: "error", expected: `"error" parts expect a string value.`,
		check: isString,
	},
	CodeMessageAnnotations: {
		name: "message_annotations", expected: `"message_annotations" parts expect an array value.`,
		check: isArray,
	},
	CodeToolCall: {
		name: "tool_call", expected: `"tool_call" parts expect an object with a "toolCallId", "toolName", and "args" property.`,
		check: func(r gjson.Result) bool {
			return r.IsObject() && isString(r.Get("toolCallId")) && isString(r.Get("toolName")) && r.Get("args").IsObject()
		},
	},
	CodeToolResult: {
		name: "tool_result", expected: `"tool_result" parts expect an object with a "toolCallId" and a "result" property.`,
		check: func(r gjson.Result) bool {
			return r.IsObject() && isString(r.Get("toolCallId")) && r.Get("result").Exists()
		},
	},
	CodeToolCallStreamingStart: {
		name: "tool_call_streaming_start", expected: `"tool_call_streaming_start" parts expect an object with a "toolCallId" and "toolName" property.`,
		check: func(r gjson.Result) bool {
			return r.IsObject() && isString(r.Get("toolCallId")) && isString(r.Get("toolName"))
		},
	},
	CodeToolCallDelta: {
		name: "tool_call_delta", expected: `"tool_call_delta" parts expect an object with a "toolCallId" and "argsTextDelta" property.`,
		check: func(r gjson.Result) bool {
			return r.IsObject() && isString(r.Get("toolCallId")) && isString(r.Get("argsTextDelta"))
		},
	},
	CodeFinishMessage: {
		name: "finish_message", expected: `"finish_message" parts expect an object with a "finishReason" property.`,
		check: func(r gjson.Result) bool {
			return r.IsObject() && isString(r.Get("finishReason")) && optionalObject(r.Get("usage"))
		},
	},
	CodeFinishStep: {
		name: "finish_step", expected: `"finish_step" parts expect an object with a "finishReason" property.`,
		check: func(r gjson.Result) bool {
			cont := r.Get("isContinued")
			return r.IsObject() && isString(r.Get("finishReason")) && optionalObject(r.Get("usage")) &&
				(!cont.Exists() || cont.IsBool())
		},
	},
	CodeStartStep: {
		name: "start_step", expected: `"start_step" parts expect an object with an "messageId" property.`,
		check: func(r gjson.Result) bool {
			return r.IsObject() && isString(r.Get("messageId"))
		},
	},
	CodeReasoning: {
		name: "reasoning", expected: `"reasoning" parts expect a string value.`,
		check: isString,
	},
	CodeSource: {
		name: "source", expected: `"source" parts expect a Source object.`,
		check: gjson.Result.IsObject,
	},
	CodeRedactedReasoning: {
		name: "redacted_reasoning", expected: `"redacted_reasoning" parts expect an object with a "data" property.`,
		check: func(r gjson.Result) bool {
			return r.IsObject() && isString(r.Get("data"))
		},
	},
	CodeReasoningSignature: {
		name: "reasoning_signature", expected: `"reasoning_signature" parts expect an object with a "signature" property.`,
		check: func(r gjson.Result) bool {
			return r.IsObject() && isString(r.Get("signature"))
		},
	},
	CodeFile: {
		name: "file", expected: `"file" parts expect an object with a "data" and "mimeType" property.`,
		check: func(r gjson.Result) bool {
			return r.IsObject() && isString(r.Get("data")) && isString(r.Get("mimeType"))
		},
	},
}

// Name returns the protocol name of the code, or "" if the code is unknown.
func (c Code) Name() string { return registry[c].name }

// Encode serializes a part as one line including the trailing newline.
// Newlines inside payload strings are always escaped by the JSON encoding.
func Encode(p Part) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(byte(p.Code()))
	buf.WriteByte(':')

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	// Encode appends the line terminator.
	if err := enc.Encode(p.payload()); err != nil {
		return nil, fmt.Errorf("encode %s part: %w", p.Code().Name(), err)
	}

	return buf.Bytes(), nil
}

// Decode parses one line. A single trailing newline is accepted.
func Decode(line []byte) (Part, error) {
	line = bytes.TrimSuffix(line, []byte("\n"))

	idx := bytes.IndexByte(line, ':')
	if idx == -1 {
		return nil, &ParseError{Line: string(line), Err: fmt.Errorf("failed to parse stream string. No separator found")}
	}

	prefix, payload := line[:idx], line[idx+1:]

	if len(prefix) != 1 {
		return nil, &ParseError{Line: string(line), Err: fmt.Errorf("failed to parse stream string. Invalid code %s", prefix)}
	}

	code := Code(prefix[0])

	e, ok := registry[code]
	if !ok {
		return nil, &ParseError{Line: string(line), Err: fmt.Errorf("failed to parse stream string. Invalid code %s", prefix)}
	}

	if !gjson.ValidBytes(payload) {
		return nil, &ParseError{Line: string(line), Err: fmt.Errorf("failed to parse stream string. Invalid JSON payload for %s", e.name)}
	}

	if !e.check(gjson.ParseBytes(payload)) {
		return nil, &ParseError{Line: string(line), Expected: e.expected}
	}

	p, err := decodePayload(code, payload)
	if err != nil {
		return nil, &ParseError{Line: string(line), Expected: e.expected, Err: err}
	}

	return p, nil
}

func decodePayload(code Code, payload []byte) (Part, error) {
	switch code {
	case CodeText:
		var s string
		err := json.Unmarshal(payload, &s)
		return TextPart{Text: s}, err
	case CodeError:
		var s string
		err := json.Unmarshal(payload, &s)
		return ErrorPart{Message: s}, err
	case CodeReasoning:
		var s string
		err := json.Unmarshal(payload, &s)
		return ReasoningPart{Text: s}, err
	case CodeData:
		var v []any
		err := json.Unmarshal(payload, &v)
		return DataPart{Data: v}, err
	case CodeMessageAnnotations:
		var v []any
		err := json.Unmarshal(payload, &v)
		return MessageAnnotationsPart{Annotations: v}, err
	case CodeSource:
		var v map[string]any
		err := json.Unmarshal(payload, &v)
		return SourcePart{Source: v}, err
	case CodeToolCall:
		return unmarshalAs[ToolCallPart](payload)
	case CodeToolResult:
		return unmarshalAs[ToolResultPart](payload)
	case CodeToolCallStreamingStart:
		return unmarshalAs[ToolCallStreamingStartPart](payload)
	case CodeToolCallDelta:
		return unmarshalAs[ToolCallDeltaPart](payload)
	case CodeFinishMessage:
		return unmarshalAs[FinishMessagePart](payload)
	case CodeFinishStep:
		return unmarshalAs[FinishStepPart](payload)
	case CodeStartStep:
		return unmarshalAs[StartStepPart](payload)
	case CodeRedactedReasoning:
		return unmarshalAs[RedactedReasoningPart](payload)
	case CodeReasoningSignature:
		return unmarshalAs[ReasoningSignaturePart](payload)
	case CodeFile:
		return unmarshalAs[FilePart](payload)
	default:
		return nil, fmt.Errorf("unhandled code %q", code)
	}
}

func unmarshalAs[T Part](payload []byte) (Part, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func isString(r gjson.Result) bool { return r.Type == gjson.String }

func isArray(r gjson.Result) bool { return r.IsArray() }

func optionalObject(r gjson.Result) bool { return !r.Exists() || r.IsObject() }
