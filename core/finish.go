package core

import "fmt"

// FinishReason is the unified reason a model step ended. The zero value
// means no finish signal was observed.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonToolCalls     FinishReason = "tool-calls"
	FinishReasonContentFilter FinishReason = "content-filter"
	FinishReasonError         FinishReason = "error"
	FinishReasonOther         FinishReason = "other"
	FinishReasonUnknown       FinishReason = "unknown"
	FinishReasonUndefined     FinishReason = ""
)

var finishReasons = map[string]FinishReason{
	"stop":           FinishReasonStop,
	"length":         FinishReasonLength,
	"tool-calls":     FinishReasonToolCalls,
	"content-filter": FinishReasonContentFilter,
	"error":          FinishReasonError,
	"other":          FinishReasonOther,
	"unknown":        FinishReasonUnknown,
	"":               FinishReasonUndefined,
}

// ParseFinishReason maps a unified finish reason string onto the closed set.
// Unrecognized values are a protocol error.
func ParseFinishReason(s string) (FinishReason, error) {
	r, ok := finishReasons[s]
	if !ok {
		return "", NewProtocolError("finish-reason", fmt.Sprintf("unexpected finish reason %q", s), nil)
	}

	return r, nil
}

// IsDefined reports whether a finish signal was observed.
func (r FinishReason) IsDefined() bool { return r != FinishReasonUndefined }
