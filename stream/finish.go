package stream

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/agentstream/core"
)

// ReportedFinishReason is the finish reason as a provider reported it: either
// a bare string (Unified only) or a {unified, raw} pair.
type ReportedFinishReason struct {
	Unified string `json:"unified"`
	Raw     string `json:"raw,omitempty"`
}

// Reason builds a ReportedFinishReason from a bare unified string.
func Reason(unified string) ReportedFinishReason {
	return ReportedFinishReason{Unified: unified}
}

// Normalize returns the unified finish reason. Unknown values are a protocol error.
func (r ReportedFinishReason) Normalize() (core.FinishReason, error) {
	return core.ParseFinishReason(r.Unified)
}

// UnmarshalJSON accepts a bare string, null, or an object. For objects the
// unified field wins over type; an object with neither normalizes to other.
func (r *ReportedFinishReason) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = ReportedFinishReason{Unified: s}
		return nil
	}

	var obj struct {
		Unified *string `json:"unified"`
		Type    *string `json:"type"`
		Raw     string  `json:"raw"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("finish reason: %w", err)
	}

	unified := string(core.FinishReasonOther)
	switch {
	case obj.Unified != nil:
		unified = *obj.Unified
	case obj.Type != nil:
		unified = *obj.Type
	}

	*r = ReportedFinishReason{Unified: unified, Raw: obj.Raw}

	return nil
}
