package util

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ParseToolInput decodes the serialized arguments of a tool call. An empty
// input decodes to an empty object. When strict decoding fails the input is
// repaired with jsonrepair and decoded again, since models occasionally emit
// truncated or loosely quoted JSON.
func ParseToolInput(input string) (any, error) {
	if strings.TrimSpace(input) == "" {
		return map[string]any{}, nil
	}

	var v any
	err := json.Unmarshal([]byte(input), &v)
	if err == nil {
		return v, nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(input)
	if repairErr != nil {
		return nil, fmt.Errorf("invalid tool input: unmarshal error: %w, repair error: %v", err, repairErr)
	}

	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		return nil, fmt.Errorf("invalid tool input after repair: %w (repaired: %s)", err, repaired)
	}

	return v, nil
}

// ToolInputObject is ParseToolInput restricted to JSON objects.
func ToolInputObject(input string) (map[string]any, error) {
	v, err := ParseToolInput(input)
	if err != nil {
		return nil, err
	}

	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("tool input must be a JSON object, got %T", v)
	}

	return m, nil
}
