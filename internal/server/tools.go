package server

import (
	"time"

	"github.com/hupe1980/agentstream/tool"
)

type currentTimeArgs struct {
	Timezone string `json:"timezone,omitempty" description:"IANA time zone, e.g. Europe/Berlin. Defaults to UTC."`
}

// NewCurrentTimeTool returns the current_time tool. now is injectable for tests.
func NewCurrentTimeTool(now func() time.Time) *tool.FunctionTool {
	if now == nil {
		now = time.Now
	}

	return tool.NewFunctionToolFromStruct(
		"current_time",
		"Returns the current time in RFC3339 format for an IANA time zone.",
		currentTimeArgs{},
		func(_ *tool.Context, args map[string]any) (any, error) {
			name, _ := args["timezone"].(string)
			if name == "" {
				name = "UTC"
			}

			loc, err := time.LoadLocation(name)
			if err != nil {
				return nil, tool.NewToolError("current_time", "unknown time zone "+name, tool.CodeValidation)
			}

			return map[string]any{
				"timezone": loc.String(),
				"time":     now().In(loc).Format(time.RFC3339),
			}, nil
		},
	)
}
