package agent

import (
	"context"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/model"
	"github.com/hupe1980/agentstream/step"
)

// PrepareStepInput is handed to the PrepareStep hook before every step.
type PrepareStepInput struct {
	Model      model.LanguageModel
	StepNumber int
	Steps      []*step.Result
	// Messages is a copy of the current prompt.
	Messages core.Prompt
}

// StepOverrides replaces parts of the configuration for a single step. Nil
// fields keep the current value.
type StepOverrides struct {
	Model model.LanguageModel
	// System replaces a leading system message or prepends one.
	System *string
	// Messages replaces the prompt sent with this step. The loop's own
	// conversation is not modified.
	Messages core.Prompt
	// ActiveTools restricts the exposed tools. A non-nil empty slice
	// exposes none.
	ActiveTools []string
	ToolChoice  *model.ToolChoice
	// Settings are merged field by field over the loop settings.
	Settings model.Settings
}

// PrepareStepFunc computes per-step overrides. Returning nil keeps the
// defaults.
type PrepareStepFunc func(ctx context.Context, in PrepareStepInput) (*StepOverrides, error)

// StopCondition decides, after tool results were integrated, whether the run
// should end. It receives every step so far.
type StopCondition func(steps []*step.Result) bool

// StepCountIs stops once n steps have been executed.
func StepCountIs(n int) StopCondition {
	return func(steps []*step.Result) bool { return len(steps) >= n }
}

// HasToolCall stops once the latest step called the named tool.
func HasToolCall(name string) StopCondition {
	return func(steps []*step.Result) bool {
		if len(steps) == 0 {
			return false
		}
		return steps[len(steps)-1].HasToolCall(name)
	}
}

// mergeSettings overlays the set fields of o on s.
func mergeSettings(s, o model.Settings) model.Settings {
	if o.MaxOutputTokens != nil {
		s.MaxOutputTokens = o.MaxOutputTokens
	}
	if o.Temperature != nil {
		s.Temperature = o.Temperature
	}
	if o.TopP != nil {
		s.TopP = o.TopP
	}
	if o.TopK != nil {
		s.TopK = o.TopK
	}
	if o.PresencePenalty != nil {
		s.PresencePenalty = o.PresencePenalty
	}
	if o.FrequencyPenalty != nil {
		s.FrequencyPenalty = o.FrequencyPenalty
	}
	if o.StopSequences != nil {
		s.StopSequences = o.StopSequences
	}
	if o.Seed != nil {
		s.Seed = o.Seed
	}
	if o.MaxRetries != nil {
		s.MaxRetries = o.MaxRetries
	}
	if o.Headers != nil {
		s.Headers = o.Headers
	}
	if o.ProviderOptions != nil {
		s.ProviderOptions = o.ProviderOptions
	}

	return s
}
