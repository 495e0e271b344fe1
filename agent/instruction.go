package agent

import (
	"context"

	"github.com/hupe1980/agentstream/internal/util"
)

// StepInfo describes the step an instruction is resolved for.
type StepInfo struct {
	StepNumber int
	ModelID    string
}

// Provider supplies dynamic system instructions at runtime.
type Provider interface {
	Instruction(ctx context.Context, info StepInfo) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(ctx context.Context, info StepInfo) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(ctx context.Context, info StepInfo) (string, error) { return f(ctx, info) }

// Instruction represents either a static system instruction or a dynamic
// provider. The zero value resolves to the empty string, which leaves the
// prompt's system message untouched.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(ctx context.Context, info StepInfo) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// NewInstructionFromTemplate creates an Instruction rendered from a text/template
// before every step. vars are exposed alongside step_number and model_id.
func NewInstructionFromTemplate(text string, vars map[string]any) Instruction {
	return Instruction{provider: Func(func(_ context.Context, info StepInfo) (string, error) {
		data := make(map[string]any, len(vars)+2)
		for k, v := range vars {
			data[k] = v
		}
		data["step_number"] = info.StepNumber
		data["model_id"] = info.ModelID

		return util.RenderTemplate(text, data)
	})}
}

// IsStatic returns true if the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text, invoking the provider if needed.
func (i Instruction) Resolve(ctx context.Context, info StepInfo) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(ctx, info)
	}
	return i.text, nil
}
