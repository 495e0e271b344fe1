package model

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/stream"
)

// MockStep scripts one model call.
type MockStep struct {
	// Parts are streamed in order.
	Parts []stream.Part
	// Err fails the call before any part is produced.
	Err error
	// StreamErr terminates the source after Parts.
	StreamErr error
	// Block holds the source open after Parts until the context is done.
	Block bool
}

// MockModel is a scripted in-memory LanguageModel for tests and examples.
// Each call consumes the next step. When the script is exhausted the model
// answers with a canned text reply.
type MockModel struct {
	mu        sync.Mutex
	info      Info
	steps     []MockStep
	next      int
	calls     []CallOptions
	responses map[string]string
}

// NewMockModel builds a MockModel that plays the given steps in order.
func NewMockModel(steps ...MockStep) *MockModel {
	return &MockModel{
		info:      Info{Provider: "mock", ModelID: "mock-model", SupportsTools: true},
		steps:     steps,
		responses: make(map[string]string),
	}
}

// AddResponse registers a canned reply for an exact user prompt. It is used
// once the scripted steps are exhausted.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Info implements LanguageModel.
func (m *MockModel) Info() Info { return m.info }

// Calls returns the options of every call made so far.
func (m *MockModel) Calls() []CallOptions {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]CallOptions, len(m.calls))
	copy(out, m.calls)

	return out
}

// DoStream implements LanguageModel.
func (m *MockModel) DoStream(ctx context.Context, opts CallOptions) (*StreamResult, error) {
	st := m.take(opts)
	if st.Err != nil {
		return nil, st.Err
	}

	src := func(yield func(stream.Event, error) bool) {
		for _, p := range st.Parts {
			if err := ctx.Err(); err != nil {
				yield(stream.Event{}, err)
				return
			}
			if !yield(stream.Event{Part: p, Native: p}, nil) {
				return
			}
		}

		if st.StreamErr != nil {
			yield(stream.Event{}, st.StreamErr)
			return
		}

		if st.Block {
			<-ctx.Done()
			yield(stream.Event{}, ctx.Err())
		}
	}

	return &StreamResult{Stream: src}, nil
}

// DoGenerate implements LanguageModel by folding the scripted parts into a
// complete result.
func (m *MockModel) DoGenerate(ctx context.Context, opts CallOptions) (*GenerateResult, error) {
	st := m.take(opts)
	if st.Err != nil {
		return nil, st.Err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &GenerateResult{}

	var text strings.Builder
	for _, p := range st.Parts {
		switch v := p.(type) {
		case stream.StreamStart:
			res.Warnings = v.Warnings
		case stream.ResponseMetadata:
			res.Response = v
		case stream.TextDelta:
			text.WriteString(v.Delta)
		case stream.ReasoningDelta:
			res.Content = append(res.Content, core.ReasoningPart{Text: v.Delta})
		case stream.ToolCall:
			res.Content = append(res.Content, core.ToolCallPart{
				ToolCallID:       v.ToolCallID,
				ToolName:         v.ToolName,
				Input:            v.Input,
				ProviderExecuted: v.ProviderExecuted,
			})
		case stream.Finish:
			res.FinishReason = v.Reason
			res.Usage = v.Usage
		}
	}

	if text.Len() > 0 {
		res.Content = append([]core.Part{core.TextPart{Text: text.String()}}, res.Content...)
	}

	if st.StreamErr != nil {
		return res, st.StreamErr
	}

	return res, nil
}

func (m *MockModel) take(opts CallOptions) MockStep {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, opts)

	if m.next < len(m.steps) {
		st := m.steps[m.next]
		m.next++
		return st
	}

	return m.defaultStep(opts.Prompt)
}

func (m *MockModel) defaultStep(prompt core.Prompt) MockStep {
	var input string
	for i := len(prompt) - 1; i >= 0; i-- {
		if prompt[i].Role == core.RoleUser {
			input = prompt[i].Text()
			break
		}
	}

	reply := m.responses[input]
	if reply == "" {
		reply = fmt.Sprintf("Mock response to: %s", input)
	}

	id := uuid.NewString()

	return MockStep{Parts: []stream.Part{
		stream.StreamStart{},
		stream.TextStart{ID: id},
		stream.TextDelta{ID: id, Delta: reply},
		stream.TextEnd{ID: id},
		stream.Finish{Reason: stream.Reason("stop")},
	}}
}
