package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/stream"
)

// RecordingWriter is a stream.Writer that records every call as a short
// event string, e.g. "start-step", "part:text-delta", "finish-step:stop".
type RecordingWriter struct {
	mu      sync.Mutex
	events  []string
	parts   []stream.Part
	outputs []core.ToolResultPart
	// FailOn makes the named event return Err.
	FailOn string
	Err    error
}

var _ stream.Writer = (*RecordingWriter)(nil)

func (w *RecordingWriter) record(ev string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.events = append(w.events, ev)
	if w.FailOn != "" && w.FailOn == ev {
		return w.Err
	}

	return nil
}

func (w *RecordingWriter) StartRun(context.Context, string) error {
	return w.record("start-run")
}

func (w *RecordingWriter) StartStep(context.Context) error { return w.record("start-step") }

func (w *RecordingWriter) WritePart(_ context.Context, p stream.Part) error {
	w.mu.Lock()
	w.parts = append(w.parts, p)
	w.mu.Unlock()

	return w.record("part:" + string(p.Type()))
}

func (w *RecordingWriter) FinishStep(_ context.Context, reason core.FinishReason, _ core.Usage) error {
	return w.record(fmt.Sprintf("finish-step:%s", reason))
}

func (w *RecordingWriter) WriteToolOutputs(_ context.Context, results []core.ToolResultPart) error {
	w.mu.Lock()
	w.outputs = append(w.outputs, results...)
	w.mu.Unlock()

	return w.record(fmt.Sprintf("tool-outputs:%d", len(results)))
}

func (w *RecordingWriter) FinishRun(_ context.Context, reason core.FinishReason, _ core.Usage) error {
	return w.record(fmt.Sprintf("finish-run:%s", reason))
}

// Events returns the recorded event strings.
func (w *RecordingWriter) Events() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([]string(nil), w.events...)
}

// Parts returns the canonical parts written so far.
func (w *RecordingWriter) Parts() []stream.Part {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([]stream.Part(nil), w.parts...)
}

// Outputs returns the tool outputs written so far.
func (w *RecordingWriter) Outputs() []core.ToolResultPart {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([]core.ToolResultPart(nil), w.outputs...)
}
