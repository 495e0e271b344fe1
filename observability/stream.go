package observability

import (
	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/stream"
)

// outcome summarises how an observed stream ended.
type outcome struct {
	Err          error
	Abandoned    bool
	FinishReason string
	Usage        core.Usage
	Parts        int
}

// label is the outcome as a metric label value.
func (o outcome) label() string {
	switch {
	case o.Err != nil && core.IsCancellation(o.Err):
		return "cancelled"
	case o.Err != nil:
		return "error"
	case o.Abandoned:
		return "abandoned"
	default:
		return "ok"
	}
}

// observe returns a source that forwards src unchanged and calls onPart for
// every translated part and onEnd exactly once when iteration stops.
func observe(src stream.EventSource, onPart func(stream.Part), onEnd func(outcome)) stream.EventSource {
	return func(yield func(stream.Event, error) bool) {
		var out outcome

		defer func() { onEnd(out) }()

		for ev, err := range src {
			if err != nil {
				out.Err = err
				yield(ev, err)
				return
			}

			if ev.Part != nil {
				out.Parts++
				if f, ok := ev.Part.(stream.Finish); ok {
					out.FinishReason = f.Reason.Unified
					out.Usage = f.Usage
				}
				if onPart != nil {
					onPart(ev.Part)
				}
			}

			if !yield(ev, nil) {
				out.Abandoned = true
				return
			}
		}
	}
}
