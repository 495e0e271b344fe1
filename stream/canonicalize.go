package stream

import (
	"errors"
	"fmt"
	"iter"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/hupe1980/agentstream/core"
)

// ErrConsumed is reported when a canonical stream is iterated a second time.
var ErrConsumed = errors.New("stream: already consumed")

// CanonicalizeOptions configures the canonicalizer.
type CanonicalizeOptions struct {
	// IncludeRaw surfaces untranslatable provider events as Raw parts.
	// When false they are dropped.
	IncludeRaw bool
	// NewID generates ids for blocks whose provider omitted one.
	NewID func() string
}

// Stream is a finite, non-restartable canonical part sequence.
type Stream struct {
	src      EventSource
	opts     CanonicalizeOptions
	consumed atomic.Bool
}

// Canonicalize wraps a provider source. Iteration is lazy: nothing is pulled
// from src until All is ranged over.
func Canonicalize(src EventSource, optFns ...func(o *CanonicalizeOptions)) *Stream {
	opts := CanonicalizeOptions{
		NewID: uuid.NewString,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Stream{src: src, opts: opts}
}

// All returns the canonical parts in arrival order. Text, reasoning and tool
// input fragments are coalesced under one id; a delta without a preceding
// start gets a synthesized start. A transport failure or protocol violation
// yields one terminal Error part. Finish and Error parts end the sequence.
// A second call yields a single Error wrapping ErrConsumed.
func (s *Stream) All() iter.Seq[Part] {
	return func(yield func(Part) bool) {
		if !s.consumed.CompareAndSwap(false, true) {
			yield(Error{Err: ErrConsumed})
			return
		}

		st := &canonicalState{opts: s.opts, blocks: map[blockKey]bool{}}

		for ev, err := range s.src {
			if err != nil {
				yield(Error{Err: core.Classify("stream", err)})
				return
			}

			parts, terminal := st.translate(ev)
			for _, p := range parts {
				if !yield(p) {
					return
				}
			}

			if terminal {
				return
			}
		}
	}
}

type blockKind uint8

const (
	blockText blockKind = iota
	blockReasoning
	blockToolInput
)

func (k blockKind) String() string {
	switch k {
	case blockText:
		return "text"
	case blockReasoning:
		return "reasoning"
	default:
		return "tool-input"
	}
}

type blockKey struct {
	kind blockKind
	id   string
}

// canonicalState tracks open (true) and closed (false) blocks for one stream.
type canonicalState struct {
	opts   CanonicalizeOptions
	blocks map[blockKey]bool
	last   [3]string
}

func (s *canonicalState) translate(ev Event) ([]Part, bool) {
	if ev.Part == nil {
		if s.opts.IncludeRaw && ev.Native != nil {
			return []Part{Raw{Value: ev.Native}}, false
		}
		return nil, false
	}

	switch p := ev.Part.(type) {
	case Raw:
		if s.opts.IncludeRaw {
			return []Part{p}, false
		}
		return nil, false
	case TextStart:
		p.ID = s.resolveStartID(blockText, p.ID)
		return s.start(blockText, p.ID, p)
	case TextDelta:
		p.ID = s.resolveDeltaID(blockText, p.ID)
		return s.delta(blockText, p.ID, p, TextStart{ID: p.ID})
	case TextEnd:
		p.ID = s.resolveDeltaID(blockText, p.ID)
		return s.end(blockText, p.ID, p)
	case ReasoningStart:
		p.ID = s.resolveStartID(blockReasoning, p.ID)
		return s.start(blockReasoning, p.ID, p)
	case ReasoningDelta:
		p.ID = s.resolveDeltaID(blockReasoning, p.ID)
		return s.delta(blockReasoning, p.ID, p, ReasoningStart{ID: p.ID})
	case ReasoningEnd:
		p.ID = s.resolveDeltaID(blockReasoning, p.ID)
		return s.end(blockReasoning, p.ID, p)
	case ToolInputStart:
		p.ID = s.resolveStartID(blockToolInput, p.ID)
		return s.start(blockToolInput, p.ID, p)
	case ToolCallDelta:
		p.ID = s.resolveDeltaID(blockToolInput, p.ID)
		return s.delta(blockToolInput, p.ID, p, ToolInputStart{ID: p.ID})
	case ToolInputEnd:
		p.ID = s.resolveDeltaID(blockToolInput, p.ID)
		return s.end(blockToolInput, p.ID, p)
	case ToolCall:
		key := blockKey{blockToolInput, p.ToolCallID}
		if s.blocks[key] {
			s.blocks[key] = false
			return []Part{ToolInputEnd{ID: p.ToolCallID}, p}, false
		}
		return []Part{p}, false
	case Finish, Error:
		return []Part{p}, true
	case StreamStart, ResponseMetadata, ToolResult, File, Source:
		return []Part{p}, false
	default:
		return s.violation(fmt.Sprintf("unsupported part type %T", p))
	}
}

func (s *canonicalState) resolveStartID(kind blockKind, id string) string {
	if id == "" {
		id = s.opts.NewID()
	}
	s.last[kind] = id

	return id
}

// resolveDeltaID assigns anonymous fragments to the most recent block of the
// same kind, or to a fresh block when none is open.
func (s *canonicalState) resolveDeltaID(kind blockKind, id string) string {
	if id != "" {
		return id
	}

	if last := s.last[kind]; last != "" && s.blocks[blockKey{kind, last}] {
		return last
	}

	id = s.opts.NewID()
	s.last[kind] = id

	return id
}

func (s *canonicalState) start(kind blockKind, id string, p Part) ([]Part, bool) {
	key := blockKey{kind, id}
	if _, seen := s.blocks[key]; seen {
		return s.violation(fmt.Sprintf("duplicate %s-start for id %q", kind, id))
	}
	s.blocks[key] = true

	return []Part{p}, false
}

func (s *canonicalState) delta(kind blockKind, id string, p Part, synth Part) ([]Part, bool) {
	key := blockKey{kind, id}
	open, seen := s.blocks[key]

	switch {
	case !seen:
		s.blocks[key] = true
		s.last[kind] = id
		return []Part{synth, p}, false
	case !open:
		return s.violation(fmt.Sprintf("%s delta after end for id %q", kind, id))
	default:
		return []Part{p}, false
	}
}

func (s *canonicalState) end(kind blockKind, id string, p Part) ([]Part, bool) {
	key := blockKey{kind, id}
	if !s.blocks[key] {
		return s.violation(fmt.Sprintf("%s-end without open block for id %q", kind, id))
	}
	s.blocks[key] = false

	return []Part{p}, false
}

func (s *canonicalState) violation(msg string) ([]Part, bool) {
	return []Part{Error{Err: core.NewProtocolError("canonicalize", msg, nil)}}, true
}
