// Package agentstream wires the agent loop to the wire codecs and an HTTP
// sink. Most applications interact with this package by:
//  1. Creating a Streamer via New()
//  2. Calling Run for a buffered result, or StreamUI / StreamData to drive a
//     run straight into an http.ResponseWriter
//
// Streaming runs are piped through a bounded channel so that a slow client
// stalls the loop instead of growing memory. The UI protocol always ends
// with its [DONE] sentinel, whether the run succeeded or not.
package agentstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/agentstream/agent"
	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/datastream"
	"github.com/hupe1980/agentstream/logging"
	"github.com/hupe1980/agentstream/model"
	"github.com/hupe1980/agentstream/sink"
	"github.com/hupe1980/agentstream/stream"
	"github.com/hupe1980/agentstream/uistream"
)

// Protocol selects the wire codec of a streamed run.
type Protocol string

const (
	// ProtocolUI is the SSE UI message stream.
	ProtocolUI Protocol = "ui"
	// ProtocolData is the legacy line-oriented data stream.
	ProtocolData Protocol = "data"
)

// ParseProtocol maps a protocol name onto a Protocol. Empty selects ProtocolUI.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ProtocolUI):
		return ProtocolUI, nil
	case string(ProtocolData):
		return ProtocolData, nil
	default:
		return "", fmt.Errorf("unknown protocol %q", s)
	}
}

// Options configures the Streamer.
type Options struct {
	// MaxConcurrentRuns limits the number of runs that can execute
	// simultaneously. Further runs wait for a slot. Set to 0 for unlimited.
	MaxConcurrentRuns int64

	// BufferSize is the number of encoded chunks queued between the loop
	// and the sink.
	BufferSize int

	// HighWaterMark is the number of bytes the HTTP sink buffers before it
	// reports backpressure.
	HighWaterMark int

	// SendReasoning forwards reasoning parts to the client.
	SendReasoning bool
	// SendSources forwards source citations on the UI protocol.
	SendSources bool

	// OnError maps a failure to the text sent to the client. Defaults to
	// err.Error().
	OnError func(err error) string

	// Logger (defaults to no logging if nil)
	Logger *logging.PipelineLogger
}

// Streamer runs agent loops and streams them to HTTP clients.
type Streamer struct {
	opts Options
	sem  *semaphore.Weighted
}

// New creates a Streamer with optional overrides.
func New(optFns ...func(o *Options)) *Streamer {
	opts := Options{
		MaxConcurrentRuns: 10,
		BufferSize:        64,
		HighWaterMark:     16 * 1024,
		SendReasoning:     true,
		OnError:           func(err error) string { return err.Error() },
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Streamer{opts: opts}
	if opts.MaxConcurrentRuns > 0 {
		s.sem = semaphore.NewWeighted(opts.MaxConcurrentRuns)
	}

	return s
}

// Run executes a run without streaming and returns the buffered result. On
// failure the steps completed so far are returned with the error.
func (s *Streamer) Run(
	ctx context.Context,
	m model.LanguageModel,
	prompt core.Prompt,
	optFns ...func(o *agent.RunOptions),
) (*agent.Result, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.run(ctx, m, prompt, uuid.NewString(), stream.NopWriter{}, optFns)
}

// StreamUI streams a run to w as a UI message stream.
func (s *Streamer) StreamUI(
	ctx context.Context,
	w http.ResponseWriter,
	m model.LanguageModel,
	prompt core.Prompt,
	optFns ...func(o *agent.RunOptions),
) (*agent.Result, error) {
	return s.Stream(ctx, w, ProtocolUI, m, prompt, optFns...)
}

// StreamData streams a run to w as a legacy data stream.
func (s *Streamer) StreamData(
	ctx context.Context,
	w http.ResponseWriter,
	m model.LanguageModel,
	prompt core.Prompt,
	optFns ...func(o *agent.RunOptions),
) (*agent.Result, error) {
	return s.Stream(ctx, w, ProtocolData, m, prompt, optFns...)
}

// Stream runs the loop and writes every frame of protocol to w. Headers are
// written only once a run slot has been acquired, so an error returned
// before that leaves w untouched. A failure after the headers is reported
// in-band with an error frame and also returned.
func (s *Streamer) Stream(
	ctx context.Context,
	w http.ResponseWriter,
	protocol Protocol,
	m model.LanguageModel,
	prompt core.Prompt,
	optFns ...func(o *agent.RunOptions),
) (*agent.Result, error) {
	if protocol != ProtocolUI && protocol != ProtocolData {
		return nil, fmt.Errorf("unknown protocol %q", protocol)
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := sink.NewChannel(s.opts.BufferSize)
	cw, headers := s.codec(protocol, ch.Emit)

	hs := sink.NewHTTPSink(w, func(o *sink.HTTPSinkOptions) {
		o.HighWaterMark = s.opts.HighWaterMark
		o.Headers = headers
	})

	pipeErr := make(chan error, 1)

	go func() {
		err := sink.NewWriter(func(o *sink.WriterOptions) {
			if s.opts.Logger != nil {
				o.Logger = s.opts.Logger.WithComponent("sink")
			}
		}).Pipe(ctx, ch.All(), hs)
		if err != nil {
			// The client is gone; stop the loop.
			cancel()
		}
		pipeErr <- err
	}()

	tw := &trackingWriter{Writer: cw}
	res, runErr := s.run(ctx, m, prompt, uuid.NewString(), tw, optFns)

	tail := context.WithoutCancel(ctx)
	if runErr != nil && !tw.sawError && !core.IsCancellation(runErr) {
		if err := cw.WriteError(tail, runErr); err != nil {
			s.debug("stream.error_frame.failed", "error", err)
		}
	}

	if err := cw.Close(tail); err != nil {
		s.debug("stream.close.failed", "error", err)
	}

	ch.CloseWithError(nil)

	perr := <-pipeErr
	if core.IsCancellation(perr) && runErr != nil {
		perr = nil
	}

	return res, errors.Join(runErr, perr)
}

func (s *Streamer) run(
	ctx context.Context,
	m model.LanguageModel,
	prompt core.Prompt,
	runID string,
	w stream.Writer,
	optFns []func(o *agent.RunOptions),
) (*agent.Result, error) {
	var logger *logging.PipelineLogger
	if s.opts.Logger != nil {
		logger = s.opts.Logger.WithRun(runID)
	}

	fns := append([]func(o *agent.RunOptions){func(o *agent.RunOptions) {
		o.MessageID = runID
		if logger != nil {
			o.Logger = logger.WithComponent("agent")
		}
	}}, optFns...)
	fns = append(fns, func(o *agent.RunOptions) { o.Writer = w })

	start := time.Now()
	res, err := agent.Run(ctx, m, prompt, fns...)

	if logger != nil {
		steps := 0
		if res != nil {
			steps = len(res.Steps)
		}
		logger.LogRun(steps, time.Since(start), core.IsCancellation(err), err)
	}

	return res, err
}

type codecWriter interface {
	stream.Writer
	WriteError(ctx context.Context, err error) error
	Close(ctx context.Context) error
}

type dataWriter struct{ *datastream.Writer }

// Close is a no-op; the legacy protocol has no terminator.
func (dataWriter) Close(context.Context) error { return nil }

func (s *Streamer) codec(p Protocol, emit func(ctx context.Context, b []byte) error) (codecWriter, map[string]string) {
	if p == ProtocolData {
		return dataWriter{datastream.NewWriter(emit, func(o *datastream.WriterOptions) {
			o.SendReasoning = s.opts.SendReasoning
			o.OnError = s.opts.OnError
		})}, datastream.Headers
	}

	return uistream.NewWriter(emit, func(o *uistream.WriterOptions) {
		o.SendReasoning = s.opts.SendReasoning
		o.SendSources = s.opts.SendSources
		o.OnError = s.opts.OnError
	}), uistream.Headers
}

func (s *Streamer) acquire(ctx context.Context) (func(), error) {
	if s.sem == nil {
		return func() {}, nil
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, core.NewCancelledError("acquire", err)
	}

	return func() { s.sem.Release(1) }, nil
}

func (s *Streamer) debug(msg string, args ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Debug(msg, args...)
	}
}

// trackingWriter records whether an error part reached the wire.
type trackingWriter struct {
	stream.Writer
	sawError bool
}

func (t *trackingWriter) WritePart(ctx context.Context, p stream.Part) error {
	if _, ok := p.(stream.Error); ok {
		t.sawError = true
	}
	return t.Writer.WritePart(ctx, p)
}
