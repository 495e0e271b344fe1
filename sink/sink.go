// Package sink drains encoded chunks into a byte sink under backpressure.
package sink

import (
	"context"
	"errors"
	"iter"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/logging"
)

// Sink is a byte destination with backpressure.
type Sink interface {
	// Write hands a chunk to the sink. The chunk is taken in either case; a
	// false result asks the caller to wait for Drained before writing more.
	Write(p []byte) (bool, error)
	// Drained returns a channel that is closed once the sink can take more
	// data. It is already closed when the sink is not under pressure.
	Drained() <-chan struct{}
	// Close releases the sink.
	Close() error
}

// WriterOptions configures a Writer.
type WriterOptions struct {
	Logger logging.Logger
}

// Writer pipes chunk sources into sinks.
type Writer struct {
	logger logging.Logger
}

// NewWriter creates a Writer.
func NewWriter(optFns ...func(o *WriterOptions)) *Writer {
	opts := WriterOptions{}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Writer{logger: logging.OrNoOp(opts.Logger)}
}

// Pipe writes every chunk of src to s in order. After a write is answered
// with false no further chunk is pulled until the sink drains. s is closed
// exactly once on every exit path, including a panic in src.
func (w *Writer) Pipe(ctx context.Context, src iter.Seq2[[]byte, error], s Sink) (err error) {
	defer func() {
		if cerr := s.Close(); cerr != nil {
			err = errors.Join(err, core.NewSinkError("close", cerr))
		}
	}()

	chunks := 0

	for chunk, srcErr := range src {
		if srcErr != nil {
			if core.IsCancellation(srcErr) {
				w.logger.Debug("sink.pipe.cancelled", "chunks", chunks)
			} else {
				w.logger.Warn("sink.pipe.source_error", "chunks", chunks, "error", srcErr)
			}
			return core.Classify("sink.source", srcErr)
		}

		ok, werr := s.Write(chunk)
		if werr != nil {
			w.logger.Warn("sink.write.failed", "chunks", chunks, "error", werr)
			return core.NewSinkError("write", werr)
		}
		chunks++

		if ok {
			continue
		}

		w.logger.Debug("sink.drain.wait", "chunks", chunks)

		select {
		case <-s.Drained():
		case <-ctx.Done():
			return core.NewCancelledError("sink.drain", ctx.Err())
		}
	}

	w.logger.Debug("sink.pipe.finish", "chunks", chunks)

	return nil
}

// Pipe is Writer.Pipe with default options.
func Pipe(ctx context.Context, src iter.Seq2[[]byte, error], s Sink) error {
	return NewWriter().Pipe(ctx, src, s)
}
