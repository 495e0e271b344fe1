package sink

import (
	"context"
	"errors"
	"iter"
	"sync"
)

// ErrClosed is returned by Channel.Emit once the consumer has gone away.
var ErrClosed = errors.New("sink: channel closed")

// Channel connects a producer goroutine emitting encoded chunks to a Pipe
// consumer. Emit blocks while the buffer is full, which propagates sink
// backpressure to the producer.
type Channel struct {
	ch        chan []byte
	gone      chan struct{}
	goneOnce  sync.Once
	closeOnce sync.Once
	err       error
}

// NewChannel creates a channel buffering up to size chunks.
func NewChannel(size int) *Channel {
	return &Channel{
		ch:   make(chan []byte, size),
		gone: make(chan struct{}),
	}
}

// Emit queues one chunk. It fails when ctx is done or the consumer stopped.
func (c *Channel) Emit(ctx context.Context, b []byte) error {
	select {
	case <-c.gone:
		return ErrClosed
	default:
	}

	select {
	case c.ch <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.gone:
		return ErrClosed
	}
}

// CloseWithError ends the producer side. A non-nil err is yielded to the
// consumer after all queued chunks. Only the first call has an effect.
func (c *Channel) CloseWithError(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		close(c.ch)
	})
}

// All yields queued chunks until the producer closes. Stopping early
// releases blocked producers with ErrClosed.
func (c *Channel) All() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		defer c.goneOnce.Do(func() { close(c.gone) })

		for b := range c.ch {
			if !yield(b, nil) {
				return
			}
		}

		if c.err != nil {
			yield(nil, c.err)
		}
	}
}
