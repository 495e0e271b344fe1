package sink

import (
	"errors"
	"net/http"
	"sync"
)

// HTTPSinkOptions configures an HTTPSink.
type HTTPSinkOptions struct {
	// HighWaterMark is the number of buffered bytes above which Write
	// reports backpressure.
	HighWaterMark int
	// Status is the response status code.
	Status int
	// Headers are set before the status line is written.
	Headers map[string]string
}

// HTTPSink writes chunks to an http.ResponseWriter from a dedicated
// goroutine, flushing after each batch. Write never blocks; it reports
// backpressure once more than HighWaterMark bytes are waiting.
type HTTPSink struct {
	w    http.ResponseWriter
	rc   *http.ResponseController
	high int

	mu      sync.Mutex
	queue   [][]byte
	pending int
	drainCh chan struct{}
	closing bool
	err     error

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ Sink = (*HTTPSink)(nil)

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// NewHTTPSink writes headers and the status code, then starts the flusher.
func NewHTTPSink(w http.ResponseWriter, optFns ...func(o *HTTPSinkOptions)) *HTTPSink {
	opts := HTTPSinkOptions{
		HighWaterMark: 16 * 1024,
		Status:        http.StatusOK,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	for k, v := range opts.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(opts.Status)

	s := &HTTPSink{
		w:      w,
		rc:     http.NewResponseController(w),
		high:   opts.HighWaterMark,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	go s.flushLoop()

	return s
}

// Write implements Sink.
func (s *HTTPSink) Write(p []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return false, s.err
	}
	if s.closing {
		return false, errors.New("sink: write after close")
	}

	s.queue = append(s.queue, p)
	s.pending += len(p)

	select {
	case s.notify <- struct{}{}:
	default:
	}

	if s.pending < s.high {
		return true, nil
	}

	if s.drainCh == nil {
		s.drainCh = make(chan struct{})
	}

	return false, nil
}

// Drained implements Sink.
func (s *HTTPSink) Drained() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.drainCh == nil {
		return closedCh
	}
	return s.drainCh
}

// Close flushes queued chunks, stops the flusher and reports the first
// write error. It is safe to call more than once.
func (s *HTTPSink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()

		select {
		case s.notify <- struct{}{}:
		default:
		}

		<-s.done
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

func (s *HTTPSink) flushLoop() {
	defer close(s.done)

	for range s.notify {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		closing := s.closing
		failed := s.err != nil
		s.mu.Unlock()

		var err error
		if !failed {
			err = s.writeBatch(batch)
		}

		s.mu.Lock()
		for _, b := range batch {
			s.pending -= len(b)
		}
		if err != nil && s.err == nil {
			s.err = err
		}
		if s.drainCh != nil && (s.pending < s.high || s.err != nil) {
			close(s.drainCh)
			s.drainCh = nil
		}
		// A write racing with Close may have queued more data.
		closing = closing || s.closing
		remaining := len(s.queue)
		s.mu.Unlock()

		if closing && remaining == 0 {
			return
		}
		if closing {
			select {
			case s.notify <- struct{}{}:
			default:
			}
		}
	}
}

func (s *HTTPSink) writeBatch(batch [][]byte) error {
	if len(batch) == 0 {
		return nil
	}

	for _, b := range batch {
		if _, err := s.w.Write(b); err != nil {
			return err
		}
	}

	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}

	return nil
}
