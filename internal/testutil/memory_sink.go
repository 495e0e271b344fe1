package testutil

import (
	"errors"
	"sync"
)

// MemorySink records written chunks. Writes whose 1-based index is listed in
// RejectAt report backpressure; the sink stays under pressure until Drain is
// called.
type MemorySink struct {
	RejectAt map[int]bool
	FailAt   int
	CloseErr error

	mu      sync.Mutex
	writes  [][]byte
	drainCh chan struct{}
	closes  int
}

// ErrWriteFailed is returned by MemorySink when FailAt is reached.
var ErrWriteFailed = errors.New("memory sink: write failed")

// NewMemorySink creates a sink rejecting the listed writes.
func NewMemorySink(rejectAt ...int) *MemorySink {
	s := &MemorySink{RejectAt: map[int]bool{}}
	for _, n := range rejectAt {
		s.RejectAt[n] = true
	}
	return s
}

// Write records p.
func (s *MemorySink) Write(p []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.writes) + 1
	if s.FailAt == n {
		return false, ErrWriteFailed
	}

	s.writes = append(s.writes, append([]byte(nil), p...))

	if s.RejectAt[n] {
		s.drainCh = make(chan struct{})
		return false, nil
	}

	return true, nil
}

// Drained returns the pending drain channel, or a closed one.
func (s *MemorySink) Drained() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.drainCh == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.drainCh
}

// Drain releases a pending backpressure wait.
func (s *MemorySink) Drain() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.drainCh != nil {
		close(s.drainCh)
		s.drainCh = nil
	}
}

// Close counts invocations.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closes++
	return s.CloseErr
}

// Writes returns the recorded chunks as strings.
func (s *MemorySink) Writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.writes))
	for i, w := range s.writes {
		out[i] = string(w)
	}
	return out
}

// Closes returns how often Close was called.
func (s *MemorySink) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closes
}
