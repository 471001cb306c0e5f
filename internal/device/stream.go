package device

import (
	"context"
	"io"
	"sync"
)

// Frame is one acquisition unit produced by an instrument: the values of
// every counter the instrument serves, keyed by counter name.
type Frame struct {
	Values map[string]any
}

// Stream is a lazily evaluated sequence of frames over a hardware-polling
// primitive. The stream owns the underlying hardware session: Stop must be
// called on every exit path (success, error, cancellation) so the session
// is never leaked. Next returns io.EOF once the sequence is exhausted.
type Stream struct {
	next func(ctx context.Context) (Frame, error)
	stop func() error

	mu      sync.Mutex
	stopped bool
}

// NewStream builds a stream from a fetch function and a stop function.
// Instruments construct these around their polling primitives.
func NewStream(next func(ctx context.Context) (Frame, error), stop func() error) *Stream {
	return &Stream{next: next, stop: stop}
}

// Next yields the following frame, blocking cooperatively on hardware I/O.
func (s *Stream) Next(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return Frame{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	return s.next(ctx)
}

// Stop releases the underlying polling handle. Idempotent.
func (s *Stream) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()
	if s.stop == nil {
		return nil
	}
	return s.stop()
}
