package taskctx

import (
	"bytes"
	"io"
	"sync"
)

// Sink is the per-task append-only output buffer. When synchronization is
// disabled, writes bypass the buffer and go straight to the configured
// direct writer, and Lock/Unlock become no-ops — the buffer's mutex itself
// still exists but is simply never the thing protecting stdout in that
// mode.
type Sink struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	syncOn bool
	direct io.Writer
}

// NewSink returns a Sink. When sync is true, writes accumulate in an
// internal buffer for a later single flush; when false, writes go straight
// to direct and locking is a no-op.
func NewSink(sync bool, direct io.Writer) *Sink {
	return &Sink{syncOn: sync, direct: direct}
}

// Write implements io.Writer.
func (s *Sink) Write(p []byte) (int, error) {
	if !s.syncOn {
		return s.direct.Write(p)
	}
	return s.buf.Write(p)
}

// Lock acquires the sink's io_lock. A no-op when synchronization is
// disabled, since stdout already serializes its own writes well enough
// for that mode's guarantees (or lack thereof).
func (s *Sink) Lock() {
	if s.syncOn {
		s.mu.Lock()
	}
}

// Unlock releases the io_lock acquired by Lock.
func (s *Sink) Unlock() {
	if s.syncOn {
		s.mu.Unlock()
	}
}

// Bytes returns a copy of the buffered output. Only meaningful when
// synchronization is enabled.
func (s *Sink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte{}, s.buf.Bytes()...)
}

// Len reports how many bytes are currently buffered.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}
