package proxy

import (
	"errors"
	"io"
	"sync"
)

// errUnbound is returned for writes before the destination exists, i.e.
// before the child pty has been opened.
var errUnbound = errors.New("writer not bound")

// SyncWriter serializes writes from multiple goroutines onto one
// destination. The proxy uses two: one in front of the pty master so
// injected transcripts never interleave with forwarded keystrokes, and one
// in front of stdout so title sequences never interleave with relayed child
// output.
type SyncWriter struct {
	mu  sync.Mutex
	dst io.Writer
}

// NewSyncWriter wraps dst. A nil dst leaves the writer unbound until Bind.
func NewSyncWriter(dst io.Writer) *SyncWriter {
	return &SyncWriter{dst: dst}
}

// Bind sets the destination. Safe to call while writers are active.
func (w *SyncWriter) Bind(dst io.Writer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dst = dst
}

func (w *SyncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dst == nil {
		return 0, errUnbound
	}
	return w.dst.Write(p)
}
