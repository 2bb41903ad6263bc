package relay

import (
	"errors"
	"io"
	"sync/atomic"
	"time"
)

// ErrIdleTimeout is returned by reads after upstream has been silent for
// longer than the idle timeout.
var ErrIdleTimeout = errors.New("upstream stream idle timeout")

type idleTimeoutReader struct {
	rc      io.ReadCloser
	timeout time.Duration
	timer   *time.Timer
	fired   atomic.Bool
	closed  atomic.Bool
}

// WithIdleTimeout closes rc when no bytes arrive for d. Reads that were
// interrupted that way fail with ErrIdleTimeout. A non-positive d returns rc
// unchanged.
func WithIdleTimeout(rc io.ReadCloser, d time.Duration) io.ReadCloser {
	if d <= 0 {
		return rc
	}
	r := &idleTimeoutReader{rc: rc, timeout: d}
	r.timer = time.AfterFunc(d, func() {
		r.fired.Store(true)
		r.close()
	})
	r.timer.Stop()
	return r
}

// Read arms the timer only while blocked upstream, so time spent writing to
// a slow client is not counted as idle.
func (r *idleTimeoutReader) Read(p []byte) (int, error) {
	if r.fired.Load() {
		return 0, ErrIdleTimeout
	}
	r.timer.Reset(r.timeout)
	n, err := r.rc.Read(p)
	r.timer.Stop()
	if r.fired.Load() {
		return n, ErrIdleTimeout
	}
	return n, err
}

func (r *idleTimeoutReader) Close() error {
	r.timer.Stop()
	return r.close()
}

func (r *idleTimeoutReader) close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return r.rc.Close()
}
