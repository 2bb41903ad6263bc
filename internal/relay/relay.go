// Package relay re-emits an upstream OpenAI-style SSE stream to a client,
// one compact JSON frame per event.
package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/YosriMlik/llm-wrapper/internal/models"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// DoneSentinel is the payload that ends an OpenAI-style stream.
const DoneSentinel = "[DONE]"

const readChunkSize = 4096

var (
	dataPrefix = []byte("data:")
	frameStart = []byte("data: ")
	frameEnd   = []byte("\n\n")
)

// State is the lifecycle position of a relay.
type State int

const (
	StateIdle State = iota
	StateRelaying
	// StateClean means upstream ended without a sentinel.
	StateClean
	// StateSentinel means [DONE] was seen and forwarded.
	StateSentinel
	// StateError means the upstream read or the client write failed.
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRelaying:
		return "relaying"
	case StateClean:
		return "terminated_clean"
	case StateSentinel:
		return "terminated_sentinel"
	case StateError:
		return "terminated_error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further frames will be written.
func (s State) Terminal() bool {
	return s >= StateClean
}

// Result summarizes a finished relay.
type Result struct {
	State State
	// Frames counts forwarded JSON frames, not including the sentinel.
	Frames int
	// Skipped counts data lines whose payload was not valid JSON.
	Skipped      int
	ContentBytes int
	Model        string
	TotalTokens  int64
	Err          error
}

// Relay copies one upstream stream to one client. It is not safe for
// concurrent use and runs at most once.
type Relay struct {
	src     io.Reader
	dst     io.Writer
	flusher http.Flusher
	logger  *zap.Logger

	state  State
	buf    []byte
	result Result
}

// New creates a relay reading from src and writing frames to dst. When dst
// implements http.Flusher each frame is flushed as soon as it is written.
func New(src io.Reader, dst io.Writer, logger *zap.Logger) *Relay {
	r := &Relay{
		src:    src,
		dst:    dst,
		logger: logger,
		buf:    make([]byte, 0, readChunkSize),
	}
	if f, ok := dst.(http.Flusher); ok {
		r.flusher = f
	}
	return r
}

// State returns the current lifecycle state.
func (r *Relay) State() State {
	return r.state
}

// Run relays until the sentinel, end of input, or an error. Upstream read
// failures are reported to the client as a final error frame; a failed
// client write ends the relay without one.
func (r *Relay) Run() Result {
	if r.state != StateIdle {
		return r.result
	}
	r.state = StateRelaying

	chunk := make([]byte, readChunkSize)
	for {
		n, err := r.src.Read(chunk)
		if n > 0 {
			r.buf = append(r.buf, chunk[:n]...)
			done, werr := r.drain()
			if werr != nil {
				return r.finish(StateError, werr)
			}
			if done {
				return r.finish(StateSentinel, nil)
			}
		}

		if errors.Is(err, io.EOF) {
			// A final line without its newline still counts
			if len(r.buf) > 0 {
				line := r.buf
				r.buf = r.buf[:0]
				done, werr := r.processLine(line)
				if werr != nil {
					return r.finish(StateError, werr)
				}
				if done {
					return r.finish(StateSentinel, nil)
				}
			}
			return r.finish(StateClean, nil)
		}

		if err != nil {
			if werr := r.writeError(err); werr != nil {
				r.logger.Debug("Failed to write stream error frame", zap.Error(werr))
			}
			return r.finish(StateError, err)
		}
	}
}

// drain processes every complete line in the buffer and keeps the trailing
// partial line for the next read.
func (r *Relay) drain() (bool, error) {
	start := 0
	for {
		i := bytes.IndexByte(r.buf[start:], '\n')
		if i < 0 {
			break
		}
		line := r.buf[start : start+i]
		start += i + 1

		done, err := r.processLine(line)
		if err != nil || done {
			r.buf = r.buf[:0]
			return done, err
		}
	}
	r.buf = r.buf[:copy(r.buf, r.buf[start:])]
	return false, nil
}

func (r *Relay) processLine(line []byte) (bool, error) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, dataPrefix) {
		// comments, event/id fields and blank separators
		return false, nil
	}

	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if string(payload) == DoneSentinel {
		return true, r.writeFrame(payload)
	}

	var frame bytes.Buffer
	if err := json.Compact(&frame, payload); err != nil {
		r.result.Skipped++
		r.logger.Debug("Skipping malformed stream line",
			zap.Int("length", len(payload)),
			zap.Error(err))
		return false, nil
	}

	r.observe(frame.Bytes())
	r.result.Frames++
	return false, r.writeFrame(frame.Bytes())
}

func (r *Relay) observe(frame []byte) {
	fields := gjson.GetManyBytes(frame, "model", "choices.0.delta.content", "usage.total_tokens")
	if m := fields[0].String(); m != "" {
		r.result.Model = m
	}
	r.result.ContentBytes += len(fields[1].String())
	if fields[2].Exists() {
		r.result.TotalTokens = fields[2].Int()
	}
}

func (r *Relay) writeFrame(payload []byte) error {
	out := make([]byte, 0, len(frameStart)+len(payload)+len(frameEnd))
	out = append(out, frameStart...)
	out = append(out, payload...)
	out = append(out, frameEnd...)

	if _, err := r.dst.Write(out); err != nil {
		return fmt.Errorf("write to client: %w", err)
	}
	if r.flusher != nil {
		r.flusher.Flush()
	}
	return nil
}

func (r *Relay) writeError(cause error) error {
	msg := "Stream error: " + cause.Error()
	if errors.Is(cause, ErrIdleTimeout) {
		msg = "Stream error: upstream stopped sending data"
	}
	payload, err := json.Marshal(models.ErrorResponse{Error: msg})
	if err != nil {
		return err
	}
	return r.writeFrame(payload)
}

func (r *Relay) finish(state State, err error) Result {
	r.state = state
	r.result.State = state
	r.result.Err = err
	return r.result
}
