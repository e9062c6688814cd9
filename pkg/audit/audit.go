// Package audit appends one JSONL record per tool invocation. Writes are
// serialized through a single goroutine fed by a bounded channel, so a flood
// of tool calls applies backpressure to handlers instead of dropping records.
package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// Entry is one audit record before serialization.
type Entry struct {
	Tool    string
	Args    map[string]any
	Outcome string
}

// Sink owns the audit log file and its rotation.
type Sink struct {
	ch     chan Entry
	done   chan struct{}
	logger zerolog.Logger
	writer *rotatingWriter

	closeOnce sync.Once
}

const queueDepth = 256

// NewSink opens (creating directories as needed) the audit file at path and
// starts the writer goroutine. maxBytes caps the file size before rotation.
func NewSink(path string, maxBytes int64) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log dir: %w", err)
	}
	w, err := newRotatingWriter(path, maxBytes)
	if err != nil {
		return nil, err
	}
	s := &Sink{
		ch:     make(chan Entry, queueDepth),
		done:   make(chan struct{}),
		writer: w,
	}
	s.logger = zerolog.New(w).With().Timestamp().Logger()
	go s.run()
	return s, nil
}

// Record enqueues one entry. It blocks when the queue is full and is a no-op
// after Close.
func (s *Sink) Record(tool string, args map[string]any, outcome string) {
	defer func() {
		// Sending on a closed channel during shutdown races are swallowed;
		// the process is exiting and the record has nowhere to go.
		_ = recover()
	}()
	s.ch <- Entry{Tool: tool, Args: args, Outcome: outcome}
}

// Close drains pending entries, flushes, and closes the file.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		close(s.ch)
	})
	<-s.done
	return s.writer.Close()
}

func (s *Sink) run() {
	defer close(s.done)
	for e := range s.ch {
		s.logger.Log().
			Str("tool", e.Tool).
			Interface("args", e.Args).
			Str("outcome", e.Outcome).
			Send()
	}
}

// Outcome formatting helpers keep the on-disk vocabulary in one place.

// OutcomeOK is the success outcome value.
const OutcomeOK = "ok"

// OutcomeErr renders an error outcome for the given kind.
func OutcomeErr(kind string) string {
	return fmt.Sprintf("err(%s)", kind)
}
