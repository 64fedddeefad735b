// Package events carries the engine's structured progress stream,
// consumable as human-readable status lines or newline-delimited JSON.
package events

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

type Kind string

const (
	KindPlanComputed        Kind = "plan_computed"
	KindApplyStarted        Kind = "apply_started"
	KindApplySucceeded      Kind = "apply_succeeded"
	KindApplyFailed         Kind = "apply_failed"
	KindFingerprintConflict Kind = "fingerprint_conflict"
	KindPullCompleted       Kind = "pull_completed"
)

// Event is one progress record. Error fields are already sanitized by the
// emitter; sinks never see raw credentials.
type Event struct {
	Kind       Kind      `json:"kind"`
	Time       time.Time `json:"time"`
	RunID      string    `json:"run_id,omitempty"`
	Statements int       `json:"statements,omitempty"`
	Preview    []string  `json:"preview,omitempty"`
	Error      string    `json:"error,omitempty"`
	Expected   string    `json:"expected_fingerprint,omitempty"`
	Actual     string    `json:"actual_fingerprint,omitempty"`
	Files      []string  `json:"files,omitempty"`
}

type Sink interface {
	Emit(Event)
}

// JSONSink writes one JSON object per line.
type JSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{enc: json.NewEncoder(w)}
}

func (s *JSONSink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(e)
}

// TextSink writes one human-readable status line per event.
type TextSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewTextSink(w io.Writer) *TextSink {
	return &TextSink{w: w}
}

func (s *TextSink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintln(s.w, formatLine(e))
}

func formatLine(e Event) string {
	switch e.Kind {
	case KindPlanComputed:
		line := fmt.Sprintf("plan computed: %d statement(s)", e.Statements)
		if len(e.Preview) > 0 {
			line += "\n  " + strings.Join(e.Preview, "\n  ")
		}
		return line
	case KindApplyStarted:
		return fmt.Sprintf("applying %d statement(s)...", e.Statements)
	case KindApplySucceeded:
		return fmt.Sprintf("applied %d statement(s)", e.Statements)
	case KindApplyFailed:
		return fmt.Sprintf("apply failed after %d statement(s): %s", e.Statements, e.Error)
	case KindFingerprintConflict:
		return "live state changed since planning; re-plan and try again"
	case KindPullCompleted:
		return fmt.Sprintf("pulled %d file(s): %s", len(e.Files), strings.Join(e.Files, ", "))
	default:
		return string(e.Kind)
	}
}

// Memory keeps a bounded ring of recent events and fans new ones out to
// followers. It backs the status server.
type Memory struct {
	mu        sync.Mutex
	buf       []Event
	max       int
	followers map[chan Event]struct{}
}

func NewMemory(max int) *Memory {
	if max <= 0 {
		max = 256
	}
	return &Memory{max: max, followers: map[chan Event]struct{}{}}
}

func (m *Memory) Emit(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf = append(m.buf, e)
	if len(m.buf) > m.max {
		m.buf = m.buf[len(m.buf)-m.max:]
	}
	for ch := range m.followers {
		select {
		case ch <- e:
		default: // slow follower, drop rather than block the engine
		}
	}
}

// Recent returns a copy of the buffered events, oldest first.
func (m *Memory) Recent() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.buf...)
}

// Follow registers a listener for events emitted after the call. The
// returned cancel func must be called to release it.
func (m *Memory) Follow() (<-chan Event, func()) {
	ch := make(chan Event, 32)
	m.mu.Lock()
	m.followers[ch] = struct{}{}
	m.mu.Unlock()
	return ch, func() {
		m.mu.Lock()
		delete(m.followers, ch)
		m.mu.Unlock()
	}
}

// Multi fans one emit out to several sinks.
type Multi []Sink

func (m Multi) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// Discard drops everything.
type Discard struct{}

func (Discard) Emit(Event) {}
