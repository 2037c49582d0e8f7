package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// Logger emits structured events to an underlying sink.
type Logger interface {
	Log(context.Context, Event) error
}

// LoggerFunc adapts a function into a Logger.
type LoggerFunc func(context.Context, Event) error

// Log implements Logger.
func (f LoggerFunc) Log(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// JSONLoggerOption mutates JSONLogger construction.
type JSONLoggerOption func(*JSONLogger)

// WithNode stamps every event that carries no node with the given identity,
// so callers only set Instance and Datacenter.
func WithNode(node string) JSONLoggerOption {
	return func(l *JSONLogger) {
		l.node = node
	}
}

// WithTimeSource overrides the timestamp source, for tests.
func WithTimeSource(now func() time.Time) JSONLoggerOption {
	return func(l *JSONLogger) {
		l.now = now
	}
}

// JSONLogger writes each event as a single JSON object on its own line.
type JSONLogger struct {
	mu   sync.Mutex
	enc  *json.Encoder
	node string
	now  func() time.Time
}

// NewJSONLogger builds a JSONLogger writing to the provided io.Writer.
func NewJSONLogger(w io.Writer, opts ...JSONLoggerOption) *JSONLogger {
	l := &JSONLogger{now: time.Now}
	if w != nil {
		l.enc = json.NewEncoder(w)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Log implements Logger by encoding the event, filling in the timestamp and
// node identity when the caller left them empty.
func (l *JSONLogger) Log(_ context.Context, event Event) error {
	if l == nil || l.enc == nil {
		return errors.New("json logger has no sink")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}
	if event.Node == "" {
		event.Node = l.node
	}

	if err := l.enc.Encode(event); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return nil
}
