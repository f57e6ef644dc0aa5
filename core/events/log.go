package events

import (
	"log/slog"
	"sync"
)

// LogEmitter writes every event to a structured logger.
type LogEmitter struct {
	Logger *slog.Logger
}

// Emit implements Emitter.
func (e LogEmitter) Emit(evt Event) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{slog.String("event", evt.EventType())}
	if rec, ok := evt.(Attributed); ok {
		for k, v := range rec.Record().Attributes {
			attrs = append(attrs, slog.String(k, v))
		}
	}
	logger.Info("ledger event", attrs...)
}

// Buffer keeps the most recent events in memory for the reporting API.
type Buffer struct {
	mu     sync.Mutex
	limit  int
	events []Record
}

// NewBuffer returns a buffer holding at most limit records.
func NewBuffer(limit int) *Buffer {
	if limit <= 0 {
		limit = 256
	}
	return &Buffer{limit: limit}
}

// Emit implements Emitter. Events without a Record form are kept by type.
func (b *Buffer) Emit(evt Event) {
	rec := &Record{Type: evt.EventType()}
	if attributed, ok := evt.(Attributed); ok {
		rec = attributed.Record()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, *rec)
	if over := len(b.events) - b.limit; over > 0 {
		b.events = append([]Record(nil), b.events[over:]...)
	}
}

// Records returns a copy of the buffered records, oldest first.
func (b *Buffer) Records() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Record(nil), b.events...)
}

// Fanout forwards each event to every emitter in order.
type Fanout []Emitter

// Emit implements Emitter.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}
