package activity

import (
	"context"
	"sync/atomic"

	"github.com/callpath-core/pkg/model"
)

// Sink persists trace records.
type Sink interface {
	AppendTrace(ctx context.Context, records []model.TraceRecord) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, records []model.TraceRecord) error

// AppendTrace calls f.
func (f SinkFunc) AppendTrace(ctx context.Context, records []model.TraceRecord) error {
	return f(ctx, records)
}

// TraceBuffer batches records in front of a Sink. Only Written may be
// called concurrently with Add and Flush.
type TraceBuffer struct {
	sink    Sink
	batch   int
	buf     []model.TraceRecord
	written atomic.Int64
}

// NewTraceBuffer returns a buffer flushing to sink every batch records.
func NewTraceBuffer(sink Sink, batch int) *TraceBuffer {
	if batch < 1 {
		batch = 1
	}
	return &TraceBuffer{sink: sink, batch: batch, buf: make([]model.TraceRecord, 0, batch)}
}

// Add queues r and flushes when the batch is full.
func (b *TraceBuffer) Add(ctx context.Context, r model.TraceRecord) error {
	b.buf = append(b.buf, r)
	if len(b.buf) < b.batch {
		return nil
	}
	return b.Flush(ctx)
}

// Flush writes every queued record. On failure the records stay queued
// and the next flush retries them.
func (b *TraceBuffer) Flush(ctx context.Context) error {
	if len(b.buf) == 0 {
		return nil
	}
	if err := b.sink.AppendTrace(ctx, b.buf); err != nil {
		return err
	}
	b.written.Add(int64(len(b.buf)))
	b.buf = make([]model.TraceRecord, 0, b.batch)
	return nil
}

// Pending returns the number of queued records.
func (b *TraceBuffer) Pending() int { return len(b.buf) }

// Written returns the number of records the sink accepted.
func (b *TraceBuffer) Written() int64 { return b.written.Load() }
