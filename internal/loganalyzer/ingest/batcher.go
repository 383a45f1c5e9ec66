package ingest

import (
	"context"
)

const DefaultBatchSize = 1000

// Batcher buffers items and hands them to a flush callback in batches of maxItems. Flushes run on the caller's
// goroutine, so Add blocks until a full batch has been written.
type Batcher[T any] struct {
	maxItems int
	flush    func(ctx context.Context, batch []T) error
	buffer   []T
	flushes  int
}

func NewBatcher[T any](maxItems int, flush func(ctx context.Context, batch []T) error) *Batcher[T] {
	if maxItems <= 0 {
		maxItems = DefaultBatchSize
	}
	return &Batcher[T]{
		maxItems: maxItems,
		flush:    flush,
		buffer:   make([]T, 0, maxItems),
	}
}

// Add appends item to the buffer and flushes once the buffer holds maxItems.
func (b *Batcher[T]) Add(ctx context.Context, item T) error {
	b.buffer = append(b.buffer, item)
	if len(b.buffer) >= b.maxItems {
		return b.Flush(ctx)
	}
	return nil
}

// Flush writes whatever is buffered. It does nothing when the buffer is empty. The buffer is discarded even if the
// callback fails; batches are never retried.
func (b *Batcher[T]) Flush(ctx context.Context) error {
	if len(b.buffer) == 0 {
		return nil
	}
	batch := b.buffer
	b.buffer = make([]T, 0, b.maxItems)
	b.flushes++
	return b.flush(ctx, batch)
}

// Pending returns the number of buffered items.
func (b *Batcher[T]) Pending() int {
	return len(b.buffer)
}

// Flushes returns how many batches have been handed to the callback.
func (b *Batcher[T]) Flushes() int {
	return b.flushes
}
