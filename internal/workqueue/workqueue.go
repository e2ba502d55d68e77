// Package workqueue holds a fixed set of work items that a pool of symmetric workers
// drains concurrently.
package workqueue

import (
	"context"
	"log/slog"
	"sheltercrawl/internal/components/assert"
	"sync"
	"time"
)

// Queue is a FIFO filled once at construction. Taking from it never blocks, an empty
// queue means there is no work left.
type Queue[T any] struct {
	items chan T
	total int
}

func New[T any](items []T) *Queue[T] {
	ch := make(chan T, len(items))
	for _, item := range items {
		ch <- item
	}
	close(ch)
	return &Queue[T]{items: ch, total: len(items)}
}

// Next takes the next item, ok is false once the queue is empty.
func (q *Queue[T]) Next() (item T, ok bool) {
	item, ok = <-q.items
	return item, ok
}

// Len is the number of items not yet taken.
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Total is the number of items the queue was created with.
func (q *Queue[T]) Total() int {
	return q.total
}

// Worker is the body of one pool worker, `id` is in [0, n).
type Worker func(ctx context.Context, id int)

// Run starts `n` workers and returns once all of them have returned.
func Run(ctx context.Context, n int, worker Worker) {
	assert.Positive(n)
	wg := sync.WaitGroup{}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			worker(ctx, id)
		}(i)
	}
	wg.Wait()
}

type progress interface {
	Len() int
	Total() int
}

// Monitor logs the remaining item count of `q` every `interval` until ctx is done.
func Monitor(ctx context.Context, name string, interval time.Duration, q progress) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			slog.Info(
				"progress",
				"stage", name,
				"remaining", q.Len(),
				"total", q.Total(),
			)
		case <-ctx.Done():
			return
		}
	}
}

// RunMonitored is Run with a Monitor alive for as long as the workers are.
func RunMonitored[T any](ctx context.Context, name string, interval time.Duration, q *Queue[T], n int, worker Worker) {
	monitorCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go Monitor(monitorCtx, name, interval, q)

	Run(ctx, n, worker)
}
