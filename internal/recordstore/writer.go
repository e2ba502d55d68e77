package recordstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sheltercrawl/internal/components/assert"
	"sheltercrawl/internal/components/telemetry"
	"sync"
)

const report_writer = "writer.write-batch"

// ErrWriterClosed is returned by Enqueue after Close.
var ErrWriterClosed = errors.New("writer closed")

type WriterStats struct {
	Inserted   int
	Duplicates int
	Failed     int
}

// Writer is the only goroutine that writes records. Producers Enqueue from any goroutine
// without blocking, the writer stores at most BatchSize records per transaction.
// After Close every record enqueued before it has been written exactly once.
type Writer struct {
	store     *Store
	runID     string
	batchSize int
	tel       telemetry.API

	mu      sync.Mutex
	pending []Item
	closed  bool

	notify   chan struct{}
	shutdown chan struct{}
	finished chan struct{}

	// only touched by the writer goroutine until finished is closed
	stats  WriterStats
	errors map[string]error
}

// NewWriter starts the writer goroutine. Writes are not cancelled along with ctx, the
// final drain must complete.
func NewWriter(ctx context.Context, store *Store, runID string, batchSize int, tel telemetry.API) *Writer {
	assert.NotNil(store)
	assert.NotNil(tel)
	if batchSize <= 0 {
		batchSize = 1
	}

	w := &Writer{
		store:     store,
		runID:     runID,
		batchSize: batchSize,
		tel:       telemetry.NewScopedAPI("recordstore", tel),
		notify:    make(chan struct{}, 1),
		shutdown:  make(chan struct{}),
		finished:  make(chan struct{}),
		errors:    map[string]error{},
	}
	go w.run(context.WithoutCancel(ctx))
	return w
}

// Enqueue hands a record to the writer.
func (w *Writer) Enqueue(id string, record any) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWriterClosed
	}
	w.pending = append(w.pending, Item{ID: id, Record: record})
	w.mu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
	return nil
}

// Pending is the number of records waiting to be written.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Close stops accepting records, waits for everything queued to be written and returns
// the final counts.
func (w *Writer) Close() WriterStats {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.shutdown)
	}
	w.mu.Unlock()

	<-w.finished
	return w.stats
}

// Errors maps every identifier whose record was not inserted to the reason, duplicates
// included. It waits for Close.
func (w *Writer) Errors() map[string]error {
	<-w.finished
	out := make(map[string]error, len(w.errors))
	for id, err := range w.errors {
		out[id] = err
	}
	return out
}

func (w *Writer) take(n int) []Item {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n > len(w.pending) {
		n = len(w.pending)
	}
	batch := make([]Item, n)
	copy(batch, w.pending[:n])
	w.pending = w.pending[n:]
	return batch
}

func (w *Writer) run(ctx context.Context) {
	defer close(w.finished)

	for {
		select {
		case <-w.notify:
			batch := w.take(w.batchSize)
			w.write(ctx, batch)
			if w.Pending() > 0 {
				select {
				case w.notify <- struct{}{}:
				default:
				}
			}
		case <-w.shutdown:
			w.drain(ctx)
			return
		}
	}
}

func (w *Writer) drain(ctx context.Context) {
	remaining := w.Pending()
	if remaining > 0 {
		slog.Info("draining record writer", "remaining", remaining)
	}
	written := 0
	for {
		batch := w.take(w.batchSize)
		if len(batch) == 0 {
			return
		}
		w.write(ctx, batch)
		before := written
		written += len(batch)
		if written/100 > before/100 {
			slog.Info("draining record writer", "remaining", w.Pending())
		}
	}
}

func (w *Writer) write(ctx context.Context, batch []Item) {
	if len(batch) == 0 {
		return
	}

	skipped, err := w.store.InsertBatch(ctx, w.runID, batch)
	if err != nil {
		// retry one by one so a single bad record does not lose its whole batch
		w.tel.ReportWarning(report_writer, fmt.Errorf("batch of %d: %w", len(batch), err))
		for _, item := range batch {
			w.record(item.ID, w.store.Insert(ctx, w.runID, item.ID, item.Record))
		}
		return
	}
	for i, item := range batch {
		w.record(item.ID, skipped[i])
	}
}

func (w *Writer) record(id string, err error) {
	if err != nil {
		w.errors[id] = err
	}
	switch {
	case err == nil:
		w.stats.Inserted++
	case errors.Is(err, ErrDuplicate):
		w.stats.Duplicates++
		w.tel.ReportWarning(report_writer, err)
	default:
		w.stats.Failed++
		w.tel.ReportBroken(report_writer, err, id)
	}
}

// Put enqueues a record, it lets the writer serve as the sink of a concurrent parse run.
func (w *Writer) Put(_ context.Context, id string, record any) error {
	return w.Enqueue(id, record)
}
