package recordstore

import (
	"context"
	"fmt"
	"sheltercrawl/internal/components/chrono"
	"sheltercrawl/internal/components/telemetry"
	configlibsql "sheltercrawl/lib/configutil/libsql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t testing.TB) *Store {
	clock := chrono.Fixed{At: time.Date(2016, 3, 15, 14, 41, 0, 0, time.UTC)}
	store, err := Open(context.Background(), configlibsql.Struct{File: configlibsql.Memory}, clock)
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func TestInsertAndGet(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	runID, err := store.StartRun(ctx, "parse")
	require.NoError(t, err)

	record := map[string]any{
		"anum":   "A12345678",
		"gender": "male",
		"intake": []map[string]any{{"intake_type": "Stray"}},
	}
	require.NoError(t, store.Insert(ctx, runID, "12345678", record))

	err = store.Insert(ctx, runID, "12345678", map[string]any{"anum": "changed"})
	require.ErrorIs(t, err, ErrDuplicate)

	stored, err := store.Get(ctx, "12345678")
	require.NoError(t, err)
	require.Equal(t, "A12345678", stored["anum"])
	require.Equal(t, []any{map[string]any{"intake_type": "Stray"}}, stored["intake"])

	_, err = store.Get(ctx, "00000000")
	require.ErrorIs(t, err, ErrNotFound)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestRuns(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	runID, err := store.StartRun(ctx, "parse")
	require.NoError(t, err)
	require.NoError(t, store.FinishRun(ctx, runID, map[string]int{"parsed": 3, "failed": 1}))

	runs, err := store.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, runID, runs[0].ID)
	require.Equal(t, "parse", runs[0].Stage)
	require.Equal(t, map[string]int{"parsed": 3, "failed": 1}, runs[0].Counts)
	require.NotZero(t, runs[0].Finished)
}

func TestRunsCorruptCounts(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	runID, err := store.StartRun(ctx, "crawl")
	require.NoError(t, err)
	_, err = store.conn.ExecContext(ctx, "update run set counts = '{' where id = ?", runID)
	require.NoError(t, err)

	_, err = store.Runs(ctx)
	require.ErrorContains(t, err, "run "+runID+" counts")
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	runID, err := store.StartRun(ctx, "parse")
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, runID, "00000001", map[string]any{}))
	require.NoError(t, store.Reset(ctx))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, count)
	runs, err := store.Runs(ctx)
	require.NoError(t, err)
	require.Empty(t, runs)
}

func TestWriterDrainsEverything(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	runID, err := store.StartRun(ctx, "parse")
	require.NoError(t, err)

	writer := NewWriter(ctx, store, runID, 16, &telemetry.Recorder{})

	producers := 8
	perProducer := 125
	wg := sync.WaitGroup{}
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				id := fmt.Sprintf("%02d%06d", p, i)
				if err := writer.Enqueue(id, map[string]any{"anum": "A" + id}); err != nil {
					t.Error(err)
				}
			}
		}(p)
	}
	wg.Wait()

	stats := writer.Close()
	require.Equal(t, WriterStats{Inserted: producers * perProducer}, stats)
	require.Equal(t, 0, writer.Pending())

	count, err := store.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, producers*perProducer, count)

	require.ErrorIs(t, writer.Enqueue("99999999", map[string]any{}), ErrWriterClosed)
	// closing twice is harmless
	require.Equal(t, stats, writer.Close())
}

func TestWriterDuplicates(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	runID, err := store.StartRun(ctx, "parse")
	require.NoError(t, err)

	tel := &telemetry.Recorder{}
	writer := NewWriter(ctx, store, runID, 10, tel)
	require.NoError(t, writer.Enqueue("00000001", map[string]any{"n": 1}))
	require.NoError(t, writer.Enqueue("00000001", map[string]any{"n": 2}))
	require.NoError(t, writer.Enqueue("00000002", map[string]any{"n": 3}))
	stats := writer.Close()

	require.Equal(t, WriterStats{Inserted: 2, Duplicates: 1}, stats)
	require.Equal(t, 1, tel.Count("warning", report_writer))

	errs := writer.Errors()
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs["00000001"], ErrDuplicate)

	stored, err := store.Get(ctx, "00000001")
	require.NoError(t, err)
	require.EqualValues(t, 1, stored["n"])
}

func TestWriterUnencodableRecord(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	runID, err := store.StartRun(ctx, "parse")
	require.NoError(t, err)

	writer := NewWriter(ctx, store, runID, 10, &telemetry.Recorder{})
	require.NoError(t, writer.Enqueue("00000001", map[string]any{"bad": make(chan int)}))
	require.NoError(t, writer.Enqueue("00000002", map[string]any{"ok": true}))
	stats := writer.Close()

	require.Equal(t, WriterStats{Inserted: 1, Failed: 1}, stats)
	errs := writer.Errors()
	require.Len(t, errs, 1)
	require.Error(t, errs["00000001"])
}

func TestDirectSink(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	runID, err := store.StartRun(ctx, "parse")
	require.NoError(t, err)

	sink := DirectSink{Store: store, RunID: runID}
	require.NoError(t, sink.Put(ctx, "00000001", map[string]any{"anum": "A00000001"}))
	require.ErrorIs(t, sink.Put(ctx, "00000001", map[string]any{}), ErrDuplicate)

	ids, err := store.IDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"00000001"}, ids)
}
