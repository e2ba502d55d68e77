package animalreport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sheltercrawl/internal/artifact"
	"sheltercrawl/internal/recordstore"
	"sheltercrawl/internal/workqueue"
	"time"
)

type Status int

const (
	StatusParsed Status = iota
	// StatusMissing means no document was stored for the identifier.
	StatusMissing
	StatusIncomplete
	// StatusDuplicate means a record for the identifier is already stored, by an earlier
	// position of the same input or by an earlier run.
	StatusDuplicate
	StatusFailed
	// StatusPending means the run was cancelled before the identifier was processed.
	StatusPending
)

func (s Status) String() string {
	switch s {
	case StatusParsed:
		return "parsed"
	case StatusMissing:
		return "missing"
	case StatusIncomplete:
		return "incomplete"
	case StatusDuplicate:
		return "duplicate"
	case StatusFailed:
		return "failed"
	case StatusPending:
		return "pending"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

type Result struct {
	ID     string
	Status Status
	Err    error
}

type Summary struct {
	// Results in input order.
	Results []Result
	Elapsed time.Duration
}

func (s Summary) Count(status Status) int {
	n := 0
	for _, r := range s.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// Counts is the number of results per status name.
func (s Summary) Counts() map[string]int {
	out := map[string]int{}
	for _, r := range s.Results {
		out[r.Status.String()]++
	}
	return out
}

// Failed reports whether any record could not be stored, or the run stopped early.
// Duplicates are not failures, the identifier's record is in the store.
func (s Summary) Failed() bool {
	return s.Count(StatusFailed) > 0 || s.Count(StatusIncomplete) > 0 || s.Count(StatusPending) > 0
}

// WithWriteErrors applies the outcome of records that were handed to an asynchronous sink
// and rejected when it wrote them, `errs` maps identifiers to the rejection.
func (s Summary) WithWriteErrors(errs map[string]error) Summary {
	out := Summary{Results: make([]Result, len(s.Results)), Elapsed: s.Elapsed}
	copy(out.Results, s.Results)
	for i, r := range out.Results {
		if r.Status != StatusParsed {
			continue
		}
		if err, ok := errs[r.ID]; ok {
			out.Results[i] = Result{ID: r.ID, Status: statusOf(err), Err: err}
		}
	}
	return out
}

type RunConfig struct {
	// Concurrency is the number of parse workers, 0 parses serially.
	Concurrency      int
	ProgressInterval time.Duration
}

func statusOf(err error) Status {
	switch {
	case err == nil:
		return StatusParsed
	case errors.Is(err, artifact.ErrNotFound):
		return StatusMissing
	case errors.Is(err, ErrIncompleteRecord):
		return StatusIncomplete
	case errors.Is(err, recordstore.ErrDuplicate):
		return StatusDuplicate
	}
	return StatusFailed
}

func (p Processor) processRecovered(ctx context.Context, id string, sink Sink) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("A%s: recovered: %v", id, r)
			p.tel.ReportBroken(report_process, err)
			result = Result{ID: id, Status: StatusFailed, Err: err}
		}
	}()
	err := p.Process(ctx, id, sink)
	return Result{ID: id, Status: statusOf(err), Err: err}
}

// Run processes every identifier in `ids`, failures are recorded per identifier and never
// stop the run. Results follow input positions, an identifier repeated in `ids` is only
// processed at its first position, the later ones are StatusDuplicate.
func (p Processor) Run(ctx context.Context, ids []string, config RunConfig, sink Sink) Summary {
	start := p.clock.Now()
	results := make([]Result, len(ids))
	work := make([]int, 0, len(ids))
	first := make(map[string]int, len(ids))
	for i, id := range ids {
		if at, seen := first[id]; seen {
			err := fmt.Errorf("A%s: repeats input line %d: %w", id, at+1, recordstore.ErrDuplicate)
			p.tel.ReportDebug("duplicate identifier in input", id, at)
			results[i] = Result{ID: id, Status: StatusDuplicate, Err: err}
			continue
		}
		first[id] = i
		results[i] = Result{ID: id, Status: StatusPending}
		work = append(work, i)
	}

	if config.Concurrency <= 0 {
		slog.Info("parsing in serial mode", "items", len(work))
		for n, i := range work {
			if ctx.Err() != nil {
				break
			}
			if n%100 == 0 {
				slog.Info("progress", "stage", "parse", "done", n, "total", len(work))
			}
			results[i] = p.processRecovered(ctx, ids[i], sink)
		}
		return p.summarize(results, start)
	}

	interval := config.ProgressInterval
	if interval <= 0 {
		interval = time.Second
	}

	slog.Info("parsing", "workers", config.Concurrency, "items", len(work))
	queue := workqueue.New(work)
	workqueue.RunMonitored(ctx, "parse", interval, queue, config.Concurrency, func(ctx context.Context, _ int) {
		for ctx.Err() == nil {
			i, ok := queue.Next()
			if !ok {
				return
			}
			// every position is taken by exactly one worker
			results[i] = p.processRecovered(ctx, ids[i], sink)
		}
	})
	return p.summarize(results, start)
}

func (p Processor) summarize(results []Result, start time.Time) Summary {
	summary := Summary{Results: results, Elapsed: p.clock.Now().Sub(start)}
	for status, n := range summary.Counts() {
		p.tel.ReportCount(report_items+"."+status, int64(n))
	}
	return summary
}
