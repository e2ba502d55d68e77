// Package fetch downloads report documents for a list of identifiers with a pool of
// independently authenticated workers.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sheltercrawl/internal/components/assert"
	"sheltercrawl/internal/components/chrono"
	"sheltercrawl/internal/components/telemetry"
	"sheltercrawl/internal/session"
	"sheltercrawl/internal/workqueue"
	"sheltercrawl/lib/textutil"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	report_item   = "fetch.item"
	report_items  = "fetch.items"
	report_worker = "fetch.worker"
)

var meter = otel.Meter("sheltercrawl/internal/fetch")
var itemCounter, _ = meter.Int64Counter(
	"sheltercrawl.fetch.items",
	metric.WithDescription("work items by final status"),
)

type Status int

const (
	StatusPending Status = iota
	StatusFetched
	StatusSkipped
	StatusFiltered
	StatusFailed
	StatusDuplicate
)

var allStatuses = []Status{StatusPending, StatusFetched, StatusSkipped, StatusFiltered, StatusFailed, StatusDuplicate}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusFetched:
		return "fetched"
	case StatusSkipped:
		return "skipped"
	case StatusFiltered:
		return "filtered"
	case StatusFailed:
		return "failed"
	case StatusDuplicate:
		return "duplicate"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Outcome is what happened to a single identifier.
type Outcome struct {
	ID     string
	Status Status
	// Keyword is the first filter keyword missing from the document when Status is
	// StatusFiltered.
	Keyword string
	Err     error
}

type Summary struct {
	// Outcomes in input order, identifiers no worker got to are StatusPending.
	Outcomes []Outcome
	// RetiredWorkers counts workers that exited without processing items because their
	// session could not log in.
	RetiredWorkers int
	Elapsed        time.Duration
}

func (s Summary) Count(status Status) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Failed reports whether any identifier failed or was never processed.
func (s Summary) Failed() bool {
	return s.Count(StatusFailed) > 0 || s.Count(StatusPending) > 0
}

// Session is an authenticated browsing context, *session.Session implements it.
type Session interface {
	Login(ctx context.Context) error
	Fetch(ctx context.Context, id string) ([]byte, error)
}

// SessionFactory creates a fresh, not yet logged in session for `worker`. The preflight
// session is created with worker -1.
type SessionFactory func(worker int) (Session, error)

// Artifacts is the raw document store, artifact.Store implements it.
type Artifacts interface {
	Exists(id string) bool
	Write(id string, content []byte) error
}

type Config struct {
	// Concurrency is the number of workers, 0 processes items serially with the
	// preflight session.
	Concurrency  int
	SkipExisting bool
	// Keywords must all occur in a document (case-insensitive) for it to be stored.
	Keywords         []string
	ProgressInterval time.Duration
}

type Scheduler struct {
	config     Config
	newSession SessionFactory
	artifacts  Artifacts
	clock      chrono.API
	tel        telemetry.API
}

func NewScheduler(config Config, newSession SessionFactory, artifacts Artifacts, clock chrono.API, tel telemetry.API) Scheduler {
	assert.NotNil(newSession)
	assert.NotNil(artifacts)
	assert.NotNil(tel)

	if config.ProgressInterval <= 0 {
		config.ProgressInterval = 10 * time.Second
	}
	return Scheduler{
		config:     config,
		newSession: newSession,
		artifacts:  artifacts,
		clock:      clock,
		tel:        telemetry.NewScopedAPI("fetch", tel),
	}
}

func (s Scheduler) login(ctx context.Context, worker int) (Session, error) {
	sess, err := s.newSession(worker)
	if err != nil {
		return nil, err
	}
	err = sess.Login(ctx)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Run fetches every identifier in `ids`.
//
// A preflight login runs first, if it fails the credentials are unusable and Run returns
// an error wrapping session.ErrAuthFailure without touching any item. Per-item failures
// are recorded in the Summary and never stop other items. An identifier repeated in
// `ids` is fetched once, its later positions are StatusDuplicate.
func (s Scheduler) Run(ctx context.Context, ids []string) (Summary, error) {
	start := s.clock.Now()

	preflight, err := s.login(ctx, -1)
	if err != nil {
		if !errors.Is(err, session.ErrAuthFailure) {
			err = fmt.Errorf("%w: %w", session.ErrAuthFailure, err)
		}
		s.tel.ReportBroken(report_worker, fmt.Errorf("preflight login: %w", err))
		return Summary{}, err
	}

	outcomes := make([]Outcome, len(ids))
	var work []int
	seen := make(map[string]bool, len(ids))
	for i, id := range ids {
		if seen[id] {
			s.tel.ReportDebug("duplicate identifier in input", id)
			outcomes[i] = Outcome{ID: id, Status: StatusDuplicate}
			continue
		}
		seen[id] = true
		outcomes[i] = Outcome{ID: id, Status: StatusPending}
		work = append(work, i)
	}
	retired := 0

	if s.config.Concurrency <= 0 {
		slog.Info("running in serial mode", "items", len(work))
		for _, i := range work {
			if ctx.Err() != nil {
				break
			}
			outcomes[i] = s.process(ctx, preflight, ids[i])
		}
	} else {
		slog.Info("running workers", "workers", s.config.Concurrency, "items", len(work))

		// every position is dequeued at most once, so workers write disjoint slots
		queue := workqueue.New(work)
		var mu sync.Mutex
		workqueue.RunMonitored(ctx, "fetch", s.config.ProgressInterval, queue, s.config.Concurrency, func(ctx context.Context, worker int) {
			sess, err := s.login(ctx, worker)
			if err != nil {
				s.tel.ReportWarning(report_worker, fmt.Errorf("worker %d did not start: %w", worker, err))
				mu.Lock()
				retired++
				mu.Unlock()
				return
			}

			for ctx.Err() == nil {
				i, ok := queue.Next()
				if !ok {
					s.tel.ReportDebug("worker done, queue empty", worker)
					return
				}
				outcomes[i] = s.process(ctx, sess, ids[i])
			}
		})
	}

	summary := Summary{
		Outcomes:       outcomes,
		RetiredWorkers: retired,
		Elapsed:        s.clock.Now().Sub(start),
	}
	for _, status := range allStatuses {
		n := summary.Count(status)
		if n == 0 {
			continue
		}
		s.tel.ReportCount(report_items+"."+status.String(), int64(n))
		itemCounter.Add(ctx, int64(n), metric.WithAttributes(attribute.String("status", status.String())))
	}
	return summary, nil
}

func (s Scheduler) process(ctx context.Context, sess Session, id string) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("A%s: recovered: %v", id, r)
			s.tel.ReportBroken(report_item, err)
			out = Outcome{ID: id, Status: StatusFailed, Err: err}
		}
	}()

	if s.config.SkipExisting && s.artifacts.Exists(id) {
		s.tel.ReportDebug("skipped, already downloaded", id)
		return Outcome{ID: id, Status: StatusSkipped}
	}

	body, err := sess.Fetch(ctx, id)
	if err != nil {
		s.tel.ReportWarning(report_item, err)
		return Outcome{ID: id, Status: StatusFailed, Err: err}
	}

	keyword, missing := textutil.MissingKeyword(string(body), s.config.Keywords)
	if missing {
		s.tel.ReportDebug("filtered, missing keyword", id, keyword)
		return Outcome{ID: id, Status: StatusFiltered, Keyword: keyword}
	}

	err = s.artifacts.Write(id, body)
	if err != nil {
		s.tel.ReportBroken(report_item, err)
		return Outcome{ID: id, Status: StatusFailed, Err: err}
	}

	slog.Info("completed", "id", id, "animal", session.AnimalNumber(body))
	return Outcome{ID: id, Status: StatusFetched}
}
