package fetch

import (
	"context"
	"errors"
	"fmt"
	"sheltercrawl/internal/artifact"
	"sheltercrawl/internal/components/chrono"
	"sheltercrawl/internal/components/telemetry"
	"sheltercrawl/internal/session"
	"sheltercrawl/internal/session/sessiontest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSite struct {
	mu         sync.Mutex
	docs       map[string]string
	fetches    map[string]int
	rejectAll  bool
	rejectWith map[int]bool
	panicOn    string
}

func newFakeSite(docs map[string]string) *fakeSite {
	return &fakeSite{docs: docs, fetches: map[string]int{}, rejectWith: map[int]bool{}}
}

func (f *fakeSite) factory(worker int) (Session, error) {
	return &fakeSession{site: f, worker: worker}, nil
}

func (f *fakeSite) fetchCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[id]
}

type fakeSession struct {
	site     *fakeSite
	worker   int
	loggedIn bool
}

func (s *fakeSession) Login(ctx context.Context) error {
	if s.site.rejectAll || s.site.rejectWith[s.worker] {
		return fmt.Errorf("login: %w", session.ErrAuthFailure)
	}
	s.loggedIn = true
	return nil
}

func (s *fakeSession) Fetch(ctx context.Context, id string) ([]byte, error) {
	if !s.loggedIn {
		return nil, errors.New("not logged in")
	}
	if id == s.site.panicOn {
		panic("malformed response")
	}
	s.site.mu.Lock()
	defer s.site.mu.Unlock()
	doc, ok := s.site.docs[id]
	if !ok {
		return nil, fmt.Errorf("fetch A%s: %w", id, session.ErrIncompleteDocument)
	}
	s.site.fetches[id]++
	return []byte(doc), nil
}

type memoryArtifacts struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func newMemoryArtifacts() *memoryArtifacts {
	return &memoryArtifacts{docs: map[string][]byte{}}
}

func (m *memoryArtifacts) Exists(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.docs[id]
	return ok
}

func (m *memoryArtifacts) Write(id string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[id] = content
	return nil
}

func (m *memoryArtifacts) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

func testClock() chrono.API {
	return chrono.Fixed{At: time.Date(2016, 3, 15, 0, 0, 0, 0, time.UTC)}
}

func statuses(summary Summary) map[string]Status {
	out := map[string]Status{}
	for _, o := range summary.Outcomes {
		out[o.ID] = o.Status
	}
	return out
}

func TestIdempotentSkip(t *testing.T) {
	site := newFakeSite(map[string]string{
		"00000001": "parvo positive",
		"00000002": "parvo positive",
	})
	artifacts := newMemoryArtifacts()
	require.NoError(t, artifacts.Write("00000001", []byte("stored earlier")))

	for _, concurrency := range []int{0, 4} {
		scheduler := NewScheduler(Config{
			Concurrency:  concurrency,
			SkipExisting: true,
		}, site.factory, artifacts, testClock(), &telemetry.Recorder{})

		summary, err := scheduler.Run(context.Background(), []string{"00000001", "00000002"})
		require.NoError(t, err)
		require.Len(t, summary.Outcomes, 2)
		require.Equal(t, "00000001", summary.Outcomes[0].ID)
		require.Equal(t, StatusSkipped, summary.Outcomes[0].Status)
	}

	// the second identifier was stored by the first run and skipped by the second
	require.Equal(t, 0, site.fetchCount("00000001"))
	require.Equal(t, 1, site.fetchCount("00000002"))
	require.Equal(t, "stored earlier", string(artifacts.docs["00000001"]))
}

func TestSkipExistingDisabled(t *testing.T) {
	site := newFakeSite(map[string]string{"00000001": "fresh"})
	artifacts := newMemoryArtifacts()
	require.NoError(t, artifacts.Write("00000001", []byte("stale")))

	scheduler := NewScheduler(Config{}, site.factory, artifacts, testClock(), &telemetry.Recorder{})
	summary, err := scheduler.Run(context.Background(), []string{"00000001"})
	require.NoError(t, err)
	require.Equal(t, StatusFetched, summary.Outcomes[0].Status)
	require.Equal(t, "fresh", string(artifacts.docs["00000001"]))
}

func TestFilterTotality(t *testing.T) {
	docs := map[string]string{}
	var ids []string
	for i := 0; i < 40; i++ {
		id := fmt.Sprintf("%08d", i)
		ids = append(ids, id)
		switch i % 4 {
		case 0:
			docs[id] = "Diagnosis: PARVO, distemper negative"
		case 1:
			docs[id] = "Diagnosis: parvo"
		case 2:
			docs[id] = "healthy"
		}
		// i%4 == 3 has no document and fails
	}

	site := newFakeSite(docs)
	artifacts := newMemoryArtifacts()
	scheduler := NewScheduler(Config{
		Concurrency: 8,
		Keywords:    []string{"parvo", "Distemper"},
	}, site.factory, artifacts, testClock(), &telemetry.Recorder{})

	summary, err := scheduler.Run(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, summary.Outcomes, len(ids))

	for i, o := range summary.Outcomes {
		require.Equal(t, ids[i], o.ID)
		switch i % 4 {
		case 0:
			require.Equal(t, StatusFetched, o.Status, o.ID)
			require.True(t, artifacts.Exists(o.ID))
		case 1:
			require.Equal(t, StatusFiltered, o.Status, o.ID)
			require.Equal(t, "Distemper", o.Keyword)
			require.False(t, artifacts.Exists(o.ID))
		case 2:
			require.Equal(t, StatusFiltered, o.Status, o.ID)
			require.Equal(t, "parvo", o.Keyword)
		case 3:
			require.Equal(t, StatusFailed, o.Status, o.ID)
			require.ErrorIs(t, o.Err, session.ErrIncompleteDocument)
		}
	}

	require.Equal(t, 10, summary.Count(StatusFetched))
	require.Equal(t, 20, summary.Count(StatusFiltered))
	require.Equal(t, 10, summary.Count(StatusFailed))
	require.Equal(t, 10, artifacts.len())
	require.True(t, summary.Failed())
}

func TestPreflightLoginFailureIsFatal(t *testing.T) {
	site := newFakeSite(map[string]string{"00000001": "parvo"})
	site.rejectAll = true
	artifacts := newMemoryArtifacts()

	scheduler := NewScheduler(Config{Concurrency: 2}, site.factory, artifacts, testClock(), &telemetry.Recorder{})
	_, err := scheduler.Run(context.Background(), []string{"00000001"})
	require.ErrorIs(t, err, session.ErrAuthFailure)
	require.Equal(t, 0, site.fetchCount("00000001"))
	require.Equal(t, 0, artifacts.len())
}

func TestDuplicateIdentifiers(t *testing.T) {
	for _, concurrency := range []int{0, 3} {
		site := newFakeSite(map[string]string{"00000001": "parvo", "00000002": "healthy"})
		tel := &telemetry.Recorder{}
		scheduler := NewScheduler(Config{
			Concurrency: concurrency,
			Keywords:    []string{"parvo"},
		}, site.factory, newMemoryArtifacts(), testClock(), tel)

		ids := []string{"00000001", "00000002", "00000001", "00000003", "00000001"}
		summary, err := scheduler.Run(context.Background(), ids)
		require.NoError(t, err)

		var got []Status
		for i, o := range summary.Outcomes {
			require.Equal(t, ids[i], o.ID)
			got = append(got, o.Status)
		}
		require.Equal(t, []Status{
			StatusFetched,
			StatusFiltered,
			StatusDuplicate,
			StatusFailed,
			StatusDuplicate,
		}, got, "concurrency %d", concurrency)
		require.Equal(t, 1, site.fetchCount("00000001"))
		require.True(t, summary.Failed())

		require.Equal(t, 1, tel.Count("count", "fetch.items.duplicate"))
		require.Equal(t, 1, tel.Count("count", "fetch.items.fetched"))
		require.Equal(t, 0, tel.Count("count", "fetch.items.pending"))
	}
}

func TestReportsCountsPerStatus(t *testing.T) {
	site := newFakeSite(map[string]string{"00000001": "parvo", "00000002": "parvo"})
	tel := &telemetry.Recorder{}
	scheduler := NewScheduler(Config{Concurrency: 2}, site.factory, newMemoryArtifacts(), testClock(), tel)
	_, err := scheduler.Run(context.Background(), []string{"00000001", "00000002", "00000003"})
	require.NoError(t, err)

	counts := map[string]int64{}
	for _, rep := range tel.Reports() {
		if rep.Kind == "count" {
			counts[rep.Id] = rep.Params[0].(int64)
		}
	}
	require.Equal(t, map[string]int64{
		"fetch: fetch.items.fetched": 2,
		"fetch: fetch.items.failed":  1,
	}, counts)
}

func TestRetiredWorkers(t *testing.T) {
	docs := map[string]string{}
	var ids []string
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("%08d", i)
		ids = append(ids, id)
		docs[id] = "parvo"
	}
	site := newFakeSite(docs)
	site.rejectWith[0] = true
	site.rejectWith[2] = true

	tel := &telemetry.Recorder{}
	scheduler := NewScheduler(Config{Concurrency: 4}, site.factory, newMemoryArtifacts(), testClock(), tel)
	summary, err := scheduler.Run(context.Background(), ids)
	require.NoError(t, err)
	require.Equal(t, 2, summary.RetiredWorkers)
	require.Equal(t, 20, summary.Count(StatusFetched))
	require.Equal(t, 2, tel.Count("warning", report_worker))
}

func TestAllWorkersRetiredLeavesItemsPending(t *testing.T) {
	site := newFakeSite(map[string]string{"00000001": "parvo"})
	site.rejectWith[0] = true

	scheduler := NewScheduler(Config{Concurrency: 1}, site.factory, newMemoryArtifacts(), testClock(), &telemetry.Recorder{})
	summary, err := scheduler.Run(context.Background(), []string{"00000001"})
	require.NoError(t, err)
	require.Equal(t, 1, summary.RetiredWorkers)
	require.Equal(t, StatusPending, summary.Outcomes[0].Status)
	require.True(t, summary.Failed())
}

func TestPanicIsIsolated(t *testing.T) {
	site := newFakeSite(map[string]string{"00000001": "parvo", "00000003": "parvo"})
	site.panicOn = "00000002"

	tel := &telemetry.Recorder{}
	scheduler := NewScheduler(Config{Concurrency: 1}, site.factory, newMemoryArtifacts(), testClock(), tel)
	summary, err := scheduler.Run(context.Background(), []string{"00000001", "00000002", "00000003"})
	require.NoError(t, err)
	require.Equal(t, map[string]Status{
		"00000001": StatusFetched,
		"00000002": StatusFailed,
		"00000003": StatusFetched,
	}, statuses(summary))
	require.Equal(t, 1, tel.Count("broken", report_item))
}

func TestCancelledContextStopsWorkers(t *testing.T) {
	site := newFakeSite(map[string]string{"00000001": "parvo"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scheduler := NewScheduler(Config{Concurrency: 2}, site.factory, newMemoryArtifacts(), testClock(), &telemetry.Recorder{})
	summary, err := scheduler.Run(ctx, []string{"00000001"})
	require.NoError(t, err)
	require.Equal(t, StatusPending, summary.Outcomes[0].Status)
}

func TestRunAgainstSite(t *testing.T) {
	reports := map[string]string{
		"00000001": sessiontest.Report("00000001", "<p>Parvo ward</p>"),
		"00000002": sessiontest.Report("00000002", "<p>Adoption floor</p>"),
	}
	server := sessiontest.NewServer(reports, session.DefaultCookies)
	defer server.Close()

	tel := &telemetry.Recorder{}
	factory := func(worker int) (Session, error) {
		return session.New(session.Options{
			URLTemplate: server.URLTemplate(),
			Credentials: session.Credentials{
				ShelterID: server.ShelterID,
				Username:  server.Username,
				Password:  server.Password,
			},
			Cookies: session.DefaultCookies,
			Name:    fmt.Sprintf("worker-%d", worker),
		}, tel)
	}

	store, err := artifact.NewStore(t.TempDir(), testClock())
	require.NoError(t, err)

	scheduler := NewScheduler(Config{
		Concurrency:  2,
		SkipExisting: true,
		Keywords:     []string{"parvo"},
	}, factory, store, testClock(), tel)
	summary, err := scheduler.Run(context.Background(), []string{"00000001", "00000002", "00000003"})
	require.NoError(t, err)

	require.Equal(t, map[string]Status{
		"00000001": StatusFetched,
		"00000002": StatusFiltered,
		"00000003": StatusFailed,
	}, statuses(summary))
	// preflight plus one login per worker
	require.Equal(t, 3, server.Logins())

	doc, err := store.Load("00000001")
	require.NoError(t, err)
	require.True(t, strings.Contains(string(doc.Content), "Parvo ward"))
}
