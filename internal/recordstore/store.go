// Package recordstore persists extracted records, one row per identifier, and owns the
// single writer that all parse workers hand their records to.
package recordstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sheltercrawl/internal/components/chrono"
	"sheltercrawl/internal/db"
	configlibsql "sheltercrawl/lib/configutil/libsql"

	"github.com/google/uuid"
)

var (
	// ErrDuplicate is returned when a record for the identifier is already stored.
	ErrDuplicate = errors.New("record already stored")
	ErrNotFound  = errors.New("record not found")
)

type Store struct {
	conn   *sql.DB
	qry    *db.Queries
	makeTx db.MakeTx
	clock  chrono.API
}

// Open opens (and initializes if needed) the database described by `config`.
func Open(ctx context.Context, config configlibsql.Struct, clock chrono.API) (*Store, error) {
	conn, err := config.OpenDB()
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	store, err := NewStore(ctx, conn, clock)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return store, nil
}

// NewStore wraps an open connection, creating the schema if it is missing.
func NewStore(ctx context.Context, conn *sql.DB, clock chrono.API) (*Store, error) {
	err := db.Init(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("init record store schema: %w", err)
	}
	return &Store{
		conn:   conn,
		qry:    db.New(conn),
		makeTx: db.NewMakeTx(conn),
		clock:  clock,
	}, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func encode(record any) (string, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func insert(ctx context.Context, qry *db.Queries, runID, id, body string, createdAt int64) error {
	n, err := qry.InsertRecord(ctx, db.InsertRecordParams{
		ID:        id,
		RunID:     runID,
		Body:      body,
		CreatedAt: createdAt,
	})
	if err != nil {
		return fmt.Errorf("insert A%s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("insert A%s: %w", id, ErrDuplicate)
	}
	return nil
}

// Insert stores `record` under `id`, records are never overwritten.
func (s *Store) Insert(ctx context.Context, runID, id string, record any) error {
	body, err := encode(record)
	if err != nil {
		return fmt.Errorf("encode A%s: %w", id, err)
	}
	return insert(ctx, s.qry, runID, id, body, s.clock.Now().Unix())
}

// Item is a record waiting to be stored.
type Item struct {
	ID     string
	Record any
}

// InsertBatch stores `items` in a single transaction. Duplicates and unencodable records
// do not abort the batch, they are returned in `skipped` at the index of their item.
// A non-nil err means the transaction failed and nothing was stored.
func (s *Store) InsertBatch(ctx context.Context, runID string, items []Item) (skipped []error, err error) {
	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("make tx: %w", err)
	}
	defer discard()

	skipped = make([]error, len(items))
	createdAt := s.clock.Now().Unix()
	for i, item := range items {
		body, err := encode(item.Record)
		if err != nil {
			skipped[i] = fmt.Errorf("encode A%s: %w", item.ID, err)
			continue
		}
		err = insert(ctx, tx, runID, item.ID, body, createdAt)
		if errors.Is(err, ErrDuplicate) {
			skipped[i] = err
			continue
		}
		if err != nil {
			return nil, err
		}
	}

	err = commit()
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return skipped, nil
}

// Get decodes the stored record for `id`.
func (s *Store) Get(ctx context.Context, id string) (map[string]any, error) {
	row, err := s.qry.GetRecord(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get A%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get A%s: %w", id, err)
	}
	var out map[string]any
	err = json.Unmarshal([]byte(row.Body), &out)
	if err != nil {
		return nil, fmt.Errorf("decode A%s: %w", id, err)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.qry.CountRecords(ctx)
}

func (s *Store) IDs(ctx context.Context) ([]string, error) {
	return s.qry.ListRecordIDs(ctx)
}

// Reset deletes every record and run.
func (s *Store) Reset(ctx context.Context) error {
	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		return fmt.Errorf("make tx: %w", err)
	}
	defer discard()

	err = tx.DeleteAllRecords(ctx)
	if err != nil {
		return err
	}
	err = tx.DeleteAllRuns(ctx)
	if err != nil {
		return err
	}
	return commit()
}

// StartRun registers a new run of `stage` and returns its id.
func (s *Store) StartRun(ctx context.Context, stage string) (string, error) {
	id := uuid.NewString()
	err := s.qry.CreateRun(ctx, db.CreateRunParams{
		ID:        id,
		Stage:     stage,
		StartedAt: s.clock.Now().Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

// FinishRun stamps the run with its end time and final counts.
func (s *Store) FinishRun(ctx context.Context, runID string, counts map[string]int) error {
	encoded, err := json.Marshal(counts)
	if err != nil {
		return err
	}
	return s.qry.FinishRun(ctx, db.FinishRunParams{
		ID:         runID,
		Counts:     string(encoded),
		FinishedAt: sql.NullInt64{Int64: s.clock.Now().Unix(), Valid: true},
	})
}

type Run struct {
	ID       string
	Stage    string
	Started  int64
	Finished int64
	Counts   map[string]int
}

func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.qry.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Run, len(rows))
	for i, r := range rows {
		counts := map[string]int{}
		if r.Counts != "" {
			err = json.Unmarshal([]byte(r.Counts), &counts)
			if err != nil {
				return nil, fmt.Errorf("run %s counts: %w", r.ID, err)
			}
		}
		out[i] = Run{
			ID:       r.ID,
			Stage:    r.Stage,
			Started:  r.StartedAt,
			Finished: r.FinishedAt.Int64,
			Counts:   counts,
		}
	}
	return out, nil
}
