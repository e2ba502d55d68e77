package db

import (
	"context"
	"database/sql"
)

type Record struct {
	ID        string
	RunID     string
	Body      string
	CreatedAt int64
}

type Run struct {
	ID         string
	Stage      string
	StartedAt  int64
	FinishedAt sql.NullInt64
	Counts     string
}

const insertRecord = `-- name: InsertRecord :execrows
insert into record(id, run_id, body, created_at) values (?, ?, ?, ?)
on conflict (id) do nothing
`

type InsertRecordParams struct {
	ID        string
	RunID     string
	Body      string
	CreatedAt int64
}

// InsertRecord returns the number of inserted rows, 0 when the id is already stored.
func (q *Queries) InsertRecord(ctx context.Context, arg InsertRecordParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, insertRecord,
		arg.ID,
		arg.RunID,
		arg.Body,
		arg.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getRecord = `-- name: GetRecord :one
select id, run_id, body, created_at from record where id = ?
`

func (q *Queries) GetRecord(ctx context.Context, id string) (Record, error) {
	row := q.db.QueryRowContext(ctx, getRecord, id)
	var i Record
	err := row.Scan(
		&i.ID,
		&i.RunID,
		&i.Body,
		&i.CreatedAt,
	)
	return i, err
}

const countRecords = `-- name: CountRecords :one
select count(*) from record
`

func (q *Queries) CountRecords(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countRecords)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const listRecordIDs = `-- name: ListRecordIDs :many
select id from record order by id
`

func (q *Queries) ListRecordIDs(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listRecordIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteAllRecords = `-- name: DeleteAllRecords :exec
delete from record
`

func (q *Queries) DeleteAllRecords(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllRecords)
	return err
}

const deleteAllRuns = `-- name: DeleteAllRuns :exec
delete from run
`

func (q *Queries) DeleteAllRuns(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllRuns)
	return err
}

const createRun = `-- name: CreateRun :exec
insert into run(id, stage, started_at) values (?, ?, ?)
`

type CreateRunParams struct {
	ID        string
	Stage     string
	StartedAt int64
}

func (q *Queries) CreateRun(ctx context.Context, arg CreateRunParams) error {
	_, err := q.db.ExecContext(ctx, createRun, arg.ID, arg.Stage, arg.StartedAt)
	return err
}

const finishRun = `-- name: FinishRun :exec
update run set finished_at = ?, counts = ? where id = ?
`

type FinishRunParams struct {
	FinishedAt sql.NullInt64
	Counts     string
	ID         string
}

func (q *Queries) FinishRun(ctx context.Context, arg FinishRunParams) error {
	_, err := q.db.ExecContext(ctx, finishRun, arg.FinishedAt, arg.Counts, arg.ID)
	return err
}

const listRuns = `-- name: ListRuns :many
select id, stage, started_at, finished_at, counts from run order by started_at desc
`

func (q *Queries) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := q.db.QueryContext(ctx, listRuns)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Run
	for rows.Next() {
		var i Run
		if err := rows.Scan(
			&i.ID,
			&i.Stage,
			&i.StartedAt,
			&i.FinishedAt,
			&i.Counts,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
