package db

import (
	"context"
	"database/sql"
	_ "embed"
)

//go:embed schema.sql
var Schema string

// Init creates every table that does not exist yet.
func Init(ctx context.Context, conn *sql.DB) error {
	_, err := conn.ExecContext(ctx, Schema)
	return err
}
