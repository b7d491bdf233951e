// Package connector holds the warehouse side of a run: the DuckDB
// transform executor, the ingestion connectors that land raw source data
// in version-qualified targets, and the publishers that reverse-sync
// live data out.
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver

	"github.com/atomstack-labs/atomsh/pkg/core"
)

// DuckDBExecutor runs transforms against a DuckDB warehouse.
type DuckDBExecutor struct {
	db *sql.DB
}

// OpenDuckDB opens the warehouse database. Use ":memory:" for an
// in-memory database.
func OpenDuckDB(ctx context.Context, path string) (*DuckDBExecutor, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}

	return &DuckDBExecutor{db: db}, nil
}

// DB exposes the warehouse handle for ingestion connectors and
// publishers that write through the same connection.
func (e *DuckDBExecutor) DB() *sql.DB {
	return e.db
}

// Close closes the warehouse connection.
func (e *DuckDBExecutor) Close() error {
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

// Execute materializes destination as a table from the rendered SQL.
// The destination never exists yet under blue/green naming, but CREATE
// OR REPLACE keeps retries of a crashed run idempotent.
func (e *DuckDBExecutor) Execute(ctx context.Context, sqlStr, destination string) error {
	if err := e.ensureSchema(ctx, destination); err != nil {
		return err
	}

	stmt := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS %s", destination, sqlStr)
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to materialize %s: %w", destination, err)
	}
	return nil
}

// Swap repoints the public view at target. CREATE OR REPLACE VIEW is
// atomic in DuckDB: concurrent readers see the old target or the new
// one, never an absent view.
func (e *DuckDBExecutor) Swap(ctx context.Context, view, target string) error {
	if err := e.ensureSchema(ctx, view); err != nil {
		return err
	}

	stmt := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM %s", view, target)
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to swap %s to %s: %w", view, target, err)
	}
	return nil
}

func (e *DuckDBExecutor) ensureSchema(ctx context.Context, qualified string) error {
	schema, _, ok := strings.Cut(qualified, ".")
	if !ok {
		return nil
	}
	if _, err := e.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", schema, err)
	}
	return nil
}

var _ core.TransformExecutor = (*DuckDBExecutor)(nil)
