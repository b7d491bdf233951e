package connector

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/atomstack-labs/atomsh/pkg/core"
)

// column pairs a column name with its warehouse type.
type column struct {
	name string
	typ  string
}

// loadRows creates the destination table and bulk-inserts rows into it.
// Row values are positional and must match cols.
func loadRows(ctx context.Context, db *sql.DB, destination string, cols []column, rows [][]any) (int64, error) {
	if len(cols) == 0 {
		return 0, fmt.Errorf("no columns to load into %s", destination)
	}

	if schema, _, ok := strings.Cut(destination, "."); ok {
		if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
			return 0, fmt.Errorf("failed to create schema %s: %w", schema, err)
		}
	}

	defs := make([]string, len(cols))
	names := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = c.name + " " + c.typ
		names[i] = c.name
	}
	create := fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", destination, strings.Join(defs, ", "))
	if _, err := db.ExecContext(ctx, create); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", destination, err)
	}

	if len(rows) == 0 {
		return 0, nil
	}

	// One multi-row INSERT per batch keeps round trips bounded without
	// blowing the placeholder limit.
	const batchSize = 500
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"

	var total int64
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		batch := rows[start:end]

		tuples := make([]string, len(batch))
		args := make([]any, 0, len(batch)*len(cols))
		for i, row := range batch {
			tuples[i] = placeholder
			args = append(args, row...)
		}

		insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			destination, strings.Join(names, ", "), strings.Join(tuples, ", "))
		if _, err := db.ExecContext(ctx, insert, args...); err != nil {
			return total, fmt.Errorf("failed to insert into %s: %w", destination, err)
		}
		total += int64(len(batch))
	}
	return total, nil
}

// projectColumns narrows available columns to the projection, preserving
// the source's column order. Projected columns missing from the source
// fail loudly rather than landing as NULLs.
func projectColumns(available []string, projection core.Projection) ([]string, error) {
	if projection.All || len(projection.Columns) == 0 {
		return available, nil
	}

	wanted := make(map[string]bool, len(projection.Columns))
	for _, c := range projection.Columns {
		wanted[c] = true
	}

	out := make([]string, 0, len(projection.Columns))
	for _, c := range available {
		if wanted[c] {
			out = append(out, c)
			delete(wanted, c)
		}
	}
	if len(wanted) > 0 {
		missing := make([]string, 0, len(wanted))
		for c := range wanted {
			missing = append(missing, c)
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("projected columns not present in source: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// duckdbType maps a Go value observed in source data to a warehouse
// column type. Unknowns degrade to VARCHAR.
func duckdbType(v any) string {
	switch v.(type) {
	case bool:
		return "BOOLEAN"
	case int, int32, int64:
		return "BIGINT"
	case float32, float64:
		return "DOUBLE"
	default:
		return "VARCHAR"
	}
}
