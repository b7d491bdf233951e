package connector

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/atomstack-labs/atomsh/pkg/core"
)

// InlineConnector ingests rows embedded directly in the asset
// definition. Useful for seed data and reference tables.
type InlineConnector struct {
	warehouse *sql.DB
}

// NewInline creates a connector writing into the given warehouse.
func NewInline(warehouse *sql.DB) *InlineConnector {
	return &InlineConnector{warehouse: warehouse}
}

// Ingest loads the embedded rows into destination. The declared column
// order is preserved; the projection narrows it.
func (c *InlineConnector) Ingest(ctx context.Context, spec *core.IngestSpec, projection core.Projection, destination string) (int64, error) {
	names, err := projectColumns(spec.Columns, projection)
	if err != nil {
		return 0, err
	}

	cols := make([]column, len(names))
	for i, name := range names {
		typ := "VARCHAR"
		for _, rec := range spec.Rows {
			if v, ok := rec[name]; ok && v != nil {
				typ = duckdbType(v)
				break
			}
		}
		cols[i] = column{name: name, typ: typ}
	}

	rows := make([][]any, len(spec.Rows))
	for i, rec := range spec.Rows {
		row := make([]any, len(names))
		for j, name := range names {
			v, ok := rec[name]
			if !ok {
				row[j] = nil
				continue
			}
			row[j] = v
		}
		rows[i] = row
	}

	n, err := loadRows(ctx, c.warehouse, destination, cols, rows)
	if err != nil {
		return 0, fmt.Errorf("failed to load inline rows: %w", err)
	}
	return n, nil
}

var _ core.IngestionConnector = (*InlineConnector)(nil)
