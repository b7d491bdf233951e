package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver

	"github.com/atomstack-labs/atomsh/pkg/core"
)

// SQLDatabaseConnector ingests from an upstream SQL database into the
// warehouse. The projection narrows the SELECT at the source, so pruned
// columns never leave the upstream database.
type SQLDatabaseConnector struct {
	warehouse *sql.DB

	// openSource is swappable in tests.
	openSource func(dsn string) (*sql.DB, error)
}

// NewSQLDatabase creates a connector writing into the given warehouse.
func NewSQLDatabase(warehouse *sql.DB) *SQLDatabaseConnector {
	return &SQLDatabaseConnector{
		warehouse:  warehouse,
		openSource: openSourceDB,
	}
}

func openSourceDB(dsn string) (*sql.DB, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported credentials scheme in %q", redactDSN(dsn))
	}
}

// Ingest copies the source table into destination, honoring the
// projection.
func (c *SQLDatabaseConnector) Ingest(ctx context.Context, spec *core.IngestSpec, projection core.Projection, destination string) (int64, error) {
	src, err := c.openSource(spec.Credentials)
	if err != nil {
		return 0, err
	}
	defer func() { _ = src.Close() }()

	cols, rows, err := fetchTable(ctx, src, spec.Table, projection)
	if err != nil {
		return 0, err
	}
	return loadRows(ctx, c.warehouse, destination, cols, rows)
}

// fetchTable reads the projected columns of a source table into memory.
func fetchTable(ctx context.Context, src *sql.DB, table string, projection core.Projection) ([]column, [][]any, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", selectClause(projection), table)

	rows, err := src.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read source table %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read source columns for %s: %w", table, err)
	}
	cols := make([]column, len(types))
	for i, t := range types {
		cols[i] = column{name: t.Name(), typ: warehouseType(t.DatabaseTypeName())}
	}

	var data [][]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("failed to scan source row from %s: %w", table, err)
		}
		data = append(data, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error reading source table %s: %w", table, err)
	}

	return cols, data, nil
}

func selectClause(projection core.Projection) string {
	if projection.All || len(projection.Columns) == 0 {
		return "*"
	}
	return strings.Join(projection.Columns, ", ")
}

// warehouseType maps a source database type name to the warehouse
// column type.
func warehouseType(dbType string) string {
	switch strings.ToUpper(dbType) {
	case "INT2", "INT4", "INT8", "SMALLINT", "INT", "INTEGER", "BIGINT", "SERIAL", "BIGSERIAL":
		return "BIGINT"
	case "FLOAT4", "FLOAT8", "REAL", "DOUBLE", "DOUBLE PRECISION", "NUMERIC", "DECIMAL":
		return "DOUBLE"
	case "BOOL", "BOOLEAN":
		return "BOOLEAN"
	case "DATE":
		return "DATE"
	case "TIMESTAMP", "TIMESTAMPTZ", "TIMESTAMP WITH TIME ZONE", "TIMESTAMP WITHOUT TIME ZONE":
		return "TIMESTAMP"
	default:
		return "VARCHAR"
	}
}

// redactDSN strips everything after the scheme so credentials never
// reach logs or error messages.
func redactDSN(dsn string) string {
	if scheme, _, ok := strings.Cut(dsn, "://"); ok {
		return scheme + "://..."
	}
	return "..."
}

var _ core.IngestionConnector = (*SQLDatabaseConnector)(nil)
