package core

// IngestKind identifies the kind of ingestion source an asset pulls from.
type IngestKind string

const (
	// IngestSQLDatabase ingests from a SQL database table.
	IngestSQLDatabase IngestKind = "sql_database"

	// IngestRESTAPI ingests from a REST API endpoint.
	IngestRESTAPI IngestKind = "rest_api"

	// IngestInline ingests rows embedded directly in the asset definition.
	IngestInline IngestKind = "inline_source"
)

// IngestSpec describes where an asset's raw data comes from.
// Exactly one source family is populated, discriminated by Kind.
type IngestSpec struct {
	Kind IngestKind

	// Credentials is the connection string for sql_database sources.
	// May contain ${VAR} references expanded at load time.
	Credentials string

	// Table is the source table (optionally schema-qualified) for
	// sql_database sources.
	Table string

	// Endpoint is the URL for rest_api sources.
	Endpoint string

	// Resource names the rest_api resource; inferred from the endpoint
	// path when empty.
	Resource string

	// Columns is the declared column order for inline_source rows.
	Columns []string

	// Rows holds embedded data for inline_source assets.
	Rows []map[string]any
}

// Asset is the in-memory representation of one atomic asset definition.
// Immutable once loaded for a run.
type Asset struct {
	// Name is the unique, stable identity of the asset.
	Name string

	// Description is free-form documentation from the definition file.
	Description string

	// FilePath is where the definition was loaded from, for error messages.
	FilePath string

	// Ingest is nil for pure derived assets that only read ref() inputs.
	Ingest *IngestSpec

	// Transform is the raw templated SQL text. It may reference
	// {{ source }} (the asset's own ingested data) and {{ ref(name) }}
	// (other assets).
	Transform string

	// ContentHash is a hex digest of the transform text, used to key the
	// reference-extraction cache across runs.
	ContentHash string
}

// HasSource reports whether the asset ingests its own raw data.
func (a *Asset) HasSource() bool {
	return a.Ingest != nil
}
