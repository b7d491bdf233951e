package core

import (
	"context"
	"time"
)

// IngestionConnector pulls raw data from an asset's source into a
// version-qualified destination target. Implementations must honor an
// ALL projection by fetching every available column, and must never
// write to a live target.
type IngestionConnector interface {
	Ingest(ctx context.Context, spec *IngestSpec, projection Projection, destination string) (int64, error)
}

// TransformExecutor runs rendered SQL against the warehouse. Placeholder
// resolution happens before invocation; the executor only ever sees
// concrete target identifiers.
type TransformExecutor interface {
	// Execute materializes destination as a table from the given SQL.
	Execute(ctx context.Context, sql string, destination string) error

	// Swap atomically repoints the public-facing view at target.
	// Concurrent readers observe either the old or the new target,
	// never a missing or partially built one.
	Swap(ctx context.Context, view string, target string) error

	Close() error
}

// Publisher reverse-syncs an asset's live data to an external system.
type Publisher interface {
	Publish(ctx context.Context, asset string, liveTarget string, destination string) error
}

// RegistryStore is the durable key-value store behind the deployment
// registry, keyed by (namespace, asset) and updated with compare-and-set
// semantics. It also persists the reference-extraction cache keyed by
// transform content hash.
type RegistryStore interface {
	// Get returns the record, or nil when none exists.
	Get(ctx context.Context, namespace, asset string) (*DeploymentRecord, error)

	// CompareAndSwap persists rec if its stored revision still equals
	// expectedRevision (zero for creation), bumping the revision.
	// Returns ErrSwapConflict otherwise.
	CompareAndSwap(ctx context.Context, rec *DeploymentRecord, expectedRevision int64) error

	// List returns all records in a namespace, ordered by asset name.
	List(ctx context.Context, namespace string) ([]*DeploymentRecord, error)

	// GetExtraction returns the cached extraction for a transform
	// content hash, if present.
	GetExtraction(ctx context.Context, contentHash string) (*ExtractedRefs, bool, error)

	// PutExtraction caches an extraction result under a content hash.
	PutExtraction(ctx context.Context, contentHash string, refs *ExtractedRefs) error

	// RecordRun persists a run record for status queries.
	RecordRun(ctx context.Context, run *Run) error

	// CompleteRun finalizes a run record.
	CompleteRun(ctx context.Context, id string, status RunStatus, errMsg string, at time.Time) error

	Close() error
}
