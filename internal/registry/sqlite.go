package registry

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // sqlite driver

	"github.com/atomstack-labs/atomsh/pkg/core"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore is the durable RegistryStore backed by SQLite. Records are
// one row per (namespace, asset); compare-and-set is an UPDATE guarded by
// the stored revision.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (and initializes) a registry database at path.
// Use ":memory:" for an in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping registry database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize registry schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get returns the record, or nil when absent.
func (s *SQLiteStore) Get(ctx context.Context, namespace, asset string) (*core.DeploymentRecord, error) {
	rec := &core.DeploymentRecord{Namespace: namespace, Asset: asset}
	var historyJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT live_version, history, revision, updated_at
		 FROM deployments WHERE namespace = ? AND asset = ?`,
		namespace, asset,
	).Scan(&rec.LiveVersion, &historyJSON, &rec.Revision, &rec.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment record: %w", err)
	}

	if err := json.Unmarshal([]byte(historyJSON), &rec.History); err != nil {
		return nil, fmt.Errorf("corrupt history for %s.%s: %w", namespace, asset, err)
	}
	return rec, nil
}

// CompareAndSwap persists rec if the stored revision still equals
// expectedRevision; zero creates the row. ErrSwapConflict otherwise.
func (s *SQLiteStore) CompareAndSwap(ctx context.Context, rec *core.DeploymentRecord, expectedRevision int64) error {
	historyJSON, err := json.Marshal(rec.History)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	newRevision := expectedRevision + 1

	var res sql.Result
	if expectedRevision == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO deployments (namespace, asset, live_version, history, revision, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			rec.Namespace, rec.Asset, rec.LiveVersion, string(historyJSON), newRevision, rec.UpdatedAt,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE deployments SET live_version = ?, history = ?, revision = ?, updated_at = ?
			 WHERE namespace = ? AND asset = ? AND revision = ?`,
			rec.LiveVersion, string(historyJSON), newRevision, rec.UpdatedAt,
			rec.Namespace, rec.Asset, expectedRevision,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to update deployment record: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return core.ErrSwapConflict
	}

	rec.Revision = newRevision
	return nil
}

// List returns all records in a namespace ordered by asset name.
func (s *SQLiteStore) List(ctx context.Context, namespace string) ([]*core.DeploymentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT asset, live_version, history, revision, updated_at
		 FROM deployments WHERE namespace = ? ORDER BY asset`,
		namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployment records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*core.DeploymentRecord
	for rows.Next() {
		rec := &core.DeploymentRecord{Namespace: namespace}
		var historyJSON string
		if err := rows.Scan(&rec.Asset, &rec.LiveVersion, &historyJSON, &rec.Revision, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deployment record: %w", err)
		}
		if err := json.Unmarshal([]byte(historyJSON), &rec.History); err != nil {
			return nil, fmt.Errorf("corrupt history for %s.%s: %w", namespace, rec.Asset, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetExtraction returns a cached extraction by content hash.
func (s *SQLiteStore) GetExtraction(ctx context.Context, contentHash string) (*core.ExtractedRefs, bool, error) {
	var refsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT refs FROM extractions WHERE content_hash = ?`, contentHash,
	).Scan(&refsJSON)

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get extraction cache entry: %w", err)
	}

	var refs core.ExtractedRefs
	if err := json.Unmarshal([]byte(refsJSON), &refs); err != nil {
		return nil, false, fmt.Errorf("corrupt extraction cache entry %s: %w", contentHash, err)
	}
	return &refs, true, nil
}

// PutExtraction caches an extraction result under a content hash.
func (s *SQLiteStore) PutExtraction(ctx context.Context, contentHash string, refs *core.ExtractedRefs) error {
	refsJSON, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("failed to encode extraction: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO extractions (content_hash, refs, created_at) VALUES (?, ?, ?)`,
		contentHash, string(refsJSON), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to cache extraction: %w", err)
	}
	return nil
}

// RecordRun persists a run record.
func (s *SQLiteStore) RecordRun(ctx context.Context, run *core.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, namespace, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Namespace, run.Status, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// CompleteRun finalizes a run record.
func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, status core.RunStatus, errMsg string, at time.Time) error {
	var errPtr *string
	if errMsg != "" {
		errPtr = &errMsg
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		status, at, errPtr, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}
