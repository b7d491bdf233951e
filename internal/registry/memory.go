package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/atomstack-labs/atomsh/pkg/core"
)

// MemoryStore is an in-process RegistryStore used by tests and ephemeral
// runs. It implements the same compare-and-set semantics as the durable
// store.
type MemoryStore struct {
	mu          sync.RWMutex
	records     map[string]*core.DeploymentRecord
	extractions map[string]*core.ExtractedRefs
	runs        map[string]*core.Run
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:     make(map[string]*core.DeploymentRecord),
		extractions: make(map[string]*core.ExtractedRefs),
		runs:        make(map[string]*core.Run),
	}
}

func key(namespace, asset string) string {
	return namespace + "\x00" + asset
}

func cloneRecord(rec *core.DeploymentRecord) *core.DeploymentRecord {
	out := *rec
	out.History = append([]core.HistoryEntry(nil), rec.History...)
	return &out
}

// Get returns a copy of the record, or nil when absent.
func (s *MemoryStore) Get(_ context.Context, namespace, asset string) (*core.DeploymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key(namespace, asset)]
	if !ok {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

// CompareAndSwap persists rec if the stored revision still matches.
func (s *MemoryStore) CompareAndSwap(_ context.Context, rec *core.DeploymentRecord, expectedRevision int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(rec.Namespace, rec.Asset)
	current, exists := s.records[k]

	if expectedRevision == 0 {
		if exists {
			return core.ErrSwapConflict
		}
	} else {
		if !exists || current.Revision != expectedRevision {
			return core.ErrSwapConflict
		}
	}

	stored := cloneRecord(rec)
	stored.Revision = expectedRevision + 1
	s.records[k] = stored
	rec.Revision = stored.Revision
	return nil
}

// List returns all records in a namespace ordered by asset name.
func (s *MemoryStore) List(_ context.Context, namespace string) ([]*core.DeploymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.DeploymentRecord
	for _, rec := range s.records {
		if rec.Namespace == namespace {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}

// GetExtraction returns a cached extraction by content hash.
func (s *MemoryStore) GetExtraction(_ context.Context, contentHash string) (*core.ExtractedRefs, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs, ok := s.extractions[contentHash]
	return refs, ok, nil
}

// PutExtraction caches an extraction result.
func (s *MemoryStore) PutExtraction(_ context.Context, contentHash string, refs *core.ExtractedRefs) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.extractions[contentHash] = refs
	return nil
}

// RecordRun stores a run record.
func (s *MemoryStore) RecordRun(_ context.Context, run *core.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := *run
	s.runs[run.ID] = &r
	return nil
}

// CompleteRun finalizes a run record.
func (s *MemoryStore) CompleteRun(_ context.Context, id string, status core.RunStatus, errMsg string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("run not found: %s", id)
	}
	run.Status = status
	run.Error = errMsg
	run.CompletedAt = &at
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
