// Package registry is the deployment registry: the durable record of each
// asset's live version and version history per namespace. Swaps and
// rollbacks are pure metadata operations guarded by compare-and-set, so
// two concurrent runs over the same asset and namespace can never both
// believe they won.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/atomstack-labs/atomsh/pkg/core"
)

// Registry wraps a RegistryStore with the deployment-record state rules:
// append-only history, bounded rotation, pointer-only rollback.
type Registry struct {
	store  core.RegistryStore
	logger *slog.Logger
}

// New creates a registry over a store. logger may be nil.
func New(store core.RegistryStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{store: store, logger: logger}
}

// Store exposes the underlying store (extraction cache, run records).
func (r *Registry) Store() core.RegistryStore {
	return r.store
}

// Record returns the deployment record for an asset, or nil when the
// asset has never been swapped in this namespace.
func (r *Registry) Record(ctx context.Context, namespace, asset string) (*core.DeploymentRecord, error) {
	return r.store.Get(ctx, namespace, asset)
}

// List returns all records in a namespace, ordered by asset name.
func (r *Registry) List(ctx context.Context, namespace string) ([]*core.DeploymentRecord, error) {
	return r.store.List(ctx, namespace)
}

// CommitSwap records a successful swap: the new version is appended to
// history (rotating out the oldest entry past the bound) and becomes the
// live pointer. expectedRevision is the record revision observed when the
// asset build started; if another run swapped in between, the store
// rejects the update with ErrSwapConflict and the caller reports the
// attempt failed.
func (r *Registry) CommitSwap(ctx context.Context, namespace, asset, version string, expectedRevision int64, at time.Time) (*core.DeploymentRecord, error) {
	rec, err := r.store.Get(ctx, namespace, asset)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &core.DeploymentRecord{Namespace: namespace, Asset: asset}
	}
	if rec.Revision != expectedRevision {
		return nil, fmt.Errorf("asset %s: %w", asset, core.ErrSwapConflict)
	}

	rec.History = append(rec.History, core.HistoryEntry{
		Version:   version,
		Timestamp: at,
		Status:    string(core.DeployStatusSwapped),
	})
	if len(rec.History) > core.MaxHistory {
		rec.History = rec.History[len(rec.History)-core.MaxHistory:]
	}
	rec.LiveVersion = version
	rec.UpdatedAt = at

	if err := r.store.CompareAndSwap(ctx, rec, expectedRevision); err != nil {
		return nil, fmt.Errorf("asset %s: %w", asset, err)
	}

	r.logger.Info("deployment recorded", "namespace", namespace, "asset", asset, "version", version)
	return rec, nil
}

// Rollback repoints the live version to the history entry immediately
// preceding it. No data moves and history is never rewritten; the
// rolled-back-from entry stays available for a later roll-forward.
// Returns ErrNoPriorVersion when history holds fewer than two entries or
// the live version is already the oldest.
func (r *Registry) Rollback(ctx context.Context, namespace, asset string) (*core.DeploymentRecord, error) {
	rec, err := r.store.Get(ctx, namespace, asset)
	if err != nil {
		return nil, err
	}
	if rec == nil || len(rec.History) < 2 {
		return nil, fmt.Errorf("asset %s: %w", asset, core.ErrNoPriorVersion)
	}

	// Locate the live version from the most recent entry backwards;
	// rollback repoints to the entry before it.
	live := -1
	for i := len(rec.History) - 1; i >= 0; i-- {
		if rec.History[i].Version == rec.LiveVersion {
			live = i
			break
		}
	}
	if live <= 0 {
		return nil, fmt.Errorf("asset %s: %w", asset, core.ErrNoPriorVersion)
	}

	rec.LiveVersion = rec.History[live-1].Version
	rec.UpdatedAt = time.Now().UTC()

	if err := r.store.CompareAndSwap(ctx, rec, rec.Revision); err != nil {
		return nil, fmt.Errorf("asset %s: %w", asset, err)
	}

	r.logger.Info("rolled back", "namespace", namespace, "asset", asset, "version", rec.LiveVersion)
	return rec, nil
}

// RollbackMany applies Rollback independently per asset, collecting
// per-asset results instead of failing the batch on the first error.
// An empty names slice rolls back every asset in the namespace.
func (r *Registry) RollbackMany(ctx context.Context, namespace string, names []string) ([]core.AssetResult, error) {
	if len(names) == 0 {
		recs, err := r.store.List(ctx, namespace)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			names = append(names, rec.Asset)
		}
	}

	results := make([]core.AssetResult, 0, len(names))
	for _, name := range names {
		res := core.AssetResult{Asset: name}
		rec, err := r.Rollback(ctx, namespace, name)
		if err != nil {
			res.Status = core.DeployStatusFailed
			res.Error = err.Error()
		} else {
			res.Status = core.DeployStatusSwapped
			res.Version = rec.LiveVersion
		}
		results = append(results, res)
	}
	return results, nil
}
