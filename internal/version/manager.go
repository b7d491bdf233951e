// Package version orchestrates blue/green asset builds: each run writes
// to fresh version-qualified targets, swaps the public view only after a
// successful build, and records the swap in the deployment registry with
// compare-and-set so concurrent runs cannot clobber each other.
package version

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atomstack-labs/atomsh/internal/dag"
	"github.com/atomstack-labs/atomsh/internal/plan"
	"github.com/atomstack-labs/atomsh/internal/registry"
	"github.com/atomstack-labs/atomsh/pkg/core"
)

// Manager executes plans against one namespace.
type Manager struct {
	registry    *registry.Registry
	executor    core.TransformExecutor
	connectors  map[core.IngestKind]core.IngestionConnector
	namespace   string
	concurrency int
	logger      *slog.Logger
}

// Options configures a Manager.
type Options struct {
	// Namespace is the resolved target namespace for this run.
	Namespace string

	// Concurrency bounds how many assets build at once. Values below one
	// mean serial execution.
	Concurrency int

	Logger *slog.Logger
}

// NewManager creates a version manager. connectors maps ingestion kinds
// to their implementations; assets whose kind has no connector fail at
// ingestion time, not at startup.
func NewManager(reg *registry.Registry, executor core.TransformExecutor, connectors map[core.IngestKind]core.IngestionConnector, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Manager{
		registry:    reg,
		executor:    executor,
		connectors:  connectors,
		namespace:   opts.Namespace,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run executes a plan. Failures isolate to their dependency branch:
// dependents of a failed asset are skipped, independent branches keep
// building. The returned error reports infrastructure problems only;
// per-asset outcomes are in the results.
func (m *Manager) Run(ctx context.Context, g *dag.Graph, p *plan.Plan) (*core.Run, []core.AssetResult, error) {
	run := &core.Run{
		ID:        uuid.NewString(),
		Namespace: m.namespace,
		Status:    core.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := m.registry.Store().RecordRun(ctx, run); err != nil {
		m.logger.Warn("failed to record run", "run_id", run.ID, "error", err)
	}

	m.logger.Info("run started",
		"run_id", run.ID, "namespace", m.namespace,
		"assets", len(p.Order), "concurrency", m.concurrency)

	results := newScheduler(m, g, p.Order).run(ctx)

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}

	run.Status = core.RunStatusCompleted
	switch {
	case ctx.Err() != nil:
		run.Status = core.RunStatusCancelled
		run.Error = ctx.Err().Error()
	case failed > 0:
		run.Status = core.RunStatusFailed
		run.Error = fmt.Sprintf("%d of %d assets failed", failed, len(results))
	}

	completedAt := time.Now().UTC()
	run.CompletedAt = &completedAt
	if err := m.registry.Store().CompleteRun(ctx, run.ID, run.Status, run.Error, completedAt); err != nil {
		m.logger.Warn("failed to complete run record", "run_id", run.ID, "error", err)
	}

	m.logger.Info("run finished",
		"run_id", run.ID, "status", run.Status,
		"duration", completedAt.Sub(run.StartedAt).Round(time.Millisecond))

	return run, results, nil
}

// buildAsset drives one asset through its lifecycle. The returned result
// carries the terminal status; nothing here aborts sibling assets.
func (m *Manager) buildAsset(ctx context.Context, g *dag.Graph, name string, resolveRef func(string) string) core.AssetResult {
	res := core.AssetResult{Asset: name, Status: core.DeployStatusPending}

	asset, ok := g.Asset(name)
	if !ok {
		res.Status = core.DeployStatusFailed
		res.Error = fmt.Sprintf("asset %q not in graph", name)
		return res
	}
	extracted := g.Refs(name)

	// The revision observed here guards the final swap: if another run
	// swaps this asset first, our commit is rejected.
	rec, err := m.registry.Record(ctx, m.namespace, name)
	if err != nil {
		res.Status = core.DeployStatusFailed
		res.Error = err.Error()
		return res
	}
	var revision int64
	if rec != nil {
		revision = rec.Revision
	}

	ver := newVersionID()
	res.Version = ver
	target := core.TargetName(m.namespace, name, ver)

	sourceTarget := ""
	if asset.HasSource() && extracted.UsesSource {
		res.Status = core.DeployStatusIngesting
		conn, ok := m.connectors[asset.Ingest.Kind]
		if !ok {
			res.Status = core.DeployStatusFailed
			res.Error = (&core.IngestionError{Asset: name, Err: fmt.Errorf("no connector for source kind %q", asset.Ingest.Kind)}).Error()
			return res
		}

		raw := core.RawTargetName(m.namespace, name, ver)
		start := time.Now()
		rows, err := conn.Ingest(ctx, asset.Ingest, extracted.Projection, raw)
		res.IngestMS = time.Since(start).Milliseconds()
		if err != nil {
			res.Status = core.DeployStatusFailed
			res.Error = (&core.IngestionError{Asset: name, Err: err}).Error()
			return res
		}
		res.RowsLoaded = rows
		sourceTarget = raw
		m.logger.Debug("ingested", "asset", name, "rows", rows, "target", raw)
	}

	res.Status = core.DeployStatusTransforming
	sql := Render(asset.Transform, sourceTarget, resolveRef)

	start := time.Now()
	if err := m.executor.Execute(ctx, sql, target); err != nil {
		res.TransformMS = time.Since(start).Milliseconds()
		res.Status = core.DeployStatusFailed
		res.Error = (&core.TransformError{Asset: name, Err: err}).Error()
		return res
	}
	res.TransformMS = time.Since(start).Milliseconds()
	res.Status = core.DeployStatusBuilt

	if err := m.executor.Swap(ctx, core.LiveName(m.namespace, name), target); err != nil {
		res.Status = core.DeployStatusFailed
		res.Error = (&core.TransformError{Asset: name, Err: err}).Error()
		return res
	}

	if _, err := m.registry.CommitSwap(ctx, m.namespace, name, ver, revision, time.Now().UTC()); err != nil {
		res.Status = core.DeployStatusFailed
		res.Error = err.Error()
		return res
	}

	res.Status = core.DeployStatusSwapped
	m.logger.Info("asset swapped", "asset", name, "version", ver)
	return res
}

// Rollback repoints assets to their previous version: registry pointer
// first, then the physical view. An empty names slice rolls back every
// deployed asset in the namespace.
func (m *Manager) Rollback(ctx context.Context, names []string) ([]core.AssetResult, error) {
	results, err := m.registry.RollbackMany(ctx, m.namespace, names)
	if err != nil {
		return nil, err
	}

	for i, r := range results {
		if r.Failed() {
			continue
		}
		target := core.TargetName(m.namespace, r.Asset, r.Version)
		if err := m.executor.Swap(ctx, core.LiveName(m.namespace, r.Asset), target); err != nil {
			results[i].Status = core.DeployStatusFailed
			results[i].Error = fmt.Sprintf("registry rolled back but view repoint failed: %v", err)
			continue
		}
		m.logger.Info("rolled back", "asset", r.Asset, "version", r.Version)
	}
	return results, nil
}

// Publish reverse-syncs an asset's live data to an external destination.
// The asset must have been deployed in this namespace at least once.
func (m *Manager) Publish(ctx context.Context, publisher core.Publisher, name, destination string) error {
	rec, err := m.registry.Record(ctx, m.namespace, name)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("asset %q has never been deployed in namespace %q", name, m.namespace)
	}
	return publisher.Publish(ctx, name, core.LiveName(m.namespace, name), destination)
}

// newVersionID returns a fresh version identifier safe for use inside
// SQL identifiers.
func newVersionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
