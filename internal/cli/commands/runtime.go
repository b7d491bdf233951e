// Package commands implements the atomsh subcommands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/atomstack-labs/atomsh/internal/asset"
	"github.com/atomstack-labs/atomsh/internal/cli/config"
	"github.com/atomstack-labs/atomsh/internal/connector"
	"github.com/atomstack-labs/atomsh/internal/dag"
	"github.com/atomstack-labs/atomsh/internal/envns"
	"github.com/atomstack-labs/atomsh/internal/refs"
	"github.com/atomstack-labs/atomsh/internal/registry"
	"github.com/atomstack-labs/atomsh/internal/version"
	"github.com/atomstack-labs/atomsh/pkg/core"
)

// runtime wires the components a command needs: the warehouse executor,
// the deployment registry, and the version manager, all bound to the
// resolved namespace.
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	namespace string

	store    *registry.SQLiteStore
	registry *registry.Registry
	executor *connector.DuckDBExecutor
	manager  *version.Manager
}

// newRuntime assembles the runtime from the context-carried config.
func newRuntime(ctx context.Context) (*runtime, error) {
	cfg := config.FromContext(ctx)
	logger := config.GetLogger(ctx)

	namespace := resolveNamespace(cfg)
	logger.Debug("resolved namespace", "namespace", namespace, "environment", cfg.Environment)

	if err := config.EnsureRegistryDir(cfg.RegistryPath); err != nil {
		return nil, err
	}
	store, err := registry.OpenSQLite(cfg.RegistryPath)
	if err != nil {
		return nil, err
	}

	executor, err := connector.OpenDuckDB(ctx, cfg.Database)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	reg := registry.New(store, logger)
	warehouse := executor.DB()
	connectors := map[core.IngestKind]core.IngestionConnector{
		core.IngestSQLDatabase: connector.NewSQLDatabase(warehouse),
		core.IngestRESTAPI:     connector.NewRESTAPI(warehouse, nil),
		core.IngestInline:      connector.NewInline(warehouse),
	}

	manager := version.NewManager(reg, executor, connectors, version.Options{
		Namespace:   namespace,
		Concurrency: cfg.Concurrency,
		Logger:      logger,
	})

	return &runtime{
		cfg:       cfg,
		logger:    logger,
		namespace: namespace,
		store:     store,
		registry:  reg,
		executor:  executor,
		manager:   manager,
	}, nil
}

func (r *runtime) Close() {
	if err := errors.Join(r.executor.Close(), r.store.Close()); err != nil {
		r.logger.Warn("failed to close runtime", "error", err)
	}
}

// loadGraph loads the asset definitions and builds the validated graph.
func (r *runtime) loadGraph(ctx context.Context) (*dag.Graph, error) {
	if _, err := os.Stat(r.cfg.AssetsDir); err != nil {
		return nil, fmt.Errorf("assets directory %s not found", r.cfg.AssetsDir)
	}

	assets, err := asset.NewLoader(r.logger).LoadDir(r.cfg.AssetsDir)
	if err != nil {
		return nil, err
	}
	if len(assets) == 0 {
		return nil, fmt.Errorf("no asset definitions found in %s", r.cfg.AssetsDir)
	}

	cache := refs.NewCache(r.store, r.logger)
	return dag.Build(ctx, assets, cache)
}

// resolveNamespace combines the configured base namespace, the
// environment, and the git branch into the run's namespace.
func resolveNamespace(cfg *config.Config) string {
	git := envns.GitContext{Branch: cfg.Branch}
	if git.Branch == "" {
		cwd, err := os.Getwd()
		if err == nil {
			git = envns.DetectBranch(cwd)
		}
	}
	return envns.New(cfg.Namespace).Resolve(cfg.Environment, git)
}
