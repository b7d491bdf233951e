package version

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomstack-labs/atomsh/internal/dag"
	"github.com/atomstack-labs/atomsh/internal/plan"
	"github.com/atomstack-labs/atomsh/internal/refs"
	"github.com/atomstack-labs/atomsh/internal/registry"
	"github.com/atomstack-labs/atomsh/pkg/core"
)

type ingestCall struct {
	table       string
	projection  core.Projection
	destination string
}

type fakeConnector struct {
	mu    sync.Mutex
	calls []ingestCall
	rows  int64
	err   error
}

func (f *fakeConnector) Ingest(_ context.Context, spec *core.IngestSpec, projection core.Projection, destination string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ingestCall{table: spec.Table, projection: projection, destination: destination})
	if f.err != nil {
		return 0, f.err
	}
	return f.rows, nil
}

type fakeExecutor struct {
	mu          sync.Mutex
	executed    []string // destinations in completion order
	sql         map[string]string
	swaps       map[string]string // view -> target
	failExecute map[string]error  // asset name -> error
	onExecute   func(destination string)
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		sql:         make(map[string]string),
		swaps:       make(map[string]string),
		failExecute: make(map[string]error),
	}
}

func (f *fakeExecutor) Execute(_ context.Context, sql, destination string) error {
	if f.onExecute != nil {
		f.onExecute(destination)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for asset, err := range f.failExecute {
		if strings.Contains(destination, asset+"__v") {
			return err
		}
	}
	f.executed = append(f.executed, destination)
	f.sql[destination] = sql
	return nil
}

func (f *fakeExecutor) Swap(_ context.Context, view, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.swaps[view] = target
	return nil
}

func (f *fakeExecutor) Close() error { return nil }

// executionIndex returns the completion position of the first executed
// destination built for the asset, or -1.
func (f *fakeExecutor) executionIndex(asset string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, dest := range f.executed {
		if strings.Contains(dest, "."+asset+"__v") {
			return i
		}
	}
	return -1
}

// exampleGraph is the canonical four-asset pipeline: two staging assets
// ingest raw data, an intermediate joins them, and a fact rolls it up.
func exampleGraph(t *testing.T) *dag.Graph {
	t.Helper()

	assets := []*core.Asset{
		{
			Name:      "stg_orders",
			Ingest:    &core.IngestSpec{Kind: core.IngestSQLDatabase, Table: "public.orders"},
			Transform: "SELECT id, customer_id, total FROM {{ source }}",
		},
		{
			Name:      "stg_customers",
			Ingest:    &core.IngestSpec{Kind: core.IngestSQLDatabase, Table: "public.customers"},
			Transform: "SELECT id, name FROM {{ source }}",
		},
		{
			Name: "int_order_customer",
			Transform: `SELECT o.id, o.total, c.name
FROM {{ ref('stg_orders') }} o
JOIN {{ ref('stg_customers') }} c ON o.customer_id = c.id`,
		},
		{
			Name:      "fct_orders",
			Transform: "SELECT name, SUM(total) AS total FROM {{ ref('int_order_customer') }} GROUP BY name",
		},
	}
	for _, a := range assets {
		a.ContentHash = refs.Hash(a.Transform)
	}

	g, err := dag.Build(context.Background(), assets, refs.NewCache(nil, nil))
	require.NoError(t, err)
	return g
}

func newTestManager(t *testing.T, exec *fakeExecutor, conn *fakeConnector, concurrency int) (*Manager, *registry.Registry) {
	t.Helper()
	reg := registry.New(registry.NewMemoryStore(), nil)
	m := NewManager(reg, exec,
		map[core.IngestKind]core.IngestionConnector{core.IngestSQLDatabase: conn},
		Options{Namespace: "analytics", Concurrency: concurrency})
	return m, reg
}

func fullPlan(t *testing.T, g *dag.Graph) *plan.Plan {
	t.Helper()
	p, err := plan.Build(g, plan.Request{Mode: plan.ModeExact})
	require.NoError(t, err)
	return p
}

func TestRunBuildsAndSwapsEverything(t *testing.T) {
	ctx := context.Background()
	g := exampleGraph(t)
	exec := newFakeExecutor()
	conn := &fakeConnector{rows: 42}
	m, reg := newTestManager(t, exec, conn, 1)

	run, results, err := m.Run(ctx, g, fullPlan(t, g))
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCompleted, run.Status)
	require.Len(t, results, 4)

	for _, r := range results {
		assert.Equal(t, core.DeployStatusSwapped, r.Status, r.Asset)
		assert.NotEmpty(t, r.Version, r.Asset)
	}

	// Both source assets ingested with their narrowed projections.
	require.Len(t, conn.calls, 2)
	byTable := make(map[string]ingestCall)
	for _, c := range conn.calls {
		byTable[c.table] = c
	}
	assert.Equal(t, []string{"id", "customer_id", "total"}, byTable["public.orders"].projection.Columns)
	assert.Equal(t, []string{"id", "name"}, byTable["public.customers"].projection.Columns)
	assert.Contains(t, byTable["public.orders"].destination, "analytics.stg_orders__raw_v")

	// Every asset's public view points at its fresh versioned target.
	for _, r := range results {
		view := core.LiveName("analytics", r.Asset)
		assert.Equal(t, core.TargetName("analytics", r.Asset, r.Version), exec.swaps[view])
	}

	// Downstream SQL was rendered against the versions built in this run,
	// not the live views.
	var intResult core.AssetResult
	for _, r := range results {
		if r.Asset == "int_order_customer" {
			intResult = r
		}
	}
	intSQL := exec.sql[core.TargetName("analytics", "int_order_customer", intResult.Version)]
	assert.NotContains(t, intSQL, "{{")
	assert.NotContains(t, intSQL, "ref(")
	assert.Contains(t, intSQL, "analytics.stg_orders__v")
	assert.Contains(t, intSQL, "analytics.stg_customers__v")

	// One history entry per asset per run.
	for _, r := range results {
		rec, err := reg.Record(ctx, "analytics", r.Asset)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, r.Version, rec.LiveVersion)
		assert.Len(t, rec.History, 1)
	}
}

func TestRunRespectsDependencyOrderUnderConcurrency(t *testing.T) {
	g := exampleGraph(t)
	exec := newFakeExecutor()
	m, _ := newTestManager(t, exec, &fakeConnector{rows: 1}, 4)

	_, results, err := m.Run(context.Background(), g, fullPlan(t, g))
	require.NoError(t, err)
	for _, r := range results {
		require.Equal(t, core.DeployStatusSwapped, r.Status, r.Asset)
	}

	intIdx := exec.executionIndex("int_order_customer")
	assert.Greater(t, intIdx, exec.executionIndex("stg_orders"))
	assert.Greater(t, intIdx, exec.executionIndex("stg_customers"))
	assert.Greater(t, exec.executionIndex("fct_orders"), intIdx)
}

func TestRunFailureSkipsDependentsOnly(t *testing.T) {
	g := exampleGraph(t)
	exec := newFakeExecutor()
	exec.failExecute["stg_orders"] = errors.New("syntax error near FROM")
	m, reg := newTestManager(t, exec, &fakeConnector{rows: 1}, 1)

	run, results, err := m.Run(context.Background(), g, fullPlan(t, g))
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "1 of 4 assets failed")

	byAsset := make(map[string]core.AssetResult)
	for _, r := range results {
		byAsset[r.Asset] = r
	}

	assert.Equal(t, core.DeployStatusFailed, byAsset["stg_orders"].Status)
	assert.Contains(t, byAsset["stg_orders"].Error, "transform failed")
	assert.Equal(t, core.DeployStatusSkipped, byAsset["int_order_customer"].Status)
	assert.Equal(t, core.DeployStatusSkipped, byAsset["fct_orders"].Status)

	// The independent branch still completed.
	assert.Equal(t, core.DeployStatusSwapped, byAsset["stg_customers"].Status)

	// Nothing was swapped or recorded for the failed asset.
	assert.NotContains(t, exec.swaps, "analytics.stg_orders")
	rec, err := reg.Record(context.Background(), "analytics", "stg_orders")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRunIngestionFailureLeavesLiveUntouched(t *testing.T) {
	g := exampleGraph(t)
	exec := newFakeExecutor()
	conn := &fakeConnector{err: errors.New("connection refused")}
	m, _ := newTestManager(t, exec, conn, 1)

	run, results, err := m.Run(context.Background(), g, fullPlan(t, g))
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusFailed, run.Status)

	byAsset := make(map[string]core.AssetResult)
	for _, r := range results {
		byAsset[r.Asset] = r
	}
	assert.Contains(t, byAsset["stg_orders"].Error, "ingestion failed")
	assert.Empty(t, exec.swaps)
}

func TestRunSecondRunGrowsHistoryByOne(t *testing.T) {
	ctx := context.Background()
	g := exampleGraph(t)
	exec := newFakeExecutor()
	m, reg := newTestManager(t, exec, &fakeConnector{rows: 1}, 2)

	_, first, err := m.Run(ctx, g, fullPlan(t, g))
	require.NoError(t, err)
	_, second, err := m.Run(ctx, g, fullPlan(t, g))
	require.NoError(t, err)

	versions := make(map[string]string)
	for _, r := range first {
		versions[r.Asset] = r.Version
	}
	for _, r := range second {
		assert.NotEqual(t, versions[r.Asset], r.Version, "each run builds a fresh version")

		rec, err := reg.Record(ctx, "analytics", r.Asset)
		require.NoError(t, err)
		assert.Len(t, rec.History, 2)
		assert.Equal(t, r.Version, rec.LiveVersion)
	}
}

func TestRunConcurrentSwapConflict(t *testing.T) {
	ctx := context.Background()
	g := exampleGraph(t)
	exec := newFakeExecutor()
	m, reg := newTestManager(t, exec, &fakeConnector{rows: 1}, 1)

	// A competing run swaps stg_orders while ours is mid-build, after we
	// observed revision 0.
	var once sync.Once
	exec.onExecute = func(destination string) {
		if strings.Contains(destination, "stg_orders__v") {
			once.Do(func() {
				_, err := reg.CommitSwap(ctx, "analytics", "stg_orders", "intruder", 0, time.Now().UTC())
				require.NoError(t, err)
			})
		}
	}

	run, results, err := m.Run(ctx, g, fullPlan(t, g))
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusFailed, run.Status)

	byAsset := make(map[string]core.AssetResult)
	for _, r := range results {
		byAsset[r.Asset] = r
	}
	assert.Equal(t, core.DeployStatusFailed, byAsset["stg_orders"].Status)
	assert.Contains(t, byAsset["stg_orders"].Error, "changed concurrently")

	// The competing run's version stays live.
	rec, err := reg.Record(ctx, "analytics", "stg_orders")
	require.NoError(t, err)
	assert.Equal(t, "intruder", rec.LiveVersion)
	assert.Len(t, rec.History, 1)
}

func TestRunCancelledContextSkipsRemaining(t *testing.T) {
	g := exampleGraph(t)
	exec := newFakeExecutor()
	m, _ := newTestManager(t, exec, &fakeConnector{rows: 1}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, results, err := m.Run(ctx, g, fullPlan(t, g))
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCancelled, run.Status)
	for _, r := range results {
		assert.Equal(t, core.DeployStatusSkipped, r.Status, r.Asset)
	}
	assert.Empty(t, exec.swaps)
}

func TestRollbackRepointsRegistryAndView(t *testing.T) {
	ctx := context.Background()
	g := exampleGraph(t)
	exec := newFakeExecutor()
	m, reg := newTestManager(t, exec, &fakeConnector{rows: 1}, 1)

	_, first, err := m.Run(ctx, g, fullPlan(t, g))
	require.NoError(t, err)
	_, _, err = m.Run(ctx, g, fullPlan(t, g))
	require.NoError(t, err)

	results, err := m.Rollback(ctx, []string{"fct_orders"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, core.DeployStatusSwapped, results[0].Status)

	var firstVersion string
	for _, r := range first {
		if r.Asset == "fct_orders" {
			firstVersion = r.Version
		}
	}
	assert.Equal(t, firstVersion, results[0].Version)

	// Registry pointer and physical view agree again.
	rec, err := reg.Record(ctx, "analytics", "fct_orders")
	require.NoError(t, err)
	assert.Equal(t, firstVersion, rec.LiveVersion)
	assert.Len(t, rec.History, 2, "rollback moves no data and rewrites no history")
	assert.Equal(t,
		core.TargetName("analytics", "fct_orders", firstVersion),
		exec.swaps["analytics.fct_orders"])
}

func TestRollbackWithoutPriorVersion(t *testing.T) {
	ctx := context.Background()
	g := exampleGraph(t)
	exec := newFakeExecutor()
	m, _ := newTestManager(t, exec, &fakeConnector{rows: 1}, 1)

	_, _, err := m.Run(ctx, g, fullPlan(t, g))
	require.NoError(t, err)

	results, err := m.Rollback(ctx, []string{"fct_orders"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, core.DeployStatusFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "no prior version")
}

type fakePublisher struct {
	asset, liveTarget, destination string
}

func (f *fakePublisher) Publish(_ context.Context, asset, liveTarget, destination string) error {
	f.asset, f.liveTarget, f.destination = asset, liveTarget, destination
	return nil
}

func TestPublishRequiresDeployment(t *testing.T) {
	ctx := context.Background()
	g := exampleGraph(t)
	exec := newFakeExecutor()
	m, _ := newTestManager(t, exec, &fakeConnector{rows: 1}, 1)
	pub := &fakePublisher{}

	err := m.Publish(ctx, pub, "fct_orders", "exports/fct_orders.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never been deployed")

	_, _, err = m.Run(ctx, g, fullPlan(t, g))
	require.NoError(t, err)

	require.NoError(t, m.Publish(ctx, pub, "fct_orders", "exports/fct_orders.csv"))
	assert.Equal(t, "fct_orders", pub.asset)
	assert.Equal(t, "analytics.fct_orders", pub.liveTarget)
	assert.Equal(t, "exports/fct_orders.csv", pub.destination)
}

func TestRunPartialPlanReadsLiveUpstreams(t *testing.T) {
	ctx := context.Background()
	g := exampleGraph(t)
	exec := newFakeExecutor()
	m, _ := newTestManager(t, exec, &fakeConnector{rows: 1}, 1)

	// Only the fact table: its ref must resolve to the live view since
	// int_order_customer is not part of this run.
	p, err := plan.Build(g, plan.Request{Names: []string{"fct_orders"}, Mode: plan.ModeExact})
	require.NoError(t, err)

	_, results, err := m.Run(ctx, g, p)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, core.DeployStatusSwapped, results[0].Status)

	sql := exec.sql[core.TargetName("analytics", "fct_orders", results[0].Version)]
	assert.Contains(t, sql, "analytics.int_order_customer")
	assert.NotContains(t, sql, "int_order_customer__v")
}

func TestVersionIDShape(t *testing.T) {
	a, b := newVersionID(), newVersionID()
	assert.Len(t, a, 12)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "-")
	_ = fmt.Sprintf("table__v%s", a)
}
