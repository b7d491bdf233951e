package dag

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/atomstack-labs/atomsh/internal/refs"
	"github.com/atomstack-labs/atomsh/pkg/core"
)

func asset(name, transform string) *core.Asset {
	a := &core.Asset{
		Name:        name,
		FilePath:    "models/" + name + ".msh",
		Transform:   transform,
		ContentHash: refs.Hash(transform),
	}
	if strings.Contains(transform, "{{ source }}") {
		a.Ingest = &core.IngestSpec{Kind: core.IngestInline, Rows: []map[string]any{{"id": 1}}}
	}
	return a
}

func build(t *testing.T, assets ...*core.Asset) (*Graph, error) {
	t.Helper()
	return Build(context.Background(), assets, refs.NewCache(nil, nil))
}

func TestBuild_Edges(t *testing.T) {
	g, err := build(t,
		asset("stg_orders", "SELECT * FROM {{ source }}"),
		asset("stg_customers", "SELECT * FROM {{ source }}"),
		asset("int_order_customer", "SELECT * FROM {{ ref('stg_orders') }} JOIN {{ ref('stg_customers') }} USING (id)"),
	)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if g.Len() != 3 {
		t.Fatalf("expected 3 assets, got %d", g.Len())
	}

	wantParents := []string{"stg_customers", "stg_orders"}
	if !reflect.DeepEqual(g.Parents("int_order_customer"), wantParents) {
		t.Errorf("parents = %v, want %v", g.Parents("int_order_customer"), wantParents)
	}
	if !reflect.DeepEqual(g.Children("stg_orders"), []string{"int_order_customer"}) {
		t.Errorf("children = %v", g.Children("stg_orders"))
	}
}

func TestBuild_DuplicateName(t *testing.T) {
	_, err := build(t,
		asset("stg_orders", "SELECT * FROM {{ source }}"),
		asset("stg_orders", "SELECT * FROM {{ source }}"),
	)

	var defErr *core.DefinitionError
	if !errors.As(err, &defErr) {
		t.Fatalf("expected DefinitionError, got %v", err)
	}
	if defErr.Asset != "stg_orders" {
		t.Errorf("expected offending asset stg_orders, got %q", defErr.Asset)
	}
	if !strings.Contains(defErr.Detail, "duplicate") {
		t.Errorf("expected duplicate detail, got %q", defErr.Detail)
	}
}

func TestBuild_DanglingReference(t *testing.T) {
	_, err := build(t,
		asset("fct_orders", "SELECT * FROM {{ ref('missing_upstream') }}"),
	)

	var defErr *core.DefinitionError
	if !errors.As(err, &defErr) {
		t.Fatalf("expected DefinitionError, got %v", err)
	}
	if defErr.Asset != "fct_orders" {
		t.Errorf("expected offending asset fct_orders, got %q", defErr.Asset)
	}
	if !strings.Contains(defErr.Detail, "missing_upstream") {
		t.Errorf("expected dangling target in detail, got %q", defErr.Detail)
	}
}

func TestBuild_SourceWithoutIngest(t *testing.T) {
	bare := &core.Asset{
		Name:        "stg_orders",
		FilePath:    "models/stg_orders.msh",
		Transform:   "SELECT id FROM {{ source }}",
		ContentHash: refs.Hash("SELECT id FROM {{ source }}"),
	}

	_, err := build(t, bare)

	var defErr *core.DefinitionError
	if !errors.As(err, &defErr) {
		t.Fatalf("expected DefinitionError, got %v", err)
	}
	if defErr.Asset != "stg_orders" {
		t.Errorf("expected offending asset stg_orders, got %q", defErr.Asset)
	}
	if !strings.Contains(defErr.Detail, "ingest") {
		t.Errorf("expected missing-ingest detail, got %q", defErr.Detail)
	}
}

func TestBuild_CycleReportsFullPath(t *testing.T) {
	_, err := build(t,
		asset("a", "SELECT * FROM {{ ref('b') }}"),
		asset("b", "SELECT * FROM {{ ref('c') }}"),
		asset("c", "SELECT * FROM {{ ref('a') }}"),
	)

	var defErr *core.DefinitionError
	if !errors.As(err, &defErr) {
		t.Fatalf("expected DefinitionError, got %v", err)
	}
	if len(defErr.Cycle) != 4 {
		t.Fatalf("expected closed 3-cycle path, got %v", defErr.Cycle)
	}
	if defErr.Cycle[0] != defErr.Cycle[len(defErr.Cycle)-1] {
		t.Errorf("cycle path must close on its start: %v", defErr.Cycle)
	}
	for _, name := range []string{"a", "b", "c"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("cycle error should mention %q: %v", name, err)
		}
	}
}

func TestBuild_SelfReferenceIsCycle(t *testing.T) {
	_, err := build(t, asset("a", "SELECT * FROM {{ ref('a') }}"))

	var defErr *core.DefinitionError
	if !errors.As(err, &defErr) {
		t.Fatalf("expected DefinitionError, got %v", err)
	}
	if len(defErr.Cycle) == 0 {
		t.Errorf("self-reference should report a cycle, got %+v", defErr)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	assets := func() []*core.Asset {
		return []*core.Asset{
			asset("c", "SELECT * FROM {{ ref('a') }}"),
			asset("b", "SELECT * FROM {{ ref('a') }}"),
			asset("a", "SELECT * FROM {{ source }}"),
		}
	}

	g1, err := Build(context.Background(), assets(), refs.NewCache(nil, nil))
	if err != nil {
		t.Fatal(err)
	}
	g2, err := Build(context.Background(), assets(), refs.NewCache(nil, nil))
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(g1.Names(), g2.Names()) {
		t.Error("Names() must be deterministic")
	}
	if !reflect.DeepEqual(g1.Children("a"), g2.Children("a")) {
		t.Error("Children() must be deterministic")
	}
	if !reflect.DeepEqual(g1.Children("a"), []string{"b", "c"}) {
		t.Errorf("children of a = %v", g1.Children("a"))
	}
}

func TestGraph_UpstreamDownstream(t *testing.T) {
	g, err := build(t,
		asset("stg_orders", "SELECT * FROM {{ source }}"),
		asset("stg_customers", "SELECT * FROM {{ source }}"),
		asset("int_order_customer", "SELECT * FROM {{ ref('stg_orders') }} JOIN {{ ref('stg_customers') }} USING (id)"),
		asset("fct_orders", "SELECT * FROM {{ ref('int_order_customer') }}"),
		asset("unrelated", "SELECT * FROM {{ source }}"),
	)
	if err != nil {
		t.Fatal(err)
	}

	up := g.Upstream([]string{"fct_orders"})
	wantUp := []string{"int_order_customer", "stg_customers", "stg_orders"}
	if !reflect.DeepEqual(up, wantUp) {
		t.Errorf("upstream = %v, want %v", up, wantUp)
	}

	down := g.Downstream([]string{"stg_orders"})
	wantDown := []string{"fct_orders", "int_order_customer"}
	if !reflect.DeepEqual(down, wantDown) {
		t.Errorf("downstream = %v, want %v", down, wantDown)
	}

	if len(g.Downstream([]string{"fct_orders"})) != 0 {
		t.Error("leaf asset has no downstream")
	}
}
