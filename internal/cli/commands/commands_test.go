package commands

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomstack-labs/atomsh/internal/dag"
	"github.com/atomstack-labs/atomsh/internal/refs"
	"github.com/atomstack-labs/atomsh/pkg/core"
)

func TestExecutionLevels(t *testing.T) {
	assets := []*core.Asset{
		{Name: "stg_orders", Transform: "SELECT 1"},
		{Name: "stg_customers", Transform: "SELECT 2"},
		{Name: "int_order_customer", Transform: "SELECT * FROM ref('stg_orders'), ref('stg_customers')"},
		{Name: "fct_orders", Transform: "SELECT * FROM ref('int_order_customer')"},
	}
	for _, a := range assets {
		a.ContentHash = refs.Hash(a.Transform)
	}
	g, err := dag.Build(context.Background(), assets, refs.NewCache(nil, nil))
	require.NoError(t, err)

	levels := executionLevels(g)
	require.Len(t, levels, 3)
	assert.Equal(t, []string{"stg_customers", "stg_orders"}, levels[0])
	assert.Equal(t, []string{"int_order_customer"}, levels[1])
	assert.Equal(t, []string{"fct_orders"}, levels[2])
}

func TestRollbackRequiresSelection(t *testing.T) {
	cmd := NewRollbackCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	cmd.SetArgs([]string{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--all")

	cmd = NewRollbackCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"fct_orders", "--all"})
	err = cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be combined")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := NewVersionCommand("1.2.3", "2026-08-25", "abcdef0")
	cmd.SetOut(&out)
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "atomsh 1.2.3")
	assert.Contains(t, out.String(), "abcdef0")
}

func TestRenderResults(t *testing.T) {
	var out bytes.Buffer
	renderResults(&out, []core.AssetResult{
		{Asset: "stg_orders", Status: core.DeployStatusSwapped, Version: "a1b2c3", RowsLoaded: 42, IngestMS: 10, TransformMS: 5},
		{Asset: "fct_orders", Status: core.DeployStatusFailed, Error: "transform failed for asset \"fct_orders\": boom"},
	})

	s := out.String()
	assert.Contains(t, s, "stg_orders")
	assert.Contains(t, s, "swapped")
	assert.Contains(t, s, "42")
	assert.Contains(t, s, "15ms")
	assert.Contains(t, s, "boom")
}
