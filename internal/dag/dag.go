// Package dag builds and validates the directed acyclic graph over asset
// definitions. Construction is deterministic: the same asset set always
// produces the same graph, iteration order, and error messages.
package dag

import (
	"context"
	"fmt"
	"sort"

	"github.com/atomstack-labs/atomsh/internal/refs"
	"github.com/atomstack-labs/atomsh/pkg/core"
)

// Graph is the dependency graph over a loaded asset set.
// Nodes are assets keyed by name; an edge A->B means A depends on B.
type Graph struct {
	assets   map[string]*core.Asset
	refsets  map[string]*core.ExtractedRefs
	parents  map[string][]string // asset -> dependencies, sorted
	children map[string][]string // asset -> dependents, sorted
}

// Build assembles the graph from asset definitions, running reference
// extraction through the cache and validating name uniqueness, reference
// resolution, and acyclicity. Violations are fatal DefinitionErrors.
func Build(ctx context.Context, assets []*core.Asset, cache *refs.Cache) (*Graph, error) {
	g := &Graph{
		assets:   make(map[string]*core.Asset, len(assets)),
		refsets:  make(map[string]*core.ExtractedRefs, len(assets)),
		parents:  make(map[string][]string, len(assets)),
		children: make(map[string][]string, len(assets)),
	}

	for _, a := range assets {
		if prev, exists := g.assets[a.Name]; exists {
			return nil, &core.DefinitionError{
				Asset:  a.Name,
				Detail: fmt.Sprintf("duplicate asset name (defined in %s and %s)", prev.FilePath, a.FilePath),
			}
		}
		g.assets[a.Name] = a
		g.parents[a.Name] = nil
		g.children[a.Name] = nil
	}

	// Extract references and build edges in sorted order so duplicate
	// and dangling errors always report the same asset first.
	for _, name := range g.Names() {
		a := g.assets[name]
		extracted, err := cache.Extract(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("failed to extract references for asset %q: %w", name, err)
		}
		g.refsets[name] = extracted

		// A transform that reads raw data needs somewhere for that
		// data to come from. Caught here so the run never reaches the
		// warehouse with an unresolvable placeholder.
		if extracted.UsesSource && !a.HasSource() {
			return nil, &core.DefinitionError{
				Asset:  name,
				Detail: "transform reads {{ source }} but the asset declares no ingest block",
			}
		}

		for _, dep := range extracted.ModelRefs {
			if _, ok := g.assets[dep]; !ok {
				return nil, &core.DefinitionError{
					Asset:  name,
					Detail: fmt.Sprintf("references unknown asset %q", dep),
				}
			}
			g.parents[name] = append(g.parents[name], dep)
			g.children[dep] = append(g.children[dep], name)
		}
	}

	for name := range g.children {
		sort.Strings(g.children[name])
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, &core.DefinitionError{Cycle: cycle}
	}

	return g, nil
}

// Names returns all asset names in lexical order.
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.assets))
	for name := range g.assets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of assets in the graph.
func (g *Graph) Len() int {
	return len(g.assets)
}

// Has reports whether an asset exists in the graph.
func (g *Graph) Has(name string) bool {
	_, ok := g.assets[name]
	return ok
}

// Asset returns an asset definition by name.
func (g *Graph) Asset(name string) (*core.Asset, bool) {
	a, ok := g.assets[name]
	return a, ok
}

// Refs returns the extracted references for an asset.
func (g *Graph) Refs(name string) *core.ExtractedRefs {
	return g.refsets[name]
}

// Parents returns the direct dependencies of an asset, sorted.
func (g *Graph) Parents(name string) []string {
	return g.parents[name]
}

// Children returns the direct dependents of an asset, sorted.
func (g *Graph) Children(name string) []string {
	return g.children[name]
}

// Upstream returns the transitive dependencies of the given assets,
// excluding the assets themselves, sorted.
func (g *Graph) Upstream(names []string) []string {
	return g.walk(names, g.parents)
}

// Downstream returns the transitive dependents of the given assets,
// excluding the assets themselves, sorted.
func (g *Graph) Downstream(names []string) []string {
	return g.walk(names, g.children)
}

func (g *Graph) walk(start []string, next map[string][]string) []string {
	visited := make(map[string]bool)

	var visit func(name string)
	visit = func(name string) {
		for _, n := range next[name] {
			if !visited[n] {
				visited[n] = true
				visit(n)
			}
		}
	}
	for _, name := range start {
		visit(name)
	}

	// The start set is not part of the expansion result.
	for _, name := range start {
		delete(visited, name)
	}

	out := make([]string, 0, len(visited))
	for name := range visited {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// findCycle returns a cycle path with the starting node repeated at the
// end, or nil if the graph is acyclic. DFS roots and edges are visited in
// lexical order so the reported cycle is reproducible.
func (g *Graph) findCycle() []string {
	visited := make(map[string]bool)
	inStack := make(map[string]bool)
	cameFrom := make(map[string]string)

	var cycle []string

	var dfs func(name string) bool
	dfs = func(name string) bool {
		visited[name] = true
		inStack[name] = true

		for _, dep := range g.parents[name] {
			if !visited[dep] {
				cameFrom[dep] = name
				if dfs(dep) {
					return true
				}
			} else if inStack[dep] {
				cycle = []string{dep}
				for curr := name; curr != dep; curr = cameFrom[curr] {
					cycle = append([]string{curr}, cycle...)
				}
				cycle = append([]string{dep}, cycle...)
				return true
			}
		}

		inStack[name] = false
		return false
	}

	for _, name := range g.Names() {
		if !visited[name] {
			if dfs(name) {
				return cycle
			}
		}
	}
	return nil
}
