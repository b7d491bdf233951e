// Package plan turns a requested subset of the dependency graph into an
// ordered run plan: selector parsing, upstream/downstream expansion, and
// deterministic topological ordering with dependencies first.
package plan

import (
	"sort"
	"strings"

	"github.com/atomstack-labs/atomsh/internal/dag"
	"github.com/atomstack-labs/atomsh/pkg/core"
)

// Mode controls how a requested asset set expands across the graph.
type Mode string

const (
	// ModeExact runs only the requested assets.
	ModeExact Mode = "exact"

	// ModeUpstream adds all transitive dependencies.
	ModeUpstream Mode = "upstream"

	// ModeDownstream adds all transitive dependents.
	ModeDownstream Mode = "downstream"

	// ModeBoth adds both directions.
	ModeBoth Mode = "both"
)

// Request selects the assets to run. An empty Names means "all".
type Request struct {
	Names []string
	Mode  Mode
}

// Plan is a topological ordering of the expanded asset set: for every
// dependency edge, the dependency precedes the dependent. Ties among
// independent assets break by lexical name order, so plans are
// reproducible across runs of an unchanged graph.
type Plan struct {
	// Order is the execution order.
	Order []string

	// Requested is the pre-expansion selection, sorted.
	Requested []string
}

// ParseArgs parses CLI selectors into a request. A leading '+' requests
// upstream expansion, a trailing '+' requests downstream expansion
// (dbt-style), combined markers request both. No selectors means all
// assets.
func ParseArgs(args []string) Request {
	req := Request{Mode: ModeExact}
	upstream, downstream := false, false

	for _, arg := range args {
		name := arg
		if strings.HasPrefix(name, "+") {
			upstream = true
			name = strings.TrimPrefix(name, "+")
		}
		if strings.HasSuffix(name, "+") {
			downstream = true
			name = strings.TrimSuffix(name, "+")
		}
		if name != "" {
			req.Names = append(req.Names, name)
		}
	}

	switch {
	case upstream && downstream:
		req.Mode = ModeBoth
	case upstream:
		req.Mode = ModeUpstream
	case downstream:
		req.Mode = ModeDownstream
	}
	return req
}

// Build expands and orders the request against the graph. Requests naming
// an asset absent from the graph fail with a PlanningError before any
// execution.
func Build(g *dag.Graph, req Request) (*Plan, error) {
	selected := make(map[string]bool)

	if len(req.Names) == 0 {
		for _, name := range g.Names() {
			selected[name] = true
		}
	} else {
		for _, name := range req.Names {
			if !g.Has(name) {
				return nil, &core.PlanningError{Name: name}
			}
			selected[name] = true
		}
	}

	requested := make([]string, 0, len(selected))
	for name := range selected {
		requested = append(requested, name)
	}
	sort.Strings(requested)

	if req.Mode == ModeUpstream || req.Mode == ModeBoth {
		for _, name := range g.Upstream(requested) {
			selected[name] = true
		}
	}
	if req.Mode == ModeDownstream || req.Mode == ModeBoth {
		for _, name := range g.Downstream(requested) {
			selected[name] = true
		}
	}

	return &Plan{
		Order:     order(g, selected),
		Requested: requested,
	}, nil
}

// order is Kahn's algorithm restricted to the selected set, always
// dispatching the lexically smallest ready asset. Dependencies outside
// the selection are assumed already live and do not gate anything.
func order(g *dag.Graph, selected map[string]bool) []string {
	pending := make(map[string]int, len(selected))
	var ready []string

	for name := range selected {
		n := 0
		for _, dep := range g.Parents(name) {
			if selected[dep] {
				n++
			}
		}
		pending[name] = n
		if n == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	out := make([]string, 0, len(selected))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		out = append(out, name)

		for _, child := range g.Children(name) {
			if !selected[child] {
				continue
			}
			pending[child]--
			if pending[child] == 0 {
				// Insert keeping ready sorted.
				i := sort.SearchStrings(ready, child)
				ready = append(ready, "")
				copy(ready[i+1:], ready[i:])
				ready[i] = child
			}
		}
	}
	return out
}
