package version

import (
	"context"
	"sort"
	"sync"

	"github.com/atomstack-labs/atomsh/internal/dag"
	"github.com/atomstack-labs/atomsh/pkg/core"
)

// scheduler dispatches a plan across a bounded worker pool. An asset
// starts only after all its in-plan dependencies swapped; dependents of a
// failed asset are skipped without occupying a worker.
type scheduler struct {
	m     *Manager
	g     *dag.Graph
	order []string
}

func newScheduler(m *Manager, g *dag.Graph, order []string) *scheduler {
	return &scheduler{m: m, g: g, order: order}
}

type completion struct {
	name string
	res  core.AssetResult
}

func (s *scheduler) run(ctx context.Context) []core.AssetResult {
	selected := make(map[string]bool, len(s.order))
	for _, name := range s.order {
		selected[name] = true
	}

	// Dependencies outside the plan are assumed already live.
	pending := make(map[string]int, len(s.order))
	var ready []string
	for _, name := range s.order {
		n := 0
		for _, dep := range s.g.Parents(name) {
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

	// Same-run swaps pin downstream refs to the exact version built in
	// this run, so a concurrent run's swap cannot slip in between.
	versions := make(map[string]string, len(s.order))
	var vmu sync.RWMutex
	resolveRef := func(dep string) string {
		vmu.RLock()
		v, ok := versions[dep]
		vmu.RUnlock()
		if ok {
			return core.TargetName(s.m.namespace, dep, v)
		}
		return core.LiveName(s.m.namespace, dep)
	}

	results := make(map[string]core.AssetResult, len(s.order))
	blocked := make(map[string]bool)
	done := make(chan completion)
	inflight := 0

	finish := func(name string, res core.AssetResult) {
		results[name] = res
		failed := res.Status != core.DeployStatusSwapped
		for _, child := range s.g.Children(name) {
			if !selected[child] {
				continue
			}
			if failed {
				blocked[child] = true
			}
			pending[child]--
			if pending[child] == 0 {
				i := sort.SearchStrings(ready, child)
				ready = append(ready, "")
				copy(ready[i+1:], ready[i:])
				ready[i] = child
			}
		}
	}

	for len(ready) > 0 || inflight > 0 {
		for len(ready) > 0 && inflight < s.m.concurrency {
			name := ready[0]
			ready = ready[1:]

			if blocked[name] {
				s.m.logger.Warn("skipping asset, upstream failed", "asset", name)
				finish(name, core.AssetResult{
					Asset:  name,
					Status: core.DeployStatusSkipped,
					Error:  "upstream dependency failed",
				})
				continue
			}
			if ctx.Err() != nil {
				finish(name, core.AssetResult{
					Asset:  name,
					Status: core.DeployStatusSkipped,
					Error:  "run cancelled",
				})
				continue
			}

			inflight++
			go func(name string) {
				done <- completion{name: name, res: s.m.buildAsset(ctx, s.g, name, resolveRef)}
			}(name)
		}

		if inflight == 0 {
			// Everything dispatchable was finished synchronously
			// (skips); loop around for anything finish unblocked.
			continue
		}

		c := <-done
		inflight--
		if c.res.Status == core.DeployStatusSwapped {
			vmu.Lock()
			versions[c.name] = c.res.Version
			vmu.Unlock()
		}
		finish(c.name, c.res)
	}

	out := make([]core.AssetResult, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, results[name])
	}
	return out
}
